package notestore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/notedav/notedav/internal/utils"
)

// defaultIgnoreLines lists files in the notes directory that are not note
// documents and must never be read or deleted by the store.
var defaultIgnoreLines = []string{
	".*",
	"*.tmp",
	"*.bak",
	"*.log",
}

// Store persists notes as <dir>/<id>.json. Reads are safe concurrently
// with the editor running in the same process; writes are atomic renames.
type Store struct {
	dir    string
	ignore *gitignore.GitIgnore
	mu     sync.RWMutex
}

// NewStore opens (creating if needed) a note store at dir.
func NewStore(dir string) (*Store, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("notestore: create %q: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		ignore: gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// LoadAll reads every note in the store. A note file that fails to parse is
// logged and skipped, never fatal: local corruption must not block sync.
func (s *Store) LoadAll() ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("notestore: read dir: %w", err)
	}

	notes := make([]*Note, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || s.ignore.MatchesPath(entry.Name()) || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		note, err := s.readFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			slog.Warn("notestore: skipping unreadable note", "file", entry.Name(), "error", err)
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// Load reads one note by id. Returns (nil, nil) when the note does not exist.
func (s *Store) Load(id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.notePath(id)
	if !utils.FileExists(path) {
		return nil, nil
	}
	return s.readFile(path)
}

// Save writes the note atomically.
func (s *Store) Save(note *Note) error {
	if err := note.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(note, "", "  ")
	if err != nil {
		return fmt.Errorf("notestore: marshal note %s: %w", note.ID, err)
	}
	if err := utils.WriteFileAtomic(s.notePath(note.ID), data, 0o644); err != nil {
		return fmt.Errorf("notestore: write note %s: %w", note.ID, err)
	}
	return nil
}

// Delete removes a note file. Deleting a missing note is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.notePath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("notestore: delete note %s: %w", id, err)
	}
	return nil
}

// DeleteAll removes every note in the store.
func (s *Store) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("notestore: read dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || s.ignore.MatchesPath(entry.Name()) || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("notestore: delete %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// SetSyncStatus updates only the sync status of a stored note. Missing
// notes are ignored.
func (s *Store) SetSyncStatus(id string, status SyncStatus) error {
	note, err := s.Load(id)
	if err != nil || note == nil {
		return err
	}
	if note.SyncStatus == status {
		return nil
	}
	note.SyncStatus = status
	return s.Save(note)
}

func (s *Store) notePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) readFile(path string) (*Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var note Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, err
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}
	return &note, nil
}
