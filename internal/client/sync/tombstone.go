package sync

import (
	"log/slog"
	"os"
	"sort"
	stdsync "sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/notedav/notedav/internal/utils"
)

const tombstoneFileVersion = 1

// DeletionRecord is a tombstone: proof that a note id was deleted locally,
// used to keep a stale server copy from resurrecting it.
type DeletionRecord struct {
	ID        string `json:"id"`
	DeletedAt int64  `json:"deletedAt"` // epoch millis
	DeviceID  string `json:"deviceId"`
}

type tombstoneFile struct {
	Version      int              `json:"version"`
	DeletedNotes []DeletionRecord `json:"deletedNotes"`
}

// DeletionTracker is the persistent tombstone log. One record per deleted
// id; insertion is idempotent. Reads are safe concurrently with the editor.
type DeletionTracker struct {
	path    string
	mu      stdsync.RWMutex
	records map[string]DeletionRecord
}

// LoadDeletionTracker reads the tombstone file at path. Any parse failure
// yields an empty tracker, never an error: a corrupt tombstone file must
// not block sync. The accepted trade-off is that a deleted note may be
// resurrected from the server, which is logged.
func LoadDeletionTracker(path string) *DeletionTracker {
	t := &DeletionTracker{
		path:    path,
		records: make(map[string]DeletionRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("deletion tracker unreadable, starting empty", "path", path, "error", err)
		}
		return t
	}

	var file tombstoneFile
	if err := json.Unmarshal(data, &file); err != nil {
		slog.Warn("deletion tracker corrupt, starting empty; deleted notes may resurrect", "path", path, "error", err)
		return t
	}

	// missing version defaults to 1, missing deletedNotes to empty
	for _, rec := range file.DeletedNotes {
		if rec.ID == "" {
			continue
		}
		t.records[rec.ID] = rec
	}
	return t
}

// Add inserts a tombstone for id unless one already exists. Returns true
// when a new record was written.
func (t *DeletionTracker) Add(id, deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[id]; exists {
		return false
	}
	t.records[id] = DeletionRecord{
		ID:        id,
		DeletedAt: time.Now().UnixMilli(),
		DeviceID:  deviceID,
	}
	if err := t.saveLocked(); err != nil {
		slog.Error("deletion tracker save", "error", err)
	}
	return true
}

// IsDeleted reports whether a tombstone exists for id.
func (t *DeletionTracker) IsDeleted(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.records[id]
	return ok
}

// DeletedAt returns the tombstone timestamp for id.
func (t *DeletionTracker) DeletedAt(id string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(rec.DeletedAt), true
}

// Remove drops the tombstone for id. Used exactly once per id, when a note
// with a previously tombstoned id is freshly imported, so the next sync
// uploads it instead of skipping it.
func (t *DeletionTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[id]; !ok {
		return
	}
	delete(t.records, id)
	if err := t.saveLocked(); err != nil {
		slog.Error("deletion tracker save", "error", err)
	}
}

// Records returns all tombstones, sorted by id.
func (t *DeletionTracker) Records() []DeletionRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]DeletionRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear drops every tombstone. Used by full restore.
func (t *DeletionTracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = make(map[string]DeletionRecord)
	return t.saveLocked()
}

// Save persists the tracker to disk.
func (t *DeletionTracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *DeletionTracker) saveLocked() error {
	file := tombstoneFile{
		Version:      tombstoneFileVersion,
		DeletedNotes: make([]DeletionRecord, 0, len(t.records)),
	}
	for _, rec := range t.records {
		file.DeletedNotes = append(file.DeletedNotes, rec)
	}
	sort.Slice(file.DeletedNotes, func(i, j int) bool { return file.DeletedNotes[i].ID < file.DeletedNotes[j].ID })

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(t.path, data, 0o644)
}
