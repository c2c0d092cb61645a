package sync

import (
	"database/sql"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/notedav/notedav/internal/utils"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS sync_journal (
    note_id TEXT PRIMARY KEY,
    etag TEXT NOT NULL,
    size INTEGER NOT NULL,
    remote_modified TEXT NOT NULL, -- RFC3339
    local_updated_at INTEGER NOT NULL -- epoch millis of note.updatedAt at last success
);

CREATE INDEX IF NOT EXISTS idx_journal_etag ON sync_journal(etag);
`

// JournalEntry is the per-note baseline recorded after a successful
// transfer. Classification compares both sides against this row: the local
// note against local_updated_at, the remote resource against etag.
type JournalEntry struct {
	NoteID         string
	ETag           string
	Size           int64
	RemoteModified time.Time
	LocalUpdatedAt int64
}

// Journal persists sync baselines in SQLite, one row per synced note.
type Journal struct {
	db     *sql.DB
	mu     stdsync.RWMutex
	dbPath string
}

// NewJournal creates or opens the journal database at dbPath.
func NewJournal(dbPath string) (*Journal, error) {
	if err := utils.EnsureParent(dbPath); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db at %s: %w", dbPath, err)
	}

	// SQLite best practice for WAL mode
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}

	return &Journal{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Get retrieves the baseline for a note id. Not found is (nil, nil).
func (j *Journal) Get(noteID string) (*JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var entry JournalEntry
	var modString string
	err := j.db.QueryRow(
		"SELECT note_id, etag, size, remote_modified, local_updated_at FROM sync_journal WHERE note_id = ?", noteID,
	).Scan(&entry.NoteID, &entry.ETag, &entry.Size, &modString, &entry.LocalUpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query journal for %s: %w", noteID, err)
	}

	entry.RemoteModified, err = time.Parse(time.RFC3339, modString)
	if err != nil {
		return nil, fmt.Errorf("parse stored timestamp for %s: %w", noteID, err)
	}
	return &entry, nil
}

// Set inserts or replaces the baseline for a note.
func (j *Journal) Set(entry *JournalEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot set nil journal entry")
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		"INSERT OR REPLACE INTO sync_journal (note_id, etag, size, remote_modified, local_updated_at) VALUES (?, ?, ?, ?, ?)",
		entry.NoteID, entry.ETag, entry.Size, entry.RemoteModified.Format(time.RFC3339), entry.LocalUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set journal entry: %w", err)
	}
	return nil
}

// Delete removes the baseline for a note id.
func (j *Journal) Delete(noteID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.Exec("DELETE FROM sync_journal WHERE note_id = ?", noteID); err != nil {
		return fmt.Errorf("delete journal entry %s: %w", noteID, err)
	}
	return nil
}

// State retrieves the full baseline map. Rows with unparseable timestamps
// are skipped, never fatal.
func (j *Journal) State() (map[string]*JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.Query("SELECT note_id, etag, size, remote_modified, local_updated_at FROM sync_journal")
	if err != nil {
		return nil, fmt.Errorf("query journal state: %w", err)
	}
	defer rows.Close()

	state := make(map[string]*JournalEntry)
	for rows.Next() {
		var entry JournalEntry
		var modString string
		if err := rows.Scan(&entry.NoteID, &entry.ETag, &entry.Size, &modString, &entry.LocalUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entry.RemoteModified, err = time.Parse(time.RFC3339, modString)
		if err != nil {
			continue
		}
		state[entry.NoteID] = &entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal iteration: %w", err)
	}
	return state, nil
}

// Count returns the number of baseline rows.
func (j *Journal) Count() (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var count int
	if err := j.db.QueryRow("SELECT COUNT(*) FROM sync_journal").Scan(&count); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return count, nil
}

// Clear wipes all baselines. Used by restore in replace mode.
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.Exec("DELETE FROM sync_journal"); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}
