package client

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/notedav/notedav/internal/backup"
	"github.com/notedav/notedav/internal/client/notestore"
	"github.com/notedav/notedav/internal/client/sync"
)

const archiveVersion = 1

// archive is the plaintext payload of an encrypted backup file: the full
// note set plus the tombstone log, so a restored device keeps propagating
// deletions.
type archive struct {
	Version      int                   `json:"version"`
	ExportedAt   int64                 `json:"exportedAt"` // epoch millis
	DeviceID     string                `json:"deviceId"`
	Notes        []*notestore.Note     `json:"notes"`
	DeletedNotes []sync.DeletionRecord `json:"deletedNotes"`
}

// ExportBackup writes an encrypted backup of all notes and tombstones.
func (c *Client) ExportBackup(path, password string) (int, error) {
	notes, err := c.store.LoadAll()
	if err != nil {
		return 0, err
	}

	doc := archive{
		Version:      archiveVersion,
		ExportedAt:   time.Now().UnixMilli(),
		DeviceID:     c.config.DeviceID,
		Notes:        notes,
		DeletedNotes: c.engine.Tracker().Records(),
	}
	plain, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode backup: %w", err)
	}

	sealed, err := backup.Encrypt(plain, password)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return 0, fmt.Errorf("write backup %s: %w", path, err)
	}
	return len(notes), nil
}

// ImportBackup restores notes from an encrypted backup file. Merge keeps
// whichever copy is newer per note; replace wipes the local store first.
// Tombstones from the backup are merged in either mode.
func (c *Client) ImportBackup(path, password string, mode sync.RestoreMode) (int, error) {
	if mode != sync.RestoreMerge && mode != sync.RestoreReplace {
		return 0, fmt.Errorf("unknown restore mode %q", mode)
	}

	sealed, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read backup %s: %w", path, err)
	}
	plain, err := backup.Decrypt(sealed, password)
	if err != nil {
		return 0, err
	}

	var doc archive
	if err := json.Unmarshal(plain, &doc); err != nil {
		return 0, fmt.Errorf("decode backup: %w", err)
	}
	if doc.Version != archiveVersion {
		return 0, fmt.Errorf("unsupported backup version %d", doc.Version)
	}

	if mode == sync.RestoreReplace {
		if err := c.store.DeleteAll(); err != nil {
			return 0, err
		}
	}

	restored := 0
	for _, note := range doc.Notes {
		if mode == sync.RestoreMerge {
			existing, err := c.store.Load(note.ID)
			if err != nil {
				return restored, err
			}
			if existing != nil && existing.UpdatedAt >= note.UpdatedAt {
				continue
			}
		}
		// restored notes re-upload on the next sync
		note.SyncStatus = notestore.StatusPending
		if err := c.store.Save(note); err != nil {
			return restored, err
		}
		restored++
	}

	tracker := c.engine.Tracker()
	for _, rec := range doc.DeletedNotes {
		if tracker.Add(rec.ID, rec.DeviceID) {
			slog.Debug("restored tombstone", "note", rec.ID)
		}
	}
	return restored, nil
}
