// Package notestore owns the local, authoritative copy of all notes. Notes
// are stored one JSON document per file under the data directory; the sync
// engine goes through this package and never touches the files directly.
package notestore

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks where a note stands relative to the remote.
type SyncStatus string

const (
	StatusLocalOnly SyncStatus = "LOCAL_ONLY" // never uploaded
	StatusPending   SyncStatus = "PENDING"    // local edits not yet uploaded
	StatusSynced    SyncStatus = "SYNCED"     // matches the last-synced baseline
	StatusConflict  SyncStatus = "CONFLICT"   // diverged on both sides, needs user
)

var ErrInvalidNote = errors.New("notestore: invalid note")

// Note is a single note document. ID is generated once and never changes.
// Timestamps are epoch millis; UpdatedAt >= CreatedAt always holds.
type Note struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	CreatedAt  int64      `json:"createdAt"`
	UpdatedAt  int64      `json:"updatedAt"`
	DeviceID   string     `json:"deviceId"`
	SyncStatus SyncStatus `json:"syncStatus"`
}

// NewNote creates a local-only note with a fresh id.
func NewNote(title, content, deviceID string) *Note {
	now := time.Now().UnixMilli()
	return &Note{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
		DeviceID:   deviceID,
		SyncStatus: StatusLocalOnly,
	}
}

// Touch records a local edit: bumps UpdatedAt and flips the note back to
// pending so the next sync uploads it.
func (n *Note) Touch(deviceID string) {
	now := time.Now().UnixMilli()
	if now <= n.UpdatedAt {
		// wall clock went backwards or edits within the same milli
		now = n.UpdatedAt + 1
	}
	n.UpdatedAt = now
	n.DeviceID = deviceID
	if n.SyncStatus != StatusLocalOnly {
		n.SyncStatus = StatusPending
	}
}

// Validate checks the invariants the store relies on.
func (n *Note) Validate() error {
	if n.ID == "" {
		return errors.New("notestore: note has no id")
	}
	if _, err := uuid.Parse(n.ID); err != nil {
		return errors.New("notestore: note id is not a uuid")
	}
	if n.UpdatedAt < n.CreatedAt {
		return errors.New("notestore: updatedAt precedes createdAt")
	}
	switch n.SyncStatus {
	case StatusLocalOnly, StatusPending, StatusSynced, StatusConflict:
	default:
		return errors.New("notestore: unknown sync status")
	}
	return nil
}

// Unsynced reports whether the note has local changes the remote has not
// seen yet.
func (n *Note) Unsynced() bool {
	return n.SyncStatus == StatusLocalOnly || n.SyncStatus == StatusPending
}

// MarkdownFileName returns the export file name for the note: the title
// sanitized to a safe file name, with the id as a disambiguator.
func (n *Note) MarkdownFileName() string {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = "untitled"
	}
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String() + "." + n.ID + ".md"
}
