package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_SetGetRoundtrip(t *testing.T) {
	j := newTestJournal(t)

	modified := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Set(&JournalEntry{
		NoteID:         "note-1",
		ETag:           "abc123",
		Size:           42,
		RemoteModified: modified,
		LocalUpdatedAt: 1700000000000,
	}))

	got, err := j.Get("note-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.ETag)
	assert.Equal(t, int64(42), got.Size)
	assert.True(t, got.RemoteModified.Equal(modified))
	assert.Equal(t, int64(1700000000000), got.LocalUpdatedAt)
}

func TestJournal_GetMissingIsNil(t *testing.T) {
	j := newTestJournal(t)

	got, err := j.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJournal_SetReplacesExisting(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Set(&JournalEntry{NoteID: "note-1", ETag: "v1", RemoteModified: time.Now()}))
	require.NoError(t, j.Set(&JournalEntry{NoteID: "note-1", ETag: "v2", RemoteModified: time.Now()}))

	got, err := j.Get("note-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.ETag)

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestJournal_DeleteAndClear(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Set(&JournalEntry{NoteID: "note-1", ETag: "a", RemoteModified: time.Now()}))
	require.NoError(t, j.Set(&JournalEntry{NoteID: "note-2", ETag: "b", RemoteModified: time.Now()}))

	require.NoError(t, j.Delete("note-1"))
	got, err := j.Get("note-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, j.Clear())
	count, err := j.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestJournal_State(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Set(&JournalEntry{NoteID: "note-1", ETag: "a", RemoteModified: time.Now()}))
	require.NoError(t, j.Set(&JournalEntry{NoteID: "note-2", ETag: "b", RemoteModified: time.Now()}))

	state, err := j.State()
	require.NoError(t, err)
	require.Len(t, state, 2)
	assert.Equal(t, "a", state["note-1"].ETag)
	assert.Equal(t, "b", state["note-2"].ETag)
}

func TestJournal_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Set(&JournalEntry{NoteID: "note-1", ETag: "a", RemoteModified: time.Now()}))
	require.NoError(t, j.Close())

	j2, err := NewJournal(path)
	require.NoError(t, err)
	defer j2.Close()

	got, err := j2.Get("note-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ETag)
}
