package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedav/notedav/internal/backup"
	"github.com/notedav/notedav/internal/client/config"
	"github.com/notedav/notedav/internal/client/notestore"
	"github.com/notedav/notedav/internal/client/sync"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	tmp := t.TempDir()
	cfg := &config.Config{
		DataDir:   tmp,
		ServerURL: "https://dav.example.com",
		Username:  "alice",
		Password:  "secret",
		DeviceID:  "device-test",
	}

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBackup_ExportImportRoundtrip(t *testing.T) {
	src := newTestClient(t)

	note := notestore.NewNote("Groceries", "milk", "device-test")
	require.NoError(t, src.Store().Save(note))

	deleted := notestore.NewNote("Old", "gone", "device-test")
	require.NoError(t, src.Store().Save(deleted))
	require.NoError(t, src.Engine().DeleteNote(deleted.ID))

	path := filepath.Join(t.TempDir(), "notes.ndbk")
	count, err := src.ExportBackup(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	dst := newTestClient(t)
	restored, err := dst.ImportBackup(path, "hunter2", sync.RestoreMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	got, err := dst.Store().Load(note.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Groceries", got.Title)
	// restored notes upload on the next sync
	assert.Equal(t, notestore.StatusPending, got.SyncStatus)

	// tombstones travel with the backup
	assert.True(t, dst.Engine().Tracker().IsDeleted(deleted.ID))
}

func TestBackup_ImportWrongPassword(t *testing.T) {
	src := newTestClient(t)
	require.NoError(t, src.Store().Save(notestore.NewNote("N", "c", "device-test")))

	path := filepath.Join(t.TempDir(), "notes.ndbk")
	_, err := src.ExportBackup(path, "right")
	require.NoError(t, err)

	dst := newTestClient(t)
	_, err = dst.ImportBackup(path, "wrong", sync.RestoreMerge)
	assert.ErrorIs(t, err, backup.ErrAuthentication)
}

func TestBackup_ImportMergeKeepsNewerLocal(t *testing.T) {
	src := newTestClient(t)
	note := notestore.NewNote("N", "old content", "device-test")
	require.NoError(t, src.Store().Save(note))

	path := filepath.Join(t.TempDir(), "notes.ndbk")
	_, err := src.ExportBackup(path, "pw")
	require.NoError(t, err)

	// local copy moved on since the backup was taken
	note.Content = "new content"
	note.Touch("device-test")
	require.NoError(t, src.Store().Save(note))

	restored, err := src.ImportBackup(path, "pw", sync.RestoreMerge)
	require.NoError(t, err)
	assert.Zero(t, restored)

	got, err := src.Store().Load(note.ID)
	require.NoError(t, err)
	assert.Equal(t, "new content", got.Content)
}

func TestBackup_ImportReplaceWipesLocal(t *testing.T) {
	src := newTestClient(t)
	keep := notestore.NewNote("Keep", "c", "device-test")
	require.NoError(t, src.Store().Save(keep))

	path := filepath.Join(t.TempDir(), "notes.ndbk")
	_, err := src.ExportBackup(path, "pw")
	require.NoError(t, err)

	dst := newTestClient(t)
	extra := notestore.NewNote("Extra", "local only", "device-test")
	require.NoError(t, dst.Store().Save(extra))

	restored, err := dst.ImportBackup(path, "pw", sync.RestoreReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	gone, err := dst.Store().Load(extra.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
