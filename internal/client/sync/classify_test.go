package sync

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedav/notedav/internal/client/notestore"
	"github.com/notedav/notedav/internal/davsdk"
)

func emptyTracker(t *testing.T) *DeletionTracker {
	t.Helper()
	return LoadDeletionTracker(filepath.Join(t.TempDir(), "tombstones.json"))
}

func localNote(id string, updatedAt int64, status notestore.SyncStatus) *notestore.Note {
	return &notestore.Note{
		ID:         id,
		Title:      "t",
		CreatedAt:  1,
		UpdatedAt:  updatedAt,
		SyncStatus: status,
	}
}

func TestClassify_NewLocalNoteUploads(t *testing.T) {
	plan := classify(
		map[string]*notestore.Note{"a": localNote("a", 10, notestore.StatusLocalOnly)},
		nil, nil, emptyTracker(t),
	)

	require.Len(t, plan.Uploads, 1)
	assert.Equal(t, OpUpload, plan.Uploads[0].Op)
	assert.Equal(t, "a", plan.Uploads[0].NoteID)
	assert.Empty(t, plan.Downloads)
}

func TestClassify_NewRemoteNoteDownloads(t *testing.T) {
	plan := classify(
		nil,
		map[string]*davsdk.Resource{"a": {ETag: "e1"}},
		nil, emptyTracker(t),
	)

	require.Len(t, plan.Downloads, 1)
	assert.Equal(t, OpDownload, plan.Downloads[0].Op)
}

func TestClassify_UnchangedNote(t *testing.T) {
	plan := classify(
		map[string]*notestore.Note{"a": localNote("a", 10, notestore.StatusSynced)},
		map[string]*davsdk.Resource{"a": {ETag: "e1"}},
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1", LocalUpdatedAt: 10}},
		emptyTracker(t),
	)

	assert.Equal(t, 1, plan.Unchanged)
	assert.Empty(t, plan.Uploads)
	assert.Empty(t, plan.Downloads)
	assert.Empty(t, plan.Conflicts)
}

func TestClassify_LocalEditUploads(t *testing.T) {
	plan := classify(
		map[string]*notestore.Note{"a": localNote("a", 20, notestore.StatusPending)},
		map[string]*davsdk.Resource{"a": {ETag: "e1"}},
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1", LocalUpdatedAt: 10}},
		emptyTracker(t),
	)

	require.Len(t, plan.Uploads, 1)
	assert.Empty(t, plan.Conflicts)
}

func TestClassify_RemoteEditDownloads(t *testing.T) {
	plan := classify(
		map[string]*notestore.Note{"a": localNote("a", 10, notestore.StatusSynced)},
		map[string]*davsdk.Resource{"a": {ETag: "e2"}},
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1", LocalUpdatedAt: 10}},
		emptyTracker(t),
	)

	require.Len(t, plan.Downloads, 1)
	assert.Empty(t, plan.Conflicts)
}

func TestClassify_BothChangedConflicts(t *testing.T) {
	plan := classify(
		map[string]*notestore.Note{"a": localNote("a", 20, notestore.StatusPending)},
		map[string]*davsdk.Resource{"a": {ETag: "e2"}},
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1", LocalUpdatedAt: 10}},
		emptyTracker(t),
	)

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, OpConflict, plan.Conflicts[0].Op)
	assert.Empty(t, plan.Uploads)
	assert.Empty(t, plan.Downloads)
}

func TestClassify_NoBaselineBothPresentConflicts(t *testing.T) {
	// both sides exist but were never reconciled: treat as divergent
	plan := classify(
		map[string]*notestore.Note{"a": localNote("a", 20, notestore.StatusPending)},
		map[string]*davsdk.Resource{"a": {ETag: "e1"}},
		nil, emptyTracker(t),
	)

	require.Len(t, plan.Conflicts, 1)
}

func TestClassify_TombstonedRemoteGetsDeleted(t *testing.T) {
	tr := emptyTracker(t)
	tr.Add("a", "dev")

	plan := classify(
		nil,
		map[string]*davsdk.Resource{"a": {ETag: "e1"}},
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1"}},
		tr,
	)

	require.Len(t, plan.RemoteDeletes, 1)
	assert.Equal(t, OpDeleteRemote, plan.RemoteDeletes[0].Op)
	assert.Empty(t, plan.Downloads, "tombstoned notes never come back down")
}

func TestClassify_TombstonedGoneRemoteCleansBaseline(t *testing.T) {
	tr := emptyTracker(t)
	tr.Add("a", "dev")

	plan := classify(
		nil, nil,
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1"}},
		tr,
	)

	assert.Empty(t, plan.RemoteDeletes)
	assert.Equal(t, []string{"a"}, plan.Cleanups)
}

func TestClassify_DeletedElsewhereRemovesLocal(t *testing.T) {
	plan := classify(
		map[string]*notestore.Note{"a": localNote("a", 10, notestore.StatusSynced)},
		nil,
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1", LocalUpdatedAt: 10}},
		emptyTracker(t),
	)

	require.Len(t, plan.LocalDeletes, 1)
	assert.Equal(t, OpDeleteLocal, plan.LocalDeletes[0].Op)
}

func TestClassify_MissingLocalWithBaselineResurrects(t *testing.T) {
	// local file vanished without a tombstone (e.g. wiped data dir): the
	// remote copy wins over guessing a delete
	plan := classify(
		nil,
		map[string]*davsdk.Resource{"a": {ETag: "e1"}},
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1"}},
		emptyTracker(t),
	)

	require.Len(t, plan.Downloads, 1)
	assert.Empty(t, plan.RemoteDeletes)
}

func TestClassify_StaleBaselineCleanedUp(t *testing.T) {
	plan := classify(
		nil, nil,
		map[string]*JournalEntry{"a": {NoteID: "a", ETag: "e1"}},
		emptyTracker(t),
	)

	assert.Equal(t, []string{"a"}, plan.Cleanups)
}
