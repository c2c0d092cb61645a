package sync

import (
	"github.com/notedav/notedav/internal/client/notestore"
	"github.com/notedav/notedav/internal/davsdk"
)

// OpType classifies what one sync run decided to do with a note id.
type OpType uint8

const (
	OpUpload OpType = iota
	OpDownload
	OpDeleteRemote
	OpDeleteLocal
	OpConflict
	OpSkip
)

var opTypeNames = []string{
	"Upload",
	"Download",
	"DeleteRemote",
	"DeleteLocal",
	"Conflict",
	"Skip",
}

func (op OpType) String() string {
	return opTypeNames[op]
}

// SyncOperation pairs a note id with its classification and the three
// states the decision was made from.
type SyncOperation struct {
	Op         OpType
	NoteID     string
	Local      *notestore.Note
	Remote     *davsdk.Resource
	LastSynced *JournalEntry
}

// ReconcilePlan groups classified operations into the batches the
// orchestrator executes, one phase per batch.
type ReconcilePlan struct {
	Uploads       []*SyncOperation
	Downloads     []*SyncOperation
	RemoteDeletes []*SyncOperation
	LocalDeletes  []*SyncOperation
	Conflicts     []*SyncOperation
	Cleanups      []string // journal rows with neither side present
	Unchanged     int
}

// SyncResult is the terminal summary of one orchestration run.
type SyncResult struct {
	Success              bool
	SyncedCount          int
	ConflictCount        int
	DeletedOnServerCount int
	ErrorMessage         string
	InfoMessage          string
}

func (r SyncResult) HasConflicts() bool {
	return r.ConflictCount > 0
}

func (r SyncResult) HasServerDeletions() bool {
	return r.DeletedOnServerCount > 0
}

// ConnectionResult is the outcome of a connectivity probe.
type ConnectionResult struct {
	Success      bool
	ErrorMessage string
}

// RestoreMode selects how RestoreFromServer treats existing local notes.
type RestoreMode string

const (
	// RestoreMerge keeps whichever copy is newer per note and skips
	// tombstoned ids.
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace wipes the local store and takes the server copy,
	// clearing tombstones.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult is the terminal summary of a restore run.
type RestoreResult struct {
	Success       bool
	RestoredCount int
	ErrorMessage  string
}
