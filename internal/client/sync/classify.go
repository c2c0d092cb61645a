package sync

import (
	"github.com/notedav/notedav/internal/client/notestore"
	"github.com/notedav/notedav/internal/davsdk"
)

// classify decides, for every note id seen locally, remotely or in the
// journal, which operation the run will execute. The journal row is the
// baseline of the last successful sync: the local note is compared against
// its local_updated_at, the remote resource against its etag. Classification
// is pure; the orchestrator executes the resulting plan.
func classify(
	local map[string]*notestore.Note,
	remote map[string]*davsdk.Resource,
	journal map[string]*JournalEntry,
	tracker *DeletionTracker,
) *ReconcilePlan {
	plan := &ReconcilePlan{}

	allIDs := make(map[string]struct{})
	for id := range local {
		allIDs[id] = struct{}{}
	}
	for id := range remote {
		allIDs[id] = struct{}{}
	}
	for id := range journal {
		allIDs[id] = struct{}{}
	}

	for id := range allIDs {
		note, localExists := local[id]
		res, remoteExists := remote[id]
		base, baseExists := journal[id]

		op := &SyncOperation{NoteID: id, Local: note, Remote: res, LastSynced: base}

		// Tombstoned ids never come back down. A remote copy still present
		// must be deleted on the server.
		if tracker.IsDeleted(id) {
			if remoteExists {
				op.Op = OpDeleteRemote
				plan.RemoteDeletes = append(plan.RemoteDeletes, op)
			} else if baseExists {
				plan.Cleanups = append(plan.Cleanups, id)
			}
			continue
		}

		switch {
		case !localExists && !remoteExists:
			// both gone, stale baseline
			plan.Cleanups = append(plan.Cleanups, id)

		case !localExists && remoteExists:
			// no local copy and no tombstone: download, even when a
			// baseline exists. A legitimate local delete always leaves a
			// tombstone; without one the accepted trade-off is to
			// resurrect rather than delete remotely.
			op.Op = OpDownload
			plan.Downloads = append(plan.Downloads, op)

		case localExists && !remoteExists:
			if baseExists {
				// synced before, gone from the server: deleted elsewhere
				op.Op = OpDeleteLocal
				plan.LocalDeletes = append(plan.LocalDeletes, op)
			} else {
				// never synced
				op.Op = OpUpload
				plan.Uploads = append(plan.Uploads, op)
			}

		default: // both exist
			localChanged := !baseExists || note.UpdatedAt > base.LocalUpdatedAt || note.Unsynced()
			remoteChanged := !baseExists || res.ETag != base.ETag

			switch {
			case localChanged && remoteChanged:
				op.Op = OpConflict
				plan.Conflicts = append(plan.Conflicts, op)
			case localChanged:
				op.Op = OpUpload
				plan.Uploads = append(plan.Uploads, op)
			case remoteChanged:
				op.Op = OpDownload
				plan.Downloads = append(plan.Downloads, op)
			default:
				plan.Unchanged++
			}
		}
	}

	return plan
}
