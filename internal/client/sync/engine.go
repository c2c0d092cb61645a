// Package sync reconciles the local note store with a WebDAV collection.
//
// Each run builds three views of the world (local notes, remote resources,
// journal baselines), classifies every id into an operation, then executes
// the plan phase by phase: remote deletes, local deletes, downloads,
// uploads, markdown import. Conflicts are flagged, never auto-resolved.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/notedav/notedav/internal/client/notestore"
	"github.com/notedav/notedav/internal/davsdk"
)

const (
	noteContentType     = "application/json"
	markdownContentType = "text/markdown"
	markdownFolder      = "markdown"
)

// ErrSyncAlreadyRunning is returned by paths that require exclusive access
// while another sync holds the state lock.
var ErrSyncAlreadyRunning = errors.New("sync already in progress")

// Options configures an Engine.
type Options struct {
	// RemotePath is the WebDAV collection holding the notes, e.g. "/notes".
	RemotePath string
	// DeviceID stamps tombstones and imported notes.
	DeviceID string
	// ExportMarkdown enables the markdown mirror and import phase.
	ExportMarkdown bool
	// Transfer tunes parallelism and retries.
	Transfer davsdk.TransferOptions
}

// Engine is the sync orchestrator. It owns no locking beyond what its
// collaborators provide; single-flight is enforced by the StateManager.
type Engine struct {
	store     *notestore.Store
	dav       *davsdk.Client
	transfers *davsdk.TransferEngine
	journal   *Journal
	tracker   *DeletionTracker
	state     *StateManager
	opts      Options
}

func NewEngine(
	store *notestore.Store,
	dav *davsdk.Client,
	journal *Journal,
	tracker *DeletionTracker,
	state *StateManager,
	opts Options,
) *Engine {
	opts.RemotePath = "/" + strings.Trim(opts.RemotePath, "/")
	return &Engine{
		store:     store,
		dav:       dav,
		transfers: davsdk.NewTransferEngine(dav, opts.Transfer),
		journal:   journal,
		tracker:   tracker,
		state:     state,
		opts:      opts,
	}
}

func (e *Engine) State() *StateManager {
	return e.state
}

func (e *Engine) Tracker() *DeletionTracker {
	return e.tracker
}

// DeleteNote removes a note locally and records the tombstone. The next
// sync propagates the deletion to the server.
func (e *Engine) DeleteNote(id string) error {
	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.tracker.Add(id, e.opts.DeviceID)
	return nil
}

// ImportNote saves an externally produced note, clearing any tombstone for
// its id so the next sync uploads it instead of skipping it.
func (e *Engine) ImportNote(note *notestore.Note) error {
	e.tracker.Remove(note.ID)
	if note.SyncStatus == notestore.StatusSynced {
		note.SyncStatus = notestore.StatusPending
	}
	return e.store.Save(note)
}

// TestConnection probes the server with a depth-0 PROPFIND on the notes
// collection. A missing collection is still a reachable, authenticated
// server, so it counts as success.
func (e *Engine) TestConnection(ctx context.Context) ConnectionResult {
	_, err := e.dav.List(ctx, e.opts.RemotePath+"/", 0)
	if err != nil && !errors.Is(err, davsdk.ErrNotFound) {
		return ConnectionResult{ErrorMessage: err.Error()}
	}
	return ConnectionResult{Success: true}
}

// HasUnsyncedChanges reports whether anything would happen on the next
// sync: a note not in SYNCED state, or a tombstone whose server copy has
// not been deleted yet.
func (e *Engine) HasUnsyncedChanges() (bool, error) {
	notes, err := e.store.LoadAll()
	if err != nil {
		return false, err
	}
	for _, note := range notes {
		if note.Unsynced() {
			return true, nil
		}
	}

	baselines, err := e.journal.State()
	if err != nil {
		return false, err
	}
	for _, rec := range e.tracker.Records() {
		if _, ok := baselines[rec.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// SyncNotes runs a visible, manually triggered sync.
func (e *Engine) SyncNotes(ctx context.Context) SyncResult {
	return e.Sync(ctx, "manual", false)
}

// Sync runs one full reconciliation. When another sync is already running
// the call is a successful no-op, not an error.
func (e *Engine) Sync(ctx context.Context, source string, silent bool) SyncResult {
	if e.opts.RemotePath == "/" {
		return SyncResult{ErrorMessage: "remote path not configured"}
	}

	if !e.state.TryStartSync(source, silent) {
		slog.Debug("sync skipped", "source", source, "reason", "already running")
		return SyncResult{Success: true, InfoMessage: "sync already in progress"}
	}

	result := e.run(ctx)
	if result.Success {
		e.state.MarkCompleted(result.summaryMessage())
	} else {
		e.state.MarkError(result.ErrorMessage)
	}
	return result
}

func (e *Engine) run(ctx context.Context) SyncResult {
	start := time.Now()
	result := SyncResult{}

	e.state.UpdateProgress(PhasePreparing, 0, 0, "")

	remoteState, err := e.remoteNoteState(ctx)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("list remote notes: %v", err)
		return result
	}

	if e.opts.ExportMarkdown {
		if err := e.dav.MkCol(ctx, e.markdownURL("")); err != nil {
			slog.Warn("create markdown folder", "error", err)
		}
	}

	notes, err := e.store.LoadAll()
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("load local notes: %v", err)
		return result
	}
	localState := make(map[string]*notestore.Note, len(notes))
	for _, note := range notes {
		localState[note.ID] = note
	}

	baselines, err := e.journal.State()
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("load sync journal: %v", err)
		return result
	}

	plan := classify(localState, remoteState, baselines, e.tracker)
	slog.Debug("sync plan",
		"uploads", len(plan.Uploads),
		"downloads", len(plan.Downloads),
		"remoteDeletes", len(plan.RemoteDeletes),
		"localDeletes", len(plan.LocalDeletes),
		"conflicts", len(plan.Conflicts),
		"unchanged", plan.Unchanged,
	)

	var failures []error

	for _, op := range plan.Conflicts {
		if err := e.store.SetSyncStatus(op.NoteID, notestore.StatusConflict); err != nil {
			failures = append(failures, fmt.Errorf("flag conflict %s: %w", op.NoteID, err))
			continue
		}
		result.ConflictCount++
		slog.Warn("conflict detected, keeping both copies apart", "note", op.NoteID)
	}

	for _, op := range plan.RemoteDeletes {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}
		if err := e.dav.Delete(ctx, e.noteURL(op.NoteID)); err != nil {
			failures = append(failures, fmt.Errorf("delete remote %s: %w", op.NoteID, err))
			continue
		}
		if err := e.journal.Delete(op.NoteID); err != nil {
			failures = append(failures, err)
			continue
		}
		result.DeletedOnServerCount++
	}

	localDeletes := 0
	for _, op := range plan.LocalDeletes {
		if err := e.store.Delete(op.NoteID); err != nil {
			failures = append(failures, fmt.Errorf("delete local %s: %w", op.NoteID, err))
			continue
		}
		if err := e.journal.Delete(op.NoteID); err != nil {
			failures = append(failures, err)
			continue
		}
		localDeletes++
	}
	if localDeletes > 0 {
		result.InfoMessage = fmt.Sprintf("%d notes deleted on another device were removed", localDeletes)
	}

	for _, id := range plan.Cleanups {
		if err := e.journal.Delete(id); err != nil {
			failures = append(failures, err)
		}
	}

	downloads, err := e.runDownloadPhase(ctx, plan.Downloads)
	if err != nil {
		failures = append(failures, err)
	}
	result.SyncedCount += downloads.synced
	failures = append(failures, downloads.failures...)

	uploads, err := e.runUploadPhase(ctx, plan.Uploads)
	if err != nil {
		failures = append(failures, err)
	}
	result.SyncedCount += uploads.synced
	failures = append(failures, uploads.failures...)

	// Import is best effort: external markdown files never block the
	// primary sync.
	if imported, err := e.runImportPhase(ctx); err != nil {
		slog.Warn("markdown import", "error", err)
	} else if imported > 0 {
		slog.Info("imported external markdown notes", "count", imported)
	}

	for _, err := range failures {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.ErrorMessage = "sync cancelled"
			return result
		}
	}
	if len(failures) > 0 {
		result.ErrorMessage = fmt.Sprintf("%d transfers failed: %v", len(failures), failures[0])
		return result
	}

	result.Success = true
	slog.Info("sync done",
		"synced", result.SyncedCount,
		"conflicts", result.ConflictCount,
		"deletedOnServer", result.DeletedOnServerCount,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return result
}

type phaseOutcome struct {
	synced   int
	failures []error
}

func (e *Engine) runDownloadPhase(ctx context.Context, ops []*SyncOperation) (phaseOutcome, error) {
	outcome := phaseOutcome{}
	if len(ops) == 0 {
		return outcome, nil
	}

	tasks := make([]*davsdk.DownloadTask, 0, len(ops))
	remotes := make(map[string]*davsdk.Resource, len(ops))
	for _, op := range ops {
		tasks = append(tasks, &davsdk.DownloadTask{
			ID:           op.NoteID,
			URL:          e.noteURL(op.NoteID),
			ETag:         op.Remote.ETag,
			Size:         op.Remote.Size,
			LastModified: op.Remote.LastModified,
		})
		remotes[op.NoteID] = op.Remote
	}

	e.state.UpdateProgress(PhaseDownloading, 0, len(tasks), "")
	results, err := e.transfers.RunDownloads(ctx, tasks, func(completed, total int, taskID string) {
		e.state.IncrementProgress(taskID)
	})
	if err != nil {
		return outcome, err
	}

	for _, res := range results {
		switch res.Outcome {
		case davsdk.OutcomeSuccess:
			if err := e.applyDownload(res, remotes[res.TaskID]); err != nil {
				outcome.failures = append(outcome.failures, err)
				continue
			}
			outcome.synced++
		case davsdk.OutcomeFailure:
			outcome.failures = append(outcome.failures, fmt.Errorf("download %s: %w", res.TaskID, res.Err))
		case davsdk.OutcomeSkipped:
			slog.Debug("download skipped", "note", res.TaskID, "reason", res.SkipReason)
		}
	}
	return outcome, nil
}

func (e *Engine) applyDownload(res *davsdk.DownloadResult, remote *davsdk.Resource) error {
	var note notestore.Note
	if err := json.Unmarshal(res.Body, &note); err != nil {
		return fmt.Errorf("decode downloaded note %s: %w", res.TaskID, err)
	}
	if note.ID != res.TaskID {
		return fmt.Errorf("downloaded note %s carries id %s", res.TaskID, note.ID)
	}

	note.SyncStatus = notestore.StatusSynced
	if err := e.store.Save(&note); err != nil {
		return fmt.Errorf("save downloaded note %s: %w", note.ID, err)
	}

	etag := res.ETag
	if etag == "" && remote != nil {
		etag = remote.ETag
	}
	entry := &JournalEntry{
		NoteID:         note.ID,
		ETag:           etag,
		Size:           int64(len(res.Body)),
		LocalUpdatedAt: note.UpdatedAt,
	}
	if remote != nil {
		entry.RemoteModified = remote.LastModified
	}
	return e.journal.Set(entry)
}

func (e *Engine) runUploadPhase(ctx context.Context, ops []*SyncOperation) (phaseOutcome, error) {
	outcome := phaseOutcome{}
	if len(ops) == 0 {
		return outcome, nil
	}

	tasks := make([]*davsdk.UploadTask, 0, len(ops))
	bodies := make(map[string]*notestore.Note, len(ops))
	for _, op := range ops {
		body, err := json.MarshalIndent(op.Local, "", "  ")
		if err != nil {
			outcome.failures = append(outcome.failures, fmt.Errorf("encode note %s: %w", op.NoteID, err))
			continue
		}
		tasks = append(tasks, &davsdk.UploadTask{
			ID:          op.NoteID,
			URL:         e.noteURL(op.NoteID),
			Body:        body,
			ContentType: noteContentType,
		})
		bodies[op.NoteID] = op.Local

		if e.opts.ExportMarkdown {
			tasks = append(tasks, e.markdownTask(op))
		}
	}

	e.state.UpdateProgress(PhaseUploading, 0, len(tasks), "")
	results, err := e.transfers.RunUploads(ctx, tasks, func(completed, total int, taskID string) {
		e.state.IncrementProgress(taskID)
	})
	if err != nil {
		return outcome, err
	}

	for _, res := range results {
		if res.Markdown {
			// The markdown mirror is a convenience copy; a failed export
			// never fails the sync.
			if res.Outcome == davsdk.OutcomeFailure {
				slog.Warn("markdown export failed", "note", res.TaskID, "error", res.Err)
			}
			continue
		}
		switch res.Outcome {
		case davsdk.OutcomeSuccess:
			if err := e.applyUpload(ctx, res, bodies[res.TaskID]); err != nil {
				outcome.failures = append(outcome.failures, err)
				continue
			}
			outcome.synced++
		case davsdk.OutcomeFailure:
			outcome.failures = append(outcome.failures, fmt.Errorf("upload %s: %w", res.TaskID, res.Err))
		case davsdk.OutcomeSkipped:
			slog.Debug("upload skipped", "note", res.TaskID, "reason", res.SkipReason)
		}
	}
	return outcome, nil
}

func (e *Engine) markdownTask(op *SyncOperation) *davsdk.UploadTask {
	task := &davsdk.UploadTask{
		ID:          op.NoteID + ".md",
		URL:         e.markdownURL(op.Local.MarkdownFileName()),
		Body:        notestore.RenderMarkdown(op.Local),
		ContentType: markdownContentType,
		Markdown:    true,
	}
	if op.LastSynced != nil && op.Local.UpdatedAt <= op.LastSynced.LocalUpdatedAt {
		task.Skip = true
		task.SkipReason = "content unchanged"
	}
	return task
}

func (e *Engine) applyUpload(ctx context.Context, res *davsdk.UploadResult, note *notestore.Note) error {
	etag := res.ETag
	var remoteModified time.Time

	// Some servers omit the ETag from PUT responses; fetch it back so the
	// baseline stays usable for change detection.
	if etag == "" {
		resources, err := e.dav.List(ctx, e.noteURL(note.ID), 0)
		if err == nil && len(resources) > 0 {
			etag = resources[0].ETag
			remoteModified = resources[0].LastModified
		}
	}
	if remoteModified.IsZero() {
		remoteModified = time.Now()
	}

	note.SyncStatus = notestore.StatusSynced
	if err := e.store.Save(note); err != nil {
		return fmt.Errorf("mark uploaded note %s: %w", note.ID, err)
	}
	return e.journal.Set(&JournalEntry{
		NoteID:         note.ID,
		ETag:           etag,
		RemoteModified: remoteModified,
		LocalUpdatedAt: note.UpdatedAt,
	})
}

// runImportPhase pulls externally created markdown files out of the mirror
// folder and turns them into notes. Files whose name embeds a note id are
// skipped when the id is already stored or tombstoned; files without an id
// are imported and then re-uploaded under an id-bearing name so the next
// run does not import them again.
func (e *Engine) runImportPhase(ctx context.Context) (int, error) {
	if !e.opts.ExportMarkdown {
		return 0, nil
	}

	e.state.UpdateProgress(PhaseImportingMarkdown, 0, 0, "")

	resources, err := e.dav.List(ctx, e.markdownURL("")+"/", 1)
	if err != nil {
		if errors.Is(err, davsdk.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	imported := 0
	for _, res := range resources {
		if res.IsCollection || !strings.HasSuffix(res.Name, ".md") {
			continue
		}

		id, hasID := markdownNoteID(res.Name)
		if hasID {
			if e.tracker.IsDeleted(id) {
				continue
			}
			existing, err := e.store.Load(id)
			if err != nil {
				return imported, err
			}
			if existing != nil {
				continue
			}
		}

		body, _, err := e.dav.Get(ctx, e.markdownURL(res.Name))
		if err != nil {
			return imported, fmt.Errorf("fetch markdown %s: %w", res.Name, err)
		}

		note := notestore.ParseMarkdown(res.Name, body, e.opts.DeviceID)
		if hasID {
			note.ID = id
		}
		if err := e.ImportNote(note); err != nil {
			return imported, fmt.Errorf("import markdown %s: %w", res.Name, err)
		}

		if !hasID {
			// claim the file under an id-bearing name so the next run does
			// not import it again
			if _, err := e.dav.Put(ctx, e.markdownURL(note.MarkdownFileName()), notestore.RenderMarkdown(note), markdownContentType); err != nil {
				slog.Warn("rename imported markdown", "file", res.Name, "error", err)
			} else if err := e.dav.Delete(ctx, e.markdownURL(res.Name)); err != nil {
				slog.Warn("remove imported markdown original", "file", res.Name, "error", err)
			}
		}

		imported++
		e.state.IncrementProgress(res.Name)
		slog.Info("imported markdown note", "file", res.Name, "note", note.ID)
	}
	return imported, nil
}

// RestoreFromServer downloads the full server state. Merge keeps whichever
// copy is newer per note and honors tombstones; replace wipes the local
// store, journal and tombstones first.
func (e *Engine) RestoreFromServer(ctx context.Context, mode RestoreMode) RestoreResult {
	if mode != RestoreMerge && mode != RestoreReplace {
		return RestoreResult{ErrorMessage: fmt.Sprintf("unknown restore mode %q", mode)}
	}

	if !e.state.TryStartSync("restore", false) {
		return RestoreResult{ErrorMessage: ErrSyncAlreadyRunning.Error()}
	}

	result := e.restore(ctx, mode)
	if result.Success {
		e.state.MarkCompleted(fmt.Sprintf("restored %d notes", result.RestoredCount))
	} else {
		e.state.MarkError(result.ErrorMessage)
	}
	return result
}

func (e *Engine) restore(ctx context.Context, mode RestoreMode) RestoreResult {
	result := RestoreResult{}

	e.state.UpdateProgress(PhasePreparing, 0, 0, "")

	remoteState, err := e.remoteNoteState(ctx)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("list remote notes: %v", err)
		return result
	}

	if mode == RestoreReplace {
		if err := e.store.DeleteAll(); err != nil {
			result.ErrorMessage = fmt.Sprintf("clear local store: %v", err)
			return result
		}
		if err := e.journal.Clear(); err != nil {
			result.ErrorMessage = fmt.Sprintf("clear journal: %v", err)
			return result
		}
		if err := e.tracker.Clear(); err != nil {
			result.ErrorMessage = fmt.Sprintf("clear tombstones: %v", err)
			return result
		}
	}

	tasks := make([]*davsdk.DownloadTask, 0, len(remoteState))
	for id, res := range remoteState {
		if mode == RestoreMerge && e.tracker.IsDeleted(id) {
			continue
		}
		tasks = append(tasks, &davsdk.DownloadTask{
			ID:           id,
			URL:          e.noteURL(id),
			ETag:         res.ETag,
			Size:         res.Size,
			LastModified: res.LastModified,
		})
	}

	e.state.UpdateProgress(PhaseDownloading, 0, len(tasks), "")
	results, err := e.transfers.RunDownloads(ctx, tasks, func(completed, total int, taskID string) {
		e.state.IncrementProgress(taskID)
	})
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	for _, res := range results {
		if res.Outcome != davsdk.OutcomeSuccess {
			if res.Outcome == davsdk.OutcomeFailure {
				result.ErrorMessage = fmt.Sprintf("download %s: %v", res.TaskID, res.Err)
				return result
			}
			continue
		}

		var note notestore.Note
		if err := json.Unmarshal(res.Body, &note); err != nil {
			slog.Warn("restore: skipping malformed note", "note", res.TaskID, "error", err)
			continue
		}

		if mode == RestoreMerge {
			existing, err := e.store.Load(note.ID)
			if err != nil {
				result.ErrorMessage = err.Error()
				return result
			}
			if existing != nil && existing.UpdatedAt >= note.UpdatedAt {
				continue
			}
		}

		note.SyncStatus = notestore.StatusSynced
		if err := e.store.Save(&note); err != nil {
			result.ErrorMessage = fmt.Sprintf("save restored note %s: %v", note.ID, err)
			return result
		}
		entry := &JournalEntry{
			NoteID:         note.ID,
			ETag:           res.ETag,
			Size:           int64(len(res.Body)),
			LocalUpdatedAt: note.UpdatedAt,
		}
		if remote := remoteState[note.ID]; remote != nil {
			if entry.ETag == "" {
				entry.ETag = remote.ETag
			}
			entry.RemoteModified = remote.LastModified
		}
		if err := e.journal.Set(entry); err != nil {
			result.ErrorMessage = err.Error()
			return result
		}
		result.RestoredCount++
	}

	result.Success = true
	return result
}

// remoteNoteState lists the notes collection and maps note id to resource.
// A missing collection is created on the spot.
func (e *Engine) remoteNoteState(ctx context.Context) (map[string]*davsdk.Resource, error) {
	resources, err := e.dav.List(ctx, e.opts.RemotePath+"/", 1)
	if err != nil {
		if errors.Is(err, davsdk.ErrNotFound) {
			if err := e.dav.MkCol(ctx, e.opts.RemotePath); err != nil {
				return nil, fmt.Errorf("create notes collection: %w", err)
			}
			return map[string]*davsdk.Resource{}, nil
		}
		return nil, err
	}

	state := make(map[string]*davsdk.Resource)
	for _, res := range resources {
		if res.IsCollection || !strings.HasSuffix(res.Name, ".json") {
			continue
		}
		id := strings.TrimSuffix(res.Name, ".json")
		if _, err := uuid.Parse(id); err != nil {
			// foreign file in the notes collection, leave it alone
			continue
		}
		state[id] = res
	}
	return state, nil
}

func (e *Engine) noteURL(id string) string {
	return path.Join(e.opts.RemotePath, id+".json")
}

func (e *Engine) markdownURL(name string) string {
	return path.Join(e.opts.RemotePath, markdownFolder, name)
}

// markdownNoteID extracts the note id embedded in an exported markdown file
// name of the form "<title>.<uuid>.md".
func markdownNoteID(name string) (string, bool) {
	base := strings.TrimSuffix(name, ".md")
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return "", false
	}
	id := base[idx+1:]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func (r SyncResult) summaryMessage() string {
	parts := []string{fmt.Sprintf("%d notes synced", r.SyncedCount)}
	if r.ConflictCount > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicts", r.ConflictCount))
	}
	if r.DeletedOnServerCount > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted on server", r.DeletedOnServerCount))
	}
	return strings.Join(parts, ", ")
}
