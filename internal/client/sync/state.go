package sync

import (
	"log/slog"
	stdsync "sync"
	"time"
)

// StateManager guarantees at most one active sync per process and exposes a
// single observable progress stream. All mutations happen under one mutex
// so TryStartSync's check-and-set is indivisible; the orchestrator needs no
// locking of its own.
//
// A StateManager is instantiable (tests construct fresh ones); the process-
// wide instance is owned by the client composition root.
type StateManager struct {
	mu       stdsync.Mutex
	progress SyncProgress
	subs     []chan SyncProgress
}

func NewStateManager() *StateManager {
	return &StateManager{}
}

// TryStartSync atomically transitions Idle (or any terminal phase) to
// Preparing. Returns false without any state change when a sync is already
// active; callers must treat false as "already syncing, do nothing".
func (m *StateManager) TryStartSync(source string, silent bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.progress.Phase.Active() {
		return false
	}

	m.progress = SyncProgress{
		Phase:     PhasePreparing,
		StartTime: time.Now(),
		Silent:    silent,
	}
	slog.Debug("sync state", "phase", PhasePreparing, "source", source, "silent", silent)
	m.publishLocked()
	return true
}

// UpdateProgress overwrites phase and counts, preserving Silent and
// StartTime. Callers are trusted to only call this during an active sync;
// the manager does not enforce it.
func (m *StateManager) UpdateProgress(phase Phase, current, total int, currentFileName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress.Phase = phase
	m.progress.Current = current
	m.progress.Total = total
	m.progress.CurrentFileName = currentFileName
	m.publishLocked()
}

// IncrementProgress bumps the completed count by one, optionally updating
// the current file name. Phase and total are untouched.
func (m *StateManager) IncrementProgress(currentFileName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress.Current++
	if currentFileName != "" {
		m.progress.CurrentFileName = currentFileName
	}
	m.publishLocked()
}

// MarkCompleted releases the lock with a terminal Completed phase. Silent
// runs collapse straight to Idle: a background sync must not leave a
// visible "completed" banner behind.
func (m *StateManager) MarkCompleted(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.progress.Silent {
		m.progress = SyncProgress{Phase: PhaseIdle}
	} else {
		m.progress.Phase = PhaseCompleted
		m.progress.ResultMessage = message
	}
	m.publishLocked()
}

// MarkError releases the lock with a terminal Error phase.
func (m *StateManager) MarkError(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress.Phase = PhaseError
	m.progress.ResultMessage = message
	m.publishLocked()
}

// PromoteToVisible flips an in-progress silent sync to visible. Returns
// true only if a sync was active and silent.
func (m *StateManager) PromoteToVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.progress.Phase.Active() || !m.progress.Silent {
		return false
	}
	m.progress.Silent = false
	m.publishLocked()
	return true
}

// ShowInfo displays a best-effort info banner. No-op while a sync is
// active: live progress is never overwritten. This path does not acquire
// the single-flight lock; IsSyncing stays false.
func (m *StateManager) ShowInfo(message string) {
	m.showBanner(PhaseInfo, message)
}

// ShowError displays a best-effort error banner with the same throttling
// as ShowInfo.
func (m *StateManager) ShowError(message string) {
	m.showBanner(PhaseError, message)
}

func (m *StateManager) showBanner(phase Phase, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.progress.Phase.Active() {
		return
	}
	m.progress = SyncProgress{Phase: phase, ResultMessage: message}
	m.publishLocked()
}

// Reset forces the machine back to Idle. Administrative escape hatch.
func (m *StateManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress = SyncProgress{Phase: PhaseIdle}
	m.publishLocked()
}

// IsSyncing reports whether a sync currently holds the lock.
func (m *StateManager) IsSyncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress.Phase.Active()
}

// Snapshot returns the current progress value.
func (m *StateManager) Snapshot() SyncProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Subscribe registers a progress listener with latest-value-wins delivery:
// a slow listener only ever misses intermediate snapshots, never the most
// recent one. The channel carries the current snapshot immediately.
func (m *StateManager) Subscribe() <-chan SyncProgress {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan SyncProgress, 1)
	ch <- m.progress
	m.subs = append(m.subs, ch)
	return ch
}

// publishLocked pushes the current snapshot to every subscriber, dropping
// the stale buffered value first so sends never block.
func (m *StateManager) publishLocked() {
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- m.progress
	}
}
