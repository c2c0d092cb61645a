package sync

import (
	"math"
	"time"
)

// Phase is the lifecycle phase of the sync state machine.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseUploading
	PhaseDownloading
	PhaseImportingMarkdown
	PhaseCompleted
	PhaseError
	PhaseInfo
)

var phaseNames = []string{
	"Idle",
	"Preparing",
	"Uploading",
	"Downloading",
	"ImportingMarkdown",
	"Completed",
	"Error",
	"Info",
}

func (p Phase) String() string {
	return phaseNames[p]
}

// Active reports whether the phase belongs to the active-sync subset, i.e.
// whether it holds the single-flight lock.
func (p Phase) Active() bool {
	switch p {
	case PhasePreparing, PhaseUploading, PhaseDownloading, PhaseImportingMarkdown:
		return true
	default:
		return false
	}
}

// SyncProgress is a value snapshot of sync progress. Every update replaces
// the whole snapshot atomically; readers never see a partially updated one.
type SyncProgress struct {
	Phase           Phase
	Current         int
	Total           int
	CurrentFileName string
	StartTime       time.Time
	Silent          bool
	ResultMessage   string
}

// Fraction returns completion in [0,1]; 0 when Total is zero.
func (p SyncProgress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total)
}

// PercentComplete returns the rounded completion percentage in [0,100].
func (p SyncProgress) PercentComplete() int {
	return int(math.Round(p.Fraction() * 100))
}

// EstimatedRemaining extrapolates the remaining duration from elapsed time.
// ok is false when no estimate exists (nothing completed yet, or unknown
// total).
func (p SyncProgress) EstimatedRemaining() (remaining time.Duration, ok bool) {
	return p.estimatedRemainingAt(time.Now())
}

func (p SyncProgress) estimatedRemainingAt(now time.Time) (time.Duration, bool) {
	if p.Current == 0 || p.Total == 0 {
		return 0, false
	}
	elapsed := now.Sub(p.StartTime)
	remaining := time.Duration(float64(elapsed) * float64(p.Total-p.Current) / float64(p.Current))
	return remaining, true
}

// IsActiveSync reports whether a sync run holds the lock.
func (p SyncProgress) IsActiveSync() bool {
	return p.Phase.Active()
}

// IsVisible reports whether a UI surface should render this snapshot.
// Info banners are always visible; silent runs are not.
func (p SyncProgress) IsVisible() bool {
	if p.Phase == PhaseInfo {
		return true
	}
	return p.Phase != PhaseIdle && !p.Silent
}
