package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateManager_SingleFlight(t *testing.T) {
	m := NewStateManager()

	require.True(t, m.TryStartSync("manual", false))
	assert.True(t, m.IsSyncing())

	// second caller is rejected without disturbing the running sync
	assert.False(t, m.TryStartSync("periodic", true))
	snap := m.Snapshot()
	assert.Equal(t, PhasePreparing, snap.Phase)
	assert.False(t, snap.Silent)

	m.MarkCompleted("done")
	assert.False(t, m.IsSyncing())

	// terminal phase releases the lock
	assert.True(t, m.TryStartSync("manual", false))
}

func TestStateManager_SilentCompletionCollapsesToIdle(t *testing.T) {
	m := NewStateManager()

	require.True(t, m.TryStartSync("periodic", true))
	m.MarkCompleted("3 notes synced")

	snap := m.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.ResultMessage)
	assert.False(t, snap.IsVisible())
}

func TestStateManager_VisibleCompletionKeepsMessage(t *testing.T) {
	m := NewStateManager()

	require.True(t, m.TryStartSync("manual", false))
	m.MarkCompleted("3 notes synced")

	snap := m.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, "3 notes synced", snap.ResultMessage)
	assert.True(t, snap.IsVisible())
}

func TestStateManager_UpdatePreservesStartTimeAndSilent(t *testing.T) {
	m := NewStateManager()

	require.True(t, m.TryStartSync("periodic", true))
	started := m.Snapshot().StartTime

	m.UpdateProgress(PhaseUploading, 2, 10, "a.json")

	snap := m.Snapshot()
	assert.Equal(t, PhaseUploading, snap.Phase)
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, "a.json", snap.CurrentFileName)
	assert.Equal(t, started, snap.StartTime)
	assert.True(t, snap.Silent)
}

func TestStateManager_IncrementProgress(t *testing.T) {
	m := NewStateManager()

	require.True(t, m.TryStartSync("manual", false))
	m.UpdateProgress(PhaseDownloading, 0, 3, "")

	m.IncrementProgress("a.json")
	m.IncrementProgress("")

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, 3, snap.Total)
	// empty name keeps the previous one
	assert.Equal(t, "a.json", snap.CurrentFileName)
}

func TestStateManager_PromoteToVisible(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(m *StateManager)
		expect bool
	}{
		{
			name:   "idle",
			setup:  func(m *StateManager) {},
			expect: false,
		},
		{
			name: "active visible",
			setup: func(m *StateManager) {
				m.TryStartSync("manual", false)
			},
			expect: false,
		},
		{
			name: "active silent",
			setup: func(m *StateManager) {
				m.TryStartSync("periodic", true)
			},
			expect: true,
		},
		{
			name: "terminal",
			setup: func(m *StateManager) {
				m.TryStartSync("manual", false)
				m.MarkError("boom")
			},
			expect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewStateManager()
			tt.setup(m)
			assert.Equal(t, tt.expect, m.PromoteToVisible())
			if tt.expect {
				assert.False(t, m.Snapshot().Silent)
			}
		})
	}
}

func TestStateManager_BannersNeverOverwriteActiveSync(t *testing.T) {
	m := NewStateManager()

	require.True(t, m.TryStartSync("manual", false))
	m.ShowInfo("update available")
	assert.Equal(t, PhasePreparing, m.Snapshot().Phase)

	m.MarkCompleted("done")
	m.ShowInfo("update available")

	snap := m.Snapshot()
	assert.Equal(t, PhaseInfo, snap.Phase)
	assert.Equal(t, "update available", snap.ResultMessage)
	// banners do not hold the sync lock
	assert.False(t, m.IsSyncing())
	assert.True(t, m.TryStartSync("manual", false))
}

func TestStateManager_Subscribe(t *testing.T) {
	m := NewStateManager()

	ch := m.Subscribe()
	first := <-ch
	assert.Equal(t, PhaseIdle, first.Phase)

	require.True(t, m.TryStartSync("manual", false))
	m.UpdateProgress(PhaseUploading, 1, 2, "a.json")
	m.UpdateProgress(PhaseUploading, 2, 2, "b.json")

	// latest-value-wins: a slow subscriber sees the newest snapshot
	latest := <-ch
	assert.Equal(t, 2, latest.Current)
	assert.Equal(t, "b.json", latest.CurrentFileName)
}

func TestStateManager_Reset(t *testing.T) {
	m := NewStateManager()
	require.True(t, m.TryStartSync("manual", false))

	m.Reset()
	assert.False(t, m.IsSyncing())
	assert.Equal(t, PhaseIdle, m.Snapshot().Phase)
}

func TestSyncProgress_Percent(t *testing.T) {
	assert.Equal(t, 0, SyncProgress{}.PercentComplete())
	assert.Equal(t, 0, SyncProgress{Current: 5}.PercentComplete())
	assert.Equal(t, 50, SyncProgress{Current: 1, Total: 2}.PercentComplete())
	assert.Equal(t, 33, SyncProgress{Current: 1, Total: 3}.PercentComplete())
	assert.Equal(t, 100, SyncProgress{Current: 7, Total: 7}.PercentComplete())
}

func TestSyncProgress_EstimatedRemaining(t *testing.T) {
	start := time.Now()

	_, ok := SyncProgress{Total: 10, StartTime: start}.estimatedRemainingAt(start.Add(time.Second))
	assert.False(t, ok, "no estimate before the first completion")

	_, ok = SyncProgress{Current: 3, StartTime: start}.estimatedRemainingAt(start.Add(time.Second))
	assert.False(t, ok, "no estimate without a total")

	remaining, ok := SyncProgress{Current: 2, Total: 10, StartTime: start}.estimatedRemainingAt(start.Add(4 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 16*time.Second, remaining)

	remaining, ok = SyncProgress{Current: 10, Total: 10, StartTime: start}.estimatedRemainingAt(start.Add(4 * time.Second))
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), remaining)
}

func TestSyncProgress_Visibility(t *testing.T) {
	assert.False(t, SyncProgress{Phase: PhaseIdle}.IsVisible())
	assert.True(t, SyncProgress{Phase: PhaseUploading}.IsVisible())
	assert.False(t, SyncProgress{Phase: PhaseUploading, Silent: true}.IsVisible())
	assert.True(t, SyncProgress{Phase: PhaseInfo, Silent: true}.IsVisible())
	assert.True(t, SyncProgress{Phase: PhaseError}.IsVisible())
}
