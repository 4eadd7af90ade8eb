package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	t := start.Add(-step)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestMemoryRepository_RecordAndFilter(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	repo := NewMemoryRepositoryWith(100, steppingClock(start, time.Minute))

	require.NoError(t, repo.RecordEvent(EventManualKill, EventMetadata{"entity": "grass"}))
	require.NoError(t, repo.RecordEvent(EventReset, nil))
	require.NoError(t, repo.RecordEvent(EventManualKill, EventMetadata{"entity": "stick"}))

	all, err := repo.GetEvents(time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].ID)
	assert.Equal(t, 3, all[2].ID)

	kills, err := repo.GetEvents(time.Time{}, []EventType{EventManualKill})
	require.NoError(t, err)
	assert.Len(t, kills, 2)

	recent, err := repo.GetEvents(start.Add(90*time.Second), nil)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, EventManualKill, recent[0].Type)
}

func TestMemoryRepository_Bounded(t *testing.T) {
	repo := NewMemoryRepositoryWith(3, time.Now)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.RecordEvent(EventNudge, nil))
	}

	events, err := repo.GetEvents(time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 3, events[0].ID)
	assert.Equal(t, 5, events[2].ID)

	require.NoError(t, repo.Clear())
	events, err = repo.GetEvents(time.Time{}, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCalculateStats(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.RecordEvent(EventManualKill, EventMetadata{"entity": "grass"}))
	require.NoError(t, repo.RecordEvent(EventManualKill, EventMetadata{"entity": "grass"}))
	require.NoError(t, repo.RecordEvent(EventAutoKills, EventMetadata{"entity": "stick", "kills": "9007199254740993"}))
	require.NoError(t, repo.RecordEvent(EventAutoKills, EventMetadata{"entity": "stick", "kills": "1"}))
	require.NoError(t, repo.RecordEvent(EventNudge, EventMetadata{"entity": "grass", "seconds": 1.0}))
	require.NoError(t, repo.RecordEvent(EventCatchUp, EventMetadata{"seconds": 3600.0, "kills": "120"}))
	require.NoError(t, repo.RecordEvent(EventReset, nil))
	require.NoError(t, repo.RecordEvent(EventSaveFailed, EventMetadata{"error": "disk full"}))

	events, err := repo.GetEvents(time.Time{}, nil)
	require.NoError(t, err)
	stats, err := CalculateStats(events, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ManualKills["grass"])
	assert.Equal(t, "9007199254740994", stats.AutoKills["stick"])
	assert.Equal(t, 1, stats.Nudges)
	assert.Equal(t, 1, stats.Resets)
	assert.Equal(t, 1, stats.SaveFailures)
	assert.InDelta(t, 3600.0, stats.CatchUpSeconds, 1e-9)
	assert.Equal(t, 2, stats.EventCounts[EventAutoKills])
}

func TestDiscard(t *testing.T) {
	var d Discard
	require.NoError(t, d.RecordEvent(EventReset, nil))
	events, err := d.GetEvents(time.Time{}, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}
