package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehq/trace/internal/platform"
	"github.com/tracehq/trace/internal/types"
)

func tickAt(sec int, appID, title string) Tick {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return Tick{
		At: base.Add(time.Duration(sec) * time.Second),
		Foreground: platform.ForegroundInfo{
			AppID:       appID,
			AppName:     appID,
			WindowTitle: title,
		},
	}
}

func TestEventTrackerOpensOnFirstTick(t *testing.T) {
	var closed []*types.Event
	tr := NewEventTracker(func(e *types.Event) { closed = append(closed, e) })
	tr.Feed(tickAt(0, "app.a", "Doc 1"))
	assert.Empty(t, closed, "no close until a context change or shutdown")
}

func TestEventTrackerExtendsOnNoChange(t *testing.T) {
	var closed []*types.Event
	tr := NewEventTracker(func(e *types.Event) { closed = append(closed, e) })
	tr.Feed(tickAt(0, "app.a", "Doc 1"))
	tr.Feed(tickAt(5, "app.a", "Doc 1"))
	tr.Feed(tickAt(10, "app.a", "Doc 1"))
	assert.Empty(t, closed)
	assert.Equal(t, 10*time.Second, tr.current.EndTS.Sub(tr.current.StartTS))
}

func TestEventTrackerClosesOnAppChange(t *testing.T) {
	var closed []*types.Event
	tr := NewEventTracker(func(e *types.Event) { closed = append(closed, e) })
	tr.Feed(tickAt(0, "app.a", "Doc 1"))
	tr.Feed(tickAt(5, "app.a", "Doc 1"))
	tr.Feed(tickAt(10, "app.b", "Doc 2"))

	require.Len(t, closed, 1)
	assert.Equal(t, "app.a", closed[0].AppID)
	assert.False(t, closed[0].EndTS.Before(closed[0].StartTS), "end_ts must be >= start_ts")
}

func TestEventTrackerIgnoresEmptyTitleFlap(t *testing.T) {
	var closed []*types.Event
	tr := NewEventTracker(func(e *types.Event) { closed = append(closed, e) })
	tr.Feed(tickAt(0, "app.a", "Doc 1"))
	tr.Feed(tickAt(5, "app.a", ""))
	tr.Feed(tickAt(10, "app.a", "Doc 1"))
	assert.Empty(t, closed, "a transient empty title must not trigger a context change")
}

func TestEventTrackerShutdownPersistsOpenEvent(t *testing.T) {
	var closed []*types.Event
	tr := NewEventTracker(func(e *types.Event) { closed = append(closed, e) })
	tr.Feed(tickAt(0, "app.a", "Doc 1"))
	tr.Shutdown(tickAt(30, "", "").At)
	require.Len(t, closed, 1)
	assert.False(t, closed[0].EndTS.Before(closed[0].StartTS))
}

func TestEventTrackerEvidenceOnlyWhileOpen(t *testing.T) {
	tr := NewEventTracker(nil)
	tr.AddEvidence("ev-before-open")
	tr.Feed(tickAt(0, "app.a", "Doc 1"))
	tr.AddEvidence("ev-1")
	assert.Equal(t, []string{"ev-1"}, tr.current.EvidenceIDs)
}
