package capture

import (
	"time"

	"github.com/tracehq/trace/internal/platform"
	"github.com/tracehq/trace/internal/types"
)

// Tick is the per-tick context the Event Tracker consumes (spec 4.3
// step 5): foreground state plus whatever else was sampled this tick.
type Tick struct {
	At             time.Time
	Foreground     platform.ForegroundInfo
	URL            string
	PageTitle      string
	NowPlayingJSON string
	LocationText   string
}

// EventTracker is the nested state machine from spec 4.3.1: Idle or
// Open(event), generalized from the single-current-item pattern used
// elsewhere in the pack for "what has focus right now" state.
type EventTracker struct {
	current *types.Event
	onClose func(*types.Event)
}

// NewEventTracker builds a tracker. onClose is invoked (synchronously)
// every time an event is persisted, either on a context change or on
// Shutdown.
func NewEventTracker(onClose func(*types.Event)) *EventTracker {
	return &EventTracker{onClose: onClose}
}

// Feed advances the state machine by one tick.
func (t *EventTracker) Feed(tick Tick) {
	if t.current == nil {
		t.open(tick)
		return
	}

	if t.contextChanged(tick) {
		t.current.EndTS = tick.At
		t.close()
		t.open(tick)
		return
	}

	t.extend(tick)
}

// Shutdown persists any currently open event.
func (t *EventTracker) Shutdown(at time.Time) {
	if t.current == nil {
		return
	}
	t.current.EndTS = at
	t.close()
}

// AddEvidence appends an evidence id to the currently open event, if
// any (spec 4.3.1: "evidence ids are appended only while Open").
func (t *EventTracker) AddEvidence(id string) {
	if t.current == nil {
		return
	}
	t.current.EvidenceIDs = append(t.current.EvidenceIDs, id)
}

func (t *EventTracker) contextChanged(tick Tick) bool {
	fg := tick.Foreground
	cur := t.current

	if fg.AppID != cur.AppID {
		return true
	}
	if fg.WindowTitle != cur.WindowTitle && fg.WindowTitle != "" && cur.WindowTitle != "" {
		return true
	}
	if fg.IsBrowser && tick.URL != cur.URL {
		return true
	}
	return false
}

func (t *EventTracker) open(tick Tick) {
	fg := tick.Foreground
	t.current = &types.Event{
		StartTS:        tick.At,
		EndTS:          tick.At,
		AppID:          fg.AppID,
		AppName:        fg.AppName,
		WindowTitle:    fg.WindowTitle,
		FocusedMonitor: fg.FocusedMonitor,
		NowPlayingJSON: tick.NowPlayingJSON,
		LocationText:   tick.LocationText,
	}
	if fg.IsBrowser {
		t.current.URL = tick.URL
		t.current.PageTitle = tick.PageTitle
	}
}

// extend stretches the open event's end and merges in better-quality
// fields (a non-empty title, fresher now-playing/location readings).
func (t *EventTracker) extend(tick Tick) {
	e := t.current
	e.EndTS = tick.At
	if e.WindowTitle == "" && tick.Foreground.WindowTitle != "" {
		e.WindowTitle = tick.Foreground.WindowTitle
	}
	if tick.NowPlayingJSON != "" {
		e.NowPlayingJSON = tick.NowPlayingJSON
	}
	if tick.LocationText != "" {
		e.LocationText = tick.LocationText
	}
	if tick.Foreground.IsBrowser && tick.URL != "" {
		e.URL = tick.URL
		e.PageTitle = tick.PageTitle
	}
}

func (t *EventTracker) close() {
	if t.onClose != nil {
		t.onClose(t.current)
	}
	t.current = nil
}
