package evidence

import (
	"strings"
	"testing"
	"time"

	"github.com/tracehq/trace/internal/types"
)

var hourStart = time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)
var hourEnd = hourStart.Add(time.Hour)

func TestAggregateClipsEventsToWindow(t *testing.T) {
	events := []*types.Event{
		{ID: "e1", AppName: "Code", StartTS: hourStart.Add(-30 * time.Minute), EndTS: hourStart.Add(10 * time.Minute)},
		{ID: "e2", AppName: "Code", StartTS: hourStart.Add(20 * time.Minute), EndTS: hourStart.Add(40 * time.Minute)},
		{ID: "e3", AppName: "Code", StartTS: hourEnd.Add(time.Minute), EndTS: hourEnd.Add(time.Hour)},
	}

	he := Aggregate(events, nil, hourStart, hourEnd, Options{})

	if len(he.Events) != 2 {
		t.Fatalf("expected 2 clipped events, got %d: %+v", len(he.Events), he.Events)
	}
	if !he.Events[0].StartTS.Equal(hourStart) {
		t.Fatalf("expected first event clipped to window start, got %v", he.Events[0].StartTS)
	}
}

func TestAggregateDropsEventsEntirelyOutsideWindow(t *testing.T) {
	events := []*types.Event{
		{ID: "e1", AppName: "Code", StartTS: hourStart.Add(-2 * time.Hour), EndTS: hourStart.Add(-time.Hour)},
	}
	he := Aggregate(events, nil, hourStart, hourEnd, Options{})
	if len(he.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(he.Events))
	}
	if !he.IsEmpty() {
		t.Fatalf("expected IsEmpty true")
	}
}

func TestAggregateSumsAppDurations(t *testing.T) {
	events := []*types.Event{
		{ID: "e1", AppName: "Code", StartTS: hourStart, EndTS: hourStart.Add(20 * time.Minute)},
		{ID: "e2", AppName: "Code", StartTS: hourStart.Add(30 * time.Minute), EndTS: hourStart.Add(40 * time.Minute)},
		{ID: "e3", AppName: "Browser", StartTS: hourStart.Add(40 * time.Minute), EndTS: hourStart.Add(50 * time.Minute)},
	}
	he := Aggregate(events, nil, hourStart, hourEnd, Options{})

	if he.AppDurations["Code"] != 30*time.Minute {
		t.Fatalf("expected Code=30m, got %v", he.AppDurations["Code"])
	}
	if he.AppDurations["Browser"] != 10*time.Minute {
		t.Fatalf("expected Browser=10m, got %v", he.AppDurations["Browser"])
	}
}

func TestAggregateCollectsDistinctLocations(t *testing.T) {
	events := []*types.Event{
		{ID: "e1", AppName: "Code", LocationText: "Home", StartTS: hourStart, EndTS: hourStart.Add(time.Minute)},
		{ID: "e2", AppName: "Code", LocationText: "Home", StartTS: hourStart.Add(time.Minute), EndTS: hourStart.Add(2 * time.Minute)},
		{ID: "e3", AppName: "Code", LocationText: "Cafe", StartTS: hourStart.Add(2 * time.Minute), EndTS: hourStart.Add(3 * time.Minute)},
	}
	he := Aggregate(events, nil, hourStart, hourEnd, Options{})
	if len(he.Locations) != 2 || he.Locations[0] != "Home" || he.Locations[1] != "Cafe" {
		t.Fatalf("unexpected locations: %v", he.Locations)
	}
}

func TestAggregateMergesAdjacentNowPlayingEvents(t *testing.T) {
	events := []*types.Event{
		{ID: "e1", AppName: "Music", StartTS: hourStart, EndTS: hourStart.Add(3 * time.Minute), NowPlayingJSON: `{"artist":"Tycho","track":"Awake"}`},
		{ID: "e2", AppName: "Music", StartTS: hourStart.Add(3 * time.Minute), EndTS: hourStart.Add(6 * time.Minute), NowPlayingJSON: `{"artist":"Tycho","track":"Awake"}`},
		{ID: "e3", AppName: "Music", StartTS: hourStart.Add(6 * time.Minute), EndTS: hourStart.Add(8 * time.Minute), NowPlayingJSON: `{"artist":"Boards of Canada","track":"Roygbiv"}`},
	}
	he := Aggregate(events, nil, hourStart, hourEnd, Options{})

	if len(he.NowPlaying) != 2 {
		t.Fatalf("expected 2 merged spans, got %d: %+v", len(he.NowPlaying), he.NowPlaying)
	}
	first := he.NowPlaying[0]
	if first.Artist != "Tycho" || !first.StartTS.Equal(hourStart) || !first.EndTS.Equal(hourStart.Add(6*time.Minute)) {
		t.Fatalf("unexpected merged span: %+v", first)
	}
}

func TestBuildSnippetsOrdersChronologically(t *testing.T) {
	texts := []*types.TextBuffer{
		{ID: "t2", Timestamp: hourStart.Add(10 * time.Minute), Text: "second"},
		{ID: "t1", Timestamp: hourStart.Add(5 * time.Minute), Text: "first"},
	}
	he := Aggregate(nil, texts, hourStart, hourEnd, Options{})
	if len(he.Snippets) != 2 || he.Snippets[0] != "first" || he.Snippets[1] != "second" {
		t.Fatalf("unexpected snippet order: %v", he.Snippets)
	}
}

func TestBuildSnippetsTruncatesOversizedSnippet(t *testing.T) {
	huge := strings.Repeat("a", 10000)
	texts := []*types.TextBuffer{{ID: "t1", Timestamp: hourStart, Text: huge}}
	he := Aggregate(nil, texts, hourStart, hourEnd, Options{SnippetCap: 10, TextBudget: 4000})
	if len(he.Snippets) != 1 {
		t.Fatalf("expected one snippet, got %d", len(he.Snippets))
	}
	if EstimateTokens(he.Snippets[0]) > 10 {
		t.Fatalf("expected snippet within cap, estimated %d tokens", EstimateTokens(he.Snippets[0]))
	}
}

func TestBuildSnippetsStopsAtTotalBudgetWithEllipsis(t *testing.T) {
	a := strings.Repeat("a", 40) // 10 tokens
	b := strings.Repeat("b", 40) // 10 tokens
	texts := []*types.TextBuffer{
		{ID: "t1", Timestamp: hourStart, Text: a},
		{ID: "t2", Timestamp: hourStart.Add(time.Minute), Text: b},
	}
	he := Aggregate(nil, texts, hourStart, hourEnd, Options{SnippetCap: 500, TextBudget: 15})

	if len(he.Snippets) != 2 {
		t.Fatalf("expected two snippets (second truncated), got %d: %v", len(he.Snippets), he.Snippets)
	}
	if !strings.HasSuffix(he.Snippets[1], "…") {
		t.Fatalf("expected trailing ellipsis on truncated snippet, got %q", he.Snippets[1])
	}
}

func TestBuildSnippetsExcludesTextOutsideWindow(t *testing.T) {
	texts := []*types.TextBuffer{
		{ID: "t1", Timestamp: hourStart.Add(-time.Hour), Text: "too early"},
		{ID: "t2", Timestamp: hourEnd, Text: "too late"},
		{ID: "t3", Timestamp: hourStart.Add(time.Minute), Text: "in window"},
	}
	he := Aggregate(nil, texts, hourStart, hourEnd, Options{})
	if len(he.Snippets) != 1 || he.Snippets[0] != "in window" {
		t.Fatalf("unexpected snippets: %v", he.Snippets)
	}
}
