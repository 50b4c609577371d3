// Package evidence is the Evidence Aggregator of spec 4.4: given an
// hour window it clips events, buffers text snippets under a token
// budget, merges now-playing spans, and rolls up locations, counts,
// and per-app durations into one HourlyEvidence packet for the
// summarizer to render from.
//
// Grounded on internal/evidence's own former buffer.go
// (a token-budget-triggered truncation manager for a conversation's
// message history), generalized from "bound a growing conversation to
// a token budget, compressing the oldest half when it overflows" to
// "bound one hour's worth of clipped events and text fragments to a
// budget, truncating the newest fragment in place instead of
// compressing older ones" — the aggregator is a one-shot batch
// computation over a fixed window rather than a long-lived stateful
// buffer, so there is no Load/Save persistence or background
// compression step here, only the shared token-estimation shape.
package evidence

import "time"

// TokensPerChar is the shared, stable tokenizer spec 4.4 calls for:
// the same rough chars-per-token estimate the former conversation
// buffer used, reused here so the Evidence Aggregator and the
// Summarizer agree on what a "token" costs.
const TokensPerChar = 0.25

// EstimateTokens gives a rough token count for content, shared between
// the Evidence Aggregator and the Summarizer (spec 4.4: "token counts
// use a stable tokenizer shared by the summarizer").
func EstimateTokens(content string) int {
	return int(float64(len(content)) * TokensPerChar)
}

// Defaults for the text snippet budget (spec 4.4).
const (
	DefaultTextBudget = 4000 // B_text
	DefaultSnippetCap = 500  // b_s
)

// ClippedEvent is an Event's span clipped to an evidence window.
type ClippedEvent struct {
	EventID     string    `json:"event_id"`
	StartTS     time.Time `json:"start_ts"`
	EndTS       time.Time `json:"end_ts"`
	AppName     string    `json:"app_name"`
	WindowTitle string    `json:"window_title,omitempty"`
	URL         string    `json:"url,omitempty"`
	PageTitle   string    `json:"page_title,omitempty"`
	FilePath    string    `json:"file_path,omitempty"`
}

// Duration is the clipped span's length.
func (c ClippedEvent) Duration() time.Duration {
	return c.EndTS.Sub(c.StartTS)
}

// NowPlayingSpan is a run of adjacent identical (artist, track)
// now-playing events merged into one span and clipped to the window.
type NowPlayingSpan struct {
	Artist  string    `json:"artist"`
	Track   string    `json:"track"`
	StartTS time.Time `json:"start_ts"`
	EndTS   time.Time `json:"end_ts"`
}

// HourlyEvidence is the packet spec 4.4 defines for one
// [WindowStart, WindowEnd) window.
type HourlyEvidence struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	Events     []ClippedEvent   `json:"events"`
	Snippets   []string         `json:"snippets"`
	NowPlaying []NowPlayingSpan `json:"now_playing"`
	Locations  []string         `json:"locations"`

	// AppDurations sums clipped event duration per app name.
	AppDurations map[string]time.Duration `json:"app_durations"`
}

// TotalEvents reports how many clipped events fell in the window.
func (he *HourlyEvidence) TotalEvents() int {
	return len(he.Events)
}

// IsEmpty reports whether nothing survived clipping — the summarizer
// uses this to decide whether to emit an empty note (spec 4.6 step 2).
func (he *HourlyEvidence) IsEmpty() bool {
	return len(he.Events) == 0
}
