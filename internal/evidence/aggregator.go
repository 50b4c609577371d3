package evidence

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// Options configures Aggregate's budgets. Zero values fall back to
// spec 4.4's defaults.
type Options struct {
	TextBudget int // B_text
	SnippetCap int // b_s
}

func (o Options) withDefaults() Options {
	if o.TextBudget <= 0 {
		o.TextBudget = DefaultTextBudget
	}
	if o.SnippetCap <= 0 {
		o.SnippetCap = DefaultSnippetCap
	}
	return o
}

type nowPlayingPayload struct {
	Artist string `json:"artist"`
	Track  string `json:"track"`
}

// Aggregate builds the HourlyEvidence packet for [windowStart, windowEnd)
// from the events and text buffers that overlap it. events and texts
// need not be pre-sorted or pre-filtered to the window.
func Aggregate(events []*types.Event, texts []*types.TextBuffer, windowStart, windowEnd time.Time, opts Options) *HourlyEvidence {
	opts = opts.withDefaults()

	sorted := make([]*types.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTS.Before(sorted[j].StartTS) })

	he := &HourlyEvidence{
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		AppDurations: make(map[string]time.Duration),
	}

	var locSeen = make(map[string]bool)
	var npRun []*types.Event

	flushRun := func() {
		if len(npRun) == 0 {
			return
		}
		span := mergeNowPlayingRun(npRun, windowStart, windowEnd)
		if span != nil {
			he.NowPlaying = append(he.NowPlaying, *span)
		}
		npRun = nil
	}

	for _, e := range sorted {
		// now-playing run tracking looks at the raw (unclipped) event
		// stream so "adjacent" means adjacent in activity, not adjacent
		// after clipping drops one side of the window.
		np, ok := parseNowPlaying(e.NowPlayingJSON)
		if ok {
			if len(npRun) > 0 {
				last, _ := parseNowPlaying(npRun[len(npRun)-1].NowPlayingJSON)
				if last.Artist != np.Artist || last.Track != np.Track {
					flushRun()
				}
			}
			npRun = append(npRun, e)
		} else {
			flushRun()
		}

		start, end, ok := e.Clip(windowStart, windowEnd)
		if !ok {
			continue
		}

		he.Events = append(he.Events, ClippedEvent{
			EventID:     e.ID,
			StartTS:     start,
			EndTS:       end,
			AppName:     e.AppName,
			WindowTitle: e.WindowTitle,
			URL:         e.URL,
			PageTitle:   e.PageTitle,
			FilePath:    e.FilePath,
		})

		if e.AppName != "" {
			he.AppDurations[e.AppName] += end.Sub(start)
		}
		if e.LocationText != "" && !locSeen[e.LocationText] {
			locSeen[e.LocationText] = true
			he.Locations = append(he.Locations, e.LocationText)
		}
	}
	flushRun()

	he.Snippets = buildSnippets(texts, windowStart, windowEnd, opts)

	return he
}

func parseNowPlaying(raw string) (nowPlayingPayload, bool) {
	if raw == "" {
		return nowPlayingPayload{}, false
	}
	var np nowPlayingPayload
	if err := json.Unmarshal([]byte(raw), &np); err != nil || (np.Artist == "" && np.Track == "") {
		return nowPlayingPayload{}, false
	}
	return np, true
}

// mergeNowPlayingRun collapses a run of same-(artist,track) events into
// one span clipped to the window, or nil if nothing of it survives
// clipping.
func mergeNowPlayingRun(run []*types.Event, windowStart, windowEnd time.Time) *NowPlayingSpan {
	np, _ := parseNowPlaying(run[0].NowPlayingJSON)
	start := run[0].StartTS
	end := run[len(run)-1].EndTS

	if windowStart.After(start) {
		start = windowStart
	}
	if windowEnd.Before(end) {
		end = windowEnd
	}
	if !end.After(start) {
		return nil
	}
	return &NowPlayingSpan{Artist: np.Artist, Track: np.Track, StartTS: start, EndTS: end}
}

// buildSnippets orders text buffers chronologically and packs them
// into the budget, truncating the snippet that would overflow it
// (spec 4.4: "truncation happens last-in").
func buildSnippets(texts []*types.TextBuffer, windowStart, windowEnd time.Time, opts Options) []string {
	inWindow := make([]*types.TextBuffer, 0, len(texts))
	for _, tb := range texts {
		if !tb.Timestamp.Before(windowStart) && tb.Timestamp.Before(windowEnd) {
			inWindow = append(inWindow, tb)
		}
	}
	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Timestamp.Before(inWindow[j].Timestamp) })

	var snippets []string
	total := 0
	for _, tb := range inWindow {
		if total >= opts.TextBudget {
			break
		}

		text := tb.Text
		tokens := EstimateTokens(text)
		if tokens > opts.SnippetCap {
			text = truncateToTokenBudget(text, opts.SnippetCap)
			tokens = EstimateTokens(text)
		}
		if total+tokens > opts.TextBudget {
			text = truncateToTokenBudget(text, opts.TextBudget-total) + "…"
			tokens = EstimateTokens(text)
		}

		snippets = append(snippets, text)
		total += tokens
	}
	return snippets
}

// truncateToTokenBudget cuts s down to roughly tokenBudget tokens
// under the shared tokenizer.
func truncateToTokenBudget(s string, tokenBudget int) string {
	if tokenBudget <= 0 {
		return ""
	}
	maxChars := int(float64(tokenBudget) / TokensPerChar)
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}
