package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// EventStore is the event-level read surface pattern detection needs,
// beyond the aggregate-rollup Store this package already depends on.
type EventStore interface {
	EventsOverlapping(ctx context.Context, windowStart, windowEnd time.Time) ([]*types.Event, error)
	AppDurations(ctx context.Context, windowStart, windowEnd time.Time) (map[string]time.Duration, error)
}

// Pattern is one detected productivity pattern, grounded on
// insights/patterns.py's Pattern dataclass (pattern_type, description,
// confidence, supporting data).
type Pattern struct {
	Type        string         `json:"pattern_type"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Data        map[string]any `json:"data"`
}

// timeOfDayShareThreshold mirrors patterns.py's 0.4 proportion cutoff
// for calling a block of the day ("morning", "afternoon", ...) the
// user's dominant working period.
const timeOfDayShareThreshold = 0.4

// focusSessionMinDuration is how long a single app must hold
// uninterrupted foreground focus to count as a focus session.
const focusSessionMinDuration = 25 * time.Minute

// DetectTimeOfDayPatterns buckets events into morning/afternoon/
// evening/night and reports whichever bucket holds more than
// timeOfDayShareThreshold of total activity, if any.
func (i *Inspector) DetectTimeOfDayPatterns(ctx context.Context, store EventStore, daysBack int) ([]Pattern, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)

	events, err := store.EventsOverlapping(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("insights: time of day patterns: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	byHour := make([]int, 24)
	for _, e := range events {
		byHour[e.StartTS.Hour()]++
	}

	sum := func(from, to int) int {
		n := 0
		for h := from; h < to; h++ {
			n += byHour[h]
		}
		return n
	}

	morning, afternoon, evening, night := sum(6, 12), sum(12, 18), sum(18, 24), sum(0, 6)
	total := morning + afternoon + evening + night
	if total == 0 {
		return nil, nil
	}

	buckets := []struct {
		label string
		count int
	}{
		{"morning", morning},
		{"afternoon", afternoon},
		{"evening", evening},
		{"night", night},
	}
	sort.Slice(buckets, func(a, b int) bool { return buckets[a].count > buckets[b].count })

	top := buckets[0]
	share := float64(top.count) / float64(total)
	if share <= timeOfDayShareThreshold {
		return nil, nil
	}

	return []Pattern{{
		Type:        "time_of_day",
		Description: fmt.Sprintf("Most active in the %s (%.0f%% of activity)", top.label, share*100),
		Confidence:  share,
		Data: map[string]any{
			"morning": morning, "afternoon": afternoon, "evening": evening, "night": night,
		},
	}}, nil
}

// DetectDayOfWeekPatterns reports whichever weekday carries more than
// timeOfDayShareThreshold of total event volume over the window.
func (i *Inspector) DetectDayOfWeekPatterns(ctx context.Context, store EventStore, daysBack int) ([]Pattern, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)

	events, err := store.EventsOverlapping(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("insights: day of week patterns: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	byDay := make([]int, 7)
	total := 0
	for _, e := range events {
		byDay[e.StartTS.Weekday()]++
		total++
	}
	if total == 0 {
		return nil, nil
	}

	topDay, topCount := time.Sunday, 0
	for d, count := range byDay {
		if count > topCount {
			topDay, topCount = time.Weekday(d), count
		}
	}
	share := float64(topCount) / float64(total)
	if share <= timeOfDayShareThreshold {
		return nil, nil
	}

	return []Pattern{{
		Type:        "day_of_week",
		Description: fmt.Sprintf("Most active on %ss (%.0f%% of activity)", topDay, share*100),
		Confidence:  share,
		Data:        map[string]any{"day": topDay.String(), "count": topCount},
	}}, nil
}

// DetectAppPatterns reports the top three apps by total focused
// duration over the window, one pattern per app. No minimum-activity
// cutoff is applied.
func (i *Inspector) DetectAppPatterns(ctx context.Context, store EventStore, daysBack int) ([]Pattern, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)

	durations, err := store.AppDurations(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("insights: app patterns: %w", err)
	}
	if len(durations) == 0 {
		return nil, nil
	}

	type appTotal struct {
		app string
		dur time.Duration
	}
	var totals []appTotal
	var grand time.Duration
	for app, d := range durations {
		totals = append(totals, appTotal{app, d})
		grand += d
	}
	sort.Slice(totals, func(a, b int) bool { return totals[a].dur > totals[b].dur })
	if len(totals) > 3 {
		totals = totals[:3]
	}

	var patterns []Pattern
	for _, t := range totals {
		share := 0.0
		if grand > 0 {
			share = float64(t.dur) / float64(grand)
		}
		patterns = append(patterns, Pattern{
			Type:        "app_usage",
			Description: fmt.Sprintf("%s accounts for %.0f%% of tracked time", t.app, share*100),
			Confidence:  share,
			Data:        map[string]any{"app": t.app, "minutes": t.dur.Minutes()},
		})
	}
	return patterns, nil
}

// DetectFocusPatterns finds single-app stretches at least
// focusSessionMinDuration long — spec's "focus session" pattern.
func (i *Inspector) DetectFocusPatterns(ctx context.Context, store EventStore, daysBack int) ([]Pattern, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)

	events, err := store.EventsOverlapping(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("insights: focus patterns: %w", err)
	}

	sort.Slice(events, func(a, b int) bool { return events[a].StartTS.Before(events[b].StartTS) })

	var patterns []Pattern
	var runApp string
	var runStart, runEnd time.Time
	flush := func() {
		if runApp == "" {
			return
		}
		if d := runEnd.Sub(runStart); d >= focusSessionMinDuration {
			patterns = append(patterns, Pattern{
				Type:        "focus_session",
				Description: fmt.Sprintf("%.0f minute focus session on %s starting %s", d.Minutes(), runApp, runStart.Format("Jan 2 15:04")),
				Confidence:  1,
				Data:        map[string]any{"app": runApp, "start": runStart, "minutes": d.Minutes()},
			})
		}
	}
	for _, e := range events {
		if e.AppName == runApp && !e.StartTS.After(runEnd) {
			if e.EndTS.After(runEnd) {
				runEnd = e.EndTS
			}
			continue
		}
		flush()
		runApp, runStart, runEnd = e.AppName, e.StartTS, e.EndTS
	}
	flush()

	sort.Slice(patterns, func(a, b int) bool {
		return patterns[a].Data["minutes"].(float64) > patterns[b].Data["minutes"].(float64)
	})
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}
	return patterns, nil
}

// AllPatterns runs every detector and concatenates the results, in the
// order patterns.py's get_all_patterns does: time of day, day of week,
// app usage, focus sessions.
func (i *Inspector) AllPatterns(ctx context.Context, store EventStore, daysBack int) ([]Pattern, error) {
	var out []Pattern
	for _, fn := range []func(context.Context, EventStore, int) ([]Pattern, error){
		i.DetectTimeOfDayPatterns, i.DetectDayOfWeekPatterns, i.DetectAppPatterns, i.DetectFocusPatterns,
	} {
		p, err := fn(ctx, store, daysBack)
		if err != nil {
			return nil, err
		}
		out = append(out, p...)
	}
	return out, nil
}

// PatternsSummary returns the top 3 patterns by confidence, spec's
// "insights summary" used for a compact UI widget.
func (i *Inspector) PatternsSummary(ctx context.Context, store EventStore, daysBack int) ([]Pattern, error) {
	all, err := i.AllPatterns(ctx, store, daysBack)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(a, b int) bool { return all[a].Confidence > all[b].Confidence })
	if len(all) > 3 {
		all = all[:3]
	}
	return all, nil
}
