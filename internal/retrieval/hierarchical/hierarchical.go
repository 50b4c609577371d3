// Package hierarchical implements the two-stage day-then-hour search
// of spec 4.8.3: find relevant days first, then drill into the hours
// inside each matched day, combining the two into one relevance score
// per day.
//
// The two-stage, decaying-relevance shape is grounded on
// internal/storage_src/activation.go's multi-hop activation spreading
// (seed a top level, propagate into a narrower neighborhood, combine
// scores by a fixed weighting) — generalized here from "spread
// activation across graph hops" to "search days, then search hours
// within matched days, weighting day relevance above hour relevance".
package hierarchical

import (
	"context"
	"sort"
	"time"

	"github.com/tracehq/trace/internal/llm"
	"github.com/tracehq/trace/internal/retrieval/vectorsearch"
	"github.com/tracehq/trace/internal/types"
)

// dayRelevanceWeight and hourRelevanceWeight implement spec 4.8.3's
// combined relevance formula: r = 0.6*day_score + 0.4*mean(hour_scores).
const (
	dayRelevanceWeight  = 0.6
	hourRelevanceWeight = 0.4
)

// DayMatch is one matched day, its own note (nil for the hour-only
// fallback case), and the hourly notes found inside it.
type DayMatch struct {
	Day       time.Time
	DayNote   *types.Note
	HourNotes []vectorsearch.Match
	Relevance float64
}

// Search runs the two-stage day/hour search described in spec 4.8.3
// and returns up to maxDays DayMatch results ordered by relevance desc.
func Search(ctx context.Context, store vectorsearch.Store, embedder llm.Embedder, query string, filter *types.TimeFilter, maxDays, maxHoursPerDay int) ([]DayMatch, error) {
	dayMatches, err := vectorsearch.Search(ctx, store, embedder, types.NoteDay, query, filter, maxDays*2, 0)
	if err != nil {
		return nil, err
	}

	if len(dayMatches) == 0 && filter != nil {
		return fallbackHourGrouping(ctx, store, embedder, query, *filter, maxDays, maxHoursPerDay)
	}

	var out []DayMatch
	seen := make(map[string]bool)
	for _, dm := range dayMatches {
		day := dm.Note.StartTS
		key := day.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true

		hourFilter := intersectDay(filter, day)
		hourMatches, err := vectorsearch.Search(ctx, store, embedder, types.NoteHour, query, &hourFilter, maxHoursPerDay, 0)
		if err != nil {
			return nil, err
		}

		relevance := dm.Score
		if len(hourMatches) > 0 {
			var sum float64
			for _, hm := range hourMatches {
				sum += hm.Score
			}
			mean := sum / float64(len(hourMatches))
			relevance = dayRelevanceWeight*dm.Score + hourRelevanceWeight*mean
		}

		out = append(out, DayMatch{
			Day:       day,
			DayNote:   dm.Note,
			HourNotes: hourMatches,
			Relevance: relevance,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if len(out) > maxDays {
		out = out[:maxDays]
	}
	return out, nil
}

// fallbackHourGrouping is spec 4.8.3 step 4: when Stage A finds no day
// notes but a time filter is set, search hour notes directly and group
// by date, stubbing a day-less DayMatch per group.
func fallbackHourGrouping(ctx context.Context, store vectorsearch.Store, embedder llm.Embedder, query string, filter types.TimeFilter, maxDays, maxHoursPerDay int) ([]DayMatch, error) {
	hourMatches, err := vectorsearch.Search(ctx, store, embedder, types.NoteHour, query, &filter, maxDays*maxHoursPerDay, 0)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]vectorsearch.Match)
	var order []string
	for _, hm := range hourMatches {
		key := hm.Note.StartTS.Format("2006-01-02")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], hm)
	}

	var out []DayMatch
	for _, key := range order {
		hrs := groups[key]
		if len(hrs) > maxHoursPerDay {
			hrs = hrs[:maxHoursPerDay]
		}
		var sum float64
		for _, hm := range hrs {
			sum += hm.Score
		}
		day, _ := time.Parse("2006-01-02", key)
		out = append(out, DayMatch{
			Day:       day,
			HourNotes: hrs,
			Relevance: sum / float64(len(hrs)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if len(out) > maxDays {
		out = out[:maxDays]
	}
	return out, nil
}

// intersectDay clips filter (if any) to the [day, day+24h) window, so
// Stage B never searches hours outside the matched day.
func intersectDay(filter *types.TimeFilter, day time.Time) types.TimeFilter {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	if filter == nil {
		return types.TimeFilter{Start: dayStart, End: dayEnd}
	}
	start := dayStart
	if !filter.Start.IsZero() && filter.Start.After(start) {
		start = filter.Start
	}
	end := dayEnd
	if !filter.End.IsZero() && filter.End.Before(end) {
		end = filter.End
	}
	return types.TimeFilter{Start: start, End: end}
}

// ContextForLLM flattens matches into spec 4.8.3's presentation order:
// all day notes first, then each day's hourly notes interleaved, until
// maxNotes is reached.
func ContextForLLM(matches []DayMatch, maxNotes int) []*types.Note {
	var out []*types.Note
	for _, m := range matches {
		if m.DayNote == nil {
			continue
		}
		if len(out) >= maxNotes {
			return out
		}
		out = append(out, m.DayNote)
	}
	for _, m := range matches {
		for _, hm := range m.HourNotes {
			if len(out) >= maxNotes {
				return out
			}
			out = append(out, hm.Note)
		}
	}
	return out
}
