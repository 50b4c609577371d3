// Package openloops implements spec 4.6's open_loops surface: scanning
// recent hourly notes for the model-reported open_loops list and
// presenting them as a flat, recency-ordered feed.
//
// Grounded on chat/open_loops.py's get_open_loops: a SQL scan of hour
// notes in a trailing window, parsing json_payload for the open_loops
// field. This package keeps the same shape against
// storage.DB.NotesBetween and schema.HourlySummary instead of hand
// parsing the JSON column.
package openloops

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tracehq/trace/internal/summarizer/schema"
	"github.com/tracehq/trace/internal/types"
)

// Store is the note-read surface this package needs.
type Store interface {
	NotesBetween(ctx context.Context, noteType types.NoteType, start, end time.Time) ([]*types.Note, error)
}

// Loop is one open loop surfaced from an hour note.
type Loop struct {
	LoopID         string    `json:"loop_id"`
	Description    string    `json:"description"`
	SourceNoteID   string    `json:"source_note_id"`
	SourceNotePath string    `json:"source_note_path"`
	DetectedAt     time.Time `json:"detected_at"`
}

// List returns every open loop reported across hour notes in the
// trailing daysBack window, most recent note first, capped at limit.
func List(ctx context.Context, store Store, daysBack int, limit int) ([]Loop, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)

	notes, err := store.NotesBetween(ctx, types.NoteHour, start, end)
	if err != nil {
		return nil, fmt.Errorf("openloops: list: %w", err)
	}

	var out []Loop
	for idx := len(notes) - 1; idx >= 0; idx-- {
		n := notes[idx]
		var h schema.HourlySummary
		if err := json.Unmarshal([]byte(n.JSONPayload), &h); err != nil {
			continue
		}
		for i, desc := range h.OpenLoops {
			out = append(out, Loop{
				LoopID:         fmt.Sprintf("%s:%d", n.ID, i),
				Description:    desc,
				SourceNoteID:   n.ID,
				SourceNotePath: n.FilePath,
				DetectedAt:     n.StartTS,
			})
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Summary is spec's compact open-loops widget: total count plus counts
// restricted to today and the trailing week.
type Summary struct {
	TotalCount    int    `json:"total_count"`
	TodayCount    int    `json:"today_count"`
	ThisWeekCount int    `json:"this_week_count"`
	RecentLoops   []Loop `json:"recent_loops"`
}

const summaryLookbackDays = 30
const recentLoopsLimit = 5

// GetSummary reports total/today/this-week open loop counts over a
// fixed 30-day lookback, with the most recent few loops attached.
func GetSummary(ctx context.Context, store Store) (*Summary, error) {
	all, err := List(ctx, store, summaryLookbackDays, 10000)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	today := now.Truncate(24 * time.Hour)
	weekAgo := now.AddDate(0, 0, -7)

	s := &Summary{TotalCount: len(all)}
	for _, l := range all {
		if !l.DetectedAt.Before(today) {
			s.TodayCount++
		}
		if !l.DetectedAt.Before(weekAgo) {
			s.ThisWeekCount++
		}
	}
	if len(all) > recentLoopsLimit {
		all = all[:recentLoopsLimit]
	}
	s.RecentLoops = all
	return s, nil
}
