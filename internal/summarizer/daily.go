package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracehq/trace/internal/llm"
	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/summarizer/schema"
	"github.com/tracehq/trace/internal/types"
)

// CompactDay implements the daily scheduler job's first two duties
// (spec 4.7): compact the day's hourly notes into one daily note, and
// recompute aggregates for the day from that compaction. It does not
// trim retention-eligible blobs — that's a separate storage-level
// sweep the caller runs alongside this.
//
// Unlike Summarize, CompactDay never calls the model: the day's
// payload is a deterministic merge of its hour notes' already-validated
// payloads, not a fresh generation.
func CompactDay(ctx context.Context, store Store, blobs Blobs, embedder llm.Embedder, dayStart time.Time, force bool) (*Result, error) {
	dayEnd := dayStart.Add(24 * time.Hour)

	if !force {
		existing, err := store.GetNoteByPeriod(ctx, types.NoteDay, dayStart)
		if err == nil {
			return &Result{NoteID: existing.ID, AlreadyExists: true}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("summarizer: daily idempotency check: %w", err)
		}
	}

	hourNotes, err := store.NotesBetween(ctx, types.NoteHour, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("summarizer: load hour notes: %w", err)
	}

	noteID := dailyNoteID(dayStart)
	if len(hourNotes) == 0 {
		h := schema.Empty(dayStart.Format("Monday, January 2, 2006"))
		if err := persist(ctx, store, blobs, embedder, types.NoteDay, noteID, dayStart, dayEnd, h); err != nil {
			return nil, err
		}
		return &Result{NoteID: noteID, Empty: true}, nil
	}

	merged, err := mergeHourlyPayloads(hourNotes)
	if err != nil {
		return nil, fmt.Errorf("summarizer: merge hour notes: %w", err)
	}

	if err := persist(ctx, store, blobs, embedder, types.NoteDay, noteID, dayStart, dayEnd, merged); err != nil {
		return nil, err
	}

	appDurations, err := eventAppDurations(ctx, store, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("summarizer: day app durations: %w", err)
	}
	if err := updateAggregates(ctx, store, "day", dayStart, dayEnd, merged, appDurations); err != nil {
		return nil, fmt.Errorf("summarizer: day aggregates: %w", err)
	}

	return &Result{NoteID: noteID}, nil
}

func dailyNoteID(dayStart time.Time) string {
	return "note_day_" + dayStart.UTC().Format("20060102")
}

// mergeHourlyPayloads folds a day's hour notes into one payload: titles
// become a one-line-per-hour summary, activities and open loops are
// concatenated in hour order as-is, and every other list field is
// deduplicated-and-concatenated in hour order.
func mergeHourlyPayloads(hourNotes []*types.Note) (*schema.HourlySummary, error) {
	merged := &schema.HourlySummary{Media: schema.Media{}}
	var titles []string
	seenCategories := map[string]bool{}
	seenTopics := map[string]bool{}
	seenEntities := map[string]bool{}
	seenDocs := map[string]bool{}
	seenSites := map[string]bool{}
	seenTracks := map[string]bool{}
	seenWatching := map[string]bool{}

	for _, note := range hourNotes {
		var h schema.HourlySummary
		if err := json.Unmarshal([]byte(note.JSONPayload), &h); err != nil {
			return nil, fmt.Errorf("note %s: %w", note.ID, err)
		}
		if h.Title != "" {
			titles = append(titles, fmt.Sprintf("%s: %s", note.StartTS.Format("15:04"), h.Title))
		}
		for _, c := range h.Categories {
			if !seenCategories[c] {
				seenCategories[c] = true
				merged.Categories = append(merged.Categories, c)
			}
		}
		merged.Activities = append(merged.Activities, h.Activities...)
		for _, t := range h.Topics {
			if !seenTopics[t] {
				seenTopics[t] = true
				merged.Topics = append(merged.Topics, t)
			}
		}
		for _, e := range h.Entities {
			key := e.Type + ":" + strings.ToLower(e.Name)
			if !seenEntities[key] {
				seenEntities[key] = true
				merged.Entities = append(merged.Entities, e)
			}
		}
		for _, d := range h.Documents {
			if !seenDocs[d] {
				seenDocs[d] = true
				merged.Documents = append(merged.Documents, d)
			}
		}
		for _, w := range h.Websites {
			if !seenSites[w] {
				seenSites[w] = true
				merged.Websites = append(merged.Websites, w)
			}
		}
		for _, tr := range h.Media.Listening {
			key := tr.Artist + " - " + tr.Track
			if !seenTracks[key] {
				seenTracks[key] = true
				merged.Media.Listening = append(merged.Media.Listening, tr)
			}
		}
		for _, w := range h.Media.Watching {
			if !seenWatching[w] {
				seenWatching[w] = true
				merged.Media.Watching = append(merged.Media.Watching, w)
			}
		}
		merged.OpenLoops = append(merged.OpenLoops, h.OpenLoops...)
		if h.Location != "" {
			merged.Location = h.Location
		}
	}

	merged.Title = fmt.Sprintf("%d active hours", len(hourNotes))
	merged.Summary = strings.Join(titles, "\n")
	return merged, nil
}
