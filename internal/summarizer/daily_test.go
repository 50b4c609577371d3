package summarizer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tracehq/trace/internal/types"
)

var testDayStart = time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

func hourNoteFixture(t *testing.T, store *fakeStore, hour int, title string, categories []string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"title":      title,
		"summary":    title,
		"categories": categories,
		"activities": []string{},
		"topics":     []string{},
		"entities":   []any{},
		"media":      map[string]any{"listening": []any{}, "watching": []any{}},
		"documents":  []string{},
		"websites":   []string{},
		"open_loops": []string{},
	})
	if err != nil {
		t.Fatal(err)
	}
	start := testDayStart.Add(time.Duration(hour) * time.Hour)
	store.notes["note_hour_"+start.Format("20060102T1504")] = &types.Note{
		ID:          "note_hour_" + start.Format("20060102T1504"),
		NoteType:    types.NoteHour,
		StartTS:     start,
		EndTS:       start.Add(time.Hour),
		JSONPayload: string(payload),
	}
}

func TestCompactDayMergesHourlyNotes(t *testing.T) {
	store := newFakeStore()
	hourNoteFixture(t, store, 9, "Wrote Go code", []string{"code"})
	hourNoteFixture(t, store, 14, "Read research papers", []string{"document"})
	blobs := newFakeBlobs()
	model := &fakeModel{}
	embedder := &fakeEmbedder{}

	result, err := CompactDay(context.Background(), store, blobs, embedder, testDayStart, false)
	if err != nil {
		t.Fatalf("CompactDay: %v", err)
	}
	if result.Empty || result.Failed || result.AlreadyExists {
		t.Fatalf("unexpected result: %+v", result)
	}

	note, ok := store.notes[result.NoteID]
	if !ok {
		t.Fatalf("expected daily note %s to be saved", result.NoteID)
	}
	if note.NoteType != types.NoteDay {
		t.Fatalf("expected note type day, got %s", note.NoteType)
	}

	var h map[string]any
	if err := json.Unmarshal([]byte(note.JSONPayload), &h); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	cats, _ := h["categories"].([]any)
	if len(cats) != 2 {
		t.Fatalf("expected 2 merged categories, got %v", cats)
	}

	var sawCategoryAgg, sawDayPeriod bool
	for _, a := range store.aggregates {
		if a.KeyType == types.KeyCategory {
			sawCategoryAgg = true
		}
		if a.PeriodType == "day" {
			sawDayPeriod = true
		}
	}
	if !sawCategoryAgg || !sawDayPeriod {
		t.Fatalf("expected day-period category aggregates, got %+v", store.aggregates)
	}
	_ = model
}

func TestCompactDayEmitsEmptyNoteWithNoHourNotes(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	embedder := &fakeEmbedder{}

	result, err := CompactDay(context.Background(), store, blobs, embedder, testDayStart, false)
	if err != nil {
		t.Fatalf("CompactDay: %v", err)
	}
	if !result.Empty {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestCompactDayIsIdempotentWithoutForce(t *testing.T) {
	store := newFakeStore()
	store.notes["note_day_20260730"] = &types.Note{
		ID: "note_day_20260730", NoteType: types.NoteDay, StartTS: testDayStart,
	}
	blobs := newFakeBlobs()
	embedder := &fakeEmbedder{}

	result, err := CompactDay(context.Background(), store, blobs, embedder, testDayStart, false)
	if err != nil {
		t.Fatalf("CompactDay: %v", err)
	}
	if !result.AlreadyExists || result.NoteID != "note_day_20260730" {
		t.Fatalf("expected idempotent short-circuit, got %+v", result)
	}
}
