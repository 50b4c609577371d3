// Package summarizer is the hourly orchestrator of spec 4.6: given an
// hour it assembles evidence and keyframes, prompts an LLM for a
// structured summary, validates/repairs/retries that summary against
// the schema package, and persists the Markdown note, entities, and
// embedding.
//
// Grounded on this package's own former consolidate.go (idempotency
// guard, multi-stage pipeline, persistence write-through:
// Consolidator.Run/consolidateGroup built a trace row, linked
// entities, computed an embedding, and wrote through to the graph in
// one pass — Summarize follows the same shape for one hour's note
// instead of one episode group's trace) and claude_inference.go
// (prompt assembly via strings.Builder, JSON extraction via
// llm.ExtractJSON, the "parse, fall back to a usable default" instinct
// generalized here into the validate/repair/retry loop spec 4.6 step 5
// spells out explicitly, which the teacher only approximated with a
// single unmarshal-or-truncate fallback).
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tracehq/trace/internal/evidence"
	"github.com/tracehq/trace/internal/llm"
	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/summarizer/entityextract"
	"github.com/tracehq/trace/internal/summarizer/render"
	"github.com/tracehq/trace/internal/summarizer/schema"
	"github.com/tracehq/trace/internal/synth"
	"github.com/tracehq/trace/internal/triage"
	"github.com/tracehq/trace/internal/types"
)

// maxRepairRetries bounds spec 4.6 step 5's "retry validation up to N
// times after repair."
const maxRepairRetries = 2

// Store is the persistence surface the summarizer needs, satisfied by
// *storage.DB.
type Store interface {
	GetNoteByPeriod(ctx context.Context, noteType types.NoteType, start time.Time) (*types.Note, error)
	NotesBetween(ctx context.Context, noteType types.NoteType, start, end time.Time) ([]*types.Note, error)
	EventsOverlapping(ctx context.Context, windowStart, windowEnd time.Time) (events []*types.Event, err error)
	ScreenshotsBetween(ctx context.Context, start, end time.Time) ([]*types.Screenshot, error)
	SaveNote(ctx context.Context, n *types.Note) error
	UpsertAggregate(ctx context.Context, a *types.Aggregate) error
	SaveEmbedding(noteID string, vector []float64, modelName string) error
	entityextract.Store
}

// Blobs is the filesystem write surface for a rendered note.
type Blobs interface {
	Write(relPath string, data []byte) error
}

// Result reports what Summarize did for one hour.
type Result struct {
	NoteID        string
	AlreadyExists bool // the idempotency guard (step 1) found an existing note
	Empty         bool // the hour had zero events (step 2)
	Failed        bool // schema validation never recovered (step 5)
	FailureReason string
}

// Summarize orchestrates spec 4.6 end to end for [hourStart,
// hourStart+1h). texts are the TextBuffer fragments accumulated for
// the hour — unlike events and screenshots, they are not read from
// storage here (internal/storage creates a text_buffers table but has
// no accessor for it), so the caller hands the in-memory slice
// straight in.
func Summarize(ctx context.Context, store Store, blobs Blobs, model llm.LanguageModel, embedder llm.Embedder, hourStart time.Time, texts []*types.TextBuffer, force bool) (*Result, error) {
	hourEnd := hourStart.Add(time.Hour)

	if !force {
		existing, err := store.GetNoteByPeriod(ctx, types.NoteHour, hourStart)
		if err == nil {
			return &Result{NoteID: existing.ID, AlreadyExists: true}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("summarizer: idempotency check: %w", err)
		}
	}

	events, err := store.EventsOverlapping(ctx, hourStart, hourEnd)
	if err != nil {
		return nil, fmt.Errorf("summarizer: load events: %w", err)
	}

	ev := evidence.Aggregate(events, texts, hourStart, hourEnd, evidence.Options{})

	if ev.IsEmpty() {
		noteID := noteID(hourStart)
		h := schema.Empty(hourLabel(hourStart, hourEnd))
		if err := persist(ctx, store, blobs, embedder, types.NoteHour, noteID, hourStart, hourEnd, h); err != nil {
			return nil, err
		}
		return &Result{NoteID: noteID, Empty: true}, nil
	}

	screenshots, err := store.ScreenshotsBetween(ctx, hourStart, hourEnd)
	if err != nil {
		return nil, fmt.Errorf("summarizer: load screenshots: %w", err)
	}
	candidates := buildCandidates(screenshots, events)
	triage.MarkTransitions(candidates)
	cfg := triage.DefaultConfig()
	keyframes := triage.Select(candidates, cfg)
	forLLM := triage.ForLLM(keyframes, cfg)

	prompt := buildPrompt(hourStart, hourEnd, ev, forLLM)

	var images [][]byte
	for _, c := range forLLM {
		if data, ok := screenshotBlob(ctx, blobs, screenshots, c.ScreenshotID); ok {
			images = append(images, data)
		}
	}

	h, failureReason, ok := generateAndValidate(ctx, model, prompt, images)
	if !ok {
		return &Result{Failed: true, FailureReason: failureReason}, nil
	}

	noteID := noteID(hourStart)
	if err := persist(ctx, store, blobs, embedder, types.NoteHour, noteID, hourStart, hourEnd, h); err != nil {
		return nil, err
	}

	appDurations, err := eventAppDurations(ctx, store, hourStart, hourEnd)
	if err != nil {
		return nil, fmt.Errorf("summarizer: app durations: %w", err)
	}
	if err := updateAggregates(ctx, store, "hour", hourStart, hourEnd, h, appDurations); err != nil {
		return nil, fmt.Errorf("summarizer: update aggregates: %w", err)
	}

	return &Result{NoteID: noteID}, nil
}

func noteID(hourStart time.Time) string {
	return "note_hour_" + hourStart.UTC().Format("20060102T1504")
}

func hourLabel(start, end time.Time) string {
	return fmt.Sprintf("%s, %s | %s - %s", start.Format("Monday"), start.Format("January 2, 2006"), start.Format("15:04"), end.Format("15:04"))
}

// generateAndValidate calls the model, then loops
// parse-validate-repair up to maxRepairRetries times before giving up,
// per spec 4.6 step 5.
func generateAndValidate(ctx context.Context, model llm.LanguageModel, prompt string, images [][]byte) (*schema.HourlySummary, string, bool) {
	var raw string
	var err error
	if len(images) > 0 {
		raw, err = model.GenerateVision(ctx, prompt, images)
	} else {
		raw, err = model.Generate(ctx, prompt)
	}
	if err != nil {
		return nil, fmt.Sprintf("generate: %v", err), false
	}

	for attempt := 0; attempt <= maxRepairRetries; attempt++ {
		h, perr := parsePayload(raw)
		if perr != nil {
			return nil, fmt.Sprintf("parse: %v", perr), false
		}
		if errs := h.Validate(); len(errs) == 0 {
			return h, "", true
		}
		h.Repair()
		if errs := h.Validate(); len(errs) == 0 {
			return h, "", true
		}
		// Repair couldn't fix everything (e.g. still-empty title);
		// nothing left to retry with the same raw response.
		if attempt == maxRepairRetries {
			return nil, fmt.Sprintf("validation failed after repair: %v", h.Validate()), false
		}
	}
	return nil, "validation exhausted retries", false
}

// parsePayload strips any markdown fence, locates the outermost JSON
// object, and unmarshals it.
func parsePayload(raw string) (*schema.HourlySummary, error) {
	stripped := llm.ExtractJSON(raw)
	start := strings.Index(stripped, "{")
	end := strings.LastIndex(stripped, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	var h schema.HourlySummary
	if err := json.Unmarshal([]byte(stripped[start:end+1]), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// persist writes the note through: render Markdown, save the row,
// extract entities, and compute+store the embedding (spec 4.6 step 6).
// noteType selects the hourly or daily renderer and note_type column.
func persist(ctx context.Context, store Store, blobs Blobs, embedder llm.Embedder, noteType types.NoteType, noteID string, hourStart, hourEnd time.Time, h *schema.HourlySummary) error {
	var markdown string
	var err error
	if noteType == types.NoteDay {
		markdown, err = render.Day(noteID, hourStart, hourEnd, h)
	} else {
		markdown, err = render.Hour(noteID, hourStart, hourEnd, h)
	}
	if err != nil {
		return fmt.Errorf("summarizer: render: %w", err)
	}
	relPath := fmt.Sprintf("notes/%s.md", noteID)
	if err := blobs.Write(relPath, []byte(markdown)); err != nil {
		return fmt.Errorf("summarizer: write note file: %w", err)
	}

	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("summarizer: marshal payload: %w", err)
	}

	n := &types.Note{
		ID:          noteID,
		NoteType:    noteType,
		StartTS:     hourStart,
		EndTS:       hourEnd,
		FilePath:    relPath,
		JSONPayload: string(payload),
	}
	if err := store.SaveNote(ctx, n); err != nil {
		return fmt.Errorf("summarizer: save note: %w", err)
	}

	if err := entityextract.Extract(ctx, store, noteID, h); err != nil {
		return fmt.Errorf("summarizer: extract entities: %w", err)
	}

	if embedder != nil {
		text, err := synth.EmbeddingText(h)
		if err != nil {
			return fmt.Errorf("summarizer: embed text: %w", err)
		}
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("summarizer: embed: %w", err)
		}
		if err := store.SaveEmbedding(noteID, vec, "default"); err != nil {
			return fmt.Errorf("summarizer: save embedding: %w", err)
		}
	}

	return nil
}

// buildPrompt assembles the system+user prompt describing the
// schema and the hour's evidence, in claude_inference.go's
// strings.Builder style.
func buildPrompt(hourStart, hourEnd time.Time, ev *evidence.HourlyEvidence, keyframes []triage.Candidate) string {
	var sb strings.Builder

	sb.WriteString(`You are summarizing one hour of a person's captured computer activity into a structured JSON note.

Respond with a single JSON object matching this shape exactly:
{
  "title": string,
  "summary": string,
  "categories": [string],
  "activities": [string],
  "topics": [string],
  "entities": [{"name": string, "type": "topic|app|domain|document|artist|track|video|game|person|project", "confidence": number, "context": string}],
  "media": {"listening": [{"artist": string, "track": string}], "watching": [string]},
  "documents": [string],
  "websites": [string],
  "location": string,
  "open_loops": [string]
}

Return only the JSON object, no markdown fences, no commentary.

`)

	sb.WriteString(fmt.Sprintf("Hour: %s to %s\n\n", hourStart.Format(time.RFC3339), hourEnd.Format(time.RFC3339)))

	sb.WriteString("Timeline:\n")
	for _, e := range ev.Events {
		sb.WriteString(fmt.Sprintf("- %s-%s %s: %s\n", e.StartTS.Format("15:04"), e.EndTS.Format("15:04"), e.AppName, e.WindowTitle))
	}

	if len(keyframes) > 0 {
		sb.WriteString("\nKeyframes:\n")
		for _, c := range keyframes {
			sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", c.Timestamp.Format("15:04"), c.Triage.Category, c.Triage.Description))
		}
	}

	if len(ev.Snippets) > 0 {
		sb.WriteString("\nText evidence:\n")
		for _, s := range ev.Snippets {
			sb.WriteString("- " + s + "\n")
		}
	}

	if len(ev.NowPlaying) > 0 {
		sb.WriteString("\nMedia timeline:\n")
		for _, np := range ev.NowPlaying {
			sb.WriteString(fmt.Sprintf("- %s-%s %s - %s\n", np.StartTS.Format("15:04"), np.EndTS.Format("15:04"), np.Artist, np.Track))
		}
	}

	if len(ev.Locations) > 0 {
		sb.WriteString(fmt.Sprintf("\nLocations: %s\n", strings.Join(ev.Locations, ", ")))
	}

	sb.WriteString("\nStatistics:\n")
	sb.WriteString(fmt.Sprintf("- %d events\n", ev.TotalEvents()))
	apps := make([]string, 0, len(ev.AppDurations))
	for app := range ev.AppDurations {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	for _, app := range apps {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", app, ev.AppDurations[app].Round(time.Second)))
	}

	return sb.String()
}

// buildCandidates joins screenshots with the event open at their
// timestamp to produce triage.Candidate rows, scoring each with the
// heuristic triage mode (spec 4.5).
func buildCandidates(screenshots []*types.Screenshot, events []*types.Event) []triage.Candidate {
	sorted := make([]*types.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTS.Before(sorted[j].StartTS) })

	candidates := make([]triage.Candidate, 0, len(screenshots))
	for _, s := range screenshots {
		e := eventAt(sorted, s.Timestamp)
		var appID, title string
		if e != nil {
			appID, title = e.AppID, e.WindowTitle
		}
		candidates = append(candidates, triage.Candidate{
			ScreenshotID: s.ID,
			Timestamp:    s.Timestamp,
			AppID:        appID,
			WindowTitle:  title,
			DiffScore:    s.DiffScore,
			Triage:       triage.Heuristic(appID, title, s.DiffScore, false),
		})
	}
	return candidates
}

func eventAt(sorted []*types.Event, ts time.Time) *types.Event {
	for _, e := range sorted {
		if !ts.Before(e.StartTS) && ts.Before(e.EndTS) {
			return e
		}
	}
	return nil
}

func screenshotBlob(ctx context.Context, blobs Blobs, screenshots []*types.Screenshot, screenshotID string) ([]byte, bool) {
	reader, ok := blobs.(interface{ Read(string) ([]byte, error) })
	if !ok {
		return nil, false
	}
	for _, s := range screenshots {
		if s.ID == screenshotID {
			data, err := reader.Read(s.Path)
			if err != nil {
				return nil, false
			}
			return data, true
		}
	}
	return nil, false
}

func eventAppDurations(ctx context.Context, store Store, hourStart, hourEnd time.Time) (map[string]time.Duration, error) {
	type appDurationsStore interface {
		AppDurations(ctx context.Context, windowStart, windowEnd time.Time) (map[string]time.Duration, error)
	}
	if d, ok := store.(appDurationsStore); ok {
		return d.AppDurations(ctx, hourStart, hourEnd)
	}
	return nil, nil
}

// updateAggregates rolls the period's payload up into the aggregates
// table (spec 4.6 step 7): apps by actual focused minutes, everything
// else (categories, websites as domains, topics, media) by mention
// count. periodType is
// "hour" for the per-hour rollup or "day" for the daily compaction's
// re-derived totals (CompactDay).
func updateAggregates(ctx context.Context, store Store, periodType string, hourStart, hourEnd time.Time, h *schema.HourlySummary, appDurations map[string]time.Duration) error {
	for _, c := range h.Categories {
		if err := upsertCount(ctx, store, periodType, hourStart, hourEnd, types.KeyCategory, c); err != nil {
			return err
		}
	}
	for app, d := range appDurations {
		if err := store.UpsertAggregate(ctx, &types.Aggregate{
			PeriodType: periodType, PeriodStartTS: hourStart, PeriodEndTS: hourEnd,
			KeyType: types.KeyApp, Key: app, ValueNum: d.Minutes(),
		}); err != nil {
			return err
		}
	}
	for _, w := range h.Websites {
		if err := upsertCount(ctx, store, periodType, hourStart, hourEnd, types.KeyDomain, w); err != nil {
			return err
		}
	}
	for _, t := range h.Topics {
		if err := upsertCount(ctx, store, periodType, hourStart, hourEnd, types.KeyTopic, t); err != nil {
			return err
		}
	}
	for _, tr := range h.Media.Listening {
		if err := upsertCount(ctx, store, periodType, hourStart, hourEnd, types.KeyArtist, tr.Artist); err != nil {
			return err
		}
		if err := upsertCount(ctx, store, periodType, hourStart, hourEnd, types.KeyTrack, fmt.Sprintf("%s - %s", tr.Artist, tr.Track)); err != nil {
			return err
		}
		if err := upsertCount(ctx, store, periodType, hourStart, hourEnd, types.KeyMedia, tr.Track); err != nil {
			return err
		}
	}
	for _, w := range h.Media.Watching {
		if err := upsertCount(ctx, store, periodType, hourStart, hourEnd, types.KeyMedia, w); err != nil {
			return err
		}
	}
	return nil
}

func upsertCount(ctx context.Context, store Store, periodType string, hourStart, hourEnd time.Time, keyType types.AggregateKeyType, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return store.UpsertAggregate(ctx, &types.Aggregate{
		PeriodType: periodType, PeriodStartTS: hourStart, PeriodEndTS: hourEnd,
		KeyType: keyType, Key: key, ValueNum: 1,
	})
}
