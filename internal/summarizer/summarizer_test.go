package summarizer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	notes       map[string]*types.Note
	aggregates  []*types.Aggregate
	entities    map[string]*types.Entity
	links       map[string]float64
	embeddings  map[string][]float64
	events      []*types.Event
	screenshots []*types.Screenshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notes:      map[string]*types.Note{},
		entities:   map[string]*types.Entity{},
		links:      map[string]float64{},
		embeddings: map[string][]float64{},
	}
}

func (f *fakeStore) GetNoteByPeriod(ctx context.Context, noteType types.NoteType, start time.Time) (*types.Note, error) {
	for _, n := range f.notes {
		if n.NoteType == noteType && n.StartTS.Equal(start) {
			return n, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) NotesBetween(ctx context.Context, noteType types.NoteType, start, end time.Time) ([]*types.Note, error) {
	var out []*types.Note
	for _, n := range f.notes {
		if n.NoteType == noteType && !n.StartTS.Before(start) && n.StartTS.Before(end) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) EventsOverlapping(ctx context.Context, windowStart, windowEnd time.Time) ([]*types.Event, error) {
	return f.events, nil
}

func (f *fakeStore) ScreenshotsBetween(ctx context.Context, start, end time.Time) ([]*types.Screenshot, error) {
	return f.screenshots, nil
}

func (f *fakeStore) SaveNote(ctx context.Context, n *types.Note) error {
	f.notes[n.ID] = n
	return nil
}

func (f *fakeStore) UpsertAggregate(ctx context.Context, a *types.Aggregate) error {
	f.aggregates = append(f.aggregates, a)
	return nil
}

func (f *fakeStore) SaveEmbedding(noteID string, vector []float64, modelName string) error {
	f.embeddings[noteID] = vector
	return nil
}

func (f *fakeStore) FindOrCreateEntity(ctx context.Context, entityType types.EntityType, canonicalName string, aliases []string) (*types.Entity, error) {
	key := string(entityType) + ":" + canonicalName
	e, ok := f.entities[key]
	if !ok {
		e = &types.Entity{ID: key, EntityType: entityType, CanonicalName: canonicalName}
		f.entities[key] = e
	}
	return e, nil
}

func (f *fakeStore) LinkNoteEntity(ctx context.Context, noteID, entityID string, strength float64, context string) error {
	f.links[entityID] = strength
	return nil
}

type fakeBlobs struct {
	written map[string][]byte
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{written: map[string][]byte{}} }

func (b *fakeBlobs) Write(relPath string, data []byte) error {
	b.written[relPath] = data
	return nil
}

func (b *fakeBlobs) Read(relPath string) ([]byte, error) {
	return b.written[relPath], nil
}

type fakeModel struct {
	response string
}

func (m *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	return m.response, nil
}

func (m *fakeModel) GenerateVision(ctx context.Context, prompt string, images [][]byte) (string, error) {
	return m.response, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{0.1, 0.2, 0.3}, nil
}

var testHourStart = time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)

func TestSummarizeEmitsEmptyNoteWithZeroEvents(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()

	res, err := Summarize(context.Background(), store, blobs, &fakeModel{}, fakeEmbedder{}, testHourStart, nil, false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !res.Empty {
		t.Fatalf("expected Empty result, got %+v", res)
	}
	n, ok := store.notes[res.NoteID]
	if !ok {
		t.Fatalf("expected note persisted")
	}
	if n.NoteType != types.NoteHour {
		t.Fatalf("expected hour note type")
	}
}

func TestSummarizeIsIdempotentWithoutForce(t *testing.T) {
	store := newFakeStore()
	store.notes["existing"] = &types.Note{ID: "existing", NoteType: types.NoteHour, StartTS: testHourStart}
	blobs := newFakeBlobs()

	res, err := Summarize(context.Background(), store, blobs, &fakeModel{}, fakeEmbedder{}, testHourStart, nil, false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !res.AlreadyExists || res.NoteID != "existing" {
		t.Fatalf("expected idempotency guard to return existing note, got %+v", res)
	}
}

const validResponse = `{
  "title": "Deep work",
  "summary": "Worked in the editor.",
  "categories": ["work"],
  "activities": ["Coded"],
  "topics": ["Go"],
  "entities": [{"name": "VS Code", "type": "app", "confidence": 0.9}],
  "media": {"listening": [], "watching": []},
  "documents": [],
  "websites": [],
  "open_loops": []
}`

func TestSummarizeParsesValidatesPersistsAndUpdatesAggregates(t *testing.T) {
	store := newFakeStore()
	store.events = []*types.Event{
		{ID: "e1", AppID: "code", AppName: "VS Code", WindowTitle: "main.go", StartTS: testHourStart, EndTS: testHourStart.Add(30 * time.Minute)},
	}
	blobs := newFakeBlobs()

	res, err := Summarize(context.Background(), store, blobs, &fakeModel{response: validResponse}, fakeEmbedder{}, testHourStart, nil, false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Failed || res.Empty {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, ok := store.notes[res.NoteID]; !ok {
		t.Fatalf("expected note persisted")
	}
	if _, ok := store.entities["app:vs code"]; !ok {
		t.Fatalf("expected entity extracted, got %+v", store.entities)
	}
	if len(store.embeddings[res.NoteID]) == 0 {
		t.Fatalf("expected embedding stored")
	}

	var sawCategory bool
	for _, a := range store.aggregates {
		if a.KeyType == types.KeyCategory && a.Key == "work" {
			sawCategory = true
		}
	}
	if !sawCategory {
		t.Fatalf("expected category aggregate written, got %+v", store.aggregates)
	}
}

func TestSummarizeFailsWhenModelNeverProducesValidJSON(t *testing.T) {
	store := newFakeStore()
	store.events = []*types.Event{
		{ID: "e1", AppID: "code", AppName: "VS Code", StartTS: testHourStart, EndTS: testHourStart.Add(time.Minute)},
	}
	blobs := newFakeBlobs()

	res, err := Summarize(context.Background(), store, blobs, &fakeModel{response: "not json at all"}, fakeEmbedder{}, testHourStart, nil, false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !res.Failed {
		t.Fatalf("expected Failed result, got %+v", res)
	}
	if len(store.notes) != 0 {
		t.Fatalf("expected no note written on failure")
	}
}

func TestSummarizeRepairsLenientEntityType(t *testing.T) {
	store := newFakeStore()
	store.events = []*types.Event{
		{ID: "e1", AppID: "browser", AppName: "Safari", StartTS: testHourStart, EndTS: testHourStart.Add(time.Minute)},
	}
	blobs := newFakeBlobs()

	response := fmt.Sprintf(`{"title":"t","summary":"s","categories":[],"activities":[],"topics":[],"entities":[{"name":"Safari","type":"application","confidence":0.8}],"media":{"listening":[],"watching":[]},"documents":[],"websites":[],"open_loops":[]}`)

	res, err := Summarize(context.Background(), store, blobs, &fakeModel{response: response}, fakeEmbedder{}, testHourStart, nil, false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Failed {
		t.Fatalf("expected repair to recover the payload, got %+v", res)
	}
	if _, ok := store.entities["app:safari"]; !ok {
		t.Fatalf("expected 'application' normalized to 'app', got %+v", store.entities)
	}
}
