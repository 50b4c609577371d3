package entityextract

import (
	"context"
	"testing"

	"github.com/tracehq/trace/internal/summarizer/schema"
	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	byKey   map[string]*types.Entity
	aliases map[string][]string
	links   map[string]float64 // entityID -> strength
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: map[string]*types.Entity{}, aliases: map[string][]string{}, links: map[string]float64{}}
}

func (f *fakeStore) FindOrCreateEntity(ctx context.Context, entityType types.EntityType, canonicalName string, aliases []string) (*types.Entity, error) {
	key := string(entityType) + ":" + canonicalName
	e, ok := f.byKey[key]
	if !ok {
		f.nextID++
		e = &types.Entity{ID: key, EntityType: entityType, CanonicalName: canonicalName}
		f.byKey[key] = e
	}
	for _, a := range aliases {
		found := false
		for _, existing := range f.aliases[e.ID] {
			if existing == a {
				found = true
				break
			}
		}
		if !found {
			f.aliases[e.ID] = append(f.aliases[e.ID], a)
		}
	}
	e.Aliases = f.aliases[e.ID]
	return e, nil
}

func (f *fakeStore) LinkNoteEntity(ctx context.Context, noteID, entityID string, strength float64, context string) error {
	if existing, ok := f.links[entityID]; !ok || strength > existing {
		f.links[entityID] = strength
	}
	return nil
}

func TestNormalizeLowercasesCollapsesAndTrims(t *testing.T) {
	cases := map[string]string{
		"  Visual   Studio Code!! ": "visual studio code",
		"GitHub.com":                "github.com",
		"***Safari***":              "safari",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCorroboratePersonNeverLowersConfidence(t *testing.T) {
	cases := []struct {
		context    string
		confidence float64
	}{
		{"", 0.5},
		{"no recognizable sentence structure here", 0.5},
		{"Alice met Bob for coffee yesterday.", 0.2},
	}
	for _, c := range cases {
		if got := corroboratePerson(c.context, c.confidence); got < c.confidence {
			t.Fatalf("corroboratePerson(%q, %v) = %v, want >= %v", c.context, c.confidence, got, c.confidence)
		}
	}
}

func TestExtractUpsertsDeclaredEntitiesAndMedia(t *testing.T) {
	store := newFakeStore()
	h := &schema.HourlySummary{
		Entities: []schema.EntityRef{{Name: "Safari", Type: "app", Confidence: 0.9}},
		Topics:   []string{"Vector Search"},
		Media: schema.Media{
			Listening: []schema.TrackRef{{Artist: "Tycho", Track: "Awake"}},
			Watching:  []string{"Some Documentary"},
		},
		Documents: []string{"design-doc.md"},
		Websites:  []string{"github.com"},
	}

	if err := Extract(context.Background(), store, "note-1", h); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	app, ok := store.byKey["app:safari"]
	if !ok {
		t.Fatalf("expected app:safari entity created")
	}
	if len(app.Aliases) != 1 || app.Aliases[0] != "Safari" {
		t.Fatalf("expected Safari recorded as alias, got %v", app.Aliases)
	}
	if store.links[app.ID] != 0.9 {
		t.Fatalf("expected link strength 0.9, got %v", store.links[app.ID])
	}

	if _, ok := store.byKey["topic:vector search"]; !ok {
		t.Fatalf("expected topic entity created")
	}
	if _, ok := store.byKey["artist:tycho"]; !ok {
		t.Fatalf("expected artist entity created")
	}
	if _, ok := store.byKey["track:tycho - awake"]; !ok {
		t.Fatalf("expected '{artist} - {track}' track entity created")
	}
	if _, ok := store.byKey["video:some documentary"]; !ok {
		t.Fatalf("expected video entity created")
	}
	if _, ok := store.byKey["document:design-doc.md"]; !ok {
		t.Fatalf("expected document entity created")
	}
	if _, ok := store.byKey["domain:github.com"]; !ok {
		t.Fatalf("expected domain entity created")
	}
}

func TestExtractNoAliasWhenSurfaceEqualsCanonical(t *testing.T) {
	store := newFakeStore()
	h := &schema.HourlySummary{Topics: []string{"already lowercase"}}

	if err := Extract(context.Background(), store, "note-1", h); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	e := store.byKey["topic:already lowercase"]
	if len(e.Aliases) != 0 {
		t.Fatalf("expected no aliases when surface form matches canonical, got %v", e.Aliases)
	}
}
