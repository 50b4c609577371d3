package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	notes      []*types.Note
	entities   []*types.Entity
	edges      []*types.Edge
	aggregates []*types.Aggregate
}

func (f *fakeStore) CountAll(ctx context.Context) (storage.Counts, error) {
	return storage.Counts{Notes: len(f.notes), Entities: len(f.entities), Edges: len(f.edges), Aggregates: len(f.aggregates)}, nil
}
func (f *fakeStore) AllNotes(ctx context.Context) ([]*types.Note, error) { return f.notes, nil }
func (f *fakeStore) AllEntities(ctx context.Context) ([]*types.Entity, error) {
	return f.entities, nil
}
func (f *fakeStore) AllNoteEntities(ctx context.Context) ([]*types.NoteEntity, error) {
	return nil, nil
}
func (f *fakeStore) AllEdges(ctx context.Context) ([]*types.Edge, error) { return f.edges, nil }
func (f *fakeStore) AllAggregates(ctx context.Context) ([]*types.Aggregate, error) {
	return f.aggregates, nil
}

type fakeBlobs struct {
	root string
}

func (b *fakeBlobs) Read(relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(b.root, relPath))
}
func (b *fakeBlobs) Root() string { return b.root }

func sampleStore() *fakeStore {
	return &fakeStore{
		notes: []*types.Note{
			{ID: "note_hour_1", NoteType: types.NoteHour, StartTS: time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)},
		},
		entities: []*types.Entity{{ID: "e1", EntityType: types.EntityApp, CanonicalName: "vs code"}},
	}
}

func TestJSONWritesExportEnvelope(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "export.json")

	if err := JSON(context.Background(), sampleStore(), dest, time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("JSON: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.ExportVersion != "1.0" {
		t.Fatalf("unexpected export version %q", snap.ExportVersion)
	}
	if len(snap.Notes) != 1 || snap.Notes[0].ID != "note_hour_1" {
		t.Fatalf("unexpected notes: %+v", snap.Notes)
	}
	if snap.Counts.Notes != 1 {
		t.Fatalf("unexpected counts: %+v", snap.Counts)
	}
}

func TestMarkdownMirrorsNotesTree(t *testing.T) {
	blobRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(blobRoot, "notes", "2026", "07", "30"), 0o755); err != nil {
		t.Fatal(err)
	}
	notePath := filepath.Join(blobRoot, "notes", "2026", "07", "30", "hour-20260730-14.md")
	if err := os.WriteFile(notePath, []byte("# hour note"), 0o644); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	if err := Markdown(&fakeBlobs{root: blobRoot}, destDir); err != nil {
		t.Fatalf("Markdown: %v", err)
	}

	mirrored := filepath.Join(destDir, "notes", "2026", "07", "30", "hour-20260730-14.md")
	data, err := os.ReadFile(mirrored)
	if err != nil {
		t.Fatalf("expected mirrored file: %v", err)
	}
	if string(data) != "# hour note" {
		t.Fatalf("unexpected mirrored content: %q", data)
	}
}

func TestArchiveBundlesMetadataAndNotes(t *testing.T) {
	blobRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(blobRoot, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blobRoot, "notes", "index.md"), []byte("daily rollup"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "export.zip")
	err := Archive(context.Background(), sampleStore(), &fakeBlobs{root: blobRoot}, dest, time.Now())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty archive, err=%v", err)
	}
}

func TestDescribeFormatsCounts(t *testing.T) {
	snap := &Snapshot{Counts: storage.Counts{Notes: 1234, Entities: 56}}
	got := Describe(snap)
	if got != "1,234 notes, 56 entities, 0 edges, 0 aggregates" {
		t.Fatalf("unexpected description: %q", got)
	}
}
