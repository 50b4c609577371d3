package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// setupTestDB creates a temporary database for a single test.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trace-storage-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	db, err := Open(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}

	return db, func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
}

func TestSaveAndFetchScreenshot(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &types.Screenshot{
		ID: "shot1", Timestamp: ts, MonitorID: 0, Path: "2026/01/01/shot1.jpg",
		Fingerprint: "abc123", DiffScore: 0.4, Width: 1920, Height: 1080,
	}
	if err := db.SaveScreenshot(ctx, s, []byte("jpeg-bytes")); err != nil {
		t.Fatalf("SaveScreenshot: %v", err)
	}

	got, err := db.ScreenshotsBetween(ctx, ts.Add(-time.Minute), ts.Add(time.Minute))
	if err != nil {
		t.Fatalf("ScreenshotsBetween: %v", err)
	}
	if len(got) != 1 || got[0].ID != "shot1" {
		t.Fatalf("expected 1 screenshot named shot1, got %+v", got)
	}
}

func TestSaveEventPersistsEvidence(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	s := &types.Screenshot{ID: "shot-a", Timestamp: start, Path: "p.jpg", Fingerprint: "f"}
	if err := db.SaveScreenshot(ctx, s, nil); err != nil {
		t.Fatalf("SaveScreenshot: %v", err)
	}

	e := &types.Event{
		ID: "evt1", StartTS: start, EndTS: end, AppID: "com.apple.Terminal",
		AppName: "Terminal", WindowTitle: "zsh", EvidenceIDs: []string{"shot-a"},
	}
	if err := db.SaveEvent(ctx, e); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	events, err := db.EventsOverlapping(ctx, start.Add(-time.Hour), end.Add(time.Hour))
	if err != nil {
		t.Fatalf("EventsOverlapping: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if len(events[0].EvidenceIDs) != 1 || events[0].EvidenceIDs[0] != "shot-a" {
		t.Fatalf("expected evidence [shot-a], got %v", events[0].EvidenceIDs)
	}
}

func TestAppDurationsClipsToWindow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	// Event spans 09:00-09:30, window is 09:15-09:45; clipped overlap is 15m.
	e := &types.Event{ID: "evt1", StartTS: start, EndTS: start.Add(30 * time.Minute), AppName: "Code"}
	if err := db.SaveEvent(ctx, e); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	durations, err := db.AppDurations(ctx, start.Add(15*time.Minute), start.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("AppDurations: %v", err)
	}
	if durations["Code"] != 15*time.Minute {
		t.Fatalf("expected 15m for Code, got %v", durations["Code"])
	}
}

func TestNoteUpsertByPeriod(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	n := &types.Note{
		ID: "note1", NoteType: types.NoteHour, StartTS: start, EndTS: start.Add(time.Hour),
		FilePath: "notes/2026-01-01-09.md", JSONPayload: `{"v":1}`,
	}
	if err := db.SaveNote(ctx, n); err != nil {
		t.Fatalf("SaveNote: %v", err)
	}

	n.JSONPayload = `{"v":2}`
	if err := db.SaveNote(ctx, n); err != nil {
		t.Fatalf("SaveNote (update): %v", err)
	}

	got, err := db.GetNoteByPeriod(ctx, types.NoteHour, start)
	if err != nil {
		t.Fatalf("GetNoteByPeriod: %v", err)
	}
	if got.JSONPayload != `{"v":2}` {
		t.Fatalf("expected updated payload, got %s", got.JSONPayload)
	}
}

func TestFindOrCreateEntityDedupesByCanonicalName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	e1, err := db.FindOrCreateEntity(ctx, types.EntityTopic, "Kubernetes", []string{"k8s"})
	if err != nil {
		t.Fatalf("FindOrCreateEntity: %v", err)
	}
	e2, err := db.FindOrCreateEntity(ctx, types.EntityTopic, "Kubernetes", []string{"k3s"})
	if err != nil {
		t.Fatalf("FindOrCreateEntity (again): %v", err)
	}
	if e1.ID != e2.ID {
		t.Fatalf("expected same entity id, got %s and %s", e1.ID, e2.ID)
	}
	if len(e2.Aliases) != 2 {
		t.Fatalf("expected both aliases merged, got %v", e2.Aliases)
	}
}

func TestFindEntitiesByTextMatchesAlias(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := db.FindOrCreateEntity(ctx, types.EntityTopic, "Kubernetes", []string{"k8s"}); err != nil {
		t.Fatalf("FindOrCreateEntity: %v", err)
	}

	matches, err := db.FindEntitiesByText(ctx, "debugging a k8s networking issue today", 5)
	if err != nil {
		t.Fatalf("FindEntitiesByText: %v", err)
	}
	if len(matches) != 1 || matches[0].CanonicalName != "Kubernetes" {
		t.Fatalf("expected Kubernetes match, got %+v", matches)
	}
}

func TestUpsertEdgeAccumulatesWeight(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	a, _ := db.FindOrCreateEntity(ctx, types.EntityTopic, "Go", nil)
	b, _ := db.FindOrCreateEntity(ctx, types.EntityProject, "Trace", nil)

	edge := &types.Edge{FromID: a.ID, ToID: b.ID, EdgeType: types.EdgeAboutTopic, Weight: 1.0}
	if err := db.UpsertEdge(ctx, edge); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if err := db.UpsertEdge(ctx, edge); err != nil {
		t.Fatalf("UpsertEdge (again): %v", err)
	}

	neighbors, err := db.NeighborsOf(ctx, a.ID)
	if err != nil {
		t.Fatalf("NeighborsOf: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Weight != 2.0 {
		t.Fatalf("expected accumulated weight 2.0, got %+v", neighbors)
	}
}

func TestJobQueueClaimAndFinish(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.EnqueueJob(ctx, "job1", "hourly_note", "2026-01-01T09", now); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	// Re-enqueuing the same target key must not duplicate the job.
	if err := db.EnqueueJob(ctx, "job1-dup", "hourly_note", "2026-01-01T09", now); err != nil {
		t.Fatalf("EnqueueJob (dup): %v", err)
	}

	claimed, err := db.ClaimNextJob(ctx, "hourly_note", now)
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed.JobID != "job1" {
		t.Fatalf("expected job1 claimed, got %s", claimed.JobID)
	}

	if _, err := db.ClaimNextJob(ctx, "hourly_note", now); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for second claim, got %v", err)
	}

	if err := db.FinishJob(ctx, claimed.JobID, now.Add(time.Second), nil); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
}

func TestSaveEmbeddingAndKNN(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.SaveEmbedding("note1", []float64{1, 0, 0, 0}, "test-model"); err != nil {
		t.Fatalf("SaveEmbedding note1: %v", err)
	}
	if err := db.SaveEmbedding("note2", []float64{0, 1, 0, 0}, "test-model"); err != nil {
		t.Fatalf("SaveEmbedding note2: %v", err)
	}

	results, err := db.KNN([]float64{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(results) == 0 || results[0].NoteID != "note1" {
		t.Fatalf("expected note1 closest, got %+v", results)
	}
}

func TestFileBlobsWriteReadDelete(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "trace-blobs-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	blobs, err := NewFileBlobs(tmpDir)
	if err != nil {
		t.Fatalf("NewFileBlobs: %v", err)
	}

	if err := blobs.Write("2026/01/01/shot1.jpg", []byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := blobs.Read("2026/01/01/shot1.jpg")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("expected 'data', got %q", got)
	}
	if err := blobs.Delete("2026/01/01/shot1.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := blobs.Delete("2026/01/01/shot1.jpg"); err != nil {
		t.Fatalf("Delete (missing, should be no-op): %v", err)
	}
}
