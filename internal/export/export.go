// Package export implements spec 6's three export formats: a single
// JSON snapshot, a Markdown directory mirror, and a zip archive
// bundling both.
//
// archive/zip usage follows the shape of evalgo-org-eve/archive/unzip.go
// (path-joined extraction under a target directory, MkdirAll for parent
// directories) run in reverse for writing; no third-party zip library
// appears anywhere in the example pack, so the standard library is the
// only ecosystem-consistent choice here.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

const exportVersion = "1.0"

// Store is the read surface export needs, satisfied by *storage.DB.
type Store interface {
	CountAll(ctx context.Context) (storage.Counts, error)
	AllNotes(ctx context.Context) ([]*types.Note, error)
	AllEntities(ctx context.Context) ([]*types.Entity, error)
	AllNoteEntities(ctx context.Context) ([]*types.NoteEntity, error)
	AllEdges(ctx context.Context) ([]*types.Edge, error)
	AllAggregates(ctx context.Context) ([]*types.Aggregate, error)
}

// Blobs is the filesystem read surface needed to locate rendered note
// files for the Markdown and archive formats.
type Blobs interface {
	Read(relPath string) ([]byte, error)
	Root() string
}

// Snapshot is spec 6's JSON export envelope.
type Snapshot struct {
	ExportVersion string              `json:"export_version"`
	ExportedAt    time.Time           `json:"exported_at"`
	Counts        storage.Counts      `json:"counts"`
	Notes         []*types.Note       `json:"notes"`
	Entities      []*types.Entity     `json:"entities"`
	NoteEntities  []*types.NoteEntity `json:"note_entities"`
	Edges         []*types.Edge       `json:"edges"`
	Aggregates    []*types.Aggregate  `json:"aggregates"`
}

// BuildSnapshot assembles the full export envelope from the store.
func BuildSnapshot(ctx context.Context, store Store, exportedAt time.Time) (*Snapshot, error) {
	counts, err := store.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: counts: %w", err)
	}
	notes, err := store.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: notes: %w", err)
	}
	entities, err := store.AllEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: entities: %w", err)
	}
	noteEntities, err := store.AllNoteEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: note entities: %w", err)
	}
	edges, err := store.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: edges: %w", err)
	}
	aggregates, err := store.AllAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: aggregates: %w", err)
	}

	return &Snapshot{
		ExportVersion: exportVersion,
		ExportedAt:    exportedAt,
		Counts:        counts,
		Notes:         notes,
		Entities:      entities,
		NoteEntities:  noteEntities,
		Edges:         edges,
		Aggregates:    aggregates,
	}, nil
}

// JSON writes the full snapshot as a single indented JSON document to
// destPath.
func JSON(ctx context.Context, store Store, destPath string, exportedAt time.Time) error {
	snap, err := BuildSnapshot(ctx, store, exportedAt)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal snapshot: %w", err)
	}
	return os.WriteFile(destPath, data, 0o644)
}

// Markdown mirrors the notes/ directory tree under destDir, preserving
// each note's relative path (spec 6: "directory mirror of notes/
// preserving paths").
func Markdown(blobs Blobs, destDir string) error {
	src := filepath.Join(blobs.Root(), "notes")
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out := filepath.Join(destDir, "notes", rel)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		return os.WriteFile(out, data, 0o644)
	})
}

// Archive writes a zip file at destPath containing metadata.json (the
// JSON snapshot) plus the notes/ subtree (spec 6: "zip containing
// metadata.json + notes/ subtree").
func Archive(ctx context.Context, store Store, blobs Blobs, destPath string, exportedAt time.Time) error {
	snap, err := BuildSnapshot(ctx, store, exportedAt)
	if err != nil {
		return err
	}
	metadata, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal metadata: %w", err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("export: create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	metaWriter, err := zw.Create("metadata.json")
	if err != nil {
		return err
	}
	if _, err := metaWriter.Write(metadata); err != nil {
		return err
	}

	src := filepath.Join(blobs.Root(), "notes")
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		w, err := zw.Create(filepath.Join("notes", rel))
		if err != nil {
			return err
		}
		_, err = io.Copy(w, in)
		return err
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("export: archive notes: %w", err)
	}
	return nil
}

// Describe renders a short human-readable summary of an export's size,
// for CLI/notification output (spec's humanized counts/sizes).
func Describe(snap *Snapshot) string {
	return fmt.Sprintf("%s notes, %s entities, %s edges, %s aggregates",
		humanize.Comma(int64(snap.Counts.Notes)),
		humanize.Comma(int64(snap.Counts.Entities)),
		humanize.Comma(int64(snap.Counts.Edges)),
		humanize.Comma(int64(snap.Counts.Aggregates)),
	)
}
