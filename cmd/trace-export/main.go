// Command trace-export writes out one of spec 6's three export
// formats from an existing state directory: a JSON snapshot, a
// Markdown directory mirror, or a zip archive.
//
// Grounded on cmd/bud-state/main.go's flag.NewFlagSet-per-subcommand
// dispatch shape, narrowed to a single required "format" selection
// since export has no sub-resources to browse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tracehq/trace/internal/export"
	"github.com/tracehq/trace/internal/storage"
)

func main() {
	statePath := flag.String("state", envOrDefault("TRACE_STATE_PATH", "state"), "path to the state directory")
	format := flag.String("format", "json", "export format: json, markdown, or zip")
	out := flag.String("out", "", "output path (file for json/zip, directory for markdown)")
	flag.Parse()

	if *out == "" {
		log.Fatal("trace-export: -out is required")
	}

	db, err := storage.Open(*statePath)
	if err != nil {
		log.Fatalf("trace-export: open state: %v", err)
	}
	defer db.Close()

	blobs, err := storage.NewFileBlobs(*statePath)
	if err != nil {
		log.Fatalf("trace-export: open blobs: %v", err)
	}

	ctx := context.Background()
	now := time.Now()

	switch *format {
	case "json":
		err = export.JSON(ctx, db, *out, now)
	case "markdown":
		err = export.Markdown(blobs, *out)
	case "zip":
		err = export.Archive(ctx, db, blobs, *out, now)
	default:
		fmt.Fprintf(os.Stderr, "trace-export: unknown format %q (want json, markdown, or zip)\n", *format)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("trace-export: %v", err)
	}

	snap, err := export.BuildSnapshot(ctx, db, now)
	if err != nil {
		log.Fatalf("trace-export: describe: %v", err)
	}
	fmt.Printf("wrote %s export to %s: %s\n", *format, *out, export.Describe(snap))
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
