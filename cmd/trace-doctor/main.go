// Command trace-doctor inspects and manages a Trace state directory:
// health/digest reporting over internal/insights, blocklist CRUD over
// internal/blocklist, and schema verification plus vector-index repair
// over internal/storage.
//
// Grounded on cmd/bud-state/main.go's os.Args[1]-switch-plus-
// flag.NewFlagSet-per-subcommand dispatch: a small top-level switch
// routes to one handleX function per subcommand, each parsing its own
// flags from the remaining arguments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tracehq/trace/internal/blocklist"
	"github.com/tracehq/trace/internal/insights"
	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

func main() {
	statePath := os.Getenv("TRACE_STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	db, err := storage.Open(statePath)
	if err != nil {
		log.Fatalf("trace-doctor: open state: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	insp := insights.New(db)

	switch os.Args[1] {
	case "health":
		handleHealth(ctx, insp)
	case "digest":
		handleDigest(ctx, insp, os.Args[2:])
	case "blocklist":
		handleBlocklist(ctx, db, os.Args[2:])
	case "verify":
		handleVerify(ctx, db, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "trace-doctor: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`trace-doctor - inspect and manage Trace's state

Usage: trace-doctor <command> [options]

Commands:
  health                         Report on accumulated state and suggest maintenance
  digest -since <dur>            Render a text usage digest for the trailing window
  blocklist list                 List blocklist entries
  blocklist add <app|domain> <pattern> [display name]
  blocklist remove <id>
  verify [-repair-index]         Check for missing/extra schema tables, row counts
  help                           Show this message

Environment:
  TRACE_STATE_PATH   State directory (default: "state")`)
}

func handleHealth(ctx context.Context, insp *insights.Inspector) {
	report, err := insp.Health(ctx)
	if err != nil {
		log.Fatalf("trace-doctor: health: %v", err)
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(data))
}

func handleDigest(ctx context.Context, insp *insights.Inspector, args []string) {
	fs := flag.NewFlagSet("digest", flag.ExitOnError)
	since := fs.Duration("since", 24*time.Hour, "how far back to summarize")
	fs.Parse(args)

	end := time.Now()
	start := end.Add(-*since)
	text, err := insp.Digest(ctx, start, end)
	if err != nil {
		log.Fatalf("trace-doctor: digest: %v", err)
	}
	fmt.Println(text)
}

func handleVerify(ctx context.Context, db *storage.DB, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	repairIndex := fs.Bool("repair-index", false, "rebuild the vector ANN index from stored embeddings")
	fs.Parse(args)

	if *repairIndex {
		if err := db.RepairVecIndex(); err != nil {
			log.Fatalf("trace-doctor: repair vector index: %v", err)
		}
		fmt.Println("vector index repaired")
	}

	report, err := db.Verify(ctx)
	if err != nil {
		log.Fatalf("trace-doctor: verify: %v", err)
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(data))
	if !report.OK {
		os.Exit(1)
	}
}

func handleBlocklist(ctx context.Context, db *storage.DB, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "trace-doctor: blocklist requires a subcommand (list, add, remove)")
		os.Exit(1)
	}

	list, err := blocklist.New(ctx, db)
	if err != nil {
		log.Fatalf("trace-doctor: load blocklist: %v", err)
	}

	switch args[0] {
	case "list":
		entries, err := db.ListBlocklistEntries(ctx)
		if err != nil {
			log.Fatalf("trace-doctor: list blocklist: %v", err)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\t%s\tenabled=%v\n", e.ID, e.BlockType, e.Pattern, e.DisplayName, e.Enabled)
		}
	case "add":
		fs := flag.NewFlagSet("blocklist add", flag.ExitOnError)
		fs.Parse(args[1:])
		rest := fs.Args()
		if len(rest) < 2 {
			log.Fatal("trace-doctor: blocklist add requires <app|domain> <pattern> [display name]")
		}
		blockType := types.BlockType(rest[0])
		pattern := rest[1]
		display := ""
		if len(rest) > 2 {
			display = rest[2]
		}
		e, err := list.Add(ctx, blockType, pattern, display)
		if err != nil {
			log.Fatalf("trace-doctor: add blocklist entry: %v", err)
		}
		fmt.Printf("added %s\n", e.ID)
	case "remove":
		fs := flag.NewFlagSet("blocklist remove", flag.ExitOnError)
		fs.Parse(args[1:])
		rest := fs.Args()
		if len(rest) < 1 {
			log.Fatal("trace-doctor: blocklist remove requires <id>")
		}
		if err := list.Remove(ctx, rest[0]); err != nil {
			log.Fatalf("trace-doctor: remove blocklist entry: %v", err)
		}
		fmt.Println("removed")
	default:
		fmt.Fprintf(os.Stderr, "trace-doctor: unknown blocklist subcommand %q\n", args[0])
		os.Exit(1)
	}
}
