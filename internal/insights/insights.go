// Package insights implements spec 4.11's usage analytics: a read-only
// reporting layer over storage counts and internal/retrieval/aggregates,
// surfaced through the IPC `digest.*`/`dashboard.*` methods (§4.10) and
// scheduler-triggered digest jobs.
//
// Grounded on internal/state/inspect.go's Inspector: a thin struct
// wrapping a store handle with Summary/Health-style read-only methods,
// generalized here from "conversational memory component counts" (traces,
// percepts, threads) to "note/entity/aggregate counts" and from a fixed
// trace/percept/activity-log health check to thresholds over notes,
// entities, and screenshots.
package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tracehq/trace/internal/retrieval/aggregates"
	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

// Store is the read surface insights needs.
type Store interface {
	CountAll(ctx context.Context) (storage.Counts, error)
	aggregates.Store
}

// Inspector reports on accumulated state, grounded on
// internal/state/inspect.go's Inspector.
type Inspector struct {
	store Store
}

// New returns an Inspector over store.
func New(store Store) *Inspector {
	return &Inspector{store: store}
}

// HealthReport mirrors internal/state/inspect.go's HealthReport shape:
// a status plus warnings and recommendations.
type HealthReport struct {
	Status          string   `json:"status"` // "healthy", "warnings"
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// thresholds the teacher's Health used fixed numbers for trace/percept/
// activity-log counts; these are the equivalent bounds for a capture
// store, chosen as "large enough that retention/pruning is worth a
// nudge" rather than anything load-bearing.
const (
	largeNoteCount       = 5000
	largeEntityCount     = 2000
	largeScreenshotCount = 200000
)

// Health reports on whether accumulated state warrants pruning,
// generalizing internal/state/inspect.go's Health (which warned on
// high trace/percept/activity counts) to notes/entities/screenshots.
func (i *Inspector) Health(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Status: "healthy"}

	counts, err := i.store.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("insights: health: %w", err)
	}

	if counts.Notes > largeNoteCount {
		report.Warnings = append(report.Warnings, fmt.Sprintf("high note count: %s", humanize.Comma(int64(counts.Notes))))
		report.Recommendations = append(report.Recommendations, "consider exporting and archiving older notes")
	}
	if counts.Entities > largeEntityCount {
		report.Warnings = append(report.Warnings, fmt.Sprintf("high entity count: %s", humanize.Comma(int64(counts.Entities))))
		report.Recommendations = append(report.Recommendations, "check entity canonicalization; a normalization bug can fragment entities")
	}
	if counts.Screenshots > largeScreenshotCount {
		report.Warnings = append(report.Warnings, fmt.Sprintf("large screenshot store: %s", humanize.Comma(int64(counts.Screenshots))))
		report.Recommendations = append(report.Recommendations, "verify the retention job is running")
	}

	if len(report.Warnings) > 0 {
		report.Status = "warnings"
	}
	return report, nil
}

// Digest renders spec's `digest.*` IPC method: a short human-readable
// summary of the top usage rows across [start, end), one line per key
// type present, ordered alphabetically by key-type name.
func (i *Inspector) Digest(ctx context.Context, start, end time.Time) (string, error) {
	summary, err := aggregates.Summarize(ctx, i.store, start, end)
	if err != nil {
		return "", fmt.Errorf("insights: digest: %w", err)
	}
	if len(summary) == 0 {
		return "No activity recorded for this period.", nil
	}

	var sb strings.Builder
	for _, kt := range orderedKeyTypes(summary) {
		rows := summary[kt]
		names := make([]string, len(rows))
		for idx, a := range rows {
			names[idx] = a.Key
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", digestLabel(kt), strings.Join(names, ", ")))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func orderedKeyTypes(summary aggregates.PeriodSummary) []types.AggregateKeyType {
	out := make([]types.AggregateKeyType, 0, len(summary))
	for kt := range summary {
		out = append(out, kt)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func digestLabel(kt types.AggregateKeyType) string {
	switch kt {
	case types.KeyApp:
		return "Top apps"
	case types.KeyDomain:
		return "Top sites"
	case types.KeyTopic:
		return "Top topics"
	case types.KeyMedia:
		return "Media"
	case types.KeyArtist:
		return "Top artists"
	case types.KeyTrack:
		return "Top tracks"
	case types.KeyCategory:
		return "Top categories"
	case types.KeyCoActivity:
		return "Co-activities"
	case types.KeyEntity:
		return "Top entities"
	default:
		return string(kt)
	}
}
