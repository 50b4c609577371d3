package insights

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	counts storage.Counts
	rows   []*types.Aggregate
}

func (f *fakeStore) CountAll(ctx context.Context) (storage.Counts, error) { return f.counts, nil }

func (f *fakeStore) TopKeysForRange(ctx context.Context, keyType types.AggregateKeyType, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	var out []*types.Aggregate
	for _, a := range f.rows {
		if a.KeyType == keyType {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) AggregatesForPeriod(ctx context.Context, periodType string, start time.Time) ([]*types.Aggregate, error) {
	return f.rows, nil
}

var windowStart = time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
var windowEnd = windowStart.Add(24 * time.Hour)

func TestHealthReportsWarningsAboveThresholds(t *testing.T) {
	insp := New(&fakeStore{counts: storage.Counts{Notes: 6000, Entities: 100, Screenshots: 10}})
	report, err := insp.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Status != "warnings" {
		t.Fatalf("expected warnings status, got %q", report.Status)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "note count") {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
}

func TestHealthyWhenUnderThresholds(t *testing.T) {
	insp := New(&fakeStore{counts: storage.Counts{Notes: 10, Entities: 5, Screenshots: 100}})
	report, err := insp.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Status != "healthy" || len(report.Warnings) != 0 {
		t.Fatalf("expected healthy report, got %+v", report)
	}
}

func TestDigestRendersTopKeysPerType(t *testing.T) {
	store := &fakeStore{rows: []*types.Aggregate{
		{KeyType: types.KeyApp, Key: "VS Code", ValueNum: 90, PeriodStartTS: windowStart, PeriodEndTS: windowEnd},
		{KeyType: types.KeyTopic, Key: "vector search", ValueNum: 1, PeriodStartTS: windowStart, PeriodEndTS: windowEnd},
	}}
	insp := New(store)

	digest, err := insp.Digest(context.Background(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if !strings.Contains(digest, "Top apps: VS Code") {
		t.Fatalf("expected apps line, got %q", digest)
	}
	if !strings.Contains(digest, "Top topics: vector search") {
		t.Fatalf("expected topics line, got %q", digest)
	}
	appIdx := strings.Index(digest, "Top apps")
	topicIdx := strings.Index(digest, "Top topics")
	if appIdx > topicIdx {
		t.Fatalf("expected apps before topics (key-type alphabetical order), got:\n%s", digest)
	}
}

func TestDigestReportsNoActivity(t *testing.T) {
	insp := New(&fakeStore{})
	digest, err := insp.Digest(context.Background(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if digest != "No activity recorded for this period." {
		t.Fatalf("unexpected digest: %q", digest)
	}
}
