package aggregates

import (
	"context"
	"testing"
	"time"

	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	byKeyType map[types.AggregateKeyType][]*types.Aggregate
}

func (f *fakeStore) TopKeysForRange(ctx context.Context, keyType types.AggregateKeyType, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	rows := f.byKeyType[keyType]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeStore) AggregatesForPeriod(ctx context.Context, periodType string, start time.Time) ([]*types.Aggregate, error) {
	return nil, nil
}

func TestTopAppsDelegatesToAppKeyType(t *testing.T) {
	store := &fakeStore{byKeyType: map[types.AggregateKeyType][]*types.Aggregate{
		types.KeyApp: {{Key: "vscode", ValueNum: 120}},
	}}
	rows, err := TopApps(context.Background(), store, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("TopApps: %v", err)
	}
	if len(rows) != 1 || rows[0].Key != "vscode" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestGetTimeForKeyFindsMatchingKey(t *testing.T) {
	store := &fakeStore{byKeyType: map[types.AggregateKeyType][]*types.Aggregate{
		types.KeyApp: {
			{Key: "vscode", ValueNum: 90},
			{Key: "chrome", ValueNum: 45},
		},
	}}
	d, err := GetTimeForKey(context.Background(), store, types.KeyApp, "chrome", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetTimeForKey: %v", err)
	}
	if d != 45*time.Minute {
		t.Fatalf("expected 45m, got %v", d)
	}
}

func TestGetTimeForKeyMissingKeyReturnsZero(t *testing.T) {
	store := &fakeStore{byKeyType: map[types.AggregateKeyType][]*types.Aggregate{}}
	d, err := GetTimeForKey(context.Background(), store, types.KeyApp, "nope", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetTimeForKey: %v", err)
	}
	if d != 0 {
		t.Fatalf("expected zero duration, got %v", d)
	}
}

func TestSummarizeSkipsEmptyKeyTypes(t *testing.T) {
	store := &fakeStore{byKeyType: map[types.AggregateKeyType][]*types.Aggregate{
		types.KeyApp:   {{Key: "vscode", ValueNum: 10}},
		types.KeyTopic: {{Key: "golang", ValueNum: 5}},
	}}
	summary, err := Summarize(context.Background(), store, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if _, ok := summary[types.KeyApp]; !ok {
		t.Fatalf("expected KeyApp present in summary")
	}
	if _, ok := summary[types.KeyDomain]; ok {
		t.Fatalf("expected KeyDomain absent (no rows)")
	}
}

func TestDetectModeRecognizesTopAppsQuery(t *testing.T) {
	d, ok := DetectMode("what are my most used apps this week")
	if !ok {
		t.Fatalf("expected a match")
	}
	if d.KeyType != types.KeyApp {
		t.Fatalf("expected KeyApp, got %v", d.KeyType)
	}
}

func TestDetectModeRecognizesFavoriteArtist(t *testing.T) {
	d, ok := DetectMode("who is my favorite artist")
	if !ok {
		t.Fatalf("expected a match")
	}
	if d.KeyType != types.KeyArtist {
		t.Fatalf("expected KeyArtist, got %v", d.KeyType)
	}
}

func TestDetectModeNoMatchForUnrelatedQuery(t *testing.T) {
	if _, ok := DetectMode("what did I do yesterday"); ok {
		t.Fatalf("expected no match for a non-aggregate query")
	}
}
