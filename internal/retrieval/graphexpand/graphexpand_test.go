package graphexpand

import (
	"context"
	"testing"

	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	neighbors map[string][]*types.Edge
}

func (f *fakeStore) NeighborsOf(ctx context.Context, entityID string) ([]*types.Edge, error) {
	return f.neighbors[entityID], nil
}

func TestExpandOneHopWeightsByEdgeTypeAndWeight(t *testing.T) {
	store := &fakeStore{
		neighbors: map[string][]*types.Edge{
			"seed": {
				{FromID: "seed", ToID: "vscode", EdgeType: types.EdgeUsedApp, Weight: 2.0},
			},
			"vscode": {
				{FromID: "seed", ToID: "vscode", EdgeType: types.EdgeUsedApp, Weight: 2.0},
			},
		},
	}
	out, err := Expand(context.Background(), store, []string{"seed"}, Options{Hops: 1})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 related entity, got %d", len(out))
	}
	got := out[0]
	if got.EntityID != "vscode" || got.Direction != DirOutgoing {
		t.Fatalf("unexpected result: %+v", got)
	}
	want := 2.0 * types.EdgeWeights[types.EdgeUsedApp] * 1.0
	if got.Weight != want {
		t.Fatalf("expected weight %v, got %v", want, got.Weight)
	}
}

func TestExpandTwoHopsDecaysSecondHop(t *testing.T) {
	store := &fakeStore{
		neighbors: map[string][]*types.Edge{
			"seed": {
				{FromID: "seed", ToID: "a", EdgeType: types.EdgeUsedApp, Weight: 1.0},
			},
			"a": {
				{FromID: "seed", ToID: "a", EdgeType: types.EdgeUsedApp, Weight: 1.0},
				{FromID: "a", ToID: "b", EdgeType: types.EdgeCoOccurredWith, Weight: 1.0},
			},
			"b": {
				{FromID: "a", ToID: "b", EdgeType: types.EdgeCoOccurredWith, Weight: 1.0},
			},
		},
	}
	out, err := Expand(context.Background(), store, []string{"seed"}, Options{Hops: 2})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	var bWeight float64
	found := false
	for _, r := range out {
		if r.EntityID == "b" {
			bWeight = r.Weight
			found = true
		}
	}
	if !found {
		t.Fatalf("expected entity b discovered at hop 2, got %+v", out)
	}
	want := 1.0 * types.EdgeWeights[types.EdgeCoOccurredWith] * (1.0 / 2)
	if bWeight != want {
		t.Fatalf("expected hop-2 decayed weight %v, got %v", want, bWeight)
	}
}

func TestExpandFiltersByEdgeTypeAndMinWeight(t *testing.T) {
	store := &fakeStore{
		neighbors: map[string][]*types.Edge{
			"seed": {
				{FromID: "seed", ToID: "low", EdgeType: types.EdgeWatched, Weight: 0.01},
				{FromID: "seed", ToID: "app", EdgeType: types.EdgeUsedApp, Weight: 2.0},
				{FromID: "seed", ToID: "topic", EdgeType: types.EdgeAboutTopic, Weight: 2.0},
			},
		},
	}
	out, err := Expand(context.Background(), store, []string{"seed"}, Options{
		Hops:      1,
		EdgeTypes: []types.EdgeType{types.EdgeUsedApp, types.EdgeAboutTopic},
		MinWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results after type/weight filtering, got %d: %+v", len(out), out)
	}
	for _, r := range out {
		if r.EntityID == "low" {
			t.Fatalf("low-weight watched edge should have been filtered out")
		}
	}
}

func TestExpandRespectsLimit(t *testing.T) {
	store := &fakeStore{
		neighbors: map[string][]*types.Edge{
			"seed": {
				{FromID: "seed", ToID: "a", EdgeType: types.EdgeUsedApp, Weight: 3.0},
				{FromID: "seed", ToID: "b", EdgeType: types.EdgeUsedApp, Weight: 2.0},
				{FromID: "seed", ToID: "c", EdgeType: types.EdgeUsedApp, Weight: 1.0},
			},
		},
	}
	out, err := Expand(context.Background(), store, []string{"seed"}, Options{Hops: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(out))
	}
	if out[0].EntityID != "a" || out[1].EntityID != "b" {
		t.Fatalf("expected results sorted by weight desc, got %+v", out)
	}
}
