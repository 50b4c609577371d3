// Package graphexpand implements spec 4.8.4's graph expansion: a
// breadth-first walk over Edges starting from a seed set of entities,
// weighting each discovered entity by the edge's own weight, its
// edge-type multiplier, and a per-hop decay.
//
// Grounded on internal/storage_src/activation.go's hop-decay shape
// (activation spreads outward from seed nodes, weakening with each
// hop) generalized from that file's iterative decay/inhibition/sigmoid
// transform down to spec 4.8.4's single-pass formula:
//
//	weight = edge.Weight * EDGE_WEIGHT[edge.EdgeType] * 1/(hop+1)
package graphexpand

import (
	"context"
	"sort"

	"github.com/tracehq/trace/internal/types"
)

// Store is the subset of storage.DB this package depends on.
type Store interface {
	NeighborsOf(ctx context.Context, entityID string) ([]*types.Edge, error)
}

// Direction records which end of the edge the seed entity sat on.
type Direction string

const (
	DirOutgoing Direction = "outgoing"
	DirIncoming Direction = "incoming"
)

// Related is one entity discovered during expansion.
type Related struct {
	EntityID  string
	EdgeType  types.EdgeType
	Direction Direction
	Weight    float64
	Hop       int
}

// Options filters the expansion.
type Options struct {
	Hops       int // default 1 if zero
	EdgeTypes  []types.EdgeType
	MinWeight  float64
	TimeFilter *types.TimeFilter
	Limit      int // 0 means unbounded
}

// Expand performs a BFS of Options.Hops hops from seeds, returning
// discovered entities sorted by weight desc and capped at Options.Limit.
func Expand(ctx context.Context, store Store, seeds []string, opts Options) ([]Related, error) {
	hops := opts.Hops
	if hops <= 0 {
		hops = 1
	}

	allowedTypes := make(map[types.EdgeType]bool, len(opts.EdgeTypes))
	for _, t := range opts.EdgeTypes {
		allowedTypes[t] = true
	}

	visited := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		visited[s] = true
	}

	best := make(map[string]Related)
	frontier := append([]string{}, seeds...)

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		var next []string
		for _, entityID := range frontier {
			edges, err := store.NeighborsOf(ctx, entityID)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if len(allowedTypes) > 0 && !allowedTypes[e.EdgeType] {
					continue
				}
				if opts.TimeFilter != nil && !edgeOverlaps(e, opts.TimeFilter) {
					continue
				}

				otherID, dir := otherEnd(e, entityID)
				if otherID == "" || visited[otherID] {
					continue
				}

				w := e.Weight * types.EdgeWeights[e.EdgeType] * (1 / float64(hop+1))
				if w < opts.MinWeight {
					continue
				}

				if existing, ok := best[otherID]; !ok || w > existing.Weight {
					best[otherID] = Related{
						EntityID:  otherID,
						EdgeType:  e.EdgeType,
						Direction: dir,
						Weight:    w,
						Hop:       hop,
					}
				}
				next = append(next, otherID)
			}
		}
		for _, id := range next {
			visited[id] = true
		}
		frontier = next
	}

	out := make([]Related, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// otherEnd returns the id on the opposite side of e from entityID, and
// which direction entityID was looking outward in.
func otherEnd(e *types.Edge, entityID string) (string, Direction) {
	switch entityID {
	case e.FromID:
		return e.ToID, DirOutgoing
	case e.ToID:
		return e.FromID, DirIncoming
	default:
		return "", ""
	}
}

// edgeOverlaps reports whether e's [StartTS, EndTS] window overlaps f,
// treating a nil bound on either side as open-ended.
func edgeOverlaps(e *types.Edge, f *types.TimeFilter) bool {
	if e.StartTS == nil && e.EndTS == nil {
		return true
	}
	if !f.Start.IsZero() && e.EndTS != nil && e.EndTS.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.StartTS != nil && e.StartTS.After(f.End) {
		return false
	}
	return true
}
