// Package graphquery answers spec 4.8's graph-visualization IPC
// surface: the node/edge payload the dashboard's relationship graph
// renders, entity-type facet counts, and a single entity's detail view.
//
// Grounded on retrieval/graph_viz.py's get_graph_data/get_entity_types/
// get_entity_details, built on top of graphexpand's BFS rather than
// re-deriving a second traversal.
package graphquery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tracehq/trace/internal/retrieval/graphexpand"
	"github.com/tracehq/trace/internal/types"
)

// Store is the storage surface graph queries need.
type Store interface {
	graphexpand.Store
	AllEntities(ctx context.Context) ([]*types.Entity, error)
	AllEdges(ctx context.Context) ([]*types.Edge, error)
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	NotesForEntity(ctx context.Context, entityID string, limit int) ([]string, error)
}

// Node is one graph node, keyed by entity id.
type Node struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// Edge is one rendered graph edge.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// Graph is spec's graph.data payload.
type Graph struct {
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	NodeCount int    `json:"nodeCount"`
	EdgeCount int    `json:"edgeCount"`
}

// Options filters a graph.data call.
type Options struct {
	DaysBack    int
	EntityTypes []types.EntityType
	MinWeight   float64
	Limit       int
}

const (
	defaultDaysBack  = 30
	defaultMinWeight = 0.3
	defaultLimit     = 100
)

// Data builds the full node/edge graph over the trailing window,
// filtered to the requested entity types and minimum edge weight.
func Data(ctx context.Context, store Store, opts Options) (*Graph, error) {
	if opts.DaysBack <= 0 {
		opts.DaysBack = defaultDaysBack
	}
	if opts.MinWeight <= 0 {
		opts.MinWeight = defaultMinWeight
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	entities, err := store.AllEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphquery: data: %w", err)
	}
	allowedType := make(map[types.EntityType]bool, len(opts.EntityTypes))
	for _, t := range opts.EntityTypes {
		allowedType[t] = true
	}

	nodeByID := make(map[string]Node, len(entities))
	for _, e := range entities {
		if len(allowedType) > 0 && !allowedType[e.EntityType] {
			continue
		}
		nodeByID[e.ID] = Node{ID: e.ID, Type: string(e.EntityType), Label: e.CanonicalName}
	}

	edges, err := store.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphquery: data: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -opts.DaysBack)
	var out []Edge
	for _, e := range edges {
		if e.Weight < opts.MinWeight {
			continue
		}
		if e.EndTS != nil && e.EndTS.Before(cutoff) {
			continue
		}
		if _, ok := nodeByID[e.FromID]; !ok {
			continue
		}
		if _, ok := nodeByID[e.ToID]; !ok {
			continue
		}
		out = append(out, Edge{Source: e.FromID, Target: e.ToID, Type: string(e.EdgeType), Weight: e.Weight})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	connected := make(map[string]bool, len(out)*2)
	for _, e := range out {
		connected[e.Source] = true
		connected[e.Target] = true
	}
	nodes := make([]Node, 0, len(connected))
	for id := range connected {
		nodes = append(nodes, nodeByID[id])
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Label < nodes[j].Label })

	return &Graph{Nodes: nodes, Edges: out, NodeCount: len(nodes), EdgeCount: len(out)}, nil
}

// TypeCount is one entity-type facet row.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EntityTypes returns entity counts grouped by type, for a facet filter
// control.
func EntityTypes(ctx context.Context, store Store) ([]TypeCount, error) {
	entities, err := store.AllEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphquery: entity types: %w", err)
	}
	counts := make(map[types.EntityType]int)
	for _, e := range entities {
		counts[e.EntityType]++
	}
	out := make([]TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TypeCount{Type: string(t), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// EntityDetails assembles spec's single-entity drill-down: the entity
// itself, its directly related entities via one BFS hop, and the notes
// it was mentioned in.
type EntityDetails struct {
	Entity  *types.Entity         `json:"entity"`
	Related []graphexpand.Related `json:"related"`
	NoteIDs []string              `json:"notes"`
}

const (
	entityDetailHops      = 1
	entityDetailRelated   = 25
	entityDetailNoteLimit = 20
)

// EntityDetailsFor looks up a single entity by id, its immediate graph
// neighborhood, and the notes that mention it.
func EntityDetailsFor(ctx context.Context, store Store, entityID string) (*EntityDetails, error) {
	entity, err := store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("graphquery: entity details: %w", err)
	}

	related, err := graphexpand.Expand(ctx, store, []string{entityID}, graphexpand.Options{
		Hops:  entityDetailHops,
		Limit: entityDetailRelated,
	})
	if err != nil {
		return nil, fmt.Errorf("graphquery: entity details: %w", err)
	}

	noteIDs, err := store.NotesForEntity(ctx, entityID, entityDetailNoteLimit)
	if err != nil {
		return nil, fmt.Errorf("graphquery: entity details: %w", err)
	}

	return &EntityDetails{Entity: entity, Related: related, NoteIDs: noteIDs}, nil
}
