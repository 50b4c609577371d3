// Package synth is the Answer Synthesizer of spec 4.9: it routes a
// natural-language query to one of four evidence-gathering strategies,
// assembles that evidence, and renders a system+user prompt pair for
// an LLM to answer from.
//
// Routing is grounded on internal/reflex/engine.go's Process loop
// (match candidate patterns in order, classify, dispatch), generalized
// from "classify an incoming chat message into a reflex" to "classify
// a query into aggregates/entity/timeline/semantic".
package synth

import (
	"context"
	"time"

	"github.com/tracehq/trace/internal/retrieval/aggregates"
	"github.com/tracehq/trace/internal/retrieval/timefilter"
	"github.com/tracehq/trace/internal/types"
)

// Route is one of the four query-handling strategies spec 4.9 names.
type Route string

const (
	RouteAggregates Route = "aggregates"
	RouteEntity     Route = "entity"
	RouteTimeline   Route = "timeline"
	RouteSemantic   Route = "semantic"
)

// EntityFinder is the narrow entity-lookup surface routing needs.
type EntityFinder interface {
	FindEntitiesByText(ctx context.Context, text string, maxResults int) ([]*types.Entity, error)
}

// Classify determines which route a query should take, trying each
// candidate classification in priority order and falling through to
// semantic search when nothing more specific matches:
//
//  1. aggregates — the query pattern-matches a "most/top/favorite" question.
//  2. entity — the query names an entity already known to the store.
//  3. timeline — the query carries a time filter but no specific entity.
//  4. semantic — the default: free-text vector search.
func Classify(ctx context.Context, store EntityFinder, query string, now time.Time) (Route, *types.TimeFilter) {
	filter, hasFilter := timefilter.Parse(query, now)
	var filterPtr *types.TimeFilter
	if hasFilter {
		filterPtr = &filter
	}

	if _, ok := aggregates.DetectMode(query); ok {
		return RouteAggregates, filterPtr
	}

	if store != nil {
		if entities, err := store.FindEntitiesByText(ctx, query, 1); err == nil && len(entities) > 0 {
			return RouteEntity, filterPtr
		}
	}

	if hasFilter {
		return RouteTimeline, filterPtr
	}

	return RouteSemantic, filterPtr
}
