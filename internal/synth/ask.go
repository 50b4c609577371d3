package synth

import (
	"context"
	"time"

	"github.com/tracehq/trace/internal/llm"
	"github.com/tracehq/trace/internal/retrieval/aggregates"
	"github.com/tracehq/trace/internal/retrieval/graphexpand"
	"github.com/tracehq/trace/internal/retrieval/vectorsearch"
	"github.com/tracehq/trace/internal/types"
)

// AskStore is the full storage surface Ask needs: the union of every
// retrieval-engine package's own narrow Store interface, plus entity
// lookup for routing and graph expansion seeds.
type AskStore interface {
	vectorsearch.Store
	aggregates.Store
	graphexpand.Store
	EntityFinder
}

// defaultLookback bounds an aggregates query with no time filter of
// its own — "most used app" with no "this week" qualifier still needs
// a window, so it gets spec 4.8's 30-day default.
const defaultLookback = 30 * 24 * time.Hour

const (
	semanticNoteLimit  = 10
	entityNoteLimit    = 5
	timelineNoteLimit  = 20
	aggregateRowLimit  = 10
	entitySeedLimit    = 3
	graphExpansionHops = 1
)

// Ask is spec 4.9's end-to-end query path: classify the query (4.8.1),
// gather evidence with whichever of the four 4.8 retrieval strategies
// Classify picked, then synthesize an answer from it. This is the one
// place the retrieval engine (C8) and the answer synthesizer (C9)
// actually meet a caller — everything upstream of it is IPC plumbing.
func Ask(ctx context.Context, store AskStore, embedder llm.Embedder, model llm.LanguageModel, query string, now time.Time) (*Answer, error) {
	route, filter := Classify(ctx, store, query, now)

	ev := Evidence{Query: query, Route: route, TimeFilter: filter}

	var err error
	switch route {
	case RouteAggregates:
		ev.Aggregates, err = gatherAggregates(ctx, store, query, filter, now)
	case RouteEntity:
		ev.Notes, ev.RelatedEntities, err = gatherEntity(ctx, store, query, filter)
	case RouteTimeline:
		ev.Notes, err = gatherTimeline(ctx, store, filter)
	default:
		ev.Notes, err = gatherSemantic(ctx, store, embedder, query, filter)
	}
	if err != nil {
		return nil, err
	}

	return Synthesize(ctx, model, ev)
}

func gatherAggregates(ctx context.Context, store AskStore, query string, filter *types.TimeFilter, now time.Time) ([]*types.Aggregate, error) {
	det, ok := aggregates.DetectMode(query)
	if !ok {
		return nil, nil
	}
	start, end := now.Add(-defaultLookback), now
	if filter != nil {
		start, end = filter.Start, filter.End
	}
	return aggregates.TopKeys(ctx, store, det.KeyType, start, end, aggregateRowLimit)
}

func gatherEntity(ctx context.Context, store AskStore, query string, filter *types.TimeFilter) ([]*types.Note, []graphexpand.Related, error) {
	entities, err := store.FindEntitiesByText(ctx, query, entitySeedLimit)
	if err != nil {
		return nil, nil, err
	}

	var notes []*types.Note
	seen := make(map[string]bool)
	seeds := make([]string, 0, len(entities))
	for _, e := range entities {
		seeds = append(seeds, e.ID)
		matches, err := vectorsearch.ByEntity(ctx, store, e.CanonicalName, e.EntityType, entityNoteLimit)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if seen[m.Note.ID] {
				continue
			}
			seen[m.Note.ID] = true
			notes = append(notes, m.Note)
		}
	}

	related, err := graphexpand.Expand(ctx, store, seeds, graphexpand.Options{
		Hops:       graphExpansionHops,
		TimeFilter: filter,
		Limit:      10,
	})
	if err != nil {
		return nil, nil, err
	}
	return notes, related, nil
}

func gatherTimeline(ctx context.Context, store AskStore, filter *types.TimeFilter) ([]*types.Note, error) {
	if filter == nil {
		return nil, nil
	}
	matches, err := vectorsearch.TimeRangeOnly(ctx, store, types.NoteHour, *filter, timelineNoteLimit)
	if err != nil {
		return nil, err
	}
	return matchesToNotes(matches), nil
}

func gatherSemantic(ctx context.Context, store AskStore, embedder llm.Embedder, query string, filter *types.TimeFilter) ([]*types.Note, error) {
	matches, err := vectorsearch.Search(ctx, store, embedder, types.NoteHour, query, filter, semanticNoteLimit, 0)
	if err != nil {
		return nil, err
	}
	return matchesToNotes(matches), nil
}

func matchesToNotes(matches []vectorsearch.Match) []*types.Note {
	out := make([]*types.Note, len(matches))
	for i, m := range matches {
		out[i] = m.Note
	}
	return out
}
