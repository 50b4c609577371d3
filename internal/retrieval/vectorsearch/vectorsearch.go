// Package vectorsearch implements the KNN-backed search modes of spec
// section 4.8.2: embedding search over notes, with an optional
// time-filter post-pass, plus the by-entity, by-category, and
// time-range-only variants that share the same result shape.
//
// Scoring is grounded on internal/storage/vec.go's KNN, which returns a
// cosine *similarity*. This package converts that into the
// distance-derived score the retrieval layer wants: score =
// 1/(1+distance), distance = 1-similarity.
package vectorsearch

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/tracehq/trace/internal/llm"
	"github.com/tracehq/trace/internal/storage"
	"github.com/tracehq/trace/internal/types"
)

// Store is the subset of storage.DB this package depends on.
type Store interface {
	KNN(query []float64, k int) ([]storage.ScoredNote, error)
	GetNote(ctx context.Context, id string) (*types.Note, error)
	NotesForEntity(ctx context.Context, entityID string, limit int) ([]string, error)
	FindEntitiesByText(ctx context.Context, text string, maxResults int) ([]*types.Entity, error)
	SearchNotesFTS(ctx context.Context, query string, limit int) ([]string, error)
	NotesBetween(ctx context.Context, noteType types.NoteType, start, end time.Time) ([]*types.Note, error)
}

// Match is one scored note returned by any search mode in this package.
type Match struct {
	Note  *types.Note
	Score float64
}

// recallMultiplier is how far the engine over-fetches when a time
// filter is present, so post-filtering doesn't starve the result set
// (spec 4.8.2: "fetches max(limit, limit*5)").
const recallMultiplier = 5

// Search runs an embedding KNN search for query, optionally restricted
// to filter and truncated to limit results scoring at least minScore.
func Search(ctx context.Context, store Store, embedder llm.Embedder, noteType types.NoteType, query string, filter *types.TimeFilter, limit int, minScore float64) ([]Match, error) {
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	fetchK := limit
	if filter != nil {
		fetchK = limit * recallMultiplier
	}

	scored, err := store.KNN(vec, fetchK)
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, s := range scored {
		note, err := store.GetNote(ctx, s.NoteID)
		if err != nil {
			continue
		}
		if note.NoteType != noteType {
			continue
		}
		if filter != nil && !withinFilter(note, filter) {
			continue
		}
		score := similarityToDistanceScore(s.Score)
		if score < minScore {
			continue
		}
		out = append(out, Match{Note: note, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// similarityToDistanceScore converts KNN's cosine similarity into the
// cosine-distance-derived score spec 4.8.2 specifies.
func similarityToDistanceScore(cosineSim float64) float64 {
	distance := 1 - cosineSim
	return 1 / (1 + distance)
}

func withinFilter(n *types.Note, f *types.TimeFilter) bool {
	if !f.Start.IsZero() && n.StartTS.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !n.EndTS.Before(f.End) {
		return false
	}
	return true
}

// ByEntity returns notes linked to any entity whose canonical name or
// alias matches query, ordered by link strength desc, optionally
// restricted to one entity type.
func ByEntity(ctx context.Context, store Store, query string, entityType types.EntityType, limit int) ([]Match, error) {
	entities, err := store.FindEntitiesByText(ctx, query, 10)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []Match
	for _, e := range entities {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		ids, err := store.NotesForEntity(ctx, e.ID, limit)
		if err != nil {
			continue
		}
		for i, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			note, err := store.GetNote(ctx, id)
			if err != nil {
				continue
			}
			// Strength-ordering from NotesForEntity is preserved as a
			// descending pseudo-score so results from multiple matched
			// entities can still be merged and truncated consistently.
			out = append(out, Match{Note: note, Score: 1 - float64(i)*0.001})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type notePayload struct {
	Categories []string `json:"categories"`
}

// ByCategory runs a full-text search over note payloads for category
// (a LIKE scan when FTS5 is unavailable), then re-verifies each
// candidate by actually parsing its categories list (a text match can
// false-positive inside unrelated fields).
func ByCategory(ctx context.Context, store Store, category string, limit int) ([]Match, error) {
	ids, err := store.SearchNotesFTS(ctx, category, limit*recallMultiplier)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(category))
	var out []Match
	for _, id := range ids {
		note, err := store.GetNote(ctx, id)
		if err != nil {
			continue
		}
		var payload notePayload
		if err := json.Unmarshal([]byte(note.JSONPayload), &payload); err != nil {
			continue
		}
		matched := false
		for _, c := range payload.Categories {
			if strings.ToLower(c) == needle {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, Match{Note: note, Score: 1})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// TimeRangeOnly returns every note of noteType inside the filter
// window with no embedding or scoring involved.
func TimeRangeOnly(ctx context.Context, store Store, noteType types.NoteType, filter types.TimeFilter, limit int) ([]Match, error) {
	notes, err := store.NotesBetween(ctx, noteType, filter.Start, filter.End)
	if err != nil {
		return nil, err
	}
	var out []Match
	for _, n := range notes {
		out = append(out, Match{Note: n, Score: 1})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
