// Package entityextract implements spec 4.6.2: pulling every entity
// mention out of a validated HourlySummary and upserting it, find-or-
// create by (type, canonical_name), into the entity table with a
// NoteEntity link.
//
// Canonical-name normalization and the find-or-create-by-type-and-name
// pattern are a direct generalization of internal/storage/entities.go's
// own FindOrCreateEntity/alias-merge logic (itself grounded on
// internal/graph/entities.go's AddEntity/FindEntityByName), reused here
// verbatim rather than reinvented: this package only normalizes the
// surface form and decides which entity type each part of the payload
// maps to, then defers the actual upsert and alias bookkeeping to the
// storage layer.
package entityextract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/tracehq/trace/internal/summarizer/schema"
	"github.com/tracehq/trace/internal/types"
)

// Store is the narrow entity-upsert surface extraction needs.
type Store interface {
	FindOrCreateEntity(ctx context.Context, entityType types.EntityType, canonicalName string, aliases []string) (*types.Entity, error)
	LinkNoteEntity(ctx context.Context, noteID, entityID string, strength float64, context string) error
}

// defaultConfidence is used for surface forms that don't carry their
// own confidence score (topics, media, documents, websites) — only
// the model's declared `entities` list reports one directly.
const defaultConfidence = 0.6

// Extract upserts every entity mention in h against noteID: declared
// entities at their reported confidence, then topics, media artists
// and tracks, watched videos, documents, and websites at
// defaultConfidence.
func Extract(ctx context.Context, store Store, noteID string, h *schema.HourlySummary) error {
	for _, e := range h.Entities {
		confidence := e.Confidence
		if types.EntityType(e.Type) == types.EntityPerson {
			confidence = corroboratePerson(e.Context, confidence)
		}
		if err := upsert(ctx, store, noteID, types.EntityType(e.Type), e.Name, confidence, e.Context); err != nil {
			return fmt.Errorf("entityextract: declared entity %q: %w", e.Name, err)
		}
	}

	for _, topic := range h.Topics {
		if err := upsert(ctx, store, noteID, types.EntityTopic, topic, defaultConfidence, ""); err != nil {
			return fmt.Errorf("entityextract: topic %q: %w", topic, err)
		}
	}

	for _, t := range h.Media.Listening {
		if err := upsert(ctx, store, noteID, types.EntityArtist, t.Artist, defaultConfidence, ""); err != nil {
			return fmt.Errorf("entityextract: artist %q: %w", t.Artist, err)
		}
		trackName := fmt.Sprintf("%s - %s", t.Artist, t.Track)
		if err := upsert(ctx, store, noteID, types.EntityTrack, trackName, defaultConfidence, ""); err != nil {
			return fmt.Errorf("entityextract: track %q: %w", trackName, err)
		}
	}

	for _, w := range h.Media.Watching {
		if err := upsert(ctx, store, noteID, types.EntityVideo, w, defaultConfidence, ""); err != nil {
			return fmt.Errorf("entityextract: watched %q: %w", w, err)
		}
	}

	for _, d := range h.Documents {
		if err := upsert(ctx, store, noteID, types.EntityDocument, d, defaultConfidence, ""); err != nil {
			return fmt.Errorf("entityextract: document %q: %w", d, err)
		}
	}

	for _, w := range h.Websites {
		if err := upsert(ctx, store, noteID, types.EntityDomain, w, defaultConfidence, ""); err != nil {
			return fmt.Errorf("entityextract: website %q: %w", w, err)
		}
	}

	return nil
}

func upsert(ctx context.Context, store Store, noteID string, entityType types.EntityType, surface string, confidence float64, context string) error {
	canonical := Normalize(surface)
	if canonical == "" {
		return nil
	}

	var aliases []string
	if surface != canonical {
		aliases = []string{surface}
	}

	ent, err := store.FindOrCreateEntity(ctx, entityType, canonical, aliases)
	if err != nil {
		return err
	}
	return store.LinkNoteEntity(ctx, noteID, ent.ID, confidence, context)
}

// corroboratePerson runs an independent NER pass over a declared
// person entity's context sentence and raises confidence to match when
// prose agrees and scores it higher than the model did. Grounded on
// memory-service/pkg/extract/prose.go's bare prose.NewDocument/
// doc.Entities() usage — the only prose call this corpus exercises
// directly, so this stays narrow rather than guessing at the rest of
// its API surface.
func corroboratePerson(context string, confidence float64) float64 {
	if context == "" {
		return confidence
	}
	doc, err := prose.NewDocument(context)
	if err != nil {
		return confidence
	}
	for _, ent := range doc.Entities() {
		if strings.EqualFold(ent.Label, "PERSON") && ent.Confidence > confidence {
			return ent.Confidence
		}
	}
	return confidence
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize canonicalizes a surface form: lowercase, collapse internal
// whitespace runs to a single space, trim leading/trailing characters
// that aren't letters, digits, or underscore.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return strings.TrimFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}
