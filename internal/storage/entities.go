package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/tracehq/trace/internal/types"
)

// cachedEntity is the entity shape held in the in-memory match cache.
type cachedEntity = types.Entity

// matchPattern is a pre-compiled word-boundary regex for one name or
// alias of a cached entity; nil when the name was too short to compile
// into a useful pattern.
type matchPattern = *regexp.Regexp

// FindOrCreateEntity looks up an entity by (entityType, canonicalName)
// and creates it if missing. The caller-supplied aliases are merged in
// either way.
func (d *DB) FindOrCreateEntity(ctx context.Context, entityType types.EntityType, canonicalName string, aliases []string) (*types.Entity, error) {
	e, err := d.getEntityByTypeName(ctx, entityType, canonicalName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err == nil {
		for _, a := range aliases {
			if addErr := d.AddEntityAlias(ctx, e.ID, a); addErr != nil {
				return nil, addErr
			}
		}
		e.Aliases, err = d.GetEntityAliases(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		return e, nil
	}

	id := "ent_" + string(entityType) + "_" + slugify(canonicalName)
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, canonical_name) VALUES (?, ?, ?)
	`, id, entityType, canonicalName)
	if err != nil {
		return nil, err
	}
	for _, a := range aliases {
		if addErr := d.AddEntityAlias(ctx, id, a); addErr != nil {
			return nil, addErr
		}
	}
	d.invalidateEntityCache()

	return &types.Entity{ID: id, EntityType: entityType, CanonicalName: canonicalName, Aliases: aliases}, nil
}

func (d *DB) getEntityByTypeName(ctx context.Context, entityType types.EntityType, canonicalName string) (*types.Entity, error) {
	e := &types.Entity{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, entity_type, canonical_name FROM entities WHERE entity_type = ? AND canonical_name = ?
	`, entityType, canonicalName).Scan(&e.ID, &e.EntityType, &e.CanonicalName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetEntity fetches an entity by id, aliases included.
func (d *DB) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	e := &types.Entity{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, entity_type, canonical_name FROM entities WHERE id = ?
	`, id).Scan(&e.ID, &e.EntityType, &e.CanonicalName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Aliases, err = d.GetEntityAliases(ctx, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// AddEntityAlias records an alias, ignoring duplicates.
func (d *DB) AddEntityAlias(ctx context.Context, entityID, alias string) error {
	if alias == "" {
		return nil
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entity_aliases (entity_id, alias) VALUES (?, ?)
	`, entityID, alias)
	if err == nil {
		d.invalidateEntityCache()
	}
	return err
}

// GetEntityAliases returns all known aliases for an entity.
func (d *DB) GetEntityAliases(ctx context.Context, entityID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT alias FROM entity_aliases WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// LinkNoteEntity records that a note mentions an entity with the given
// strength, upserting strength on conflict rather than duplicating.
func (d *DB) LinkNoteEntity(ctx context.Context, noteID, entityID string, strength float64, context_ string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO note_entities (note_id, entity_id, strength, context) VALUES (?, ?, ?, ?)
		ON CONFLICT(note_id, entity_id) DO UPDATE SET strength = MAX(note_entities.strength, excluded.strength)
	`, noteID, entityID, strength, context_)
	return err
}

// NotesForEntity returns the ids of notes linked to entityID, most
// strongly-associated first.
func (d *DB) NotesForEntity(ctx context.Context, entityID string, limit int) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT note_id FROM note_entities
		WHERE entity_id = ?
		ORDER BY strength DESC
		LIMIT ?
	`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// invalidateEntityCache marks the word-boundary match cache stale; it
// is rebuilt lazily on the next FindEntitiesByText call.
func (d *DB) invalidateEntityCache() {
	d.entityCacheMu.Lock()
	d.entityCache = nil
	d.entityCacheMu.Unlock()
}

// getEntityCache returns the cached entities and their compiled
// name/alias patterns, rebuilding from the database if stale.
func (d *DB) getEntityCache(ctx context.Context) ([]entityCacheEntry, error) {
	d.entityCacheMu.RLock()
	cache := d.entityCache
	d.entityCacheMu.RUnlock()
	if cache != nil {
		return cache, nil
	}

	d.entityCacheMu.Lock()
	defer d.entityCacheMu.Unlock()
	if d.entityCache != nil {
		return d.entityCache, nil
	}

	rows, err := d.db.QueryContext(ctx, `SELECT id, entity_type, canonical_name FROM entities LIMIT 2000`)
	if err != nil {
		return nil, err
	}
	var entities []*types.Entity
	for rows.Next() {
		e := &types.Entity{}
		if err := rows.Scan(&e.ID, &e.EntityType, &e.CanonicalName); err != nil {
			rows.Close()
			return nil, err
		}
		entities = append(entities, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range entities {
		e.Aliases, err = d.GetEntityAliases(ctx, e.ID)
		if err != nil {
			return nil, err
		}
	}

	built := make([]entityCacheEntry, 0, len(entities))
	for _, e := range entities {
		names := append([]string{e.CanonicalName}, e.Aliases...)
		var patterns []matchPattern
		for _, name := range names {
			if len(name) < 3 {
				patterns = append(patterns, nil)
				continue
			}
			re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(name)) + `\b`)
			if err != nil {
				patterns = append(patterns, nil)
				continue
			}
			patterns = append(patterns, re)
		}
		built = append(built, entityCacheEntry{entity: e, patterns: patterns})
	}
	d.entityCache = built
	return built, nil
}

// FindEntitiesByText matches known entity names and aliases against
// text using word-boundary regexes, returning up to maxResults
// entities. Uses the pre-compiled cache to avoid recompiling regexes
// on every call.
func (d *DB) FindEntitiesByText(ctx context.Context, text string, maxResults int) ([]*types.Entity, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	cache, err := d.getEntityCache(ctx)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	var matches []*types.Entity
	for _, entry := range cache {
		for _, re := range entry.patterns {
			if re != nil && re.MatchString(lower) {
				matches = append(matches, entry.entity)
				break
			}
		}
		if len(matches) >= maxResults {
			break
		}
	}
	return matches, nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
