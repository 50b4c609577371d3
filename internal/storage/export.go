package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tracehq/trace/internal/types"
)

// Counts is the row-count-per-table summary spec 6's JSON export
// envelope and internal/insights both need.
type Counts struct {
	Notes        int `json:"notes"`
	Entities     int `json:"entities"`
	NoteEntities int `json:"note_entities"`
	Edges        int `json:"edges"`
	Aggregates   int `json:"aggregates"`
	Events       int `json:"events"`
	Screenshots  int `json:"screenshots"`
}

// CountAll returns a row count across every table the export/insights
// surfaces care about, grounded on storage_src's db.go Stats() pattern
// generalized from SQLite-file-size counters to per-table COUNT(*).
func (d *DB) CountAll(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		dest  *int
		table string
	}{
		{&c.Notes, "notes"},
		{&c.Entities, "entities"},
		{&c.NoteEntities, "note_entities"},
		{&c.Edges, "edges"},
		{&c.Aggregates, "aggregates"},
		{&c.Events, "events"},
		{&c.Screenshots, "screenshots"},
	}
	for _, q := range queries {
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dest); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

// AllNotes returns every note row, ordered by start time, for full
// export dumps (spec 6's JSON export `notes[]`).
func (d *DB) AllNotes(ctx context.Context) ([]*types.Note, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, note_type, start_ts, end_ts, file_path, json_payload, embedding_id
		FROM notes ORDER BY start_ts
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Note
	for rows.Next() {
		n := &types.Note{}
		var embeddingID sql.NullString
		if err := rows.Scan(&n.ID, &n.NoteType, &n.StartTS, &n.EndTS, &n.FilePath, &n.JSONPayload, &embeddingID); err != nil {
			return nil, err
		}
		n.EmbeddingID = embeddingID.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllEntities returns every entity row with its aliases attached,
// ordered by canonical name.
func (d *DB) AllEntities(ctx context.Context) ([]*types.Entity, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, entity_type, canonical_name FROM entities ORDER BY canonical_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		e := &types.Entity{}
		if err := rows.Scan(&e.ID, &e.EntityType, &e.CanonicalName); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range out {
		aliases, err := d.GetEntityAliases(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.Aliases = aliases
	}
	return out, nil
}

// AllNoteEntities returns every note-entity link row.
func (d *DB) AllNoteEntities(ctx context.Context) ([]*types.NoteEntity, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT note_id, entity_id, strength, context FROM note_entities ORDER BY note_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.NoteEntity
	for rows.Next() {
		ne := &types.NoteEntity{}
		var context sql.NullString
		if err := rows.Scan(&ne.NoteID, &ne.EntityID, &ne.Strength, &context); err != nil {
			return nil, err
		}
		ne.Context = context.String
		out = append(out, ne)
	}
	return out, rows.Err()
}

// AllEdges returns every edge row.
func (d *DB) AllEdges(ctx context.Context) ([]*types.Edge, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT from_id, to_id, edge_type, weight, start_ts, end_ts, evidence_note_ids
		FROM edges ORDER BY from_id, to_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Edge
	for rows.Next() {
		e := &types.Edge{}
		var evidence sql.NullString
		var startTS, endTS sql.NullTime
		if err := rows.Scan(&e.FromID, &e.ToID, &e.EdgeType, &e.Weight, &startTS, &endTS, &evidence); err != nil {
			return nil, err
		}
		if startTS.Valid {
			t := startTS.Time
			e.StartTS = &t
		}
		if endTS.Valid {
			t := endTS.Time
			e.EndTS = &t
		}
		if evidence.Valid && evidence.String != "" {
			e.EvidenceNoteIDs = strings.Split(evidence.String, ",")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AllAggregates returns every aggregate row.
func (d *DB) AllAggregates(ctx context.Context) ([]*types.Aggregate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT period_type, period_start_ts, period_end_ts, key_type, key, value_num, extra_json
		FROM aggregates ORDER BY period_start_ts
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAggregates(rows)
}
