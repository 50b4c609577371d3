package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tracehq/trace/internal/types"
)

// UpsertEdge creates a typed weighted edge between two entities, or
// strengthens an existing one (spec 4.8's co-occurrence accumulation):
// the new observation's weight is added to the stored weight rather
// than overwriting it, and evidence note ids accumulate rather than
// replace.
func (d *DB) UpsertEdge(ctx context.Context, e *types.Edge) error {
	evidence := strings.Join(e.EvidenceNoteIDs, ",")
	var startTS, endTS sql.NullTime
	if e.StartTS != nil {
		startTS = sql.NullTime{Time: *e.StartTS, Valid: true}
	}
	if e.EndTS != nil {
		endTS = sql.NullTime{Time: *e.EndTS, Valid: true}
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO edges (from_id, to_id, edge_type, weight, start_ts, end_ts, evidence_note_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, edge_type) DO UPDATE SET
			weight = edges.weight + excluded.weight,
			end_ts = excluded.end_ts,
			evidence_note_ids = CASE
				WHEN edges.evidence_note_ids IS NULL OR edges.evidence_note_ids = '' THEN excluded.evidence_note_ids
				WHEN excluded.evidence_note_ids IS NULL OR excluded.evidence_note_ids = '' THEN edges.evidence_note_ids
				ELSE edges.evidence_note_ids || ',' || excluded.evidence_note_ids
			END
	`, e.FromID, e.ToID, e.EdgeType, e.Weight, startTS, endTS, evidence)
	return err
}

// NeighborsOf returns the edges touching entityID, in either direction.
func (d *DB) NeighborsOf(ctx context.Context, entityID string) ([]*types.Edge, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT from_id, to_id, edge_type, weight, start_ts, end_ts, evidence_note_ids
		FROM edges WHERE from_id = ? OR to_id = ?
		ORDER BY weight DESC
	`, entityID, entityID)
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
