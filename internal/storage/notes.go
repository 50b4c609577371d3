package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("storage: not found")

// SaveNote inserts or replaces a note, keyed on (note_type, start_ts).
func (d *DB) SaveNote(ctx context.Context, n *types.Note) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO notes (id, note_type, start_ts, end_ts, file_path, json_payload, embedding_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_type, start_ts) DO UPDATE SET
			end_ts = excluded.end_ts,
			file_path = excluded.file_path,
			json_payload = excluded.json_payload,
			embedding_id = excluded.embedding_id
	`, n.ID, n.NoteType, n.StartTS, n.EndTS, n.FilePath, n.JSONPayload, n.EmbeddingID)
	return err
}

// GetNote fetches a single note by id.
func (d *DB) GetNote(ctx context.Context, id string) (*types.Note, error) {
	n := &types.Note{}
	var embeddingID sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT id, note_type, start_ts, end_ts, file_path, json_payload, embedding_id
		FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.NoteType, &n.StartTS, &n.EndTS, &n.FilePath, &n.JSONPayload, &embeddingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	n.EmbeddingID = embeddingID.String
	return n, nil
}

// GetNoteByPeriod fetches the note of the given type whose start_ts
// exactly matches start (hourly/daily rollups are keyed this way).
func (d *DB) GetNoteByPeriod(ctx context.Context, noteType types.NoteType, start time.Time) (*types.Note, error) {
	n := &types.Note{}
	var embeddingID sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT id, note_type, start_ts, end_ts, file_path, json_payload, embedding_id
		FROM notes WHERE note_type = ? AND start_ts = ?
	`, noteType, start).Scan(&n.ID, &n.NoteType, &n.StartTS, &n.EndTS, &n.FilePath, &n.JSONPayload, &embeddingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	n.EmbeddingID = embeddingID.String
	return n, nil
}

// NotesBetween returns notes of the given type with start_ts in
// [start, end), ordered by time.
func (d *DB) NotesBetween(ctx context.Context, noteType types.NoteType, start, end time.Time) ([]*types.Note, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, note_type, start_ts, end_ts, file_path, json_payload, embedding_id
		FROM notes WHERE note_type = ? AND start_ts >= ? AND start_ts < ?
		ORDER BY start_ts
	`, noteType, start, end)
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

// SearchNotesFTS runs a full-text query over note_fts, falling back to
// a LIKE scan of json_payload when FTS5 isn't available.
func (d *DB) SearchNotesFTS(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT note_id FROM note_fts WHERE note_fts MATCH ? ORDER BY rank LIMIT ?
	`, query, limit)
	if err == nil {
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

	rows, err = d.db.QueryContext(ctx, `
		SELECT id FROM notes WHERE json_payload LIKE ? ORDER BY start_ts DESC LIMIT ?
	`, "%"+query+"%", limit)
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
