package storage

import (
	"context"
	"time"
)

// DeletionEntry records that a piece of data was removed, for the
// retention sweeper's audit trail (spec 4.1's deletion_log).
type DeletionEntry struct {
	EntityKind string
	EntityID   string
	Reason     string
	DeletedAt  time.Time
}

// LogDeletion appends a deletion_log row. It is called after the delete
// it describes has run, so a logging error never undoes that delete;
// DeleteScreenshotsBefore returns such an error to its caller.
func (d *DB) LogDeletion(ctx context.Context, entityKind, entityID, reason string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO deletion_log (entity_kind, entity_id, reason) VALUES (?, ?, ?)
	`, entityKind, entityID, reason)
	return err
}

// DeleteScreenshotsBefore removes screenshot rows older than cutoff and
// logs each deletion, returning the deleted ids so the caller can also
// remove the backing blobs.
func (d *DB) DeleteScreenshotsBefore(ctx context.Context, cutoff time.Time, reason string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM screenshots WHERE ts < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := d.db.ExecContext(ctx, `DELETE FROM screenshots WHERE ts < ?`, cutoff); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := d.LogDeletion(ctx, "screenshot", id, reason); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
