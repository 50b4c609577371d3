package storage

import (
	"context"

	"github.com/tracehq/trace/internal/types"
)

// ListBlocklistEntries returns all blocklist entries, enabled or not.
func (d *DB) ListBlocklistEntries(ctx context.Context) ([]*types.BlocklistEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, block_type, pattern, display_name, enabled, block_screenshots, block_events, created_at, updated_at
		FROM blocklist_entries ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.BlocklistEntry
	for rows.Next() {
		e := &types.BlocklistEntry{}
		if err := rows.Scan(&e.ID, &e.BlockType, &e.Pattern, &e.DisplayName, &e.Enabled,
			&e.BlockScreenshots, &e.BlockEvents, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertBlocklistEntry inserts or replaces a blocklist entry by id.
func (d *DB) UpsertBlocklistEntry(ctx context.Context, e *types.BlocklistEntry) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO blocklist_entries (id, block_type, pattern, display_name, enabled, block_screenshots, block_events, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			block_type = excluded.block_type,
			pattern = excluded.pattern,
			display_name = excluded.display_name,
			enabled = excluded.enabled,
			block_screenshots = excluded.block_screenshots,
			block_events = excluded.block_events,
			updated_at = excluded.updated_at
	`, e.ID, e.BlockType, e.Pattern, e.DisplayName, e.Enabled, e.BlockScreenshots, e.BlockEvents, e.CreatedAt, e.UpdatedAt)
	return err
}

// DeleteBlocklistEntry removes an entry by id.
func (d *DB) DeleteBlocklistEntry(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM blocklist_entries WHERE id = ?`, id)
	return err
}
