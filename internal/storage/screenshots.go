package storage

import (
	"context"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// SaveScreenshot inserts a screenshot row. The blob itself is written
// by the caller's Blobs implementation; storage only ever sees the
// path. Satisfies the capture.Store interface structurally.
func (d *DB) SaveScreenshot(ctx context.Context, s *types.Screenshot, blob []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO screenshots (id, ts, monitor_id, path, fingerprint, diff_score, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Timestamp, s.MonitorID, s.Path, s.Fingerprint, s.DiffScore, s.Width, s.Height)
	return err
}

// ScreenshotsBetween returns all screenshots with ts in [start, end),
// ordered by time.
func (d *DB) ScreenshotsBetween(ctx context.Context, start, end time.Time) ([]*types.Screenshot, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, ts, monitor_id, path, fingerprint, diff_score, width, height
		FROM screenshots WHERE ts >= ? AND ts < ? ORDER BY ts
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Screenshot
	for rows.Next() {
		s := &types.Screenshot{}
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.MonitorID, &s.Path, &s.Fingerprint, &s.DiffScore, &s.Width, &s.Height); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
