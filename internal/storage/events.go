package storage

import (
	"context"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// SaveEvent persists a closed event plus its evidence links. Satisfies
// the capture.Store interface structurally.
func (d *DB) SaveEvent(ctx context.Context, e *types.Event) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, start_ts, end_ts, app_id, app_name, window_title,
			focused_monitor, url, page_title, file_path, location_text, now_playing_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.StartTS, e.EndTS, e.AppID, e.AppName, e.WindowTitle,
		e.FocusedMonitor, e.URL, e.PageTitle, e.FilePath, e.LocationText, e.NowPlayingJSON)
	if err != nil {
		return err
	}

	for _, evidenceID := range e.EvidenceIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO event_evidence (event_id, screenshot_id) VALUES (?, ?)
		`, e.ID, evidenceID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// EventsOverlapping returns events whose [start_ts, end_ts) span
// intersects [windowStart, windowEnd), ordered by start time, each with
// its evidence ids populated.
func (d *DB) EventsOverlapping(ctx context.Context, windowStart, windowEnd time.Time) ([]*types.Event, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, start_ts, end_ts, app_id, app_name, window_title, focused_monitor,
			url, page_title, file_path, location_text, now_playing_json
		FROM events
		WHERE start_ts < ? AND end_ts > ?
		ORDER BY start_ts
	`, windowEnd, windowStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		e := &types.Event{}
		if err := rows.Scan(&e.ID, &e.StartTS, &e.EndTS, &e.AppID, &e.AppName, &e.WindowTitle,
			&e.FocusedMonitor, &e.URL, &e.PageTitle, &e.FilePath, &e.LocationText, &e.NowPlayingJSON); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range out {
		ids, err := d.evidenceForEvent(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.EvidenceIDs = ids
	}
	return out, nil
}

func (d *DB) evidenceForEvent(ctx context.Context, eventID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT screenshot_id FROM event_evidence WHERE event_id = ?`, eventID)
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

// AppDurations sums, per app_name, the clipped overlap of each event
// with [windowStart, windowEnd) (spec 4.4's app_durations aggregate).
func (d *DB) AppDurations(ctx context.Context, windowStart, windowEnd time.Time) (map[string]time.Duration, error) {
	events, err := d.EventsOverlapping(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Duration)
	for _, e := range events {
		start, end, ok := e.Clip(windowStart, windowEnd)
		if !ok {
			continue
		}
		out[e.AppName] += end.Sub(start)
	}
	return out, nil
}
