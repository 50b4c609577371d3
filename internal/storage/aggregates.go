package storage

import (
	"context"
	"time"

	"github.com/tracehq/trace/internal/types"
)

// UpsertAggregate writes (or accumulates into) a rolled-up usage row,
// keyed on (period_type, period_start_ts, key_type, key).
func (d *DB) UpsertAggregate(ctx context.Context, a *types.Aggregate) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO aggregates (period_type, period_start_ts, period_end_ts, key_type, key, value_num, extra_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_type, period_start_ts, key_type, key) DO UPDATE SET
			value_num = aggregates.value_num + excluded.value_num,
			period_end_ts = excluded.period_end_ts,
			extra_json = excluded.extra_json
	`, a.PeriodType, a.PeriodStartTS, a.PeriodEndTS, a.KeyType, a.Key, a.ValueNum, a.ExtraJSON)
	return err
}

// AggregatesForPeriod returns all rows for a given period type and
// exact period_start_ts.
func (d *DB) AggregatesForPeriod(ctx context.Context, periodType string, start time.Time) ([]*types.Aggregate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT period_type, period_start_ts, period_end_ts, key_type, key, value_num, extra_json
		FROM aggregates WHERE period_type = ? AND period_start_ts = ?
		ORDER BY value_num DESC
	`, periodType, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAggregates(rows)
}

// TopKeysForRange sums value_num per key across overlapping aggregate
// rows in [start, end) for a given key type, returning the top N keys
// by total value (spec 4.9's usage rollups).
func (d *DB) TopKeysForRange(ctx context.Context, keyType types.AggregateKeyType, start, end time.Time, limit int) ([]*types.Aggregate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT period_type, MIN(period_start_ts), MAX(period_end_ts), key_type, key, SUM(value_num), ''
		FROM aggregates
		WHERE key_type = ? AND period_start_ts < ? AND period_end_ts > ?
		GROUP BY key
		ORDER BY SUM(value_num) DESC
		LIMIT ?
	`, keyType, end, start, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAggregates(rows)
}

func scanAggregates(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*types.Aggregate, error) {
	var out []*types.Aggregate
	for rows.Next() {
		a := &types.Aggregate{}
		if err := rows.Scan(&a.PeriodType, &a.PeriodStartTS, &a.PeriodEndTS, &a.KeyType, &a.Key, &a.ValueNum, &a.ExtraJSON); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
