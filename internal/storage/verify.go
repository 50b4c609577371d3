package storage

import (
	"context"
	"fmt"
	"strings"
)

// expectedTables lists every table migrate() creates. Verify checks the
// live schema against this list rather than against migrate()'s SQL
// text directly, so a table rename shows up as both a miss and an
// extra rather than silently passing.
var expectedTables = []string{
	"schema_version",
	"screenshots",
	"events",
	"event_evidence",
	"text_buffers",
	"notes",
	"entities",
	"entity_aliases",
	"note_entities",
	"edges",
	"aggregates",
	"embeddings",
	"blocklist_entries",
	"jobs",
	"deletion_log",
}

// VerifyReport is trace-doctor's schema-verification result: which
// expected tables are missing, which unexpected ones exist, and a row
// count per table that is present.
type VerifyReport struct {
	Missing   []string       `json:"missing"`
	Extra     []string       `json:"extra"`
	RowCounts map[string]int `json:"row_counts"`
	OK        bool           `json:"ok"`
}

// Verify compares the live sqlite_master table list against
// expectedTables, the way the teacher's table-counting Stats() helper
// walks a fixed table list, generalized here to also flag unexpected
// tables rather than only counting known ones.
func (d *DB) Verify(ctx context.Context) (*VerifyReport, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("verify: list tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("verify: scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	report := &VerifyReport{RowCounts: make(map[string]int)}

	expected := make(map[string]bool, len(expectedTables))
	for _, t := range expectedTables {
		expected[t] = true
		if !present[t] {
			report.Missing = append(report.Missing, t)
			continue
		}
		var n int
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return nil, fmt.Errorf("verify: count %s: %w", t, err)
		}
		report.RowCounts[t] = n
	}
	// note_vec (sqlite-vec ANN index) and note_fts (FTS5 full-text
	// index, plus its *_data/*_idx/*_content/*_docsize/*_config shadow
	// tables) are virtual tables created lazily and conditionally, not
	// part of the base schema migrate() always applies.
	for t := range present {
		if expected[t] {
			continue
		}
		if t == "note_vec" || strings.HasPrefix(t, "note_fts") {
			continue
		}
		report.Extra = append(report.Extra, t)
	}

	report.OK = len(report.Missing) == 0 && len(report.Extra) == 0
	return report, nil
}
