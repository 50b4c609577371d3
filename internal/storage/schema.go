package storage

import "log"

func (d *DB) migrate() error {
	base := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS screenshots (
		id TEXT PRIMARY KEY,
		ts DATETIME NOT NULL,
		monitor_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		diff_score REAL NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_screenshots_ts ON screenshots(ts);
	CREATE INDEX IF NOT EXISTS idx_screenshots_monitor ON screenshots(monitor_id, ts);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		start_ts DATETIME NOT NULL,
		end_ts DATETIME NOT NULL,
		app_id TEXT,
		app_name TEXT,
		window_title TEXT,
		focused_monitor INTEGER,
		url TEXT,
		page_title TEXT,
		file_path TEXT,
		location_text TEXT,
		now_playing_json TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_ts);
	CREATE INDEX IF NOT EXISTS idx_events_end ON events(end_ts);
	CREATE INDEX IF NOT EXISTS idx_events_app ON events(app_id);

	CREATE TABLE IF NOT EXISTS event_evidence (
		event_id TEXT NOT NULL,
		screenshot_id TEXT NOT NULL,
		PRIMARY KEY (event_id, screenshot_id),
		FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE,
		FOREIGN KEY (screenshot_id) REFERENCES screenshots(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_event_evidence_screenshot ON event_evidence(screenshot_id);

	CREATE TABLE IF NOT EXISTS text_buffers (
		id TEXT PRIMARY KEY,
		ts DATETIME NOT NULL,
		event_id TEXT,
		text TEXT NOT NULL,
		token_estimate INTEGER NOT NULL,
		FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_text_buffers_event ON text_buffers(event_id);
	CREATE INDEX IF NOT EXISTS idx_text_buffers_ts ON text_buffers(ts);

	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		note_type TEXT NOT NULL,
		start_ts DATETIME NOT NULL,
		end_ts DATETIME NOT NULL,
		file_path TEXT NOT NULL,
		json_payload TEXT NOT NULL,
		embedding_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(note_type, start_ts)
	);
	CREATE INDEX IF NOT EXISTS idx_notes_start ON notes(start_ts);
	CREATE INDEX IF NOT EXISTS idx_notes_type_start ON notes(note_type, start_ts);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		canonical_name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(entity_type, canonical_name)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(canonical_name);
	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);

	CREATE TABLE IF NOT EXISTS entity_aliases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
		UNIQUE(entity_id, alias)
	);
	CREATE INDEX IF NOT EXISTS idx_entity_aliases_alias ON entity_aliases(alias);

	CREATE TABLE IF NOT EXISTS note_entities (
		note_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		strength REAL NOT NULL DEFAULT 1.0,
		context TEXT,
		PRIMARY KEY (note_id, entity_id),
		FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE,
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_note_entities_entity ON note_entities(entity_id);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		edge_type TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		start_ts DATETIME,
		end_ts DATETIME,
		evidence_note_ids TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (from_id) REFERENCES entities(id) ON DELETE CASCADE,
		FOREIGN KEY (to_id) REFERENCES entities(id) ON DELETE CASCADE,
		UNIQUE(from_id, to_id, edge_type)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
	CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type);

	CREATE TABLE IF NOT EXISTS aggregates (
		period_type TEXT NOT NULL,
		period_start_ts DATETIME NOT NULL,
		period_end_ts DATETIME NOT NULL,
		key_type TEXT NOT NULL,
		key TEXT NOT NULL,
		value_num REAL NOT NULL DEFAULT 0,
		extra_json TEXT,
		PRIMARY KEY (period_type, period_start_ts, key_type, key)
	);
	CREATE INDEX IF NOT EXISTS idx_aggregates_key ON aggregates(key_type, key);
	CREATE INDEX IF NOT EXISTS idx_aggregates_period ON aggregates(period_type, period_start_ts);

	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		vector BLOB NOT NULL,
		model_name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_type, source_id)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_source ON embeddings(source_type, source_id);

	CREATE TABLE IF NOT EXISTS blocklist_entries (
		id TEXT PRIMARY KEY,
		block_type TEXT NOT NULL,
		pattern TEXT NOT NULL,
		display_name TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		block_screenshots INTEGER NOT NULL DEFAULT 1,
		block_events INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(block_type, pattern)
	);

	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		target_key TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'queued',
		attempts INTEGER NOT NULL DEFAULT 0,
		enqueued_at DATETIME NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		last_error TEXT,
		UNIQUE(job_type, target_key)
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state, enqueued_at);

	CREATE TABLE IF NOT EXISTS deletion_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		reason TEXT,
		deleted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_deletion_log_kind ON deletion_log(entity_kind, deleted_at);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := d.db.Exec(base); err != nil {
		return err
	}

	return d.runMigrations()
}

// runMigrations applies incremental schema changes beyond the v1
// baseline, each gated on the current recorded version and safe to
// re-run (the same ladder shape the teacher uses for its own storage
// layer, right down to the FTS5-repair pattern at v3).
func (d *DB) runMigrations() error {
	var version int
	if err := d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return err
	}

	if version < 2 {
		log.Println("[storage] migrating to schema v2: note full-text search")
		migrations := []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS note_fts USING fts5(
				note_id UNINDEXED,
				payload,
				content=notes,
				content_rowid=rowid
			)`,
			`INSERT INTO note_fts(rowid, note_id, payload)
				SELECT rowid, id, json_payload FROM notes`,
			`CREATE TRIGGER IF NOT EXISTS notes_ai AFTER INSERT ON notes BEGIN
				INSERT INTO note_fts(rowid, note_id, payload) VALUES (NEW.rowid, NEW.id, NEW.json_payload);
			END`,
			`CREATE TRIGGER IF NOT EXISTS notes_au AFTER UPDATE ON notes BEGIN
				INSERT INTO note_fts(note_fts, rowid, note_id, payload) VALUES ('delete', OLD.rowid, OLD.id, OLD.json_payload);
				INSERT INTO note_fts(rowid, note_id, payload) VALUES (NEW.rowid, NEW.id, NEW.json_payload);
			END`,
			`CREATE TRIGGER IF NOT EXISTS notes_ad AFTER DELETE ON notes BEGIN
				INSERT INTO note_fts(note_fts, rowid, note_id, payload) VALUES ('delete', OLD.rowid, OLD.id, OLD.json_payload);
			END`,
		}
		ftsOK := true
		for _, stmt := range migrations {
			if _, err := d.db.Exec(stmt); err != nil {
				log.Printf("[storage] migration v2 warning (FTS5 may be unavailable): %v", err)
				ftsOK = false
				break
			}
		}
		d.db.Exec("INSERT INTO schema_version (version) VALUES (2)")
		if ftsOK {
			log.Println("[storage] migration to v2 completed: note_fts created")
		} else {
			log.Println("[storage] migration to v2 skipped: FTS5 not available")
		}
	}

	if version < 3 {
		// v3 repairs v2 for databases where FTS5 creation silently
		// failed (no build tag) the first time it was attempted; this
		// is idempotent and safe to run even when v2 already succeeded.
		log.Println("[storage] migrating to schema v3: FTS5 repair (idempotent re-attempt)")
		migrations := []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS note_fts USING fts5(
				note_id UNINDEXED,
				payload,
				content=notes,
				content_rowid=rowid
			)`,
			`INSERT OR IGNORE INTO note_fts(rowid, note_id, payload)
				SELECT rowid, id, json_payload FROM notes`,
		}
		for _, stmt := range migrations {
			if _, err := d.db.Exec(stmt); err != nil {
				log.Printf("[storage] migration v3 warning: %v", err)
				break
			}
		}
		d.db.Exec("INSERT INTO schema_version (version) VALUES (3)")
	}

	if version < 4 {
		log.Println("[storage] migrating to schema v4: note_vec ANN index")
		if err := d.initVecTableFromNotes(); err != nil {
			log.Printf("[storage] migration v4 warning: %v — vec index deferred to first note write", err)
		}
		d.db.Exec("INSERT INTO schema_version (version) VALUES (4)")
	}

	return nil
}
