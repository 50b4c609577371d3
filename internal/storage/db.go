// Package storage is Trace's single persistence layer (spec 4.1, C1):
// a SQLite database holding screenshots, events, notes, the entity
// graph, aggregates, the job queue, and a vec0 ANN index over note
// embeddings, plus a filesystem blob store for screenshot JPEGs and
// rendered Markdown notes.
package storage

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

func init() {
	sqlite_vec.Auto() // registers the vec0 virtual table with go-sqlite3
}

// entityCacheEntry holds an entity and its pre-compiled word-boundary
// patterns, one per name/alias. Built once and reused across
// FindEntitiesByText calls.
type entityCacheEntry struct {
	entity   *cachedEntity
	patterns []matchPattern
}

// DB wraps the SQLite connection backing the whole storage layer.
type DB struct {
	db           *sql.DB
	path         string
	vecAvailable bool
	vecDim       int // embedding dimension used in note_vec (0 = not yet determined)

	entityCacheMu sync.RWMutex
	entityCache   []entityCacheEntry // nil means cache needs rebuild
}

// Open opens or creates the database under <stateDir>/system/trace.db
// with the cgo mattn/go-sqlite3 driver. It switches to the pure-Go
// modernc.org/sqlite driver only when sql.Open for "sqlite3" itself
// returns an error; a driver failure that first shows up at Ping is
// returned as is. The package imports the cgo sqlite-vec binding, so it
// does not build with CGO_ENABLED=0.
func Open(stateDir string) (*DB, error) {
	dbPath := filepath.Join(stateDir, "system", "trace.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	driver := "sqlite3"
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		log.Printf("[storage] mattn/go-sqlite3 unavailable (%v), falling back to modernc.org/sqlite", err)
		driver = "sqlite"
		sqlDB, err = sql.Open(driver, dbPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &DB{db: sqlDB, path: dbPath}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if driver == "sqlite3" {
		var vecVersion string
		if err := sqlDB.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
			log.Printf("[storage] sqlite-vec not available: %v — falling back to full scan for note search", err)
		} else {
			log.Printf("[storage] sqlite-vec %s loaded", vecVersion)
			d.vecAvailable = true
			if err := d.initVecTableFromNotes(); err != nil {
				log.Printf("[storage] vec init warning: %v", err)
			}
		}
	}

	return d, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.db.Close() }
