package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// PruneFlights removes flights that ended before the retention window,
// together with their paths and events. Flights still in progress are kept.
func (d *DB) PruneFlights(olderThan time.Duration) (int64, error) {
	deadline := time.Now().Add(-olderThan).UTC()

	tx, err := d.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stale := `SELECT id FROM flights WHERE ended_at IS NOT NULL AND ended_at < ?`
	if _, err := tx.Exec("DELETE FROM flight_paths WHERE flight_id IN ("+stale+")", deadline); err != nil {
		return 0, err
	}
	if _, err := tx.Exec("DELETE FROM flight_events WHERE flight_id IN ("+stale+")", deadline); err != nil {
		return 0, err
	}
	res, err := tx.Exec("DELETE FROM flights WHERE ended_at IS NOT NULL AND ended_at < ?", deadline)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS flights (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			home_lat INTEGER NOT NULL,
			home_lng INTEGER NOT NULL,
			home_alt INTEGER NOT NULL,
			plan TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS flight_paths (
			flight_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			points BLOB,
			PRIMARY KEY (flight_id, kind)
		);`,
		`CREATE TABLE IF NOT EXISTS flight_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			type TEXT NOT NULL,
			title TEXT,
			summary TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_flight_events_flight ON flight_events (flight_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Migration: plan column was added after the first schema
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('flights') WHERE name='plan'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE flights ADD COLUMN plan TEXT NOT NULL DEFAULT ''"); err != nil {
			return fmt.Errorf("failed to add plan column: %w", err)
		}
	}

	return nil
}
