package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection.
// A plain file path is opened in WAL mode with a busy timeout; ":memory:"
// and explicit "file:" DSNs are passed through unchanged.
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// only exists on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	// Never expire the idle connection; an in-memory database would vanish with it.
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", filepath.Clean(path))
}

// RunMigrations creates the schema. It is idempotent: stations reopen the
// same database on every start.
func (db *DB) RunMigrations() error {
	migration := `
-- Device-local key/value blobs (entries, settings, recent races, response cache)
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Gateway: races keyed case-insensitively, display form kept from first write
CREATE TABLE IF NOT EXISTS races (
    race_key TEXT PRIMARY KEY,
    race_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Gateway: timing entries per race; deleted_at = 0 means live
CREATE TABLE IF NOT EXISTS race_entries (
    race_key TEXT NOT NULL,
    id TEXT NOT NULL,
    bib TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    run INTEGER NOT NULL CHECK(run >= 1),
    point TEXT NOT NULL CHECK(point IN ('S', 'F')),
    device_id TEXT NOT NULL,
    device_name TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL,
    deleted_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (race_key, id),
    FOREIGN KEY (race_key) REFERENCES races(race_key)
);
CREATE INDEX IF NOT EXISTS idx_race_entries_order ON race_entries(race_key, timestamp, id);

-- Gateway: device bearer tokens
CREATE TABLE IF NOT EXISTS api_tokens (
    token_hash TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_device_tokens ON api_tokens(device_id);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
