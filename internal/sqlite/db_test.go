package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"kv",
		"races",
		"race_entries",
		"api_tokens",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}
}

// TestMigrations_Idempotent verifies a station can reopen its database
func TestMigrations_Idempotent(t *testing.T) {
	db := NewTestDB(t)
	require.NoError(t, db.RunMigrations())
}

// TestForeignKeys verifies that foreign key constraints are enabled
func TestForeignKeys(t *testing.T) {
	db := NewTestDB(t)

	var enabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	require.NoError(t, err)
	require.Equal(t, 1, enabled, "foreign keys not enabled")
}

// TestRaceEntriesConstraints verifies the race_entries checks
func TestRaceEntriesConstraints(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO races (race_key, race_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		"race-001", "RACE-001", 1, 1)
	require.NoError(t, err)

	insert := `INSERT INTO race_entries (race_key, id, bib, timestamp, run, point, device_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.ExecContext(ctx, insert, "race-001", "e1", "001", 10, 1, "S", "dev1", 10)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "race-001", "e2", "001", 10, 1, "X", "dev1", 10)
	require.Error(t, err, "should fail with invalid point")

	_, err = db.ExecContext(ctx, insert, "race-001", "e3", "001", 10, 0, "F", "dev1", 10)
	require.Error(t, err, "should fail with run below 1")

	_, err = db.ExecContext(ctx, insert, "missing", "e4", "001", 10, 1, "F", "dev1", 10)
	require.Error(t, err, "should fail with unknown race")
}

func TestDSN(t *testing.T) {
	require.Equal(t, ":memory:", dsn(":memory:"))
	require.Equal(t, "file:x?mode=memory", dsn("file:x?mode=memory"))
	require.Contains(t, dsn("data/station.db"), "journal_mode(WAL)")
}
