package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/repository"
	"github.com/rpggio/skitimer/internal/sanitize"
)

// RaceRepository implements repository.RaceRepository for SQLite
type RaceRepository struct {
	db *DB
}

// NewRaceRepository creates a new RaceRepository
func NewRaceRepository(db *DB) *RaceRepository {
	return &RaceRepository{db: db}
}

// GetRace returns a race with all of its entries, tombstones included,
// ordered by timestamp then id.
func (r *RaceRepository) GetRace(ctx context.Context, raceID string) (*api.RaceState, error) {
	key := sanitize.NormalizeRaceID(raceID)

	state := &api.RaceState{Entries: make([]api.Entry, 0)}
	err := r.db.QueryRowContext(ctx,
		`SELECT race_id, updated_at FROM races WHERE race_key = ?`, key,
	).Scan(&state.RaceID, &state.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	query := `
		SELECT id, bib, timestamp, run, point, device_id, device_name, updated_at, deleted_at
		FROM race_entries
		WHERE race_key = ?
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list race entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e api.Entry
		if err := rows.Scan(
			&e.ID,
			&e.Bib,
			&e.Timestamp,
			&e.Run,
			&e.Point,
			&e.DeviceID,
			&e.DeviceName,
			&e.UpdatedAt,
			&e.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan race entry: %w", err)
		}
		if e.DeletedAt == 0 {
			state.EntryCount++
		}
		state.Entries = append(state.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating race entries: %w", err)
	}

	return state, nil
}

// UpsertEntries inserts new entries and applies newer versions of known ones.
// An entry whose updatedAt is not newer than the stored copy is ignored, so
// a station may re-push after a partial failure. Deletion is sticky.
func (r *RaceRepository) UpsertEntries(ctx context.Context, raceID string, entries []api.Entry, now int64) (repository.UpsertResult, error) {
	var result repository.UpsertResult
	key := sanitize.NormalizeRaceID(raceID)
	if key == "" {
		return result, repository.ErrInvalidInput
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO races (race_key, race_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(race_key) DO NOTHING
	`, key, raceID, now, now); err != nil {
		return result, fmt.Errorf("failed to ensure race: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO race_entries (
			race_key, id, bib, timestamp, run, point,
			device_id, device_name, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(race_key, id) DO UPDATE SET
			bib = excluded.bib,
			device_name = excluded.device_name,
			updated_at = excluded.updated_at,
			deleted_at = CASE WHEN race_entries.deleted_at != 0 THEN race_entries.deleted_at ELSE excluded.deleted_at END
		WHERE excluded.updated_at > race_entries.updated_at
		  AND excluded.device_id = race_entries.device_id
	`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		res, err := stmt.ExecContext(ctx,
			key,
			e.ID,
			e.Bib,
			e.Timestamp,
			e.Run,
			e.Point,
			e.DeviceID,
			e.DeviceName,
			e.UpdatedAt,
			e.DeletedAt,
		)
		if err != nil {
			if isCheckViolation(err) || isForeignKeyViolation(err) {
				return result, repository.ErrInvalidInput
			}
			return result, fmt.Errorf("failed to upsert entry %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n > 0 {
			result.Accepted++
		} else {
			result.Ignored++
		}
	}

	if result.Accepted > 0 {
		if err := touchRace(ctx, tx, key, now); err != nil {
			return result, err
		}
	}
	if err := tx.QueryRowContext(ctx, `SELECT updated_at FROM races WHERE race_key = ?`, key).Scan(&result.LastUpdated); err != nil {
		return result, fmt.Errorf("failed to read race: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return result, nil
}

// DeleteEntry tombstones an entry. Deleting an already deleted entry
// succeeds without changing its deletion time. A non-empty deviceID
// restricts the delete to entries recorded by that device; entries owned
// by another device report ErrNotFound.
func (r *RaceRepository) DeleteEntry(ctx context.Context, raceID, entryID, deviceID string, now int64) error {
	key := sanitize.NormalizeRaceID(raceID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE race_entries
		SET deleted_at = CASE WHEN deleted_at = 0 THEN ? ELSE deleted_at END,
		    updated_at = MAX(updated_at, ?)
		WHERE race_key = ? AND id = ? AND (? = '' OR device_id = ?)
	`, now, now, key, entryID, deviceID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}

	if err := touchRace(ctx, tx, key, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func touchRace(ctx context.Context, tx *sql.Tx, key string, now int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE races SET updated_at = MAX(updated_at, ?) WHERE race_key = ?`, now, key,
	); err != nil {
		return fmt.Errorf("failed to touch race: %w", err)
	}
	return nil
}
