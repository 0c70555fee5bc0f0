package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/rpggio/skitimer/internal/domain/station"
	"github.com/rpggio/skitimer/internal/persist"
	"github.com/rpggio/skitimer/internal/remote"
	"github.com/rpggio/skitimer/internal/sqlite"
)

// stationEnv is one process's station and the storage behind it.
type stationEnv struct {
	Station *station.Station
	Client  *remote.Client // nil without a remote URL

	db     *sqlite.DB
	writer *persist.Writer
}

// openStation builds the station from config: SQLite key/value storage
// behind a debounced writer, plus a gateway client when a remote URL is
// configured. Close must be called to flush pending writes.
func (o *RootOptions) openStation(ctx context.Context) (*stationEnv, error) {
	cfg := o.cfg.Station
	if err := ensureDBDir(cfg.DBPath); err != nil {
		return nil, WrapExitError(ExitCommandError, "preparing station database path", err)
	}
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening station database", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "migrating station database", err)
	}

	writer := persist.NewWriter(sqlite.NewKVRepository(db), cfg.FlushDelay, o.logger)
	env := &stationEnv{db: db, writer: writer}

	var rem station.Remote
	if cfg.RemoteURL != "" {
		env.Client = remote.New(cfg.RemoteURL, cfg.Token, remote.WithCache(writer), remote.WithLogger(o.logger))
		rem = env.Client
	}

	st, err := station.Open(ctx, writer, rem, station.Config{
		DeviceID:    cfg.DeviceID,
		SyncTimeout: cfg.SyncTimeout,
	}, nil, o.logger)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "opening station", err)
	}
	env.Station = st

	if cfg.DeviceName != "" && st.Settings().DeviceName != cfg.DeviceName {
		if _, err := st.UpdateSettings(ctx, func(s *settings.Settings) { s.DeviceName = cfg.DeviceName }); err != nil {
			o.logger.Warn("applying configured device name failed", "error", err)
		}
	}
	return env, nil
}

// Close flushes pending writes and closes the database.
func (e *stationEnv) Close(ctx context.Context) error {
	var errs []error
	if err := e.writer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flushing station state: %w", err))
	}
	if err := e.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withStation opens the station, runs fn and closes it, reporting a flush
// failure only when fn succeeded.
func (o *RootOptions) withStation(ctx context.Context, fn func(env *stationEnv) error) error {
	env, err := o.openStation(ctx)
	if err != nil {
		return err
	}
	runErr := fn(env)
	closeErr := env.Close(context.WithoutCancel(ctx))
	if runErr != nil {
		if closeErr != nil {
			o.logger.Error("closing station failed", "error", closeErr)
		}
		return runErr
	}
	return closeErr
}
