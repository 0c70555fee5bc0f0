// Package station is the process-scoped timing station: it owns the entry
// store, the recent races registry and the settings, and syncs them with a
// gateway when one is reachable. Nothing here requires the network.
package station

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/domain/race"
	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/rpggio/skitimer/internal/persist"
	"github.com/rpggio/skitimer/internal/sanitize"
	"golang.org/x/sync/singleflight"
)

// Remote is the gateway as the station sees it.
type Remote interface {
	PushEntries(ctx context.Context, raceID string, req api.SubmitEntriesRequest) (api.SubmitEntriesResponse, error)
	DeleteEntry(ctx context.Context, raceID, entryID string) error
	FetchRace(ctx context.Context, raceID string) (*api.RaceState, bool, error)
}

// Flusher is implemented by debounced storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Config holds station-wide options.
type Config struct {
	DeviceID    string
	SyncTimeout time.Duration
	BatchSize   int
}

const defaultBatchSize = 200

// Station is created once per process and passed explicitly to every
// surface (CLI, MCP).
type Station struct {
	entries  *entry.Store
	races    *race.Registry
	settings *settings.Service
	remote   Remote
	storage  persist.ReadWriter
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config

	group singleflight.Group
}

// Open loads persisted state from storage. remote may be nil for a station
// that never syncs. If storage also implements Flusher, Close flushes it.
func Open(ctx context.Context, storage persist.ReadWriter, remote Remote, cfg Config, clk clock.Clock, logger *slog.Logger) (*Station, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk = clock.OrReal(clk)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	deviceID, err := resolveDeviceID(ctx, storage, cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	cfg.DeviceID = deviceID

	s := &Station{
		entries:  entry.NewStore(storage, deviceID, clk, logger),
		races:    race.NewRegistry(storage, clk, logger),
		settings: settings.NewService(storage, logger),
		remote:   remote,
		storage:  storage,
		clock:    clk,
		logger:   logger.With("device_id", deviceID),
		cfg:      cfg,
	}
	s.entries.Load(ctx)
	s.races.Load(ctx)
	s.settings.Load(ctx)
	return s, nil
}

// resolveDeviceID returns the configured id, or the one persisted on first
// start, generating it if needed.
func resolveDeviceID(ctx context.Context, storage persist.ReadWriter, configured string) (string, error) {
	if configured != "" {
		id, err := sanitize.ID(configured)
		if err != nil {
			return "", fmt.Errorf("device id %q: %w", configured, err)
		}
		return id, nil
	}

	stored, outcome := persist.Load(ctx, storage, persist.KeyDeviceID, "")
	if outcome == persist.Loaded {
		if id, err := sanitize.ID(stored); err == nil {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := persist.Save(ctx, storage, persist.KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("storing device id: %w", err)
	}
	return id, nil
}

// DeviceID identifies this station.
func (s *Station) DeviceID() string {
	return s.cfg.DeviceID
}

// Close flushes deferred writes. The station stays usable afterwards.
func (s *Station) Close(ctx context.Context) error {
	if f, ok := s.storage.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return fmt.Errorf("flushing station state: %w", err)
		}
	}
	return nil
}

// RecordRequest describes a record action. Zero Run and empty Point take
// the defaults from settings.
type RecordRequest struct {
	Bib   string
	Run   int
	Point string
}

// RecordResult is the recorded entry plus the bib to pre-fill next.
type RecordResult struct {
	Entry   entry.Entry `json:"entry"`
	NextBib string      `json:"nextBib,omitempty"`
}

// Record appends an entry to the joined race, or to no race.
func (s *Station) Record(ctx context.Context, req RecordRequest) (RecordResult, error) {
	cur := s.settings.Get()

	run := req.Run
	if run == 0 {
		run = cur.DefaultRun
	}
	pointName := req.Point
	if pointName == "" {
		pointName = cur.DefaultPoint
	}
	point, err := entry.ParsePoint(pointName)
	if err != nil {
		return RecordResult{}, err
	}

	e, err := s.entries.Append(ctx, entry.AppendRequest{
		Bib:        req.Bib,
		Run:        run,
		Point:      point,
		RaceID:     cur.RaceID,
		DeviceName: cur.DeviceName,
	})
	if err != nil {
		return RecordResult{}, err
	}
	s.touchRace(ctx, e.RaceID, clock.FromMillis(e.Timestamp))

	res := RecordResult{Entry: e}
	if cur.AutoIncrement {
		res.NextBib = NextBib(e.Bib)
	}
	return res, nil
}

// EditBib corrects the bib of an entry.
func (s *Station) EditBib(ctx context.Context, id, bib string) (entry.Entry, error) {
	e, err := s.entries.EditBib(ctx, id, bib)
	if err != nil {
		return entry.Entry{}, err
	}
	s.touchRace(ctx, e.RaceID, s.clock.Now())
	return e, nil
}

// Remove deletes an entry.
func (s *Station) Remove(ctx context.Context, id string) error {
	e, err := s.entries.Get(id)
	if err != nil {
		return err
	}
	if err := s.entries.Remove(ctx, id); err != nil {
		return err
	}
	s.touchRace(ctx, e.RaceID, s.clock.Now())
	return nil
}

// Entries lists live entries, optionally of one race.
func (s *Station) Entries(raceID string) []entry.Entry {
	if raceID == "" {
		return s.entries.List()
	}
	return s.entries.ListRace(raceID)
}

// Stats aggregates all live entries.
func (s *Station) Stats() entry.Stats {
	return s.entries.Stats()
}

// RecentRaces lists the registry, or only today's sessions.
func (s *Station) RecentRaces(today bool, limit int) []race.Session {
	if today {
		return s.races.GetToday(limit)
	}
	all := s.races.GetAll()
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// ClearRecentRaces wipes the registry.
func (s *Station) ClearRecentRaces(ctx context.Context) error {
	return s.races.Clear(ctx)
}

// JoinResult reports the race joined and how many race-less entries it
// adopted.
type JoinResult struct {
	RaceID  string `json:"raceId"`
	Adopted int    `json:"adopted"`
}

// JoinRace makes raceID the race new entries are recorded into.
func (s *Station) JoinRace(ctx context.Context, raceID string) (JoinResult, error) {
	id, err := sanitize.RaceID(raceID)
	if err != nil {
		return JoinResult{}, err
	}
	// Keep the display form the registry already knows.
	if known, err := s.races.Get(id); err == nil {
		id = known.RaceID
	}

	if _, err := s.settings.Update(ctx, func(st *settings.Settings) { st.RaceID = id }); err != nil {
		return JoinResult{}, err
	}
	adopted, err := s.entries.AssignRace(ctx, id)
	if err != nil {
		return JoinResult{}, err
	}
	s.touchRace(ctx, id, s.clock.Now())

	s.logger.Info("joined race", "race_id", id, "adopted", adopted)
	return JoinResult{RaceID: id, Adopted: adopted}, nil
}

// Settings returns the current settings.
func (s *Station) Settings() settings.Settings {
	return s.settings.Get()
}

// UpdateSettings changes settings.
func (s *Station) UpdateSettings(ctx context.Context, fn func(*settings.Settings)) (settings.Settings, error) {
	return s.settings.Update(ctx, fn)
}

// touchRace records activity in the registry. The registry is bookkeeping,
// so a failure is logged and the operation that caused it still succeeds.
func (s *Station) touchRace(ctx context.Context, raceID string, at time.Time) {
	if raceID == "" {
		return
	}
	count := len(s.entries.ListRace(raceID))
	if err := s.races.Touch(ctx, raceID, at, &count); err != nil {
		s.logger.Warn("updating recent races failed", "race_id", raceID, "error", err)
	}
}

// NextBib returns bib+1 with the same zero padding, or "" when bib is
// empty or would overflow the bib length.
func NextBib(bib string) string {
	if bib == "" {
		return ""
	}
	n, err := strconv.Atoi(bib)
	if err != nil {
		return ""
	}
	next := fmt.Sprintf("%0*d", len(bib), n+1)
	if len(next) > sanitize.MaxBibLength {
		return ""
	}
	return next
}
