package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/remote"
	"github.com/rpggio/skitimer/internal/sanitize"
)

// SyncReport summarises one sync round.
type SyncReport struct {
	RaceID      string `json:"raceId"`
	Pushed      int    `json:"pushed"`
	Deleted     int    `json:"deleted"`
	Pulled      int    `json:"pulled"`
	Remaining   int    `json:"remaining"`
	NotModified bool   `json:"notModified"`
}

// Sync pushes pending changes of the joined race and pulls what other
// stations recorded. Concurrent calls share one round. Whatever was not
// acknowledged stays pending for the next round, so a failed or offline
// sync loses nothing.
func (s *Station) Sync(ctx context.Context) (SyncReport, error) {
	v, err, _ := s.group.Do("sync", func() (any, error) {
		return s.syncOnce(ctx)
	})
	report, _ := v.(SyncReport)
	return report, err
}

func (s *Station) syncOnce(ctx context.Context) (SyncReport, error) {
	cur := s.settings.Get()
	if !cur.CloudSync {
		return SyncReport{}, ErrSyncDisabled
	}
	if cur.RaceID == "" {
		return SyncReport{}, ErrNoRace
	}
	if s.remote == nil {
		return SyncReport{}, ErrNoRemote
	}

	if s.cfg.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SyncTimeout)
		defer cancel()
	}

	raceID := cur.RaceID
	report := SyncReport{RaceID: raceID}
	logger := s.logger.With("race_id", raceID)

	pushErr := s.push(ctx, raceID, cur.DeviceName, &report)
	report.Remaining = s.pendingFor(raceID)
	if pushErr != nil {
		logger.Warn("sync push incomplete", "pushed", report.Pushed, "remaining", report.Remaining, "error", pushErr)
		return report, pushErr
	}

	state, notModified, err := s.remote.FetchRace(ctx, raceID)
	if err != nil {
		logger.Warn("sync pull failed", "error", err)
		return report, fmt.Errorf("fetching race: %w", err)
	}
	report.NotModified = notModified
	if !notModified {
		merged, err := s.entries.MergeRemote(ctx, raceID, state.Entries)
		if err != nil {
			return report, fmt.Errorf("merging race: %w", err)
		}
		report.Pulled = merged.Added + merged.Updated + merged.Deleted
	}

	s.touchRace(ctx, raceID, s.clock.Now())
	report.Remaining = s.pendingFor(raceID)

	logger.Info("sync complete",
		"pushed", report.Pushed,
		"deleted", report.Deleted,
		"pulled", report.Pulled,
		"not_modified", report.NotModified,
	)
	return report, nil
}

// push sends pending entries and tombstones. Every acknowledged change is
// marked synced before push returns, even when a later request fails.
func (s *Station) push(ctx context.Context, raceID, deviceName string, report *SyncReport) error {
	key := sanitize.NormalizeRaceID(raceID)
	var live, tombstones []entry.Entry
	for _, e := range s.entries.Pending() {
		if sanitize.NormalizeRaceID(e.RaceID) != key {
			continue
		}
		if e.Deleted() {
			tombstones = append(tombstones, e)
		} else {
			live = append(live, e)
		}
	}

	acked := make(map[string]int64)
	defer func() {
		if len(acked) == 0 {
			return
		}
		if _, err := s.entries.MarkSynced(context.WithoutCancel(ctx), acked); err != nil {
			s.logger.Warn("marking entries synced failed", "race_id", raceID, "error", err)
		}
	}()

	for start := 0; start < len(live); start += s.cfg.BatchSize {
		batch := live[start:min(start+s.cfg.BatchSize, len(live))]
		req := api.SubmitEntriesRequest{
			DeviceID:   s.cfg.DeviceID,
			DeviceName: deviceName,
			Entries:    make([]api.Entry, 0, len(batch)),
		}
		for _, e := range batch {
			req.Entries = append(req.Entries, e.ToAPI())
		}
		if _, err := s.remote.PushEntries(ctx, raceID, req); err != nil {
			return fmt.Errorf("pushing entries: %w", err)
		}
		for _, e := range batch {
			acked[e.ID] = e.UpdatedAt
		}
		report.Pushed += len(batch)
	}

	for _, e := range tombstones {
		err := s.remote.DeleteEntry(ctx, raceID, e.ID)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("deleting entry %s: %w", e.ID, err)
		}
		acked[e.ID] = e.UpdatedAt
		report.Deleted++
	}
	return nil
}

func (s *Station) pendingFor(raceID string) int {
	key := sanitize.NormalizeRaceID(raceID)
	n := 0
	for _, e := range s.entries.Pending() {
		if sanitize.NormalizeRaceID(e.RaceID) == key {
			n++
		}
	}
	return n
}
