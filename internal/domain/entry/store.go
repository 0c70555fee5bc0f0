package entry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/persist"
	"github.com/rpggio/skitimer/internal/sanitize"
)

// Store is the device's collection of timing entries. Mutations are
// synchronous and all-or-nothing: the next collection is persisted first and
// only then becomes visible.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	rw       persist.ReadWriter
	clock    clock.Clock
	logger   *slog.Logger
	deviceID string

	mu        sync.Mutex
	entries   []Entry
	index     map[string]int
	lastStamp int64 // latest timestamp issued to an entry of this device
}

// NewStore creates an empty store for deviceID. Call Load to read persisted
// entries.
func NewStore(rw persist.ReadWriter, deviceID string, clk clock.Clock, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		rw:       rw,
		clock:    clock.OrReal(clk),
		logger:   logger,
		deviceID: deviceID,
		index:    make(map[string]int),
	}
}

// Load replaces the in-memory collection with what is persisted. Missing or
// corrupt storage yields an empty collection; invalid records are dropped.
func (s *Store) Load(ctx context.Context) {
	stored, outcome := persist.Load(ctx, s.rw, persist.KeyEntries, []Entry{})
	switch outcome {
	case persist.Corrupt, persist.Unavailable:
		s.logger.Warn("entry storage unreadable, starting empty", "outcome", outcome.String())
	}

	kept := make([]Entry, 0, len(stored))
	seen := make(map[string]struct{}, len(stored))
	for _, e := range stored {
		if !e.valid() {
			s.logger.Warn("dropping invalid stored entry", "entry_id", e.ID)
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		if e.Sync == "" {
			e.Sync = SyncPending
		}
		kept = append(kept, e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(kept)
}

// Append records a new entry at the current time. An empty bib is valid and
// produces an ungrouped entry.
func (s *Store) Append(ctx context.Context, req AppendRequest) (Entry, error) {
	bib, err := sanitize.Bib(req.Bib)
	if err != nil {
		return Entry{}, fmt.Errorf("bib %q: %w", req.Bib, err)
	}
	if req.Run < 1 {
		return Entry{}, ErrInvalidRun
	}
	if !req.Point.Valid() {
		return Entry{}, ErrInvalidPoint
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := clock.Millis(s.clock.Now())
	// Timestamps stay strictly increasing on this device even when the clock
	// stalls or steps back.
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}

	e := Entry{
		ID:         uuid.NewString(),
		Bib:        bib,
		Timestamp:  now,
		Run:        req.Run,
		Point:      req.Point,
		RaceID:     req.RaceID,
		DeviceID:   s.deviceID,
		DeviceName: sanitize.Text(req.DeviceName, sanitize.MaxTextLength),
		UpdatedAt:  now,
		Sync:       SyncPending,
	}

	next := make([]Entry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	next = insertByTimestamp(next, e)
	if err := s.commitLocked(ctx, next); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// EditBib corrects the bib of an entry, keeping its id and timestamp. Only
// entries recorded on this device can be edited.
func (s *Store) EditBib(ctx context.Context, id, bib string) (Entry, error) {
	clean, err := sanitize.Bib(bib)
	if err != nil {
		return Entry{}, fmt.Errorf("bib %q: %w", bib, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.ownedIndexLocked(id)
	if err != nil {
		return Entry{}, err
	}

	next := s.cloneLocked()
	e := &next[i]
	if e.Bib == clean {
		return *e, nil
	}
	e.Bib = clean
	e.UpdatedAt = s.updateStampLocked(e.UpdatedAt)
	e.Sync = SyncPending

	if err := s.commitLocked(ctx, next); err != nil {
		return Entry{}, err
	}
	return next[i], nil
}

// Remove deletes an entry. The entry is kept as a tombstone so that a later
// lookup reports ErrEntryDeleted rather than ErrEntryNotFound.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.ownedIndexLocked(id)
	if err != nil {
		return err
	}

	next := s.cloneLocked()
	stamp := s.updateStampLocked(next[i].UpdatedAt)
	next[i].DeletedAt = stamp
	next[i].UpdatedAt = stamp
	next[i].Sync = SyncPending

	return s.commitLocked(ctx, next)
}

// Get returns a live entry. For a removed entry it returns the tombstone
// together with ErrEntryDeleted.
func (s *Store) Get(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	e := s.entries[i]
	if e.Deleted() {
		return e, ErrEntryDeleted
	}
	return e, nil
}

// List returns live entries in insertion order.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked("")
}

// ListRace returns live entries of one race in insertion order. Race ids
// compare case-insensitively.
func (s *Store) ListRace(raceID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(sanitize.NormalizeRaceID(raceID))
}

// Stats aggregates the current List.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeStats(s.liveLocked(""), s.pendingCountLocked())
}

// Pending returns every entry, tombstones included, that the gateway has
// not acknowledged yet.
func (s *Store) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Entry{}
	for _, e := range s.entries {
		if e.Sync == SyncPending {
			out = append(out, e)
		}
	}
	return out
}

// MarkSynced flags entries as acknowledged. snapshot maps entry id to the
// UpdatedAt that was pushed; entries changed since then stay pending.
func (s *Store) MarkSynced(ctx context.Context, snapshot map[string]int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked()
	marked := 0
	for id, updatedAt := range snapshot {
		i, ok := s.index[id]
		if !ok || next[i].UpdatedAt != updatedAt || next[i].Sync == SyncSynced {
			continue
		}
		next[i].Sync = SyncSynced
		marked++
	}
	if marked == 0 {
		return 0, nil
	}
	if err := s.commitLocked(ctx, next); err != nil {
		return 0, err
	}
	return marked, nil
}

// MergeRemote folds entries fetched from the gateway into the store.
// Unknown entries are inserted in timestamp position. A locally pending
// entry always wins; otherwise the version with the newer UpdatedAt wins
// and deletions stick.
func (s *Store) MergeRemote(ctx context.Context, raceID string, remote []api.Entry) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res MergeResult
	touched := false
	next := s.cloneLocked()
	index := make(map[string]int, len(s.index))
	for id, i := range s.index {
		index[id] = i
	}

	for _, r := range remote {
		point, err := ParsePoint(r.Point)
		if err != nil || r.ID == "" || r.Run < 1 || r.Timestamp <= 0 {
			s.logger.Debug("skipping malformed remote entry", "entry_id", r.ID, "race_id", raceID)
			continue
		}

		i, known := index[r.ID]
		if !known {
			if r.DeletedAt != 0 {
				continue
			}
			e := Entry{
				ID:         r.ID,
				Bib:        r.Bib,
				Timestamp:  r.Timestamp,
				Run:        r.Run,
				Point:      point,
				RaceID:     raceID,
				DeviceID:   r.DeviceID,
				DeviceName: sanitize.Text(r.DeviceName, sanitize.MaxTextLength),
				UpdatedAt:  r.UpdatedAt,
				Sync:       SyncSynced,
			}
			next = insertByTimestamp(next, e)
			index = reindex(next)
			res.Added++
			continue
		}

		local := &next[i]
		if local.Sync == SyncPending || r.UpdatedAt <= local.UpdatedAt {
			continue
		}
		if local.Deleted() {
			local.UpdatedAt = r.UpdatedAt
			touched = true
			continue
		}
		local.Bib = r.Bib
		local.Run = r.Run
		local.Point = point
		local.UpdatedAt = r.UpdatedAt
		if r.DeletedAt != 0 {
			local.DeletedAt = r.DeletedAt
			res.Deleted++
		} else {
			res.Updated++
		}
	}

	if res == (MergeResult{}) && !touched {
		return res, nil
	}
	if err := s.commitLocked(ctx, next); err != nil {
		return MergeResult{}, err
	}
	return res, nil
}

// AssignRace moves entries recorded without a race into raceID. It returns
// how many entries were adopted.
func (s *Store) AssignRace(ctx context.Context, raceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked()
	adopted := 0
	for i := range next {
		if next[i].RaceID != "" || next[i].Deleted() {
			continue
		}
		next[i].RaceID = raceID
		next[i].UpdatedAt = s.updateStampLocked(next[i].UpdatedAt)
		next[i].Sync = SyncPending
		adopted++
	}
	if adopted == 0 {
		return 0, nil
	}
	if err := s.commitLocked(ctx, next); err != nil {
		return 0, err
	}
	return adopted, nil
}

func (s *Store) commitLocked(ctx context.Context, next []Entry) error {
	if err := persist.Save(ctx, s.rw, persist.KeyEntries, next); err != nil {
		return fmt.Errorf("persisting entries: %w", err)
	}
	s.setLocked(next)
	return nil
}

func (s *Store) setLocked(entries []Entry) {
	s.entries = entries
	s.index = reindex(entries)
	for _, e := range entries {
		if s.owns(e) && e.Timestamp > s.lastStamp {
			s.lastStamp = e.Timestamp
		}
	}
}

// owns reports whether e was recorded on this device. Entries without a
// device id predate device tracking and count as local.
func (s *Store) owns(e Entry) bool {
	return e.DeviceID == "" || e.DeviceID == s.deviceID
}

func (s *Store) cloneLocked() []Entry {
	next := make([]Entry, len(s.entries))
	copy(next, s.entries)
	return next
}

func (s *Store) liveIndexLocked(id string) (int, error) {
	i, ok := s.index[id]
	if !ok {
		return 0, ErrEntryNotFound
	}
	if s.entries[i].Deleted() {
		return 0, ErrEntryDeleted
	}
	return i, nil
}

func (s *Store) ownedIndexLocked(id string) (int, error) {
	i, err := s.liveIndexLocked(id)
	if err != nil {
		return 0, err
	}
	if !s.owns(s.entries[i]) {
		return 0, ErrForeignEntry
	}
	return i, nil
}

func (s *Store) liveLocked(raceKey string) []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Deleted() {
			continue
		}
		if raceKey != "" && sanitize.NormalizeRaceID(e.RaceID) != raceKey {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Store) pendingCountLocked() int {
	n := 0
	for _, e := range s.entries {
		if e.Sync == SyncPending {
			n++
		}
	}
	return n
}

// updateStampLocked returns a modification time strictly after prev, so a
// local change always outranks the version it replaces.
func (s *Store) updateStampLocked(prev int64) int64 {
	now := clock.Millis(s.clock.Now())
	if now <= prev {
		return prev + 1
	}
	return now
}

func insertByTimestamp(entries []Entry, e Entry) []Entry {
	pos := len(entries)
	for pos > 0 && entries[pos-1].Timestamp > e.Timestamp {
		pos--
	}
	entries = append(entries, Entry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = e
	return entries
}

func reindex(entries []Entry) map[string]int {
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.ID] = i
	}
	return index
}
