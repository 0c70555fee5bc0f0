package race

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/persist"
	"github.com/rpggio/skitimer/internal/sanitize"
)

// Registry is the bounded, recency-ordered index of races this device has
// touched. It never needs the network.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	rw     persist.ReadWriter
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions []Session
}

// NewRegistry creates a registry. Call Load to read persisted sessions.
func NewRegistry(rw persist.ReadWriter, clk clock.Clock, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		rw:       rw,
		clock:    clock.OrReal(clk),
		logger:   logger,
		sessions: []Session{},
	}
}

// Load reads persisted sessions. Missing or corrupt storage yields an empty
// registry. Duplicate ids are collapsed and the cap is enforced.
func (r *Registry) Load(ctx context.Context) {
	stored, outcome := persist.Load(ctx, r.rw, persist.KeyRecentRaces, []Session{})
	switch outcome {
	case persist.Corrupt, persist.Unavailable:
		r.logger.Warn("recent races unreadable, starting empty", "outcome", outcome.String())
	}

	byKey := make(map[string]int, len(stored))
	kept := make([]Session, 0, len(stored))
	for _, s := range stored {
		key := sanitize.NormalizeRaceID(s.RaceID)
		if key == "" {
			continue
		}
		if s.EntryCount < 0 {
			s.EntryCount = 0
		}
		if i, dup := byKey[key]; dup {
			kept[i] = mergeSessions(kept[i], s)
			continue
		}
		byKey[key] = len(kept)
		kept = append(kept, s)
	}
	sortSessions(kept)
	if len(kept) > MaxSessions {
		kept = kept[:MaxSessions]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = kept
}

// GetAll returns every session, most recently updated first.
func (r *Registry) GetAll() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Get returns the session for raceID, compared case-insensitively.
func (r *Registry) Get(raceID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.findLocked(sanitize.NormalizeRaceID(raceID)); i >= 0 {
		return r.sessions[i], nil
	}
	return Session{}, ErrRaceNotFound
}

// Touch records activity on raceID at the given time. entryCount, when not
// nil, replaces the stored count. A touch older than the stored
// lastUpdated is ignored so replays never move a session back in time.
func (r *Registry) Touch(ctx context.Context, raceID string, at time.Time, entryCount *int) error {
	display, err := sanitize.RaceID(raceID)
	if err != nil {
		return fmt.Errorf("touching race %q: %w", raceID, err)
	}
	key := sanitize.NormalizeRaceID(display)
	atMs := clock.Millis(at)

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]Session, len(r.sessions), len(r.sessions)+1)
	copy(next, r.sessions)

	if i := r.findLocked(key); i >= 0 {
		s := &next[i]
		if atMs < s.LastUpdated {
			r.logger.Debug("ignoring stale race touch", "race_id", s.RaceID, "at", atMs, "last_updated", s.LastUpdated)
			return nil
		}
		s.LastUpdated = atMs
		if entryCount != nil {
			s.EntryCount = max(*entryCount, 0)
		}
	} else {
		count := 0
		if entryCount != nil {
			count = max(*entryCount, 0)
		}
		next = append(next, Session{
			RaceID:      display,
			CreatedAt:   atMs,
			LastUpdated: atMs,
			EntryCount:  count,
		})
	}

	sortSessions(next)
	if len(next) > MaxSessions {
		next = next[:MaxSessions]
	}
	return r.commitLocked(ctx, next)
}

// GetToday returns sessions created or updated during the current local
// calendar day, most recent first. limit <= 0 selects DefaultTodayLimit.
func (r *Registry) GetToday(limit int) []Session {
	if limit <= 0 {
		limit = DefaultTodayLimit
	}
	now := r.clock.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from, to := clock.Millis(start), clock.Millis(start.AddDate(0, 0, 1))
	today := func(ms int64) bool { return ms >= from && ms < to }

	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Session{}
	for _, s := range r.sessions {
		if today(s.CreatedAt) || today(s.LastUpdated) {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// Clear removes every session. Clearing an empty registry is a no-op.
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(ctx, []Session{})
}

func (r *Registry) commitLocked(ctx context.Context, next []Session) error {
	if err := persist.Save(ctx, r.rw, persist.KeyRecentRaces, next); err != nil {
		return fmt.Errorf("persisting recent races: %w", err)
	}
	r.sessions = next
	return nil
}

func (r *Registry) findLocked(key string) int {
	for i, s := range r.sessions {
		if sanitize.NormalizeRaceID(s.RaceID) == key {
			return i
		}
	}
	return -1
}

// sortSessions orders by lastUpdated descending. The sort is stable so
// ties keep their previous relative order across reads.
func sortSessions(s []Session) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].LastUpdated > s[j].LastUpdated
	})
}

func mergeSessions(a, b Session) Session {
	out := a
	if b.CreatedAt != 0 && (out.CreatedAt == 0 || b.CreatedAt < out.CreatedAt) {
		out.CreatedAt = b.CreatedAt
	}
	if b.LastUpdated > out.LastUpdated {
		out.LastUpdated = b.LastUpdated
		out.EntryCount = b.EntryCount
	}
	return out
}
