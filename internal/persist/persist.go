// Package persist is the station's local persistence layer: typed load and
// save of JSON blobs under stable keys, tolerant of missing and corrupt data.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpggio/skitimer/internal/repository"
	"github.com/rpggio/skitimer/internal/sanitize"
)

// Stable storage keys. Renaming any of these loses data on upgrade.
const (
	KeyEntries     = "skiTimerEntries"
	KeySettings    = "skiTimerSettings"
	KeyRecentRaces = "skiTimerRecentRaces"
	KeyDeviceID    = "skiTimerDeviceId"

	raceCachePrefix = "skiTimerRaceCache:"
)

// RaceCacheKey returns the key caching the last fetched state of a race.
func RaceCacheKey(raceID string) string {
	return raceCachePrefix + strings.ToLower(strings.TrimSpace(raceID))
}

// Reader reads raw blobs. Missing keys report repository.ErrNotFound.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Putter stores raw blobs.
type Putter interface {
	Put(ctx context.Context, key string, value []byte) error
}

// ReadWriter is what stores hand their state to.
type ReadWriter interface {
	Reader
	Putter
}

// Outcome tells a caller why Load returned what it did.
type Outcome int

const (
	// Loaded means the stored value decoded cleanly.
	Loaded Outcome = iota
	// Missing means nothing was stored under the key.
	Missing
	// Corrupt means a blob was stored but did not decode into the expected shape.
	Corrupt
	// Unavailable means the underlying storage failed.
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Loaded:
		return "loaded"
	case Missing:
		return "missing"
	case Corrupt:
		return "corrupt"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Load decodes the value stored under key. It never fails: any outcome other
// than Loaded returns fallback.
func Load[T any](ctx context.Context, r Reader, key string, fallback T) (T, Outcome) {
	data, err := r.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return fallback, Missing
	}
	if err != nil {
		return fallback, Unavailable
	}
	v, ok := sanitize.JSON(data, fallback)
	if !ok {
		return fallback, Corrupt
	}
	return v, Loaded
}

// Save encodes v and hands it to w. Only encoding and storage errors are
// reported; a debounced Writer accepts the value immediately.
func Save[T any](ctx context.Context, w Putter, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := w.Put(ctx, key, data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
