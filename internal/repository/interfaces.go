package repository

import (
	"context"

	"github.com/rpggio/skitimer/internal/api"
)

// KVRepository is the device's durable key/value storage.
type KVRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	PutMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, key string) error
}

// RaceRepository manages the gateway's shared race state
type RaceRepository interface {
	GetRace(ctx context.Context, raceID string) (*api.RaceState, error)
	UpsertEntries(ctx context.Context, raceID string, entries []api.Entry, now int64) (UpsertResult, error)
	DeleteEntry(ctx context.Context, raceID, entryID, deviceID string, now int64) error
}

// UpsertResult summarises an UpsertEntries call
type UpsertResult struct {
	Accepted    int
	Ignored     int
	LastUpdated int64
}

// TokenRepository manages device bearer tokens
type TokenRepository interface {
	Issue(ctx context.Context, deviceID string, expiresAt, now int64) (string, error)
	Lookup(ctx context.Context, token string) (*Token, error)
}

// Token is a stored bearer token. ExpiresAt of 0 means it never expires.
type Token struct {
	DeviceID  string
	ExpiresAt int64
	CreatedAt int64
}
