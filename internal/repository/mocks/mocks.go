package mocks

import (
	"context"

	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/repository"
	"github.com/stretchr/testify/mock"
)

// KVRepository is a mock for repository.KVRepository.
type KVRepository struct {
	mock.Mock
}

func (m *KVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *KVRepository) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *KVRepository) PutMany(ctx context.Context, values map[string][]byte) error {
	args := m.Called(ctx, values)
	return args.Error(0)
}

func (m *KVRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// RaceRepository is a mock for repository.RaceRepository.
type RaceRepository struct {
	mock.Mock
}

func (m *RaceRepository) GetRace(ctx context.Context, raceID string) (*api.RaceState, error) {
	args := m.Called(ctx, raceID)
	if state, ok := args.Get(0).(*api.RaceState); ok {
		return state, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RaceRepository) UpsertEntries(ctx context.Context, raceID string, entries []api.Entry, now int64) (repository.UpsertResult, error) {
	args := m.Called(ctx, raceID, entries, now)
	return args.Get(0).(repository.UpsertResult), args.Error(1)
}

func (m *RaceRepository) DeleteEntry(ctx context.Context, raceID, entryID, deviceID string, now int64) error {
	args := m.Called(ctx, raceID, entryID, deviceID, now)
	return args.Error(0)
}

// TokenRepository is a mock for repository.TokenRepository.
type TokenRepository struct {
	mock.Mock
}

func (m *TokenRepository) Issue(ctx context.Context, deviceID string, expiresAt, now int64) (string, error) {
	args := m.Called(ctx, deviceID, expiresAt, now)
	return args.String(0), args.Error(1)
}

func (m *TokenRepository) Lookup(ctx context.Context, token string) (*repository.Token, error) {
	args := m.Called(ctx, token)
	if tok, ok := args.Get(0).(*repository.Token); ok {
		return tok, args.Error(1)
	}
	return nil, args.Error(1)
}
