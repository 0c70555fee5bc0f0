package settings_test

import (
	"context"
	"testing"

	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/rpggio/skitimer/internal/persist"
	"github.com/rpggio/skitimer/internal/sqlite"
	"github.com/stretchr/testify/require"
)

func newKV(t *testing.T) *sqlite.KVRepository {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return sqlite.NewKVRepository(db)
}

func TestService_DefaultsWhenMissing(t *testing.T) {
	svc := settings.NewService(newKV(t), nil)
	svc.Load(context.Background())
	require.Equal(t, settings.Defaults(), svc.Get())
}

func TestService_PartialObjectMergesOverDefaults(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	require.NoError(t, kv.Put(ctx, persist.KeySettings, []byte(`{"language":"de","sound":true}`)))

	svc := settings.NewService(kv, nil)
	svc.Load(ctx)

	got := svc.Get()
	require.Equal(t, "de", got.Language)
	require.True(t, got.Sound)
	require.Equal(t, 1, got.DefaultRun)
	require.Equal(t, "S", got.DefaultPoint)
	require.True(t, got.AutoIncrement)
}

func TestService_CorruptOrInvalidFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	svc := settings.NewService(kv, nil)

	for _, blob := range []string{`{"language":`, `[1,2,3]`, `{"language":"fr"}`, `{"defaultRun":0}`} {
		require.NoError(t, kv.Put(ctx, persist.KeySettings, []byte(blob)))
		svc.Load(ctx)
		require.Equal(t, settings.Defaults(), svc.Get(), blob)
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	svc := settings.NewService(kv, nil)
	svc.Load(ctx)

	got, err := svc.Update(ctx, func(s *settings.Settings) {
		s.DefaultPoint = "F"
		s.DeviceName = "  Finish <hut> "
		s.RaceID = "GS-Men"
	})
	require.NoError(t, err)
	require.Equal(t, "F", got.DefaultPoint)
	require.Equal(t, "Finish hut", got.DeviceName)

	reloaded := settings.NewService(kv, nil)
	reloaded.Load(ctx)
	require.Equal(t, got, reloaded.Get())
}

func TestService_UpdateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	svc := settings.NewService(newKV(t), nil)
	svc.Load(ctx)

	_, err := svc.Update(ctx, func(s *settings.Settings) { s.DefaultRun = 0 })
	require.ErrorIs(t, err, settings.ErrInvalidSettings)
	_, err = svc.Update(ctx, func(s *settings.Settings) { s.RaceID = "bad id!" })
	require.ErrorIs(t, err, settings.ErrInvalidSettings)

	require.Equal(t, settings.Defaults(), svc.Get())
}
