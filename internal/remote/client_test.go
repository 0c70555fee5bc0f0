package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/gateway"
	"github.com/rpggio/skitimer/internal/persist"
	"github.com/rpggio/skitimer/internal/remote"
	"github.com/rpggio/skitimer/internal/sqlite"
	"github.com/rpggio/skitimer/internal/testserver"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *sqlite.KVRepository {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return sqlite.NewKVRepository(db)
}

func entries(ids ...string) []api.Entry {
	out := make([]api.Entry, 0, len(ids))
	for i, id := range ids {
		ts := int64(1000 * (i + 1))
		out = append(out, api.Entry{ID: id, Bib: "1", Timestamp: ts, Run: 1, Point: "S", UpdatedAt: ts})
	}
	return out
}

func TestClient_PushFetchDelete(t *testing.T) {
	ctx := context.Background()
	ts := testserver.New(t, "dev-1")
	cache := newCache(t)
	c := remote.New(ts.URL(), ts.Token, remote.WithCache(cache))

	res, err := c.PushEntries(ctx, "GS-1", api.SubmitEntriesRequest{DeviceID: "dev-1", Entries: entries("a", "b")})
	require.NoError(t, err)
	require.Equal(t, 2, res.Accepted)

	res, err = c.PushEntries(ctx, "GS-1", api.SubmitEntriesRequest{DeviceID: "dev-1", Entries: entries("a", "b")})
	require.NoError(t, err)
	require.Equal(t, 2, res.Ignored)

	state, notModified, err := c.FetchRace(ctx, "GS-1")
	require.NoError(t, err)
	require.False(t, notModified)
	require.Equal(t, 2, state.EntryCount)

	state, notModified, err = c.FetchRace(ctx, "gs-1")
	require.NoError(t, err)
	require.True(t, notModified, "cache key is case-insensitive and the ETag still matches")
	require.Equal(t, 2, state.EntryCount)

	require.NoError(t, c.DeleteEntry(ctx, "GS-1", "a"))
	require.ErrorIs(t, c.DeleteEntry(ctx, "GS-1", "zzz"), remote.ErrNotFound)

	state, notModified, err = c.FetchRace(ctx, "GS-1")
	require.NoError(t, err)
	require.False(t, notModified)
	require.Equal(t, 1, state.EntryCount)

	cached, ok := c.CachedRace(ctx, "GS-1")
	require.True(t, ok)
	require.Equal(t, state, cached)
}

func TestClient_CachedRaceSurvivesCorruption(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	require.NoError(t, cache.Put(ctx, persist.RaceCacheKey("R1"), []byte("{{{")))

	c := remote.New("http://127.0.0.1:1", "t", remote.WithCache(cache))
	_, ok := c.CachedRace(ctx, "R1")
	require.False(t, ok)
}

func TestClient_Offline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := remote.New(url, "t", remote.WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, _, err := c.FetchRace(context.Background(), "R1")
	require.ErrorIs(t, err, remote.ErrOffline)
}

func TestClient_CanceledContextIsOffline(t *testing.T) {
	ts := testserver.New(t, "dev-1")
	c := remote.New(ts.URL(), ts.Token)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.PushEntries(ctx, "R1", api.SubmitEntriesRequest{Entries: entries("a")})
	require.ErrorIs(t, err, remote.ErrOffline)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_AuthErrors(t *testing.T) {
	ctx := context.Background()
	ts := testserver.New(t, "dev-1")

	expired := ts.IssueToken(t, "dev-1", -time.Hour)
	_, _, err := remote.New(ts.URL(), expired).FetchRace(ctx, "R1")
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusUnauthorized, se.Status)
	require.True(t, se.AuthExpired())

	_, _, err = remote.New(ts.URL(), "bogus").FetchRace(ctx, "R1")
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusUnauthorized, se.Status)
	require.False(t, se.AuthExpired())
	require.Equal(t, "invalid bearer token", se.Message)
}

func TestClient_RateLimited(t *testing.T) {
	ctx := context.Background()
	ts := testserver.New(t, "dev-1", func(cfg *gateway.Config) { cfg.RateLimit = 1 })
	c := remote.New(ts.URL(), ts.Token)

	_, _, err := c.FetchRace(ctx, "R1")
	require.NoError(t, err)

	_, _, err = c.FetchRace(ctx, "R1")
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	require.True(t, se.RateLimited())
	require.Greater(t, se.RetryAfter, 0)
}

func TestClient_BadRequest(t *testing.T) {
	ts := testserver.New(t, "dev-1")
	c := remote.New(ts.URL(), ts.Token)

	_, err := c.PushEntries(context.Background(), "R1", api.SubmitEntriesRequest{Entries: []api.Entry{{ID: "x", Run: 1, Point: "Q", Timestamp: 1}}})
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadRequest, se.Status)
	require.Equal(t, "invalid timing point", se.Message)
}
