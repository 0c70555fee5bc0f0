// Package testserver runs a sync gateway on in-memory SQLite for tests.
package testserver

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/gateway"
	"github.com/rpggio/skitimer/internal/sqlite"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	Server   *httptest.Server
	Gateway  *gateway.Server
	DB       *sqlite.DB
	Races    *sqlite.RaceRepository
	Tokens   *sqlite.TokenRepository
	Token    string
	DeviceID string
}

// New starts a gateway and issues a non-expiring token for deviceID.
// Options may adjust the gateway config before the server starts.
func New(t *testing.T, deviceID string, opts ...func(*gateway.Config)) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	cfg := gateway.DefaultConfig()
	cfg.RateLimit = 10000
	for _, opt := range opts {
		opt(&cfg)
	}

	races := sqlite.NewRaceRepository(db)
	tokens := sqlite.NewTokenRepository(db)
	gw := gateway.NewServer(races, gateway.NewTokenStoreResolver(tokens, nil), db, cfg, nil, nil)
	server := httptest.NewServer(gw.Routes())

	ts := &TestServer{
		Server:   server,
		Gateway:  gw,
		DB:       db,
		Races:    races,
		Tokens:   tokens,
		DeviceID: deviceID,
	}
	ts.Token = ts.IssueToken(t, deviceID, 0)

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return ts
}

// URL is the base URL of the gateway.
func (ts *TestServer) URL() string {
	return ts.Server.URL
}

// IssueToken issues a token for deviceID. ttl <= 0 never expires; a
// negative ttl yields a token that is already expired.
func (ts *TestServer) IssueToken(t *testing.T, deviceID string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	var expiresAt int64
	if ttl != 0 {
		expiresAt = clock.Millis(now.Add(ttl))
	}
	token, err := ts.Tokens.Issue(context.Background(), deviceID, expiresAt, clock.Millis(now))
	require.NoError(t, err)
	return token
}
