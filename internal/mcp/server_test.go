package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/domain/station"
	"github.com/rpggio/skitimer/internal/mcp"
	"github.com/rpggio/skitimer/internal/remote"
	"github.com/rpggio/skitimer/internal/sqlite"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	clk := clock.NewManual(time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC))
	st, err := station.Open(ctx, sqlite.NewKVRepository(db), nil, station.Config{DeviceID: "start-1"}, clk, nil)
	require.NoError(t, err)

	server := mcp.NewServer(mcp.Config{Station: st})
	ct, sst := sdkmcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, sst, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestServer_ListsStationTools(t *testing.T) {
	cs := newSession(t)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"record_entry", "edit_bib", "remove_entry", "list_entries", "entry_stats",
		"recent_races", "join_race", "get_settings", "sync_now",
	}, names)
}

func TestServer_RecordEditRemove(t *testing.T) {
	cs := newSession(t)

	text, isErr := call(t, cs, "join_race", map[string]any{"raceId": "GS-Men"})
	require.False(t, isErr, text)

	text, isErr = call(t, cs, "record_entry", map[string]any{"bib": "009"})
	require.False(t, isErr, text)
	var recorded station.RecordResult
	require.NoError(t, json.Unmarshal([]byte(text), &recorded))
	require.Equal(t, "010", recorded.NextBib)
	require.Equal(t, entry.PointStart, recorded.Entry.Point)
	require.Equal(t, "GS-Men", recorded.Entry.RaceID)

	text, isErr = call(t, cs, "record_entry", map[string]any{"bib": "10", "point": "finish", "run": 2})
	require.False(t, isErr, text)

	text, isErr = call(t, cs, "edit_bib", map[string]any{"id": recorded.Entry.ID, "bib": "19"})
	require.False(t, isErr, text)
	var edited entry.Entry
	require.NoError(t, json.Unmarshal([]byte(text), &edited))
	require.Equal(t, "19", edited.Bib)

	text, isErr = call(t, cs, "remove_entry", map[string]any{"id": recorded.Entry.ID})
	require.False(t, isErr, text)

	text, isErr = call(t, cs, "list_entries", map[string]any{"raceId": "gs-men"})
	require.False(t, isErr, text)
	var listed struct {
		Entries []entry.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &listed))
	require.Equal(t, 1, listed.Count)
	require.Equal(t, entry.PointFinish, listed.Entries[0].Point)

	text, isErr = call(t, cs, "entry_stats", nil)
	require.False(t, isErr, text)
	var stats entry.Stats
	require.NoError(t, json.Unmarshal([]byte(text), &stats))
	require.Equal(t, 1, stats.Finishes)
	require.Equal(t, 2, stats.Pending, "the removal waits for sync too")

	text, isErr = call(t, cs, "recent_races", map[string]any{"today": true})
	require.False(t, isErr, text)
	require.Contains(t, text, `"raceId":"GS-Men"`)
}

func TestServer_ToolErrorsAreCoded(t *testing.T) {
	cs := newSession(t)

	text, isErr := call(t, cs, "edit_bib", map[string]any{"id": "missing", "bib": "1"})
	require.True(t, isErr)
	require.Contains(t, text, "ENTRY_NOT_FOUND")

	text, isErr = call(t, cs, "record_entry", map[string]any{"bib": "1234567"})
	require.True(t, isErr)
	require.Contains(t, text, "INVALID_BIB")

	text, isErr = call(t, cs, "join_race", map[string]any{"raceId": "no spaces"})
	require.True(t, isErr)
	require.Contains(t, text, "INVALID_RACE_ID")

	text, isErr = call(t, cs, "sync_now", nil)
	require.True(t, isErr)
	require.Contains(t, text, "SYNC_DISABLED")
}

func TestServer_DocResources(t *testing.T) {
	cs := newSession(t)

	res, err := cs.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "skitimer://docs/sync"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "# Sync")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("edit: %w", entry.ErrEntryNotFound), "ENTRY_NOT_FOUND"},
		{entry.ErrEntryDeleted, "ENTRY_DELETED"},
		{entry.ErrForeignEntry, "FOREIGN_ENTRY"},
		{entry.ErrInvalidPoint, "INVALID_POINT"},
		{station.ErrNoRace, "NO_RACE"},
		{fmt.Errorf("%w: dial tcp", remote.ErrOffline), "OFFLINE"},
		{&remote.StatusError{Status: http.StatusUnauthorized, Message: "token expired", Expired: true}, "AUTH_EXPIRED"},
		{&remote.StatusError{Status: http.StatusTooManyRequests, Message: "rate limit exceeded", RetryAfter: 12}, "RATE_LIMITED"},
		{&remote.StatusError{Status: http.StatusBadRequest, Message: "invalid bib"}, "GATEWAY_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			apiErr := mcp.MapError(tc.err)
			require.NotNil(t, apiErr)
			require.Equal(t, tc.code, apiErr.Code)
		})
	}

	require.Nil(t, mcp.MapError(nil))
	require.Nil(t, mcp.MapError(errors.New("unclassified")))
}
