package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/domain/race"
	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/rpggio/skitimer/internal/domain/station"
	"github.com/rpggio/skitimer/internal/sqlite"
	"github.com/rpggio/skitimer/internal/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "timingd", cmd.Use)
	assert.Contains(t, cmd.Long, "offline first")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"record", "edit", "remove", "list", "stats", "races", "join", "sync", "show", "settings", "serve", "token", "mcp"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	races, _, err := cmd.Find([]string{"races"})
	require.NoError(t, err)
	for _, name := range []string{"today", "limit", "clear"} {
		assert.NotNil(t, races.Flags().Lookup(name), name)
	}
}

// stationEnvVars points the station and gateway databases at a temp dir.
func stationEnvVars(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SKITIMER_CONFIG_PATH", "")
	t.Setenv("SKITIMER_LOG_PATH", "")
	t.Setenv("SKITIMER_REMOTE_URL", "")
	t.Setenv("SKITIMER_TOKEN", "")
	t.Setenv("SKITIMER_STATION_DB_PATH", filepath.Join(dir, "station.db"))
	t.Setenv("SKITIMER_DB_PATH", filepath.Join(dir, "gateway.db"))
	t.Setenv("SKITIMER_DEVICE_ID", "start-1")
	return dir
}

func run(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Execute(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

// runJSON runs args with --format json and decodes the data payload.
func runJSON(t *testing.T, dst any, args ...string) CLIResponse {
	t.Helper()
	stdout, stderr, code := run(t, append(args, "--format", "json")...)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout=%q stderr=%q", stdout, stderr)
	if resp.Status == "ok" {
		require.Equal(t, ExitSuccess, code)
		if dst != nil {
			require.NoError(t, json.Unmarshal(resp.Data, dst))
		}
	} else {
		require.NotEqual(t, ExitSuccess, code)
	}
	return CLIResponse{Status: resp.Status, Error: resp.Error}
}

func TestRecordListStats(t *testing.T) {
	stationEnvVars(t)

	var recorded station.RecordResult
	runJSON(t, &recorded, "record", "009")
	require.Equal(t, "009", recorded.Entry.Bib)
	require.Equal(t, entry.PointStart, recorded.Entry.Point)
	require.Equal(t, "010", recorded.NextBib)

	runJSON(t, nil, "record", "010", "--point", "finish", "--run", "2")

	var listed []entry.Entry
	runJSON(t, &listed, "list")
	require.Len(t, listed, 2)
	require.Equal(t, recorded.Entry.ID, listed[0].ID)
	require.Equal(t, entry.PointFinish, listed[1].Point)
	require.Equal(t, 2, listed[1].Run)

	stdout, _, code := run(t, "stats")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, stdout, "Entries: 2 (starts 1, finishes 1)")

	var edited entry.Entry
	runJSON(t, &edited, "edit", recorded.Entry.ID, "19")
	require.Equal(t, "19", edited.Bib)

	runJSON(t, nil, "remove", recorded.Entry.ID)
	runJSON(t, &listed, "list")
	require.Len(t, listed, 1)
}

func TestErrors(t *testing.T) {
	stationEnvVars(t)

	_, stderr, code := run(t, "list", "--format", "yaml")
	require.Equal(t, ExitCommandError, code)
	require.Contains(t, stderr, "invalid format")

	resp := runJSON(t, nil, "record", "1234567")
	require.Equal(t, "error", resp.Status)
	require.Equal(t, "INVALID_BIB", resp.Error.Code)

	resp = runJSON(t, nil, "edit", "missing", "1")
	require.Equal(t, "ENTRY_NOT_FOUND", resp.Error.Code)

	resp = runJSON(t, nil, "sync")
	require.Equal(t, "SYNC_DISABLED", resp.Error.Code)

	_, stderr, code = run(t, "record", "7", "--point", "X")
	require.Equal(t, ExitFailure, code)
	require.Contains(t, stderr, "INVALID_POINT")
}

func TestSettings(t *testing.T) {
	stationEnvVars(t)

	var got settings.Settings
	runJSON(t, &got, "settings")
	require.Equal(t, settings.Defaults(), got)

	runJSON(t, &got, "settings", "--set", "cloudSync=true", "--set", "defaultPoint=f", "--set", "defaultRun=2")
	require.True(t, got.CloudSync)
	require.Equal(t, "F", got.DefaultPoint)
	require.Equal(t, 2, got.DefaultRun)

	_, _, code := run(t, "settings", "--set", "cloudSync=true", "--set", "color=red")
	require.Equal(t, ExitCommandError, code)
	_, _, code = run(t, "settings", "--set", "defaultRun=0")
	require.Equal(t, ExitFailure, code)

	runJSON(t, &got, "settings")
	require.Equal(t, 2, got.DefaultRun, "rejected changes are not persisted")

	var recorded station.RecordResult
	runJSON(t, &recorded, "record", "5")
	require.Equal(t, entry.PointFinish, recorded.Entry.Point)
	require.Equal(t, 2, recorded.Entry.Run)
}

func TestJoinAndRaces(t *testing.T) {
	stationEnvVars(t)

	runJSON(t, nil, "record", "1")

	var joined station.JoinResult
	runJSON(t, &joined, "join", "GS-Women")
	require.Equal(t, "GS-Women", joined.RaceID)
	require.Equal(t, 1, joined.Adopted)

	runJSON(t, nil, "record", "2")

	var sessions []race.Session
	runJSON(t, &sessions, "races", "--today")
	require.Len(t, sessions, 1)
	require.Equal(t, "GS-Women", sessions[0].RaceID)
	require.Equal(t, 2, sessions[0].EntryCount)

	runJSON(t, nil, "races", "--clear")
	runJSON(t, &sessions, "races")
	require.Empty(t, sessions)
}

func TestSyncAndShow(t *testing.T) {
	stationEnvVars(t)
	ts := testserver.New(t, "start-1")
	t.Setenv("SKITIMER_REMOTE_URL", ts.URL())
	t.Setenv("SKITIMER_TOKEN", ts.Token)

	runJSON(t, nil, "settings", "--set", "cloudSync=true")
	runJSON(t, nil, "join", "SL-1")
	runJSON(t, nil, "record", "7")
	runJSON(t, nil, "record", "8")

	var report station.SyncReport
	runJSON(t, &report, "sync")
	require.Equal(t, "SL-1", report.RaceID)
	require.Equal(t, 2, report.Pushed)
	require.Zero(t, report.Remaining)

	state, err := ts.Races.GetRace(context.Background(), "sl-1")
	require.NoError(t, err)
	require.Equal(t, 2, state.EntryCount)

	var listed []entry.Entry
	runJSON(t, &listed, "list")
	for _, e := range listed {
		require.Equal(t, entry.SyncSynced, e.Sync)
	}

	stdout, _, code := run(t, "show", "SL-1")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, stdout, "SL-1: 2 entries")

	// The gateway is gone; the cached copy remains browsable.
	ts.Server.Close()
	stdout, _, code = run(t, "show", "SL-1")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, stdout, "(cached)")
}

func TestSyncOffline(t *testing.T) {
	stationEnvVars(t)
	t.Setenv("SKITIMER_REMOTE_URL", "http://127.0.0.1:1")
	t.Setenv("SKITIMER_TOKEN", "unused")

	runJSON(t, nil, "settings", "--set", "cloudSync=true")
	runJSON(t, nil, "join", "SL-2")
	runJSON(t, nil, "record", "3")

	resp := runJSON(t, nil, "sync")
	require.Equal(t, "OFFLINE", resp.Error.Code)

	var stats entry.Stats
	runJSON(t, &stats, "stats")
	require.Equal(t, 1, stats.Pending)
}

func TestTokenIssue(t *testing.T) {
	dir := stationEnvVars(t)

	var issued struct {
		DeviceID  string `json:"deviceId"`
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	runJSON(t, &issued, "token", "issue", "--device", "finish-1", "--ttl", "1h")
	require.Equal(t, "finish-1", issued.DeviceID)
	require.NotEmpty(t, issued.Token)
	require.NotZero(t, issued.ExpiresAt)

	db, err := sqlite.New(filepath.Join(dir, "gateway.db"))
	require.NoError(t, err)
	defer db.Close()
	tok, err := sqlite.NewTokenRepository(db).Lookup(context.Background(), issued.Token)
	require.NoError(t, err)
	require.Equal(t, "finish-1", tok.DeviceID)
	require.Equal(t, issued.ExpiresAt, tok.ExpiresAt)

	_, _, code := run(t, "token", "issue", "--device", "bad id")
	require.Equal(t, ExitCommandError, code)
}

func TestLogFileWriter_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "timingd.log")
	w, file, err := newLogFileWriter(path)
	require.NoError(t, err)
	defer file.Close()
	w.maxSize, w.keep = 16, 8

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Write([]byte("abcdefghij"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "cdefghij", string(data))
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLogLevel("debug").String())
	require.Equal(t, "WARN", parseLogLevel("warn").String())
	require.Equal(t, "ERROR", parseLogLevel("error").String())
	require.Equal(t, "INFO", parseLogLevel("anything").String())
}
