package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/domain/race"
	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/rpggio/skitimer/internal/domain/station"
)

type recordEntryInput struct {
	Bib   string `json:"bib,omitempty" jsonschema:"bib number, up to 6 digits; may be empty and edited later"`
	Run   int    `json:"run,omitempty" jsonschema:"run number, defaults to the station's default run"`
	Point string `json:"point,omitempty" jsonschema:"timing point: S (start) or F (finish), defaults to the station's default point"`
}

type editBibInput struct {
	ID  string `json:"id" jsonschema:"entry id"`
	Bib string `json:"bib" jsonschema:"corrected bib"`
}

type removeEntryInput struct {
	ID string `json:"id" jsonschema:"entry id"`
}

type removeEntryOutput struct {
	Removed string `json:"removed"`
}

type listEntriesInput struct {
	RaceID string `json:"raceId,omitempty" jsonschema:"only entries of this race; all entries when empty"`
}

type listEntriesOutput struct {
	Entries []entry.Entry `json:"entries"`
	Count   int           `json:"count"`
}

type recentRacesInput struct {
	Today bool `json:"today,omitempty" jsonschema:"only races created or updated today"`
	Limit int  `json:"limit,omitempty" jsonschema:"maximum number of races"`
}

type recentRacesOutput struct {
	Races []race.Session `json:"races"`
}

type joinRaceInput struct {
	RaceID string `json:"raceId" jsonschema:"race id: letters, digits, '-' or '_'"`
}

type noInput struct{}

func registerTools(server *sdkmcp.Server, st StationService) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "record_entry",
		Description: "Record a bib crossing the timing point now.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in recordEntryInput) (*sdkmcp.CallToolResult, station.RecordResult, error) {
		res, err := st.Record(ctx, station.RecordRequest{Bib: in.Bib, Run: in.Run, Point: in.Point})
		if err != nil {
			return nil, station.RecordResult{}, toolError(err)
		}
		return nil, res, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "edit_bib",
		Description: "Correct the bib of a recorded entry.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in editBibInput) (*sdkmcp.CallToolResult, entry.Entry, error) {
		e, err := st.EditBib(ctx, in.ID, in.Bib)
		if err != nil {
			return nil, entry.Entry{}, toolError(err)
		}
		return nil, e, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "remove_entry",
		Description: "Remove a recorded entry. Other stations learn about the removal on sync.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in removeEntryInput) (*sdkmcp.CallToolResult, removeEntryOutput, error) {
		if err := st.Remove(ctx, in.ID); err != nil {
			return nil, removeEntryOutput{}, toolError(err)
		}
		return nil, removeEntryOutput{Removed: in.ID}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_entries",
		Description: "List recorded entries in recording order.",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, in listEntriesInput) (*sdkmcp.CallToolResult, listEntriesOutput, error) {
		entries := st.Entries(in.RaceID)
		if entries == nil {
			entries = []entry.Entry{}
		}
		return nil, listEntriesOutput{Entries: entries, Count: len(entries)}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "entry_stats",
		Description: "Count starts, finishes and pending entries, with a per-bib breakdown.",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, entry.Stats, error) {
		stats := st.Stats()
		if stats.PerBib == nil {
			stats.PerBib = []entry.BibStats{}
		}
		return nil, stats, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "recent_races",
		Description: "List races this station took part in, most recent first.",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, in recentRacesInput) (*sdkmcp.CallToolResult, recentRacesOutput, error) {
		limit := in.Limit
		if in.Today && limit <= 0 {
			limit = race.DefaultTodayLimit
		}
		races := st.RecentRaces(in.Today, limit)
		if races == nil {
			races = []race.Session{}
		}
		return nil, recentRacesOutput{Races: races}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "join_race",
		Description: "Record new entries into a race. Entries recorded before joining any race are adopted.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in joinRaceInput) (*sdkmcp.CallToolResult, station.JoinResult, error) {
		res, err := st.JoinRace(ctx, in.RaceID)
		if err != nil {
			return nil, station.JoinResult{}, toolError(err)
		}
		return nil, res, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_settings",
		Description: "Show the station settings (defaults for run and point, joined race, sync switches).",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, settings.Settings, error) {
		return nil, st.Settings(), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sync_now",
		Description: "Push pending entries of the joined race to the gateway and pull other stations' entries.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, station.SyncReport, error) {
		report, err := st.Sync(ctx)
		if err != nil {
			return nil, station.SyncReport{}, toolError(err)
		}
		return nil, report, nil
	})
}
