package mcp

import (
	"context"
	"io"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/domain/race"
	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/rpggio/skitimer/internal/domain/station"
)

// StationService defines the station operations exposed as tools.
type StationService interface {
	Record(ctx context.Context, req station.RecordRequest) (station.RecordResult, error)
	EditBib(ctx context.Context, id, bib string) (entry.Entry, error)
	Remove(ctx context.Context, id string) error
	Entries(raceID string) []entry.Entry
	Stats() entry.Stats
	RecentRaces(today bool, limit int) []race.Session
	JoinRace(ctx context.Context, raceID string) (station.JoinResult, error)
	Settings() settings.Settings
	Sync(ctx context.Context) (station.SyncReport, error)
}

// Config contains server configuration.
type Config struct {
	Station StationService
	Version string
	Logger  *slog.Logger
}

// NewServer creates an MCP server with the station tools and traffic
// logging.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "skitimer",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Station)

	return server
}

// Run serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func Run(ctx context.Context, cfg Config) error {
	return NewServer(cfg).Run(ctx, &sdkmcp.StdioTransport{})
}
