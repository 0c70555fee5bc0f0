package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/gateway"
	"github.com/rpggio/skitimer/internal/sanitize"
	"github.com/rpggio/skitimer/internal/sqlite"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rootOpts.cfg
			logger := rootOpts.logger

			db, err := openGatewayDB(cfg.DB.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			races := sqlite.NewRaceRepository(db)
			tokens := sqlite.NewTokenRepository(db)
			gw := gateway.NewServer(races, gateway.NewTokenStoreResolver(tokens, nil), db, gatewayConfig(rootOpts), nil, logger)

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           gw.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("gateway listening", "addr", addr, "auth", cfg.Gateway.Auth.Enabled)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			return waitForShutdown(ctx, logger, httpServer, errCh)
		},
	}
}

func gatewayConfig(o *RootOptions) gateway.Config {
	g := o.cfg.Gateway
	return gateway.Config{
		AllowedOrigin:        g.AllowedOrigin,
		CORSMaxAge:           g.CORSMaxAge,
		RateLimit:            g.RateLimit.Requests,
		RateWindow:           g.RateLimit.Window,
		AuthEnabled:          g.Auth.Enabled,
		MaxBodyBytes:         g.MaxBodyBytes,
		MaxEntriesPerRequest: g.MaxEntriesPerRequest,
	}
}

func openGatewayDB(path string) (*sqlite.DB, error) {
	if err := ensureDBDir(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "preparing database path", err)
	}
	db, err := sqlite.New(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "migrating database", err)
	}
	return db, nil
}

// waitForShutdown blocks until ctx is canceled (SIGINT/SIGTERM) or the
// server fails, then drains connections for up to five seconds.
func waitForShutdown(ctx context.Context, logger *slog.Logger, server *http.Server, errCh <-chan error) error {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// TokenIssueOptions holds flags for the token issue command.
type TokenIssueOptions struct {
	*RootOptions
	Device string
	TTL    time.Duration
}

// NewTokenCommand creates the token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage gateway bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCommand(rootOpts))
	return cmd
}

func newTokenIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenIssueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a station",
		Long: `Issue a bearer token for a station.

The token is printed once; the gateway stores only its hash.

Example:
  timingd token issue --device finish-1 --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := sanitize.ID(opts.Device)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --device %q", opts.Device), err)
			}
			if opts.TTL < 0 {
				return NewExitError(ExitCommandError, "--ttl must not be negative")
			}

			db, err := openGatewayDB(opts.cfg.DB.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			now := time.Now()
			var expiresAt int64
			if opts.TTL > 0 {
				expiresAt = clock.Millis(now.Add(opts.TTL))
			}
			token, err := sqlite.NewTokenRepository(db).Issue(cmd.Context(), deviceID, expiresAt, clock.Millis(now))
			if err != nil {
				return err
			}
			opts.logger.Info("token issued", "device_id", deviceID, "ttl", opts.TTL)

			result := map[string]any{"deviceId": deviceID, "token": token, "expiresAt": expiresAt}
			return opts.output(cmd).Success(result, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Device, "device", "", "device id the token authenticates (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime; 0 never expires")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}
