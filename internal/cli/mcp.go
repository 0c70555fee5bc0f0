package cli

import (
	"context"
	"errors"

	"github.com/rpggio/skitimer/internal/mcp"
	"github.com/spf13/cobra"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the station as MCP tools over stdio",
		Long: `Serve the station as MCP tools over stdio.

stdout carries JSON-RPC; logs go to stderr or the configured log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStation(cmd.Context(), func(env *stationEnv) error {
				rootOpts.logger.Info("starting stdio transport", "device_id", env.Station.DeviceID())
				err := mcp.Run(cmd.Context(), mcp.Config{
					Station: env.Station,
					Version: Version,
					Logger:  rootOpts.logger,
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
