package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/domain/race"
	"github.com/rpggio/skitimer/internal/domain/station"
	"github.com/rpggio/skitimer/internal/remote"
	"github.com/spf13/cobra"
)

// RacesOptions holds flags for the races command.
type RacesOptions struct {
	*RootOptions
	Today bool
	Limit int
	Clear bool
}

// NewRacesCommand creates the races command.
func NewRacesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RacesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "races",
		Short: "List recent races, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStation(cmd.Context(), func(env *stationEnv) error {
				out := opts.output(cmd)
				if opts.Clear {
					if err := env.Station.ClearRecentRaces(cmd.Context()); err != nil {
						return err
					}
					return out.Success(map[string]bool{"cleared": true}, func(w io.Writer) {
						fmt.Fprintln(w, "Recent races cleared")
					})
				}

				limit := opts.Limit
				if opts.Today && limit <= 0 {
					limit = race.DefaultTodayLimit
				}
				sessions := env.Station.RecentRaces(opts.Today, limit)
				if sessions == nil {
					sessions = []race.Session{}
				}
				return out.Success(sessions, func(w io.Writer) {
					if len(sessions) == 0 {
						fmt.Fprintln(w, "No recent races")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "RACE\tENTRIES\tLAST UPDATED")
					for _, s := range sessions {
						fmt.Fprintf(tw, "%s\t%d\t%s\n", s.RaceID, s.EntryCount, formatDay(s.LastUpdated))
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Today, "today", false, "only races created or updated today")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of races (default 5 with --today)")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "forget all recent races")

	return cmd
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <race-id>",
		Short: "Record new entries into a race",
		Long: `Record new entries into a race.

Entries recorded before joining any race are adopted by the race.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStation(cmd.Context(), func(env *stationEnv) error {
				res, err := env.Station.JoinRace(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return rootOpts.output(cmd).Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "Joined %s (%d entries adopted)\n", res.RaceID, res.Adopted)
				})
			})
		},
	}
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending entries to the gateway and pull the joined race",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStation(cmd.Context(), func(env *stationEnv) error {
				report, err := env.Station.Sync(cmd.Context())
				if err != nil {
					if errors.Is(err, remote.ErrOffline) {
						rootOpts.logger.Warn("gateway unreachable, entries stay pending", "error", err)
					}
					return err
				}
				return rootOpts.output(cmd).Success(report, func(w io.Writer) {
					fmt.Fprintf(w, "Synced %s: pushed %d, deleted %d, pulled %d, pending %d\n",
						report.RaceID, report.Pushed, report.Deleted, report.Pulled, report.Remaining)
					if report.NotModified {
						fmt.Fprintln(w, "Race unchanged on the gateway")
					}
				})
			})
		},
	}
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Cached bool
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <race-id>",
		Short: "Show a race as the gateway sees it",
		Long: `Show a race as the gateway sees it, all stations included.

When the gateway is unreachable the last fetched copy is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStation(cmd.Context(), func(env *stationEnv) error {
				if env.Client == nil {
					return station.ErrNoRemote
				}
				ctx := cmd.Context()
				out := opts.output(cmd)

				var state *api.RaceState
				offline := opts.Cached
				if !opts.Cached {
					fetched, _, err := env.Client.FetchRace(ctx, args[0])
					switch {
					case err == nil:
						state = fetched
					case errors.Is(err, remote.ErrOffline):
						offline = true
						out.VerboseLog("gateway unreachable, showing cached copy: %v", err)
					default:
						return err
					}
				}
				if offline {
					cached, ok := env.Client.CachedRace(ctx, args[0])
					if !ok {
						return fmt.Errorf("no cached copy of %s: %w", args[0], remote.ErrOffline)
					}
					state = cached
				}

				return out.Success(state, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d entries", state.RaceID, state.EntryCount)
					if offline {
						fmt.Fprint(w, " (cached)")
					}
					fmt.Fprintln(w)
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "TIME\tBIB\tRUN\tPOINT\tDEVICE")
					for _, e := range state.Entries {
						if e.DeletedAt != 0 {
							continue
						}
						device := e.DeviceName
						if device == "" {
							device = e.DeviceID
						}
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", formatTime(e.Timestamp), orDash(e.Bib), e.Run, e.Point, device)
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Cached, "cached", false, "do not contact the gateway")

	return cmd
}
