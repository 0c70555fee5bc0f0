package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/domain/station"
	"github.com/spf13/cobra"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Run   int
	Point string
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record [bib]",
		Short: "Record a bib crossing the timing point now",
		Long: `Record a bib crossing the timing point now.

Run and point default to the station settings. The bib may be left out
and filled in later with "timingd edit".

Example:
  timingd record 42 --point F --run 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := station.RecordRequest{Run: opts.Run, Point: opts.Point}
			if len(args) == 1 {
				req.Bib = args[0]
			}
			return opts.withStation(cmd.Context(), func(env *stationEnv) error {
				res, err := env.Station.Record(cmd.Context(), req)
				if err != nil {
					return err
				}
				return opts.output(cmd).Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "Recorded %s\n", formatEntry(res.Entry))
					if res.NextBib != "" {
						fmt.Fprintf(w, "Next bib: %s\n", res.NextBib)
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Run, "run", 0, "run number (default from settings)")
	cmd.Flags().StringVar(&opts.Point, "point", "", "timing point S|F (default from settings)")

	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <entry-id> <bib>",
		Short: "Correct the bib of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStation(cmd.Context(), func(env *stationEnv) error {
				e, err := env.Station.EditBib(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return rootOpts.output(cmd).Success(e, func(w io.Writer) {
					fmt.Fprintf(w, "Updated %s\n", formatEntry(e))
				})
			})
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <entry-id>",
		Aliases: []string{"rm"},
		Short:   "Remove an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStation(cmd.Context(), func(env *stationEnv) error {
				if err := env.Station.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				return rootOpts.output(cmd).Success(map[string]string{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %s\n", args[0])
				})
			})
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Race string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recorded entries in recording order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStation(cmd.Context(), func(env *stationEnv) error {
				entries := env.Station.Entries(opts.Race)
				if entries == nil {
					entries = []entry.Entry{}
				}
				return opts.output(cmd).Success(entries, func(w io.Writer) {
					writeEntries(w, entries)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Race, "race", "", "only entries of this race")

	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise recorded entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStation(cmd.Context(), func(env *stationEnv) error {
				stats := env.Station.Stats()
				return rootOpts.output(cmd).Success(stats, func(w io.Writer) {
					fmt.Fprintf(w, "Entries: %d (starts %d, finishes %d)\n", stats.Total, stats.Starts, stats.Finishes)
					fmt.Fprintf(w, "Bibs: %d  Without race: %d  Pending sync: %d\n", stats.UniqueBibs, stats.Ungrouped, stats.Pending)
					if len(stats.PerBib) == 0 {
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "BIB\tSTARTS\tFINISHES\tRUNS")
					for _, b := range stats.PerBib {
						fmt.Fprintf(tw, "%s\t%d\t%d\t%v\n", b.Bib, b.Starts, b.Finishes, b.Runs)
					}
					tw.Flush()
				})
			})
		},
	}
}

func writeEntries(w io.Writer, entries []entry.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tBIB\tRUN\tPOINT\tRACE\tSYNC\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			formatTime(e.Timestamp), orDash(e.Bib), e.Run, e.Point, orDash(e.RaceID), e.Sync, e.ID)
	}
	tw.Flush()
}

func formatEntry(e entry.Entry) string {
	return fmt.Sprintf("bib %s run %d %s at %s (%s)", orDash(e.Bib), e.Run, e.Point, formatTime(e.Timestamp), e.ID)
}

func formatTime(ms int64) string {
	return clock.FromMillis(ms).Local().Format("15:04:05.000")
}

func formatDay(ms int64) string {
	return clock.FromMillis(ms).Local().Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
