package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/spf13/cobra"
)

// SettingsOptions holds flags for the settings command.
type SettingsOptions struct {
	*RootOptions
	Set []string
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change station settings",
		Long: `Show or change station settings.

Keys: language, defaultRun, defaultPoint, autoIncrement, haptics, sound,
gpsSync, cloudSync, deviceName. Use "timingd join" to change the race.

Example:
  timingd settings --set cloudSync=true --set defaultPoint=F`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseAssignments(opts.Set)
			if err != nil {
				return err
			}
			return opts.withStation(cmd.Context(), func(env *stationEnv) error {
				current := env.Station.Settings()
				if len(changes) > 0 {
					next := current
					for _, c := range changes {
						if err := applySetting(&next, c[0], c[1]); err != nil {
							return err
						}
					}
					current, err = env.Station.UpdateSettings(cmd.Context(), func(s *settings.Settings) {
						raceID := s.RaceID
						*s = next
						s.RaceID = raceID
					})
					if err != nil {
						return err
					}
				}
				return opts.output(cmd).Success(current, func(w io.Writer) {
					writeSettings(w, current)
				})
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "key=value to change (repeatable)")

	return cmd
}

func parseAssignments(raw []string) ([][2]string, error) {
	changes := make([][2]string, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --set %q: want key=value", kv))
		}
		changes = append(changes, [2]string{strings.TrimSpace(key), strings.TrimSpace(value)})
	}
	return changes, nil
}

func applySetting(s *settings.Settings, key, value string) error {
	var err error
	switch key {
	case "language":
		s.Language = value
	case "defaultRun":
		s.DefaultRun, err = strconv.Atoi(value)
	case "defaultPoint":
		s.DefaultPoint = strings.ToUpper(value)
	case "autoIncrement":
		s.AutoIncrement, err = strconv.ParseBool(value)
	case "haptics":
		s.Haptics, err = strconv.ParseBool(value)
	case "sound":
		s.Sound, err = strconv.ParseBool(value)
	case "gpsSync":
		s.GPSSync, err = strconv.ParseBool(value)
	case "cloudSync":
		s.CloudSync, err = strconv.ParseBool(value)
	case "deviceName":
		s.DeviceName = value
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown setting %q", key))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid value for %s", key), err)
	}
	return nil
}

func writeSettings(w io.Writer, s settings.Settings) {
	fmt.Fprintf(w, "language:      %s\n", s.Language)
	fmt.Fprintf(w, "defaultRun:    %d\n", s.DefaultRun)
	fmt.Fprintf(w, "defaultPoint:  %s\n", s.DefaultPoint)
	fmt.Fprintf(w, "autoIncrement: %t\n", s.AutoIncrement)
	fmt.Fprintf(w, "haptics:       %t\n", s.Haptics)
	fmt.Fprintf(w, "sound:         %t\n", s.Sound)
	fmt.Fprintf(w, "gpsSync:       %t\n", s.GPSSync)
	fmt.Fprintf(w, "cloudSync:     %t\n", s.CloudSync)
	fmt.Fprintf(w, "raceId:        %s\n", orDash(s.RaceID))
	fmt.Fprintf(w, "deviceName:    %s\n", orDash(s.DeviceName))
}
