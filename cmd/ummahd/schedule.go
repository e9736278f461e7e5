package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ummah-sync/config"
	"ummah-sync/internal/model"
	"ummah-sync/internal/prayer"
)

// ScheduleOptions holds flags shared by the schedule and next commands.
type ScheduleOptions struct {
	*RootOptions
	Lat  float64
	Lng  float64
	Date string
	JSON bool
}

func (o *ScheduleOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&o.Lat, "lat", 0, "latitude (defaults to the configured position)")
	cmd.Flags().Float64Var(&o.Lng, "lng", 0, "longitude (defaults to the configured position)")
	cmd.Flags().BoolVar(&o.JSON, "json", false, "print JSON")
}

// coordinate resolves the flags, then the configured device position,
// then the configured default.
func (o *ScheduleOptions) coordinate(cmd *cobra.Command, cfg *config.Config) model.Coordinate {
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		return model.Coordinate{Lat: o.Lat, Lng: o.Lng}
	}
	if cfg.Location.DeviceLat != nil && cfg.Location.DeviceLng != nil {
		return model.Coordinate{Lat: *cfg.Location.DeviceLat, Lng: *cfg.Location.DeviceLng}
	}
	return model.Coordinate{Lat: cfg.Location.DefaultLat, Lng: cfg.Location.DefaultLng}
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the prayer schedule of a day",
		Example: `  ummahd schedule
  ummahd schedule --lat 21.4225 --lng 39.8262 --date 2024-03-11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			date := time.Now().In(cfg.Location.Zone)
			if opts.Date != "" {
				d, err := time.ParseInLocation(time.DateOnly, opts.Date, cfg.Location.Zone)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", opts.Date, err)
				}
				date = d
			}
			c := opts.coordinate(cmd, cfg)
			return printSchedule(cmd.OutOrStdout(), prayer.ForLocation(date, &c), opts.JSON)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Date, "date", "", "day as YYYY-MM-DD (defaults to today)")

	return cmd
}

// NewNextCommand creates the next command.
func NewNextCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the next prayer and the time left until it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			now := time.Now().In(cfg.Location.Zone)
			c := opts.coordinate(cmd, cfg)
			next := prayer.Next(prayer.ForLocation(now, &c), now)
			if opts.JSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(next)
			}
			when := "today"
			if next.Tomorrow {
				when = "tomorrow"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at %s %s, in %dh%02dm\n",
				next.Prayer, next.Time, when, next.Remaining/60, next.Remaining%60)
			return nil
		},
	}
	opts.bind(cmd)

	return cmd
}

func printSchedule(w io.Writer, s prayer.Schedule, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(s)
	}
	fmt.Fprintf(w, "%s\n", s.Date)
	for _, n := range prayer.Order {
		fmt.Fprintf(w, "  %-8s %s\n", n, s.Time(n))
	}
	if s.Fallback {
		fmt.Fprintln(w, "  (fallback times: the calculation failed for this place and day)")
	}
	return nil
}
