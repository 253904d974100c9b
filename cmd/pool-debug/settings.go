package main

import (
	"database/sql"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/pool-controller/db"
	"github.com/thatsimonsguy/pool-controller/internal/model"
)

func withDB(fn func(conn *sql.DB) error) error {
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func NewShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Short:   "Print the stored mode and control parameters",
		GroupID: gSettings,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(conn *sql.DB) error {
				s, err := db.GetSettings(conn)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "mode\t%s\n", s.Mode)
				fmt.Fprintf(w, "pool max\t%.1f°F\n", s.Params.PoolMaxTemperature)
				fmt.Fprintf(w, "solar min\t%.1f°F\n", s.Params.SolarMinTemperature)
				fmt.Fprintf(w, "hysteresis\t%.1f\n", s.Params.Hysteresis)
				fmt.Fprintf(w, "timer\t%s\n", s.Params.Timer)
				fmt.Fprintf(w, "updated\t%s\n", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
				return w.Flush()
			})
		},
	}
}

func NewSetModeCommand() *cobra.Command {
	modes := make([]string, 0, len(model.Modes))
	for _, m := range model.Modes {
		modes = append(modes, string(m))
	}

	return &cobra.Command{
		Use:       "set-mode [mode]",
		Short:     "Store a new operation mode (" + strings.Join(modes, ", ") + ")",
		Long:      "Store a new operation mode. The running controller applies it on its next cycle.",
		GroupID:   gSettings,
		Args:      cobra.ExactArgs(1),
		ValidArgs: modes,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := model.ParseMode(args[0])
			if err != nil {
				return err
			}
			return withDB(func(conn *sql.DB) error {
				if err := db.UpdateOperationMode(conn, mode); err != nil {
					return err
				}
				cmd.Printf("operation mode set to %s\n", mode)
				return nil
			})
		},
	}
}

type paramFlags struct {
	poolMax    float64
	solarMin   float64
	hysteresis float64
	timerStart string
	timerEnd   string
}

// apply overlays only the flags the user actually set.
func (f paramFlags) apply(cmd *cobra.Command, p model.ControlParams) (model.ControlParams, error) {
	flags := cmd.Flags()
	if flags.Changed("pool-max") {
		p.PoolMaxTemperature = f.poolMax
	}
	if flags.Changed("solar-min") {
		p.SolarMinTemperature = f.solarMin
	}
	if flags.Changed("hysteresis") {
		p.Hysteresis = f.hysteresis
	}
	if flags.Changed("timer-start") {
		t, err := model.ParseTimeOfDay(f.timerStart)
		if err != nil {
			return p, err
		}
		p.Timer.Start = t
	}
	if flags.Changed("timer-end") {
		t, err := model.ParseTimeOfDay(f.timerEnd)
		if err != nil {
			return p, err
		}
		p.Timer.End = t
	}
	return p, p.Validate()
}

func NewSetParamsCommand() *cobra.Command {
	var f paramFlags

	cmd := &cobra.Command{
		Use:     "set-params",
		Short:   "Store new control parameters",
		Long:    "Store new control parameters. Unset flags keep their stored value; the result is validated as a whole.",
		GroupID: gSettings,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(conn *sql.DB) error {
				s, err := db.GetSettings(conn)
				if err != nil {
					return err
				}
				p, err := f.apply(cmd, s.Params)
				if err != nil {
					return err
				}
				if err := db.UpdateControlParams(conn, p); err != nil {
					return err
				}
				cmd.Printf("control parameters updated: pool max %.1f, solar min %.1f, hysteresis %.1f, timer %s\n",
					p.PoolMaxTemperature, p.SolarMinTemperature, p.Hysteresis, p.Timer)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&f.poolMax, "pool-max", 0, "Pool temperature ceiling (°F)")
	cmd.Flags().Float64Var(&f.solarMin, "solar-min", 0, "Minimum useful solar collector temperature (°F)")
	cmd.Flags().Float64Var(&f.hysteresis, "hysteresis", 0, "Dead-band width (°F)")
	cmd.Flags().StringVar(&f.timerStart, "timer-start", "", "Timer window start, HH:MM")
	cmd.Flags().StringVar(&f.timerEnd, "timer-end", "", "Timer window end, HH:MM")
	return cmd
}

func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "Print recent relay switching events",
		GroupID: gSettings,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("limit must be positive")
			}
			return withDB(func(conn *sql.DB) error {
				events, err := db.GetRecentActuatorEvents(conn, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tRELAY\tSTATE\tMODE\tSOURCE\tCYCLE")
				for _, e := range events {
					state := "off"
					if e.State {
						state = "on"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						e.ChangedAt.Local().Format("2006-01-02 15:04:05"), e.Actuator, state, e.Mode, e.Source, e.CycleID)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	return cmd
}
