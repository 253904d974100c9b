package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	dbPath     = "data/pool.db"
	configPath = "config.json"
	verbose    bool
)

var (
	gSettings     = "Settings:"
	gInstallation = "Installation:"
)

func main() {
	if err := NewCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pool-debug",
		Short:         "Inspect and adjust the pool controller's stored settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
		},
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", dbPath, "Path to the SQLite database file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	cmd.AddGroup(
		&cobra.Group{ID: gSettings, Title: gSettings},
		&cobra.Group{ID: gInstallation, Title: gInstallation},
	)
	cmd.AddCommand(
		NewShowCommand(),
		NewSetModeCommand(),
		NewSetParamsCommand(),
		NewHistoryCommand(),
		NewInstallCommand(),
	)
	return cmd
}
