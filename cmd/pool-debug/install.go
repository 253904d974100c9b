package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/env"
	"github.com/thatsimonsguy/pool-controller/system/startup"
)

func NewInstallCommand() *cobra.Command {
	var (
		binary  string
		user    string
		workdir string
		runNow  bool
	)

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Write the boot-time relay script and systemd units",
		GroupID: gInstallation,
		Long: `Write the boot-time relay script and systemd units.

The script parks every configured relay at its inactive level before the
controller starts, so the pumps stay off across reboots until the
controller has loaded its settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if abs, err := filepath.Abs(cfg.ConfigFile); err == nil {
				cfg.ConfigFile = abs
			}
			env.Cfg = &cfg

			if err := startup.WriteStartupScript(); err != nil {
				return fmt.Errorf("failed to write boot script: %w", err)
			}
			cmd.Printf("wrote %s\n", cfg.BootScriptFilePath)

			if err := startup.InstallStartupService(); err != nil {
				return fmt.Errorf("failed to write startup unit: %w", err)
			}
			cmd.Printf("wrote %s\n", cfg.OSServicePath)

			if err := startup.InstallControllerService(binary, user, workdir); err != nil {
				return fmt.Errorf("failed to write controller unit: %w", err)
			}
			cmd.Printf("wrote %s\n", cfg.MainServicePath)

			if runNow {
				if err := startup.RunStartupScript(); err != nil {
					return fmt.Errorf("boot script failed: %w", err)
				}
				cmd.Println("relays parked")
			}
			cmd.Println("run `systemctl daemon-reload` and enable both units to finish")
			return nil
		},
	}

	wd, _ := os.Getwd()
	cmd.Flags().StringVar(&configPath, "config", configPath, "Path to controller config file")
	cmd.Flags().StringVar(&binary, "binary", "/usr/local/bin/pool-controller", "Path of the controller binary")
	cmd.Flags().StringVar(&user, "user", "root", "User the controller runs as")
	cmd.Flags().StringVar(&workdir, "workdir", wd, "Working directory of the controller")
	cmd.Flags().BoolVar(&runNow, "run", false, "Run the boot script immediately")
	return cmd
}
