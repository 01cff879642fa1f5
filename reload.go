package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anduleh/save-to-google-photos/internal/config"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask a running serve process to re-read its config file",
		Args:  cobra.NoArgs,
		RunE:  runReload,
	}
}

func runReload(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	pid, err := sendSIGHUP(config.PIDFilePath())
	if err != nil {
		return err
	}

	cc.Logger.Debug("sent SIGHUP", slog.Int("pid", pid))
	cc.Statusf("Reload requested (PID %d).\n", pid)

	return nil
}
