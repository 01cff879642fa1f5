package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/anduleh/save-to-google-photos/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file, token and history locations",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		redacted := *cc.Cfg
		if redacted.ClientSecret != "" {
			redacted.ClientSecret = "<redacted>"
		}

		return printJSON(os.Stdout, &redacted)
	}

	return config.RenderEffective(cc.Cfg, cc.CfgPath, os.Stdout)
}

// pathsOutput is the JSON schema for `config path --json`.
type pathsOutput struct {
	Config  string `json:"config"`
	Token   string `json:"token"`
	History string `json:"history"`
	PIDFile string `json:"pid_file"`
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	out := pathsOutput{
		Config:  cc.CfgPath,
		Token:   cc.Cfg.TokenPath,
		History: cc.Cfg.HistoryPath,
		PIDFile: config.PIDFilePath(),
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	printTable(os.Stdout, []string{"WHAT", "PATH"}, [][]string{
		{"config", out.Config},
		{"token", out.Token},
		{"history", out.History},
		{"pid file", out.PIDFile},
	})

	return nil
}
