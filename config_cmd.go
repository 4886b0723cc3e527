package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/hive/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	cmd.Flags().String("format", config.FormatTOML, "output format: toml or yaml")

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	return config.RenderEffective(cc.Cfg, format, cc.Out)
}
