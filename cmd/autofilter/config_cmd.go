package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autofilter/autofilter/internal/config"
)

func newConfigCmd(cfg *config.RuntimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the daemon configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.ConfigPath()
			if err := config.InitFile(path, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg.Show(cmd.OutOrStdout())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nConfig file: %s\n", config.ConfigPath())
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
