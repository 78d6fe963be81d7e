package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/msalah0e/canopy/internal/config"
	"github.com/msalah0e/canopy/internal/ui"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as TOML",
			Run: func(cmd *cobra.Command, args []string) {
				showConfig()
			},
		},
		configInitCmd(),
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(ui.Out, activeConfigPath())
			},
		},
	)
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Run: func(cmd *cobra.Command, args []string) {
			path := activeConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				ui.Warn.Fprintf(ui.Out, "  %s %s already exists (use --force to overwrite)\n", ui.WarnIcon(), path)
				return
			}
			if err := config.SaveFile(path, config.Default()); err != nil {
				fatal("write config: %v", err)
			}
			fmt.Fprintf(ui.Out, "  %s wrote %s\n", ui.StatusIcon(true), path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func activeConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}

func showConfig() {
	fmt.Fprintln(ui.Out, ui.Subtle.Sprintf("# %s", activeConfigPath()))
	if err := toml.NewEncoder(ui.Out).Encode(cfg); err != nil {
		fatal("encode config: %v", err)
	}
}
