package cmd

import (
	"embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/msalah0e/canopy/internal/config"
	"github.com/msalah0e/canopy/internal/logging"
	"github.com/msalah0e/canopy/internal/ui"
	"github.com/spf13/cobra"
)

var version = "0.3.0"

var (
	samplesFS embed.FS

	configPath string
	noColor    bool
	logLevel   string
	seed       uint64

	cfg    *config.Config
	logger *logging.Logger
)

// SetSamplesFS sets the embedded filesystem holding the sample hierarchies.
func SetSamplesFS(fs embed.FS) {
	samplesFS = fs
}

var rootCmd = &cobra.Command{
	Use:   "canopy",
	Short: "canopy — force-directed tree layout with expand/collapse",
	Long: ui.Brand.Sprint(ui.Canopy+" canopy") + " — lay out and explore hierarchies as force-directed trees\n" +
		ui.Subtle.Sprint("Large sibling groups start collapsed; click to expand, drag to pin"),
	Version:       version + " " + ui.Canopy,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := loadConfig()
		if err != nil {
			ui.Bad.Fprintf(os.Stderr, "canopy: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		ui.SetColor(cfg.UI.Color && !noColor && os.Getenv("NO_COLOR") == "")

		l, err := logging.New(logging.Config{Level: cfg.Log.Level, Dir: cfg.Log.Dir, Service: "canopy"})
		if err != nil {
			ui.Warn.Fprintf(os.Stderr, "  %s logging: %v\n", ui.WarnIcon(), err)
		}
		logger = l
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate("canopy {{ .Version }}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/canopy/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Random seed for reproducible layouts (0 = random)")

	rootCmd.AddCommand(
		layoutCmd(),
		treeCmd(),
		topCmd(),
		serveCmd(),
		configCmd(),
		samplesCmd(),
		completionCmd(),
	)
}

// loadConfig reads --config when given, the default path otherwise, and
// applies flag overrides.
func loadConfig() (*config.Config, error) {
	var c *config.Config
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		c = loaded
	} else {
		c = config.Load()
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if seed != 0 {
		c.Engine.Seed = seed
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// slogger returns the command logger, or a discarding one before setup.
func slogger() *slog.Logger {
	if logger == nil {
		return logging.Discard()
	}
	return logger.Slog()
}

func fatal(format string, args ...any) {
	ui.Bad.Fprintf(os.Stderr, "  "+format+"\n", args...)
	os.Exit(1)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
