package cmd

import (
	"fmt"
	"time"

	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/msalah0e/canopy/internal/layout"
	"github.com/msalah0e/canopy/internal/top"
	"github.com/msalah0e/canopy/internal/ui"
	"github.com/spf13/cobra"
)

func topCmd() *cobra.Command {
	var (
		interval time.Duration
		rows     int
		reheat   time.Duration
	)

	cmd := &cobra.Command{
		Use:               "top <file|sample:NAME>",
		Aliases:           []string{"monitor"},
		Short:             "Watch the simulation run live",
		Long:              ui.Brand.Sprint(ui.Canopy+" canopy top") + " — live alpha, tick rate and node positions",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInputs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := loadInput(args[0])
			if err != nil {
				return err
			}
			g, err := ingest.Ingest(root, cfg.Engine.ClusterThreshold)
			if err != nil {
				return err
			}

			opts := cfg.LayoutOptions()
			opts.Logger = slogger().With("component", "layout")
			engine := layout.New(opts)
			engine.Reseed(g)

			return top.Run(cmd.Context(), engine, top.Config{
				Title:           fmt.Sprintf("canopy top · %s", inputLabel(args[0])),
				RefreshInterval: interval,
				TickInterval:    cfg.Layout.TickInterval.Duration,
				MaxRows:         rows,
				Reheat:          reheat,
				Out:             ui.Out,
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 250*time.Millisecond, "Refresh interval")
	cmd.Flags().IntVar(&rows, "rows", 20, "Node rows to show")
	cmd.Flags().DurationVar(&reheat, "reheat", 0, "Restart the simulation this long after it settles (0 = never)")
	return cmd
}
