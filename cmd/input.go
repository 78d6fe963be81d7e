package cmd

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/msalah0e/canopy/internal/config"
	"github.com/msalah0e/canopy/internal/disclosure"
	"github.com/msalah0e/canopy/internal/hierarchy"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/msalah0e/canopy/internal/layout"
	"github.com/spf13/cobra"
)

const samplePrefix = "sample:"

// loadInput reads a hierarchy file, or an embedded sample when arg is
// "sample:NAME".
func loadInput(arg string) (*hierarchy.Node, error) {
	name, ok := strings.CutPrefix(arg, samplePrefix)
	if !ok {
		return hierarchy.Load(arg)
	}
	if file := sampleFile(name); file != "" {
		return hierarchy.LoadFS(samplesFS, file)
	}
	names, err := hierarchy.Samples(samplesFS, "samples")
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return nil, fmt.Errorf("unknown sample %q (available: %s)", name, strings.Join(names, ", "))
}

// inputLabel is the short name shown for an input in tables and file names.
func inputLabel(arg string) string {
	if name, ok := strings.CutPrefix(arg, samplePrefix); ok {
		return name
	}
	base := path.Base(strings.ReplaceAll(arg, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// completeInputs offers sample names alongside regular file completion.
func completeInputs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !strings.HasPrefix(toComplete, "s") {
		return nil, cobra.ShellCompDirectiveDefault
	}
	names, err := hierarchy.Samples(samplesFS, "samples")
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, samplePrefix+n)
	}
	return out, cobra.ShellCompDirectiveDefault
}

// pipeline is one headless layout: ingest, settle, apply toggles, settle again.
type pipeline struct {
	engine *layout.Engine
	ctrl   *disclosure.Controller
	ticks  int
}

// Toggles name nodes to expand or collapse after the first settle.
type Toggles struct {
	Expand   []string
	Collapse []string
}

func runPipeline(root *hierarchy.Node, c *config.Config, t Toggles, maxTicks int, logger *slog.Logger) (*pipeline, error) {
	g, err := ingest.Ingest(root, c.Engine.ClusterThreshold)
	if err != nil {
		return nil, err
	}

	opts := c.LayoutOptions()
	opts.Logger = logger.With("component", "layout")
	engine := layout.New(opts)

	dopts := c.DisclosureOptions()
	dopts.Reseeder = engine
	dopts.Logger = logger.With("component", "disclosure")
	ctrl := disclosure.New(g, dopts)

	engine.Reseed(g)
	p := &pipeline{engine: engine, ctrl: ctrl}
	p.ticks = engine.Settle(maxTicks)

	if len(t.Expand)+len(t.Collapse) == 0 {
		return p, nil
	}
	for _, id := range t.Expand {
		if _, err := ctrl.Expand(id); err != nil {
			return nil, fmt.Errorf("expand %s: %w", id, err)
		}
	}
	for _, id := range t.Collapse {
		if _, err := ctrl.Collapse(id); err != nil {
			return nil, fmt.Errorf("collapse %s: %w", id, err)
		}
	}
	p.ticks += engine.Settle(maxTicks)
	return p, nil
}
