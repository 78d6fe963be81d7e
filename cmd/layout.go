package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/parallel"
	"github.com/msalah0e/canopy/internal/render"
	"github.com/msalah0e/canopy/internal/ui"
	"github.com/spf13/cobra"
)

func layoutCmd() *cobra.Command {
	var (
		toggles  Toggles
		svgOut   string
		asJSON   bool
		asDOT    bool
		maxTicks int
	)

	cmd := &cobra.Command{
		Use:   "layout <file|sample:NAME>...",
		Short: "Settle a hierarchy headless and print the layout",
		Long: `Ingest one or more hierarchies, run the force simulation until it settles
and print the resulting positions. --expand and --collapse apply toggles after
the first settle, and the layout settles again.

Several inputs are laid out in parallel; --svg then names a directory.`,
		Example: `  canopy layout sample:clusters
  canopy layout org.yaml --expand platform --svg org.svg
  canopy layout a.json b.yaml --svg out/`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeInputs,
		Run: func(cmd *cobra.Command, args []string) {
			if maxTicks == 0 {
				maxTicks = cfg.Layout.MaxTicks
			}
			if len(args) == 1 {
				layoutOne(args[0], toggles, maxTicks, svgOut, asJSON, asDOT)
				return
			}
			if asJSON || asDOT {
				fatal("--json and --dot take a single input")
			}
			layoutMany(cmd.Context(), args, toggles, maxTicks, svgOut)
		},
	}

	cmd.Flags().StringSliceVar(&toggles.Expand, "expand", nil, "Expand this node after settling (repeatable)")
	cmd.Flags().StringSliceVar(&toggles.Collapse, "collapse", nil, "Collapse this node after settling (repeatable)")
	cmd.Flags().StringVar(&svgOut, "svg", "", "Write an SVG (a directory when given several inputs)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the visible graph as JSON")
	cmd.Flags().BoolVar(&asDOT, "dot", false, "Print the visible graph in Graphviz DOT format")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", 0, "Stop after this many ticks (default layout.max_ticks)")
	cmd.MarkFlagsMutuallyExclusive("json", "dot")
	return cmd
}

func layoutOne(arg string, t Toggles, maxTicks int, svgOut string, asJSON, asDOT bool) {
	root, err := loadInput(arg)
	if err != nil {
		fatal("%v", err)
	}
	p, err := runPipeline(root, cfg, t, maxTicks, slogger())
	if err != nil {
		fatal("%v", err)
	}
	g := p.engine.Graph()

	if svgOut != "" {
		if err := writeSVG(svgOut, p); err != nil {
			fatal("%v", err)
		}
	}

	switch {
	case asJSON:
		data, err := g.ExportJSON()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Fprintln(ui.Out, string(data))
	case asDOT:
		fmt.Fprint(ui.Out, g.ExportDOT())
	default:
		ui.Banner("layout")
		printNodeTable(g)
		s := g.Stats()
		fmt.Fprintf(ui.Out, "\n  %d nodes, %d links, %d collapsed · %d ticks\n", s.Nodes, s.Links, s.Collapsed, p.ticks)
		if svgOut != "" {
			ui.Good.Fprintf(ui.Out, "  %s wrote %s\n", ui.StatusIcon(true), svgOut)
		}
		fmt.Fprintln(ui.Out)
	}
}

type settled struct {
	stats graph.Stats
	ticks int
	svg   string
}

func layoutMany(ctx context.Context, args []string, t Toggles, maxTicks int, svgDir string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if svgDir != "" {
		if err := os.MkdirAll(svgDir, 0o755); err != nil {
			fatal("%v", err)
		}
	}

	ui.Banner(fmt.Sprintf("layout · %d inputs", len(args)))
	tasks := make([]parallel.Task[settled], len(args))
	for i, arg := range args {
		tasks[i] = parallel.Task[settled]{
			Name: inputLabel(arg),
			Fn: func(ctx context.Context) (settled, error) {
				root, err := loadInput(arg)
				if err != nil {
					return settled{}, err
				}
				p, err := runPipeline(root, cfg, t, maxTicks, slogger().With("input", arg))
				if err != nil {
					return settled{}, err
				}
				out := settled{stats: p.engine.Graph().Stats(), ticks: p.ticks}
				if svgDir != "" {
					out.svg = filepath.Join(svgDir, inputLabel(arg)+".svg")
					if err := writeSVG(out.svg, p); err != nil {
						return settled{}, err
					}
				}
				return out, nil
			},
		}
	}

	results := parallel.Run(ctx, tasks, parallel.Options{Concurrency: cfg.Parallel.Concurrency})

	fmt.Fprintln(ui.Out)
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if !r.OK {
			rows = append(rows, []string{r.Name, "-", "-", "-", "-", ui.Bad.Sprint("failed")})
			continue
		}
		s := r.Value.stats
		rows = append(rows, []string{
			r.Name,
			fmt.Sprint(s.Nodes),
			fmt.Sprint(s.Links),
			fmt.Sprint(s.Collapsed),
			fmt.Sprint(r.Value.ticks),
			r.Elapsed.Round(time.Millisecond).String(),
		})
	}
	ui.Table([]string{"INPUT", "NODES", "LINKS", "COLLAPSED", "TICKS", "TIME"}, rows)
	fmt.Fprintln(ui.Out)

	if failed := parallel.Failed(results); len(failed) > 0 {
		fatal("%d of %d inputs failed", len(failed), len(results))
	}
}

func printNodeTable(g *graph.Graph) {
	rows := make([][]string, 0, g.Len())
	for _, n := range g.Nodes() {
		x, y := "-", "-"
		if n.Position != nil {
			x, y = fmt.Sprintf("%.1f", n.Position.X), fmt.Sprintf("%.1f", n.Position.Y)
		}
		rows = append(rows, []string{
			ui.StateIcon(n.State == graph.Collapsed) + " " + ui.Truncate(n.ID, 32),
			n.State.String(),
			fmt.Sprint(n.Depth),
			fmt.Sprint(n.ChildCount),
			x, y,
		})
	}
	ui.Table([]string{"NODE", "STATE", "DEPTH", "CHILDREN", "X", "Y"}, rows)
}

func writeSVG(path string, p *pipeline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	opts := p.engine.Options()
	frame := render.Project(p.engine.Graph(), render.Identity)
	if err := render.WriteSVG(f, frame, opts.Width, opts.Height); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
