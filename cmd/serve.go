package cmd

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/msalah0e/canopy/internal/server"
	"github.com/msalah0e/canopy/internal/stats"
	"github.com/msalah0e/canopy/internal/ui"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		addr  string
		open  bool
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve <file|sample:NAME>",
		Short: "Serve an interactive layout in the browser",
		Long: `Run the simulation continuously and stream it to browsers over a websocket.
Click a node to expand or collapse it, drag to pin it while held, drag the
background to pan and scroll to zoom.

  /          canvas viewer
  /ws        frames out, gestures in
  /metrics   Prometheus metrics
  /graph.json, /graph.svg, POST /nodes/{id}/toggle

A file input is reloaded whenever it changes on disk.`,
		Example: `  canopy serve sample:org --open
  canopy serve tree.yaml --addr 127.0.0.1:9000`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInputs,
		Run: func(cmd *cobra.Command, args []string) {
			root, err := loadInput(args[0])
			if err != nil {
				fatal("%v", err)
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			opts := server.Options{
				Addr:    addr,
				Metrics: stats.New(true),
				Logger:  slogger(),
			}
			if watch && !strings.HasPrefix(args[0], samplePrefix) {
				opts.Watch = args[0]
				opts.Debounce = server.DefaultDebounce
			}

			srv, err := server.New(root, cfg, opts)
			if err != nil {
				fatal("%v", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			url := browserURL(addr)
			ui.Banner("serve")
			fmt.Fprintf(ui.Out, "  Input:    %s\n", ui.Brand.Sprint(inputLabel(args[0])))
			fmt.Fprintf(ui.Out, "  Viewer:   %s\n", ui.Info.Sprint(url))
			fmt.Fprintf(ui.Out, "  Metrics:  %s\n", ui.Subtle.Sprint(url+"metrics"))
			if opts.Watch != "" {
				fmt.Fprintf(ui.Out, "  Watching: %s\n", opts.Watch)
			}
			fmt.Fprintln(ui.Out, ui.Subtle.Sprint("\n  Ctrl+C to stop"))
			fmt.Fprintln(ui.Out)

			if open {
				openBrowser(url)
			}

			serveErr := srv.ListenAndServe(ctx)
			printSummary(opts.Metrics)
			if serveErr != nil && ctx.Err() == nil {
				fatal("%v", serveErr)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the viewer in a browser")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the input file when it changes")
	return cmd
}

// browserURL turns a listen address into a URL a local browser can reach.
func browserURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func openBrowser(url string) {
	var openCmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		openCmd = exec.Command("open", url)
	case "linux":
		openCmd = exec.Command("xdg-open", url)
	default:
		openCmd = exec.Command("cmd", "/c", "start", url)
	}
	if err := openCmd.Start(); err != nil {
		fmt.Fprintf(ui.Out, "  %s could not open a browser; visit %s\n", ui.WarnIcon(), url)
	}
}

func printSummary(m *stats.Metrics) {
	s, err := m.Summarize()
	if err != nil {
		ui.Warn.Fprintf(ui.Out, "  %s stats: %v\n", ui.WarnIcon(), err)
		return
	}
	fmt.Fprintln(ui.Out)
	ui.Table([]string{"TICKS", "EXPANDS", "COLLAPSES", "CLICKS", "DRAGS", "FRAMES", "RELOADS"}, [][]string{{
		fmt.Sprint(s.Ticks),
		fmt.Sprint(s.Expands),
		fmt.Sprint(s.Collapses),
		fmt.Sprint(s.Clicks),
		fmt.Sprint(s.Drags),
		fmt.Sprint(s.Frames),
		fmt.Sprint(s.Reloads),
	}})
	fmt.Fprintln(ui.Out)
}
