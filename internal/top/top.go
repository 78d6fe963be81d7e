// Package top is a live terminal monitor for a running layout.
package top

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/layout"
	"github.com/msalah0e/canopy/internal/ui"
)

// NodeRow is one line of the node table.
type NodeRow struct {
	ID       string
	Depth    int
	State    graph.DisclosureState
	Children int
	X, Y     float64
	Placed   bool
	Pinned   bool
}

// Snapshot is what one redraw shows. It is captured on the engine goroutine.
type Snapshot struct {
	Title   string
	Ticks   int
	Alpha   float64
	Live    bool
	Stats   graph.Stats
	Rows    []NodeRow
	Hidden  int // nodes beyond the row limit
	Rate    float64
	Elapsed time.Duration
}

// Config configures the top monitor.
type Config struct {
	Title           string
	RefreshInterval time.Duration
	TickInterval    time.Duration
	MaxRows         int
	// Reheat restarts a settled simulation after this long; zero disables it.
	Reheat time.Duration
	Out    io.Writer
}

var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	dim    = color.New(color.FgWhite)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
)

// Capture reads the engine state. It must run on the goroutine that owns e.
func Capture(e *layout.Engine, maxRows int) Snapshot {
	s := Snapshot{Ticks: e.Ticks(), Alpha: e.Alpha(), Live: e.Live()}
	g := e.Graph()
	if g == nil {
		return s
	}
	s.Stats = g.Stats()
	for _, n := range g.Nodes() {
		if maxRows > 0 && len(s.Rows) >= maxRows {
			s.Hidden++
			continue
		}
		row := NodeRow{
			ID:       n.ID,
			Depth:    n.Depth,
			State:    n.State,
			Children: n.ChildCount,
			Placed:   n.Position != nil,
			Pinned:   n.Pinned != nil,
		}
		if n.Position != nil {
			row.X, row.Y = n.Position.X, n.Position.Y
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

// Run drives e until Ctrl+C or ctx is done, redrawing every RefreshInterval.
func Run(ctx context.Context, e *layout.Engine, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 250 * time.Millisecond
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 16 * time.Millisecond
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	// Hide cursor
	fmt.Fprint(out, "\033[?25l")
	defer fmt.Fprint(out, "\033[?25h\n")

	inbox := make(chan func())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, cfg.TickInterval, inbox) }()

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	start := time.Now()
	lastTicks, lastAt := 0, start
	var settledAt time.Time

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case err := <-done:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case now := <-ticker.C:
			snaps := make(chan Snapshot, 1)
			select {
			case inbox <- func() {
				s := Capture(e, cfg.MaxRows)
				if cfg.Reheat > 0 && !s.Live && !settledAt.IsZero() && now.Sub(settledAt) >= cfg.Reheat {
					e.Reseed(e.Graph())
				}
				snaps <- s
			}:
			case <-ctx.Done():
				continue
			}
			s := <-snaps

			if !s.Live && settledAt.IsZero() {
				settledAt = now
			} else if s.Live {
				settledAt = time.Time{}
			}

			s.Title = cfg.Title
			s.Elapsed = now.Sub(start)
			if dt := now.Sub(lastAt).Seconds(); dt > 0 {
				s.Rate = float64(s.Ticks-lastTicks) / dt
			}
			lastTicks, lastAt = s.Ticks, now
			render(out, s, cfg)
		}
	}
}

func render(w io.Writer, s Snapshot, cfg Config) {
	// Move cursor to top-left and clear screen
	fmt.Fprint(w, "\033[H\033[J")

	width := 66
	header := "  " + ui.Canopy + " canopy top — " + ui.Truncate(s.Title, 30)
	brand.Fprint(w, header)
	fmt.Fprintf(w, "%*s\n", max(width-len([]rune(header)), 1), time.Now().Format("15:04:05"))
	rule(w, width)

	state := cyan.Sprint("running")
	if !s.Live {
		state = ui.Good.Sprint("settled")
	}
	fmt.Fprintf(w, "  α    %s %6.4f  %s\n", ui.Bar(s.Alpha, 20), s.Alpha, state)
	fmt.Fprintf(w, "  TICK %8d   %6.1f/s   %s elapsed\n", s.Ticks, s.Rate, s.Elapsed.Truncate(time.Second))
	fmt.Fprintf(w, "  VIS  %d nodes · %d links · %d collapsed · %d pinned · depth %d\n",
		s.Stats.Nodes, s.Stats.Links, s.Stats.Collapsed, s.Stats.Pinned, s.Stats.MaxDepth)
	rule(w, width)

	if len(s.Rows) > 0 {
		fmt.Fprintf(w, "  %-18s %5s %-10s %5s %9s %9s\n",
			subtle.Sprint("ID"),
			subtle.Sprint("DEPTH"),
			subtle.Sprint("STATE"),
			subtle.Sprint("KIDS"),
			subtle.Sprint("X"),
			subtle.Sprint("Y"),
		)
		for _, r := range s.Rows {
			stateColor := dim
			if r.State == graph.Collapsed {
				stateColor = yellow
			}
			pos := fmt.Sprintf("%9.1f %9.1f", r.X, r.Y)
			if !r.Placed {
				pos = fmt.Sprintf("%9s %9s", "-", "-")
			}
			pin := ""
			if r.Pinned {
				pin = cyan.Sprint(" pinned")
			}
			fmt.Fprintf(w, "  %s %5d %s %5d %s%s\n",
				brand.Sprintf("%-18s", ui.Truncate(r.ID, 18)),
				r.Depth,
				stateColor.Sprintf("%-10s", r.State),
				r.Children,
				pos,
				pin,
			)
		}
		if s.Hidden > 0 {
			subtle.Fprintf(w, "  ... %d more\n", s.Hidden)
		}
	} else {
		subtle.Fprintln(w, "  No nodes")
	}

	rule(w, width)
	subtle.Fprintf(w, "  Refresh: %s · Tick: %s · Ctrl+C to exit\n", cfg.RefreshInterval, cfg.TickInterval)
}

func rule(w io.Writer, width int) {
	subtle.Fprintln(w, "  "+strings.Repeat("─", width-2))
}
