// Package parallel runs independent jobs, such as settling several input
// files, on a bounded pool and reports progress as they finish.
package parallel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/msalah0e/canopy/internal/ui"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

// Result holds the outcome of a parallel task.
type Result[T any] struct {
	Name    string
	OK      bool
	Err     error
	Value   T
	Elapsed time.Duration
}

// Task is a function that runs in parallel.
type Task[T any] struct {
	Name string
	Fn   func(ctx context.Context) (T, error)
}

// Options controls the pool.
type Options struct {
	Concurrency int
	Quiet       bool // no progress lines
}

// Run executes tasks with at most opts.Concurrency in flight and returns
// results in the order tasks were submitted. A failing task never stops the
// others; tasks not yet started when ctx is cancelled report ctx.Err().
func Run[T any](ctx context.Context, tasks []Task[T], opts Options) []Result[T] {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}

	results := make([]Result[T], len(tasks))
	var mu sync.Mutex
	report := func(format string, args ...any) {
		if opts.Quiet {
			return
		}
		mu.Lock()
		fmt.Fprintf(ui.Out, format, args...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result[T]{Name: task.Name, Err: err}
				return nil
			}

			start := time.Now()
			report("  %s %s...\n", ui.Subtle.Sprint("⟳"), task.Name)

			value, err := task.Fn(gctx)
			elapsed := time.Since(start)

			if err != nil {
				results[i] = Result[T]{Name: task.Name, Err: err, Value: value, Elapsed: elapsed}
				report("  %s %s %s\n", ui.StatusIcon(false), task.Name, ui.Bad.Sprint(firstLine(err.Error())))
				return nil
			}
			results[i] = Result[T]{Name: task.Name, OK: true, Value: value, Elapsed: elapsed}
			report("  %s %s %s\n", ui.StatusIcon(true), task.Name, ui.Subtle.Sprintf("%.2fs", elapsed.Seconds()))
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Failed returns the results that did not succeed.
func Failed[T any](results []Result[T]) []Result[T] {
	var out []Result[T]
	for _, r := range results {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
