package parallel

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msalah0e/canopy/internal/ui"
)

var quiet = Options{Quiet: true}

func TestRun_Success(t *testing.T) {
	tasks := []Task[int]{
		{Name: "task1", Fn: func(context.Context) (int, error) { return 1, nil }},
		{Name: "task2", Fn: func(context.Context) (int, error) { return 2, nil }},
		{Name: "task3", Fn: func(context.Context) (int, error) { return 3, nil }},
	}

	results := Run(context.Background(), tasks, quiet)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.OK || r.Err != nil {
			t.Errorf("task %s should be OK, got %v", r.Name, r.Err)
		}
		if r.Value != i+1 {
			t.Errorf("results out of order: %s has value %d", r.Name, r.Value)
		}
	}
}

func TestRun_WithErrors(t *testing.T) {
	tasks := []Task[string]{
		{Name: "ok-task", Fn: func(context.Context) (string, error) { return "", nil }},
		{Name: "fail-task", Fn: func(context.Context) (string, error) { return "partial", fmt.Errorf("simulated failure") }},
	}

	results := Run(context.Background(), tasks, quiet)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	// Results should be in order
	if !results[0].OK {
		t.Error("first task should be OK")
	}
	if results[1].OK || results[1].Err == nil {
		t.Error("second task should have failed")
	}
	if results[1].Value != "partial" {
		t.Errorf("expected value %q, got %q", "partial", results[1].Value)
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].Name != "fail-task" {
		t.Errorf("Failed = %+v", failed)
	}
}

func TestRun_Concurrency(t *testing.T) {
	var maxConcurrent int64
	var current int64

	tasks := make([]Task[struct{}], 10)
	for i := range tasks {
		tasks[i] = Task[struct{}]{
			Name: fmt.Sprintf("task-%d", i),
			Fn: func(context.Context) (struct{}, error) {
				c := atomic.AddInt64(&current, 1)
				// Track max concurrent
				for {
					old := atomic.LoadInt64(&maxConcurrent)
					if c <= old || atomic.CompareAndSwapInt64(&maxConcurrent, old, c) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return struct{}{}, nil
			},
		}
	}

	results := Run(context.Background(), tasks, Options{Concurrency: 2, Quiet: true})

	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	if maxConcurrent > 2 {
		t.Errorf("max concurrent should be <= 2, got %d", maxConcurrent)
	}
}

func TestRun_DefaultConcurrency(t *testing.T) {
	tasks := []Task[int]{
		{Name: "test", Fn: func(context.Context) (int, error) { return 0, nil }},
	}

	// Should not panic with 0 concurrency
	results := Run(context.Background(), tasks, quiet)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestRun_TimingTracked(t *testing.T) {
	tasks := []Task[int]{
		{Name: "slow", Fn: func(context.Context) (int, error) {
			time.Sleep(50 * time.Millisecond)
			return 0, nil
		}},
	}

	results := Run(context.Background(), tasks, Options{Concurrency: 1, Quiet: true})
	if results[0].Elapsed < 50*time.Millisecond {
		t.Errorf("expected elapsed >= 50ms, got %v", results[0].Elapsed)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	tasks := []Task[int]{
		{Name: "never", Fn: func(context.Context) (int, error) {
			ran.Store(true)
			return 0, nil
		}},
	}

	results := Run(ctx, tasks, quiet)
	if ran.Load() {
		t.Error("task should not start after cancellation")
	}
	if results[0].OK || results[0].Err != context.Canceled {
		t.Errorf("expected context.Canceled, got %+v", results[0])
	}
}

func TestRun_Progress(t *testing.T) {
	var buf bytes.Buffer
	prev := ui.Out
	ui.Out = &buf
	ui.SetColor(false)
	defer func() {
		ui.Out = prev
		ui.SetColor(true)
	}()

	tasks := []Task[int]{
		{Name: "org.yaml", Fn: func(context.Context) (int, error) { return 0, nil }},
		{Name: "broken.json", Fn: func(context.Context) (int, error) { return 0, fmt.Errorf("duplicate id\nat line 3") }},
	}
	Run(context.Background(), tasks, Options{Concurrency: 1})

	out := buf.String()
	for _, want := range []string{"✓ org.yaml", "✗ broken.json duplicate id ..."} {
		if !strings.Contains(out, want) {
			t.Errorf("progress output missing %q:\n%s", want, out)
		}
	}
}
