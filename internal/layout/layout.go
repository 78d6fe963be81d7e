// Package layout drives a force simulation over the visible graph and writes
// the resulting positions back onto its nodes.
package layout

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/msalah0e/canopy/internal/force"
	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/logging"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	DefaultWidth           = 960.0
	DefaultHeight          = 600.0
	DefaultDragAlphaTarget = 0.3
)

// Integrator advances bodies one tick at a time. force.Simulation implements it.
type Integrator interface {
	SetBodies(bodies []*force.Body)
	SetSprings(springs []force.Spring)
	Tick()
	Alpha() float64
	SetAlpha(alpha float64)
	SetAlphaTarget(target float64)
	Settled() bool
}

// Tick is passed to every tick callback.
type Tick struct {
	N        int
	Alpha    float64
	Live     bool
	Nodes    int
	Links    int
	Energy   float64
	Duration time.Duration
}

// Options configures an Engine.
type Options struct {
	Force           force.Config
	Width, Height   float64
	DragAlphaTarget float64
	Rand            *rand.Rand
	Logger          *slog.Logger
}

// DefaultOptions returns a 960x600 canvas with the default forces.
func DefaultOptions() Options {
	return Options{
		Force:           force.DefaultConfig(r2.Vec{X: DefaultWidth / 2, Y: DefaultHeight / 2}),
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		DragAlphaTarget: DefaultDragAlphaTarget,
	}
}

// Center returns the canvas midpoint.
func (o Options) Center() r2.Vec {
	return r2.Vec{X: o.Width / 2, Y: o.Height / 2}
}

// Engine owns the integrator for one graph. It is not safe for concurrent use;
// Run serializes edits with ticks on a single goroutine.
type Engine struct {
	opts   Options
	sim    Integrator
	logger *slog.Logger

	graph  *graph.Graph
	nodes  []*graph.Node
	bodies map[string]*force.Body

	onTick []func(Tick)
	ticks  int
	live   bool
}

// New returns an engine backed by a force.Simulation.
func New(opts Options) *Engine {
	sim := force.New(opts.Force)
	if opts.Rand != nil {
		sim.SetRandom(opts.Rand.Float64)
	}
	return NewWithIntegrator(sim, opts)
}

// NewWithIntegrator returns an engine driving sim.
func NewWithIntegrator(sim Integrator, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		opts:   opts,
		sim:    sim,
		logger: logger,
		bodies: make(map[string]*force.Body),
	}
}

// Graph returns the graph last passed to Reseed.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) Alpha() float64 { return e.sim.Alpha() }
func (e *Engine) Live() bool     { return e.live }
func (e *Engine) Ticks() int     { return e.ticks }

// OnTick registers fn to run after every step.
func (e *Engine) OnTick(fn func(Tick)) {
	e.onTick = append(e.onTick, fn)
}

// Reseed registers every node and link of g with the integrator. Surviving
// nodes keep their velocity, nodes without a position get a phyllotaxis start
// position and alpha is raised back to 1.
func (e *Engine) Reseed(g *graph.Graph) {
	e.graph = g
	e.nodes = g.Nodes()

	center := e.opts.Center()
	bodies := make([]*force.Body, len(e.nodes))
	index := make(map[string]int, len(e.nodes))
	next := make(map[string]*force.Body, len(e.nodes))
	for i, n := range e.nodes {
		b := e.bodies[n.ID]
		if b == nil {
			b = &force.Body{}
		}
		if n.Pinned != nil {
			p := *n.Pinned
			n.Position = &p
		}
		if n.Position == nil {
			p := force.Phyllotaxis(i, center)
			n.Position = &p
		}
		b.Pos = *n.Position
		b.Fixed = nil
		if n.Pinned != nil {
			pin := *n.Pinned
			b.Fixed = &pin
		}
		bodies[i] = b
		index[n.ID] = i
		next[n.ID] = b
	}
	e.bodies = next

	links := g.Links()
	springs := make([]force.Spring, 0, len(links))
	for _, l := range links {
		src, ok := index[l.Source]
		if !ok {
			continue
		}
		dst, ok := index[l.Target]
		if !ok {
			continue
		}
		springs = append(springs, force.Spring{Source: src, Target: dst})
	}

	e.sim.SetBodies(bodies)
	e.sim.SetSprings(springs)
	e.sim.SetAlpha(1)
	e.live = true
	e.logger.Debug("reseeded", "nodes", len(bodies), "springs", len(springs))
}

// Step advances the simulation one tick and writes positions back. It reports
// false, doing nothing, once the simulation has stopped.
func (e *Engine) Step() bool {
	if !e.live || e.graph == nil {
		return false
	}
	start := time.Now()
	e.sim.Tick()
	e.ticks++

	for _, n := range e.nodes {
		b := e.bodies[n.ID]
		if n.Pinned != nil {
			p := *n.Pinned
			n.Position = &p
			continue
		}
		if n.Position == nil {
			n.Position = new(r2.Vec)
		}
		*n.Position = b.Pos
	}
	if e.sim.Settled() {
		e.live = false
		e.logger.Debug("settled", "ticks", e.ticks, "alpha", e.sim.Alpha())
	}

	t := Tick{
		N:        e.ticks,
		Alpha:    e.sim.Alpha(),
		Live:     e.live,
		Nodes:    len(e.nodes),
		Links:    e.graph.LinkCount(),
		Duration: time.Since(start),
	}
	if en, ok := e.sim.(interface{ Energy() float64 }); ok {
		t.Energy = en.Energy()
	}
	for _, fn := range e.onTick {
		fn(t)
	}
	return true
}

// Settle steps until the simulation stops or maxTicks steps have run, and
// returns the number of steps taken. maxTicks <= 0 means no limit.
func (e *Engine) Settle(maxTicks int) int {
	n := 0
	for maxTicks <= 0 || n < maxTicks {
		if !e.Step() {
			break
		}
		n++
	}
	return n
}

// Run steps every interval until ctx is done. Closures received from inbox
// run between steps on the calling goroutine, so they may edit the graph and
// reseed freely.
func (e *Engine) Run(ctx context.Context, interval time.Duration, inbox <-chan func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn, ok := <-inbox:
			if !ok {
				inbox = nil
				continue
			}
			fn()
		case <-ticker.C:
			e.Step()
		}
	}
}

// SetPinned fixes id at p, or releases it when p is nil. A pinned node moves
// to its pin immediately.
func (e *Engine) SetPinned(id string, p *r2.Vec) error {
	var n *graph.Node
	if e.graph != nil {
		n = e.graph.Node(id)
	}
	if n == nil {
		return fmt.Errorf("%w: %s", graph.ErrUnknownNode, id)
	}
	b := e.bodies[id]

	if p == nil {
		n.Pinned = nil
		if b != nil {
			b.Fixed = nil
		}
		return nil
	}

	pin := *p
	n.Pinned = &pin
	pos := pin
	n.Position = &pos
	if b != nil {
		fixed := pin
		b.Fixed = &fixed
		b.Pos = pin
	}
	return nil
}

// BoostEnergy sets the alpha target. A positive target restarts a stopped
// simulation; zero lets it cool down again.
func (e *Engine) BoostEnergy(target float64) {
	e.sim.SetAlphaTarget(target)
	if target > 0 && !e.live && e.graph != nil {
		e.live = true
	}
}

// DragTarget is the alpha target held while a node is dragged.
func (e *Engine) DragTarget() float64 {
	return e.opts.DragAlphaTarget
}
