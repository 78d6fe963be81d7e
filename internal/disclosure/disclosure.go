// Package disclosure implements the expand/collapse state machine that
// rewrites the visible graph when a cluster node is toggled.
package disclosure

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/msalah0e/canopy/internal/logging"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	DefaultExpandRadius = 100.0
	DefaultExpandJitter = 0.1
)

// ErrNoStoredChildren is reported when a collapsed node has nothing to expand.
var ErrNoStoredChildren = errors.New("no stored children to expand")

// Reseeder is told about every structural edit. The layout engine satisfies it.
type Reseeder interface {
	Reseed(g *graph.Graph)
}

// Action is what a transition did to the graph.
type Action int

const (
	ActionNone Action = iota
	ActionExpand
	ActionCollapse
)

func (a Action) String() string {
	switch a {
	case ActionExpand:
		return "expand"
	case ActionCollapse:
		return "collapse"
	default:
		return "none"
	}
}

// Change describes the effect of one transition.
type Change struct {
	Action  Action
	NodeID  string
	Added   []string
	Removed []string
}

// Options configures a Controller.
type Options struct {
	ClusterThreshold int
	ExpandRadius     float64
	// ExpandJitter is the relative radius band, 0.1 meaning ±10%.
	ExpandJitter float64

	Rand     *rand.Rand
	Reseeder Reseeder
	Logger   *slog.Logger
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ClusterThreshold: ingest.DefaultClusterThreshold,
		ExpandRadius:     DefaultExpandRadius,
		ExpandJitter:     DefaultExpandJitter,
	}
}

// Controller mutates a single authoritative graph in place.
type Controller struct {
	graph  *graph.Graph
	opts   Options
	random func() float64
	logger *slog.Logger
}

// New returns a controller editing g.
func New(g *graph.Graph, opts Options) *Controller {
	c := &Controller{graph: g, opts: opts, random: rand.Float64, logger: opts.Logger}
	if opts.Rand != nil {
		c.random = opts.Rand.Float64
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// Graph returns the graph the controller edits.
func (c *Controller) Graph() *graph.Graph {
	return c.graph
}

// Toggle expands a collapsed node and collapses an expanded one.
func (c *Controller) Toggle(id string) (Change, error) {
	n := c.graph.Node(id)
	if n == nil {
		return Change{NodeID: id}, fmt.Errorf("%w: %s", graph.ErrUnknownNode, id)
	}
	if n.State == graph.Collapsed {
		return c.Expand(id)
	}
	return c.Collapse(id)
}

// Expand materializes the stored children of a collapsed node around its
// current position. Expansion cascades: a child whose own child count is
// within the cluster threshold is expanded in turn, so Added lists every
// descendant that became visible, not only the direct children. Expanding an
// expanded node does nothing.
func (c *Controller) Expand(id string) (Change, error) {
	change := Change{NodeID: id}
	n := c.graph.Node(id)
	if n == nil {
		return change, fmt.Errorf("%w: %s", graph.ErrUnknownNode, id)
	}
	if n.State == graph.Expanded {
		return change, nil
	}
	if n.Source == nil || len(n.Source.Children) == 0 {
		c.logger.Warn("nothing to expand", "node", id)
		return change, fmt.Errorf("%w: %s", ErrNoStoredChildren, id)
	}

	n.VisibleChildren = nil
	added, err := ingest.MaterializeChildren(c.graph, n, c.opts.ClusterThreshold, c.place)
	if err != nil {
		c.rollback(n, added)
		return change, fmt.Errorf("expand %s: %w", id, err)
	}
	n.State = graph.Expanded

	change.Action = ActionExpand
	change.Added = added
	c.logger.Debug("expanded", "node", id, "added", len(added))
	c.reseed()
	return change, nil
}

// Collapse removes every visible descendant of id. Collapsing a leaf or an
// already collapsed node does nothing.
func (c *Controller) Collapse(id string) (Change, error) {
	change := Change{NodeID: id}
	n := c.graph.Node(id)
	if n == nil {
		return change, fmt.Errorf("%w: %s", graph.ErrUnknownNode, id)
	}
	if n.State == graph.Collapsed || len(n.VisibleChildren) == 0 {
		return change, nil
	}

	removed := c.graph.Descendants(id)
	set := make(map[string]struct{}, len(removed))
	for _, d := range removed {
		set[d] = struct{}{}
	}
	_, links := c.graph.RemoveAll(set)
	n.VisibleChildren = nil
	n.State = graph.Collapsed

	change.Action = ActionCollapse
	change.Removed = removed
	c.logger.Debug("collapsed", "node", id, "removed", len(removed), "links", links)
	c.reseed()
	return change, nil
}

// place puts child i of count on a circle around parent. The radius is
// jittered so that fresh siblings never overlap exactly.
func (c *Controller) place(parent, child *graph.Node, index, count int) {
	if parent.Position == nil || count == 0 {
		return
	}
	angle := float64(index) * (2 * math.Pi / float64(count))
	radius := c.opts.ExpandRadius * (1 + c.opts.ExpandJitter*(2*c.random()-1))
	child.Position = &r2.Vec{
		X: parent.Position.X + radius*math.Cos(angle),
		Y: parent.Position.Y + radius*math.Sin(angle),
	}
}

func (c *Controller) rollback(n *graph.Node, added []string) {
	set := make(map[string]struct{}, len(added))
	for _, id := range added {
		set[id] = struct{}{}
	}
	c.graph.RemoveAll(set)
	n.VisibleChildren = nil
}

func (c *Controller) reseed() {
	if c.opts.Reseeder != nil {
		c.opts.Reseeder.Reseed(c.graph)
	}
}
