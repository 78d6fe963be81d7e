// Package interact turns pointer gestures into toggles and drags.
package interact

import (
	"errors"
	"log/slog"

	"github.com/msalah0e/canopy/internal/disclosure"
	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/logging"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	DefaultHitRadius      = 20.0
	DefaultClickThreshold = 5.0
)

// Config holds the gesture thresholds, in simulation units.
type Config struct {
	HitRadius      float64
	ClickThreshold float64
}

func DefaultConfig() Config {
	return Config{HitRadius: DefaultHitRadius, ClickThreshold: DefaultClickThreshold}
}

// HitTest returns the first node, in the order given, whose position lies
// strictly within radius of p. Nodes without a position are never hit.
func HitTest(p r2.Vec, nodes []*graph.Node, radius float64) *graph.Node {
	r2max := radius * radius
	for _, n := range nodes {
		if n == nil || n.Position == nil {
			continue
		}
		if r2.Norm2(r2.Sub(*n.Position, p)) < r2max {
			return n
		}
	}
	return nil
}

// Gesture is the classification of a completed pointer press.
type Gesture int

const (
	GestureClick Gesture = iota
	GestureDrag
)

func (g Gesture) String() string {
	if g == GestureClick {
		return "click"
	}
	return "drag"
}

// Classify reports a click when the pointer moved strictly less than
// threshold between down and up.
func Classify(down, up r2.Vec, threshold float64) Gesture {
	if r2.Norm(r2.Sub(up, down)) < threshold {
		return GestureClick
	}
	return GestureDrag
}

// OutcomeKind is what a gesture resolved to.
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeToggle
	OutcomeDrag
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeToggle:
		return "toggle"
	case OutcomeDrag:
		return "drag"
	default:
		return "none"
	}
}

// Outcome is the resolved meaning of a gesture.
type Outcome struct {
	Kind   OutcomeKind
	NodeID string
	// Path holds the pointer positions after the press for drags.
	Path []r2.Vec
}

// Resolve classifies a complete gesture against nodes without side effects.
func Resolve(down r2.Vec, moves []r2.Vec, up r2.Vec, nodes []*graph.Node, cfg Config) Outcome {
	hit := HitTest(down, nodes, cfg.HitRadius)
	if hit == nil {
		return Outcome{}
	}
	return outcomeFor(hit.ID, down, moves, up, cfg.ClickThreshold)
}

// outcomeFor classifies a press on id. Resolve and Resolver.End both go
// through it.
func outcomeFor(id string, down r2.Vec, moves []r2.Vec, up r2.Vec, threshold float64) Outcome {
	if Classify(down, up, threshold) == GestureClick {
		return Outcome{Kind: OutcomeToggle, NodeID: id}
	}
	path := make([]r2.Vec, 0, len(moves)+1)
	path = append(path, moves...)
	path = append(path, up)
	return Outcome{Kind: OutcomeDrag, NodeID: id, Path: path}
}

// Pinner freezes nodes and controls simulation energy. layout.Engine implements it.
type Pinner interface {
	SetPinned(id string, p *r2.Vec) error
	BoostEnergy(target float64)
}

// Toggler flips a node's disclosure state. disclosure.Controller implements it.
type Toggler interface {
	Toggle(id string) (disclosure.Change, error)
}

// Resolver tracks one gesture at a time and applies it as it happens: the
// subject is pinned under the pointer while pressed and toggled on release
// when the press was a click.
type Resolver struct {
	cfg        Config
	graph      *graph.Graph
	pinner     Pinner
	toggler    Toggler
	dragTarget float64
	logger     *slog.Logger

	active  bool
	subject string
	down    r2.Vec
	moves   []r2.Vec
}

// NewResolver returns a resolver hit-testing against g. dragTarget is the
// energy held while a node is pressed.
func NewResolver(g *graph.Graph, p Pinner, t Toggler, cfg Config, dragTarget float64, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{cfg: cfg, graph: g, pinner: p, toggler: t, dragTarget: dragTarget, logger: logger}
}

// Rebind points the resolver at new collaborators after a reload and drops
// any gesture in progress.
func (r *Resolver) Rebind(g *graph.Graph, p Pinner, t Toggler) {
	r.reset()
	r.graph, r.pinner, r.toggler = g, p, t
}

// Active returns the id of the pressed node, if any.
func (r *Resolver) Active() (string, bool) {
	return r.subject, r.active
}

// Start begins a gesture at p. A press that hits nothing is ignored.
func (r *Resolver) Start(p r2.Vec) (string, bool) {
	r.Cancel()
	hit := HitTest(p, r.graph.Nodes(), r.cfg.HitRadius)
	if hit == nil {
		return "", false
	}
	pin := *hit.Position
	if err := r.pinner.SetPinned(hit.ID, &pin); err != nil {
		r.logger.Warn("pin failed", "node", hit.ID, "err", err)
		return "", false
	}
	r.pinner.BoostEnergy(r.dragTarget)
	r.active, r.subject, r.down, r.moves = true, hit.ID, p, nil
	return hit.ID, true
}

// Move drags the pressed node to p. If the node has left the graph the
// gesture is dropped and the energy boost withdrawn.
func (r *Resolver) Move(p r2.Vec) {
	if !r.active {
		return
	}
	pin := p
	if err := r.pinner.SetPinned(r.subject, &pin); err != nil {
		r.logger.Warn("drag target vanished", "node", r.subject, "err", err)
		r.pinner.BoostEnergy(0)
		r.reset()
		return
	}
	r.pinner.BoostEnergy(r.dragTarget)
	r.moves = append(r.moves, p)
}

// End completes the gesture at p. A click toggles the subject. The subject is
// always released and the energy boost withdrawn.
func (r *Resolver) End(p r2.Vec) (Outcome, error) {
	if !r.active {
		return Outcome{}, nil
	}
	id := r.subject
	out := outcomeFor(id, r.down, r.moves, p, r.cfg.ClickThreshold)

	var toggleErr error
	if out.Kind == OutcomeToggle {
		if _, err := r.toggler.Toggle(id); err != nil {
			toggleErr = err
			if errors.Is(err, disclosure.ErrNoStoredChildren) {
				r.logger.Warn("toggle ignored", "node", id, "err", err)
			}
		}
	}

	if err := r.pinner.SetPinned(id, nil); err != nil && !errors.Is(err, graph.ErrUnknownNode) {
		r.logger.Warn("unpin failed", "node", id, "err", err)
	}
	r.pinner.BoostEnergy(0)
	r.reset()
	return out, toggleErr
}

// Cancel releases any pressed node without toggling.
func (r *Resolver) Cancel() {
	if !r.active {
		return
	}
	_ = r.pinner.SetPinned(r.subject, nil)
	r.pinner.BoostEnergy(0)
	r.reset()
}

func (r *Resolver) reset() {
	r.active, r.subject, r.down, r.moves = false, "", r2.Vec{}, nil
}
