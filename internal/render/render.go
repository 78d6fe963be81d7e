// Package render projects the visible graph into flat draw primitives.
package render

import (
	"strconv"

	"github.com/msalah0e/canopy/internal/graph"
	"gonum.org/v1/gonum/spatial/r2"
)

// Palette.
const (
	LinkStroke     = "#999"
	NodeStroke     = "#fff"
	CollapsedFill  = "#ff7f0e"
	ExpandedFill   = "#1f77b4"
	BadgeFill      = "white"
	LabelFill      = "#000"
	NodeRadius     = 10.0
	LabelOffset    = 15.0
	FontSize       = 10.0
	AlignCenter    = "center"
	BaselineMiddle = "middle"
	BaselineBottom = "bottom"
)

// Camera is a pan and zoom transform from simulation to screen space.
type Camera struct {
	TX float64 `json:"tx"`
	TY float64 `json:"ty"`
	K  float64 `json:"k"`
}

// Identity leaves coordinates unchanged.
var Identity = Camera{K: 1}

// Apply maps a simulation point to the screen.
func (c Camera) Apply(p r2.Vec) r2.Vec {
	return r2.Vec{X: p.X*c.scale() + c.TX, Y: p.Y*c.scale() + c.TY}
}

// Invert maps a screen point back into simulation space.
func (c Camera) Invert(p r2.Vec) r2.Vec {
	return r2.Vec{X: (p.X - c.TX) / c.scale(), Y: (p.Y - c.TY) / c.scale()}
}

// scale treats a zero or negative zoom as 1.
func (c Camera) scale() float64 {
	if c.K <= 0 {
		return 1
	}
	return c.K
}

type Line struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Stroke string  `json:"stroke"`
}

type Circle struct {
	ID     string  `json:"id"`
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	R      float64 `json:"r"`
	Fill   string  `json:"fill"`
	Stroke string  `json:"stroke"`
}

type Label struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Fill     string  `json:"fill"`
	Size     float64 `json:"size"`
	Align    string  `json:"align"`
	Baseline string  `json:"baseline"`
}

// Frame is everything needed to draw one picture, in paint order: lines,
// then circles, then labels.
type Frame struct {
	Camera  Camera       `json:"camera"`
	Lines   []Line       `json:"lines"`
	Circles []Circle     `json:"circles"`
	Labels  []Label      `json:"labels"`
	Skipped []graph.Link `json:"skipped,omitempty"`
}

// Scene is the read side of a graph that Project needs. *graph.Graph implements it.
type Scene interface {
	Links() []graph.Link
	Node(id string) *graph.Node
	Each(fn func(*graph.Node) bool)
}

// Project draws g through camera. Nodes without a position are left out, as
// are links touching them. Links naming a node that does not exist are
// reported in Skipped.
func Project(g Scene, camera Camera) Frame {
	f := Frame{Camera: camera}
	if g == nil {
		return f
	}
	k := camera.scale()

	for _, l := range g.Links() {
		src, dst := g.Node(l.Source), g.Node(l.Target)
		if src == nil || dst == nil {
			f.Skipped = append(f.Skipped, l)
			continue
		}
		if src.Position == nil || dst.Position == nil {
			continue
		}
		a, b := camera.Apply(*src.Position), camera.Apply(*dst.Position)
		f.Lines = append(f.Lines, Line{
			Source: l.Source, Target: l.Target,
			X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y,
			Stroke: LinkStroke,
		})
	}

	g.Each(func(n *graph.Node) bool {
		if n.Position == nil {
			return true
		}
		p := camera.Apply(*n.Position)
		fill := ExpandedFill
		if n.State == graph.Collapsed {
			fill = CollapsedFill
		}
		f.Circles = append(f.Circles, Circle{
			ID: n.ID, CX: p.X, CY: p.Y, R: NodeRadius * k,
			Fill: fill, Stroke: NodeStroke,
		})
		if n.State == graph.Collapsed && n.ChildCount > 0 {
			f.Labels = append(f.Labels, Label{
				Text: strconv.Itoa(n.ChildCount), X: p.X, Y: p.Y,
				Fill: BadgeFill, Size: FontSize * k,
				Align: AlignCenter, Baseline: BaselineMiddle,
			})
		}
		f.Labels = append(f.Labels, Label{
			Text: n.ID, X: p.X, Y: p.Y - LabelOffset*k,
			Fill: LabelFill, Size: FontSize * k,
			Align: AlignCenter, Baseline: BaselineBottom,
		})
		return true
	})
	return f
}
