// Package graph holds the visible node/link set shared by the layout engine
// and the disclosure controller.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/msalah0e/canopy/internal/hierarchy"
	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/spatial/r2"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrDuplicateNode = errors.New("duplicate node")
	ErrDanglingLink  = errors.New("dangling link")
	ErrInvariant     = errors.New("graph invariant violated")
)

// DisclosureState says whether a node's children are materialized.
type DisclosureState int

const (
	Expanded DisclosureState = iota
	Collapsed
)

func (s DisclosureState) String() string {
	if s == Collapsed {
		return "collapsed"
	}
	return "expanded"
}

// MarshalText implements encoding.TextMarshaler.
func (s DisclosureState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DisclosureState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "expanded":
		*s = Expanded
	case "collapsed":
		*s = Collapsed
	default:
		return fmt.Errorf("unknown disclosure state %q", text)
	}
	return nil
}

// Node is a materialized entry of the hierarchy.
type Node struct {
	ID     string
	Parent string // empty for the root
	Depth  int

	// Position is nil until the layout engine assigns it.
	Position *r2.Vec
	// Pinned overrides the simulation while set.
	Pinned *r2.Vec

	State DisclosureState
	// ChildCount is the number of children in the input hierarchy.
	ChildCount      int
	VisibleChildren []string

	// Source is an owned snapshot of the hierarchy rooted at this node.
	Source *hierarchy.Node

	seq uint64
}

// HasPosition reports whether the layout engine placed the node.
func (n *Node) HasPosition() bool {
	return n != nil && n.Position != nil
}

// Link is a structural parent→child edge.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the process-wide visible graph. Nodes iterate in insertion order.
type Graph struct {
	nodes map[string]*Node
	order *btree.Map[uint64, *Node]
	links []Link
	root  string
	seq   uint64
}

// Stats holds summary counts.
type Stats struct {
	Nodes      int
	Links      int
	Collapsed  int
	Pinned     int
	Positioned int
	MaxDepth   int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		order: btree.NewMap[uint64, *Node](32),
	}
}

// AddNode inserts n. The first node added becomes the root.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownNode)
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	g.seq++
	n.seq = g.seq
	g.nodes[n.ID] = n
	g.order.Set(n.seq, n)
	if g.root == "" {
		g.root = n.ID
	}
	return nil
}

// AddLink connects two nodes that are already present.
func (g *Graph) AddLink(source, target string) error {
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("%w: link source %s", ErrUnknownNode, source)
	}
	if _, ok := g.nodes[target]; !ok {
		return fmt.Errorf("%w: link target %s", ErrUnknownNode, target)
	}
	g.links = append(g.links, Link{Source: source, Target: target})
	return nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Has reports whether id is currently visible.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Root returns the root node, or nil for an empty graph.
func (g *Graph) Root() *Node {
	return g.nodes[g.root]
}

// Len returns the number of visible nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// LinkCount returns the number of visible links.
func (g *Graph) LinkCount() int {
	return len(g.links)
}

// Nodes returns the visible nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, g.order.Len())
	g.order.Scan(func(_ uint64, n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Each calls fn for every node in insertion order until fn returns false.
func (g *Graph) Each(fn func(*Node) bool) {
	g.order.Scan(func(_ uint64, n *Node) bool {
		return fn(n)
	})
}

// Links returns a copy of the visible links.
func (g *Graph) Links() []Link {
	out := make([]Link, len(g.links))
	copy(out, g.links)
	return out
}

// Descendants returns every visible descendant of id in depth-first pre-order.
func (g *Graph) Descendants(id string) []string {
	start := g.nodes[id]
	if start == nil {
		return nil
	}
	var out []string
	stack := make([]string, 0, len(start.VisibleChildren))
	for i := len(start.VisibleChildren) - 1; i >= 0; i-- {
		stack = append(stack, start.VisibleChildren[i])
	}
	seen := map[string]bool{id: true}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		if n := g.nodes[cur]; n != nil {
			for i := len(n.VisibleChildren) - 1; i >= 0; i-- {
				stack = append(stack, n.VisibleChildren[i])
			}
		}
	}
	return out
}

// RemoveAll drops every node in ids and every link touching one of them in a
// single pass over both collections.
func (g *Graph) RemoveAll(ids map[string]struct{}) (nodes, links int) {
	if len(ids) == 0 {
		return 0, 0
	}
	for id := range ids {
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		delete(g.nodes, id)
		g.order.Delete(n.seq)
		nodes++
	}
	kept := g.links[:0]
	for _, l := range g.links {
		_, src := ids[l.Source]
		_, dst := ids[l.Target]
		if src || dst {
			links++
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(g.links); i++ {
		g.links[i] = Link{}
	}
	g.links = kept
	return nodes, links
}

// Validate checks the structural invariants and reports every violation found.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return nil
	}
	var errs []error
	root := g.nodes[g.root]
	if root == nil {
		return fmt.Errorf("%w: root %q missing", ErrInvariant, g.root)
	}
	if root.Depth != 0 {
		errs = append(errs, fmt.Errorf("%w: root depth %d", ErrInvariant, root.Depth))
	}

	inbound := make(map[string]int, len(g.nodes))
	outbound := make(map[string][]string, len(g.nodes))
	for _, l := range g.links {
		src, dst := g.nodes[l.Source], g.nodes[l.Target]
		if src == nil || dst == nil {
			errs = append(errs, fmt.Errorf("%w: %s -> %s", ErrDanglingLink, l.Source, l.Target))
			continue
		}
		inbound[l.Target]++
		outbound[l.Source] = append(outbound[l.Source], l.Target)
		if dst.Depth != src.Depth+1 {
			errs = append(errs, fmt.Errorf("%w: depth %s=%d under %s=%d", ErrInvariant, dst.ID, dst.Depth, src.ID, src.Depth))
		}
		if dst.Parent != src.ID {
			errs = append(errs, fmt.Errorf("%w: %s linked from %s but parent is %q", ErrInvariant, dst.ID, src.ID, dst.Parent))
		}
		if src.State == Collapsed {
			errs = append(errs, fmt.Errorf("%w: collapsed %s has link to %s", ErrInvariant, src.ID, dst.ID))
		}
	}

	for _, n := range g.Nodes() {
		if n.State == Collapsed && len(n.VisibleChildren) > 0 {
			errs = append(errs, fmt.Errorf("%w: collapsed %s has %d visible children", ErrInvariant, n.ID, len(n.VisibleChildren)))
		}
		for _, c := range n.VisibleChildren {
			if g.nodes[c] == nil {
				errs = append(errs, fmt.Errorf("%w: %s lists missing child %s", ErrInvariant, n.ID, c))
			}
		}
		want := 1
		if n.ID == g.root {
			want = 0
		}
		if inbound[n.ID] != want {
			errs = append(errs, fmt.Errorf("%w: %s has %d parents", ErrInvariant, n.ID, inbound[n.ID]))
		}
	}

	reached := map[string]bool{g.root: true}
	queue := []string{g.root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range outbound[cur] {
			if reached[next] {
				errs = append(errs, fmt.Errorf("%w: cycle through %s", ErrInvariant, next))
				continue
			}
			reached[next] = true
			queue = append(queue, next)
		}
	}
	if len(reached) != len(g.nodes) {
		var orphans []string
		for id := range g.nodes {
			if !reached[id] {
				orphans = append(orphans, id)
			}
		}
		sort.Strings(orphans)
		errs = append(errs, fmt.Errorf("%w: unreachable from root: %s", ErrInvariant, strings.Join(orphans, ", ")))
	}
	return errors.Join(errs...)
}

// Stats returns summary counts for the visible graph.
func (g *Graph) Stats() Stats {
	s := Stats{Nodes: len(g.nodes), Links: len(g.links)}
	for _, n := range g.nodes {
		if n.State == Collapsed {
			s.Collapsed++
		}
		if n.Pinned != nil {
			s.Pinned++
		}
		if n.Position != nil {
			s.Positioned++
		}
		if n.Depth > s.MaxDepth {
			s.MaxDepth = n.Depth
		}
	}
	return s
}

// ─── Export ───

// NodeView is the serialized form of a node.
type NodeView struct {
	ID         string          `json:"id"`
	Depth      int             `json:"depth"`
	State      DisclosureState `json:"state"`
	ChildCount int             `json:"childCount"`
	X          *float64        `json:"x,omitempty"`
	Y          *float64        `json:"y,omitempty"`
	Pinned     bool            `json:"pinned,omitempty"`
}

// Snapshot is the serialized form of the visible graph.
type Snapshot struct {
	Root  string     `json:"root"`
	Nodes []NodeView `json:"nodes"`
	Links []Link     `json:"links"`
}

// Snapshot copies the visible graph into plain values.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{Root: g.root, Nodes: make([]NodeView, 0, len(g.nodes)), Links: g.Links()}
	for _, n := range g.Nodes() {
		v := NodeView{ID: n.ID, Depth: n.Depth, State: n.State, ChildCount: n.ChildCount, Pinned: n.Pinned != nil}
		if n.Position != nil {
			x, y := n.Position.X, n.Position.Y
			v.X, v.Y = &x, &y
		}
		s.Nodes = append(s.Nodes, v)
	}
	return s
}

// ExportJSON returns the visible graph as pretty-printed JSON.
func (g *Graph) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(g.Snapshot(), "", "  ")
}

// ExportDOT returns the visible graph in Graphviz DOT format.
func (g *Graph) ExportDOT() string {
	var b strings.Builder
	b.WriteString("digraph canopy {\n")
	b.WriteString("  node [shape=circle, style=filled, fontcolor=white];\n\n")

	for _, n := range g.Nodes() {
		label := n.ID
		fill := "#1f77b4"
		if n.State == Collapsed {
			label += fmt.Sprintf("\\n(%d)", n.ChildCount)
			fill = "#ff7f0e"
		}
		b.WriteString(fmt.Sprintf("  %q [label=%q, fillcolor=%q];\n", n.ID, label, fill))
	}

	b.WriteString("\n")
	for _, l := range g.links {
		b.WriteString(fmt.Sprintf("  %q -> %q;\n", l.Source, l.Target))
	}

	b.WriteString("}\n")
	return b.String()
}
