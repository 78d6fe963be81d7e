// Package ingest turns a hierarchy into the initial visible graph.
package ingest

import (
	"errors"
	"fmt"

	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/hierarchy"
)

// DefaultClusterThreshold is the child count above which a node starts collapsed.
const DefaultClusterThreshold = 3

var (
	ErrDuplicateID    = errors.New("duplicate node id")
	ErrEmptyHierarchy = errors.New("empty hierarchy")
)

// GeneratedID is the id given to a hierarchy node that has none.
func GeneratedID(ordinal int) string {
	return fmt.Sprintf("node-%d", ordinal)
}

// Ingest builds the visible graph for root. Subtrees whose child count exceeds
// threshold start collapsed and are not materialized. No positions are assigned.
func Ingest(root *hierarchy.Node, threshold int) (*graph.Graph, error) {
	snapshot, err := Prepare(root)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	if _, err := Materialize(g, snapshot, nil, threshold, nil); err != nil {
		return nil, err
	}
	return g, nil
}

// Prepare deep-copies root, drops nil children, fills in missing ids with
// node-<ordinal> (depth-first pre-order over the whole hierarchy) and rejects
// duplicate ids anywhere in it.
func Prepare(root *hierarchy.Node) (*hierarchy.Node, error) {
	if root == nil {
		return nil, ErrEmptyHierarchy
	}
	snapshot := root.Clone()

	seen := make(map[string]int)
	var dups []error
	ordinal := 0
	stack := []*hierarchy.Node{snapshot}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.Children = compact(n.Children)
		if n.ID == "" {
			n.ID = GeneratedID(ordinal)
		}
		ordinal++
		seen[n.ID]++
		if seen[n.ID] == 2 {
			dups = append(dups, fmt.Errorf("%w: %q", ErrDuplicateID, n.ID))
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	if len(dups) > 0 {
		return nil, errors.Join(dups...)
	}
	return snapshot, nil
}

// compact removes nil entries in place. A null child in the input has no node
// to show, so it must not count toward its parent's child count.
func compact(kids []*hierarchy.Node) []*hierarchy.Node {
	out := kids[:0]
	for _, k := range kids {
		if k != nil {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Placer positions a freshly created child. index and count describe the
// child's place among its siblings.
type Placer func(parent *graph.Node, child *graph.Node, index, count int)

// Materialize creates the graph node for src under parent (nil for the root) and
// recurses into its children unless it is clustered. It returns the ids it added,
// in creation order. src must come from Prepare so that ids are already resolved.
func Materialize(g *graph.Graph, src *hierarchy.Node, parent *graph.Node, threshold int, place Placer) ([]string, error) {
	return materialize(g, []frame{{src: src, parent: parent, count: 1}}, threshold, place)
}

// MaterializeChildren creates the stored children of parent, and their own
// unclustered descendants, linking each to its parent.
func MaterializeChildren(g *graph.Graph, parent *graph.Node, threshold int, place Placer) ([]string, error) {
	if parent == nil || parent.Source == nil {
		return nil, nil
	}
	return materialize(g, childFrames(parent.Source.Children, parent), threshold, place)
}

type frame struct {
	src    *hierarchy.Node
	parent *graph.Node
	index  int
	count  int
}

// childFrames returns frames for kids in reverse so they pop in order.
func childFrames(kids []*hierarchy.Node, parent *graph.Node) []frame {
	frames := make([]frame, 0, len(kids))
	for i := len(kids) - 1; i >= 0; i-- {
		frames = append(frames, frame{src: kids[i], parent: parent, index: i, count: len(kids)})
	}
	return frames
}

func materialize(g *graph.Graph, stack []frame, threshold int, place Placer) ([]string, error) {
	if threshold < 0 {
		threshold = 0
	}
	var added []string
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.src == nil {
			continue
		}

		n := newNode(f.src, f.parent, threshold)
		if f.parent != nil && place != nil {
			place(f.parent, n, f.index, f.count)
		}
		if err := g.AddNode(n); err != nil {
			return added, err
		}
		if f.parent != nil {
			if err := g.AddLink(f.parent.ID, n.ID); err != nil {
				return added, err
			}
			f.parent.VisibleChildren = append(f.parent.VisibleChildren, n.ID)
		}
		added = append(added, n.ID)

		if n.State == graph.Collapsed {
			continue
		}
		stack = append(stack, childFrames(f.src.Children, n)...)
	}
	return added, nil
}

func newNode(src *hierarchy.Node, parent *graph.Node, threshold int) *graph.Node {
	n := &graph.Node{
		ID:         src.ID,
		ChildCount: len(src.Children),
		Source:     src,
		State:      graph.Expanded,
	}
	if parent != nil {
		n.Parent = parent.ID
		n.Depth = parent.Depth + 1
	}
	if n.ChildCount > threshold {
		n.State = graph.Collapsed
	}
	return n
}
