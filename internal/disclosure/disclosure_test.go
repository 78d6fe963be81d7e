package disclosure

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/hierarchy"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

type countingReseeder struct {
	calls int
	last  *graph.Graph
}

func (r *countingReseeder) Reseed(g *graph.Graph) {
	r.calls++
	r.last = g
}

func leaves(prefix string, n int) []*hierarchy.Node {
	out := make([]*hierarchy.Node, n)
	for i := range out {
		out[i] = &hierarchy.Node{ID: fmt.Sprintf("%s%d", prefix, i+1)}
	}
	return out
}

func clusterTree() *hierarchy.Node {
	return &hierarchy.Node{ID: "root", Children: []*hierarchy.Node{
		{ID: "A", Children: leaves("A", 5)},
		{ID: "B", Children: leaves("B", 4)},
		{ID: "C", Children: leaves("C", 2)},
	}}
}

func newController(t *testing.T, root *hierarchy.Node) (*Controller, *countingReseeder) {
	t.Helper()
	g, err := ingest.Ingest(root, 3)
	require.NoError(t, err)
	rs := &countingReseeder{}
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(7, 11))
	opts.Reseeder = rs
	return New(g, opts), rs
}

func TestExpandCollapsedCluster(t *testing.T) {
	c, rs := newController(t, clusterTree())
	g := c.Graph()
	a := g.Node("A")
	a.Position = &r2.Vec{X: 300, Y: 200}
	nodesBefore, linksBefore := g.Len(), g.LinkCount()

	change, err := c.Toggle("A")
	require.NoError(t, err)

	assert.Equal(t, ActionExpand, change.Action)
	assert.Equal(t, []string{"A1", "A2", "A3", "A4", "A5"}, change.Added)
	assert.Equal(t, nodesBefore+5, g.Len())
	assert.Equal(t, linksBefore+5, g.LinkCount())
	assert.Equal(t, graph.Expanded, a.State)
	assert.Equal(t, change.Added, a.VisibleChildren)
	assert.Equal(t, graph.Expanded, g.Root().State, "root is unaffected")
	assert.Equal(t, 1, rs.calls)
	assert.Same(t, g, rs.last)

	for _, id := range change.Added {
		child := g.Node(id)
		require.NotNil(t, child.Position, id)
		d := r2.Norm(r2.Sub(*child.Position, *a.Position))
		assert.InDelta(t, 100, d, 10.0001, "%s at distance %f", id, d)
		assert.Equal(t, 2, child.Depth)
		assert.Contains(t, g.Links(), graph.Link{Source: "A", Target: id})
	}
	require.NoError(t, g.Validate())
}

func TestExpandPlacesChildrenByAngle(t *testing.T) {
	c, _ := newController(t, clusterTree())
	c.opts.ExpandJitter = 0
	a := c.Graph().Node("A")
	a.Position = &r2.Vec{}

	_, err := c.Expand("A")
	require.NoError(t, err)

	first := c.Graph().Node("A1").Position
	assert.InDelta(t, 100, first.X, 1e-9)
	assert.InDelta(t, 0, first.Y, 1e-9)

	// index 1 of 5 sits at 72 degrees
	second := c.Graph().Node("A2").Position
	assert.InDelta(t, 30.9017, second.X, 1e-3)
	assert.InDelta(t, 95.1057, second.Y, 1e-3)
}

func TestExpandWithoutParentPosition(t *testing.T) {
	c, _ := newController(t, clusterTree())

	change, err := c.Expand("B")
	require.NoError(t, err)
	for _, id := range change.Added {
		assert.Nil(t, c.Graph().Node(id).Position, "layout assigns positions on reseed")
	}
}

func TestCollapseExpandedNode(t *testing.T) {
	c, rs := newController(t, clusterTree())
	g := c.Graph()
	nodesBefore, linksBefore := g.Len(), g.LinkCount()

	change, err := c.Toggle("C")
	require.NoError(t, err)

	assert.Equal(t, ActionCollapse, change.Action)
	assert.ElementsMatch(t, []string{"C1", "C2"}, change.Removed)
	assert.Equal(t, nodesBefore-2, g.Len())
	assert.Equal(t, linksBefore-2, g.LinkCount())

	cn := g.Node("C")
	assert.Equal(t, graph.Collapsed, cn.State)
	assert.Empty(t, cn.VisibleChildren)
	assert.Equal(t, 2, cn.ChildCount, "badge keeps the input child count")
	assert.False(t, g.Has("C1"))
	assert.Equal(t, 1, rs.calls)
	require.NoError(t, g.Validate())
}

func TestCollapseRemovesWholeSubtree(t *testing.T) {
	root := &hierarchy.Node{ID: "r", Children: []*hierarchy.Node{
		{ID: "x", Children: []*hierarchy.Node{
			{ID: "x1", Children: leaves("x1-", 2)},
			{ID: "x2"},
		}},
		{ID: "y"},
	}}
	c, _ := newController(t, root)
	g := c.Graph()
	require.Equal(t, 7, g.Len())

	change, err := c.Collapse("x")
	require.NoError(t, err)

	assert.Equal(t, []string{"x1", "x1-1", "x1-2", "x2"}, change.Removed)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.LinkCount())
	require.NoError(t, g.Validate())
}

func TestExpandCascadesUnclusteredChildren(t *testing.T) {
	root := &hierarchy.Node{ID: "r", Children: []*hierarchy.Node{
		{ID: "x", Children: []*hierarchy.Node{
			{ID: "x1", Children: leaves("x1-", 2)},
			{ID: "x2", Children: leaves("x2-", 4)},
		}},
	}}
	c, _ := newController(t, root)
	_, err := c.Collapse("x")
	require.NoError(t, err)

	c.Graph().Node("x").Position = &r2.Vec{X: 10, Y: 10}
	change, err := c.Expand("x")
	require.NoError(t, err)

	assert.Equal(t, []string{"x1", "x1-1", "x1-2", "x2"}, change.Added)
	assert.Equal(t, graph.Expanded, c.Graph().Node("x1").State)
	assert.Equal(t, graph.Collapsed, c.Graph().Node("x2").State)

	grandchild := c.Graph().Node("x1-1")
	require.NotNil(t, grandchild.Position)
	d := r2.Norm(r2.Sub(*grandchild.Position, *c.Graph().Node("x1").Position))
	assert.InDelta(t, 100, d, 10.0001)
	require.NoError(t, c.Graph().Validate())
}

func TestRoundTripRestoresCounts(t *testing.T) {
	c, _ := newController(t, clusterTree())
	g := c.Graph()
	g.Node("A").Position = &r2.Vec{X: 1, Y: 1}
	nodes, links := g.Len(), g.LinkCount()

	expanded, err := c.Expand("A")
	require.NoError(t, err)
	first := *g.Node("A1").Position

	collapsed, err := c.Collapse("A")
	require.NoError(t, err)

	assert.ElementsMatch(t, expanded.Added, collapsed.Removed)
	assert.Equal(t, nodes, g.Len())
	assert.Equal(t, links, g.LinkCount())
	assert.Empty(t, g.Node("A").VisibleChildren)

	again, err := c.Expand("A")
	require.NoError(t, err)
	assert.Equal(t, expanded.Added, again.Added, "same logical children")
	assert.NotEqual(t, first, *g.Node("A1").Position, "fresh instances get fresh jitter")
}

func TestIdempotentTransitions(t *testing.T) {
	c, rs := newController(t, clusterTree())
	g := c.Graph()
	nodes, links := g.Len(), g.LinkCount()

	change, err := c.Expand("C")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, change.Action)

	change, err = c.Collapse("A")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, change.Action)

	change, err = c.Collapse("C1")
	require.NoError(t, err, "collapsing a leaf is a silent no-op")
	assert.Equal(t, ActionNone, change.Action)

	change, err = c.Toggle("C1")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, change.Action)

	assert.Equal(t, nodes, g.Len())
	assert.Equal(t, links, g.LinkCount())
	assert.Zero(t, rs.calls, "no-ops must not reseed")
}

func TestExpandWithoutStoredChildren(t *testing.T) {
	c, rs := newController(t, clusterTree())
	leaf := c.Graph().Node("C1")
	leaf.State = graph.Collapsed

	change, err := c.Expand("C1")
	assert.True(t, errors.Is(err, ErrNoStoredChildren))
	assert.Equal(t, ActionNone, change.Action)
	assert.Zero(t, rs.calls)
	assert.Equal(t, 6, c.Graph().Len())
}

func TestUnknownNode(t *testing.T) {
	c, _ := newController(t, clusterTree())
	for _, fn := range []func(string) (Change, error){c.Toggle, c.Expand, c.Collapse} {
		_, err := fn("ghost")
		assert.True(t, errors.Is(err, graph.ErrUnknownNode))
	}
}

func TestRandomToggleSequenceKeepsInvariants(t *testing.T) {
	root := &hierarchy.Node{ID: "root"}
	next := 0
	var grow func(n *hierarchy.Node, depth int)
	grow = func(n *hierarchy.Node, depth int) {
		if depth == 0 {
			return
		}
		for i := 0; i < 2+depth; i++ {
			next++
			child := &hierarchy.Node{ID: fmt.Sprintf("n%d", next)}
			n.Children = append(n.Children, child)
			grow(child, depth-1)
		}
	}
	grow(root, 3)

	c, _ := newController(t, root)
	g := c.Graph()
	r := rand.New(rand.NewPCG(3, 5))
	for step := 0; step < 300; step++ {
		nodes := g.Nodes()
		target := nodes[r.IntN(len(nodes))]
		target.Position = &r2.Vec{X: r.Float64() * 500, Y: r.Float64() * 500}

		_, err := c.Toggle(target.ID)
		if err != nil {
			require.ErrorIs(t, err, ErrNoStoredChildren)
		}
		require.NoError(t, g.Validate(), "step %d toggling %s", step, target.ID)

		for _, l := range g.Links() {
			require.True(t, g.Has(l.Source) && g.Has(l.Target), "dangling link %v", l)
		}
	}
}
