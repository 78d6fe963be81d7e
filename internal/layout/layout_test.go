package layout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/msalah0e/canopy/internal/disclosure"
	"github.com/msalah0e/canopy/internal/force"
	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/hierarchy"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

// fakeIntegrator moves every free body one unit right per tick.
type fakeIntegrator struct {
	bodies  []*force.Body
	springs []force.Spring
	alpha   float64
	target  float64
	ticks   int
}

func (f *fakeIntegrator) SetBodies(b []*force.Body)   { f.bodies = b }
func (f *fakeIntegrator) SetSprings(s []force.Spring) { f.springs = s }
func (f *fakeIntegrator) Alpha() float64              { return f.alpha }
func (f *fakeIntegrator) SetAlpha(a float64)          { f.alpha = a }
func (f *fakeIntegrator) SetAlphaTarget(t float64)    { f.target = t }
func (f *fakeIntegrator) Settled() bool               { return f.alpha < 0.5 }

func (f *fakeIntegrator) Tick() {
	f.ticks++
	f.alpha += (f.target - f.alpha) * 0.25
	for _, b := range f.bodies {
		if b.Fixed != nil {
			b.Pos = *b.Fixed
			continue
		}
		b.Vel = r2.Vec{X: 1}
		b.Pos = r2.Add(b.Pos, b.Vel)
	}
}

func leaves(prefix string, n int) []*hierarchy.Node {
	out := make([]*hierarchy.Node, n)
	for i := range out {
		out[i] = &hierarchy.Node{ID: fmt.Sprintf("%s%d", prefix, i+1)}
	}
	return out
}

func clusterGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := ingest.Ingest(&hierarchy.Node{ID: "root", Children: []*hierarchy.Node{
		{ID: "A", Children: leaves("A", 5)},
		{ID: "B", Children: leaves("B", 4)},
		{ID: "C", Children: leaves("C", 2)},
	}}, 3)
	require.NoError(t, err)
	return g
}

func seededOptions() Options {
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(4, 2))
	return opts
}

func TestReseedAssignsStartPositions(t *testing.T) {
	g := clusterGraph(t)
	g.Node("B").Position = &r2.Vec{X: 5, Y: 5}

	fake := &fakeIntegrator{}
	e := NewWithIntegrator(fake, DefaultOptions())
	e.Reseed(g)

	assert.True(t, e.Live())
	assert.Equal(t, 1.0, fake.alpha)
	assert.Len(t, fake.bodies, g.Len())
	assert.Len(t, fake.springs, g.LinkCount())

	for i, n := range g.Nodes() {
		require.NotNil(t, n.Position, n.ID)
		if n.ID == "B" {
			assert.Equal(t, r2.Vec{X: 5, Y: 5}, *n.Position)
			continue
		}
		assert.Equal(t, force.Phyllotaxis(i, r2.Vec{X: 480, Y: 300}), *n.Position, n.ID)
	}
}

func TestReseedKeepsSurvivingVelocity(t *testing.T) {
	g := clusterGraph(t)
	fake := &fakeIntegrator{}
	e := NewWithIntegrator(fake, DefaultOptions())
	e.Reseed(g)

	body := fake.bodies[0]
	body.Vel = r2.Vec{X: 3, Y: -2}
	e.Reseed(g)

	assert.Same(t, body, fake.bodies[0])
	assert.Equal(t, r2.Vec{X: 3, Y: -2}, fake.bodies[0].Vel)
}

func TestStepWritesPositionsAndNotifies(t *testing.T) {
	g := clusterGraph(t)
	fake := &fakeIntegrator{}
	e := NewWithIntegrator(fake, DefaultOptions())
	e.Reseed(g)

	before := *g.Node("C1").Position
	var ticks []Tick
	e.OnTick(func(tk Tick) { ticks = append(ticks, tk) })

	require.True(t, e.Step())
	assert.Equal(t, before.X+1, g.Node("C1").Position.X)
	require.Len(t, ticks, 1)
	assert.Equal(t, 1, ticks[0].N)
	assert.Equal(t, g.Len(), ticks[0].Nodes)
	assert.Equal(t, g.LinkCount(), ticks[0].Links)
}

func TestStepStopsBelowAlphaMin(t *testing.T) {
	fake := &fakeIntegrator{}
	e := NewWithIntegrator(fake, DefaultOptions())
	e.Reseed(clusterGraph(t))

	// 1 → 0.75 → 0.5625 → 0.42 settles on the third tick.
	n := e.Settle(100)
	assert.Equal(t, 3, n)
	assert.False(t, e.Live())
	assert.False(t, e.Step())
	assert.Equal(t, 3, fake.ticks)
}

func TestStepBeforeReseed(t *testing.T) {
	e := NewWithIntegrator(&fakeIntegrator{}, DefaultOptions())
	assert.False(t, e.Step())
	assert.True(t, errors.Is(e.SetPinned("x", nil), graph.ErrUnknownNode))
}

func TestSetPinned(t *testing.T) {
	g := clusterGraph(t)
	fake := &fakeIntegrator{}
	e := NewWithIntegrator(fake, DefaultOptions())
	e.Reseed(g)

	pin := r2.Vec{X: 42, Y: 24}
	require.NoError(t, e.SetPinned("C", &pin))
	assert.Equal(t, pin, *g.Node("C").Position, "pinning moves the node at once")

	pin.X = 0
	assert.Equal(t, 42.0, g.Node("C").Pinned.X, "pin is copied")

	e.Step()
	e.Step()
	assert.Equal(t, r2.Vec{X: 42, Y: 24}, *g.Node("C").Position)

	require.NoError(t, e.SetPinned("C", nil))
	assert.Nil(t, g.Node("C").Pinned)
	e.Step()
	assert.Equal(t, 43.0, g.Node("C").Position.X)

	err := e.SetPinned("ghost", &pin)
	assert.True(t, errors.Is(err, graph.ErrUnknownNode))
}

func TestPinSurvivesReseed(t *testing.T) {
	g := clusterGraph(t)
	fake := &fakeIntegrator{}
	e := NewWithIntegrator(fake, DefaultOptions())
	e.Reseed(g)

	require.NoError(t, e.SetPinned("A", &r2.Vec{X: 1, Y: 2}))
	e.Reseed(g)

	idx := -1
	for i, n := range g.Nodes() {
		if n.ID == "A" {
			idx = i
		}
	}
	require.NotNil(t, fake.bodies[idx].Fixed)
	assert.Equal(t, r2.Vec{X: 1, Y: 2}, *fake.bodies[idx].Fixed)
}

func TestBoostEnergyRestarts(t *testing.T) {
	fake := &fakeIntegrator{}
	e := NewWithIntegrator(fake, DefaultOptions())
	e.Reseed(clusterGraph(t))
	e.Settle(0)
	require.False(t, e.Live())

	e.BoostEnergy(0)
	assert.False(t, e.Live(), "a zero target does not restart")

	e.BoostEnergy(1)
	assert.True(t, e.Live())
	assert.Equal(t, 1.0, fake.target)
	assert.True(t, e.Step())
}

func TestRunDrainsInboxBetweenTicks(t *testing.T) {
	g := clusterGraph(t)
	e := New(seededOptions())
	e.Reseed(g)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbox := make(chan func(), 1)
	stepped := 0
	e.OnTick(func(Tick) {
		stepped++
		if stepped == 3 {
			inbox <- func() {
				require.NoError(t, e.SetPinned("root", &r2.Vec{X: 7, Y: 7}))
				cancel()
			}
		}
	})

	err := e.Run(ctx, time.Millisecond, inbox)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, stepped, 3)
	assert.Equal(t, r2.Vec{X: 7, Y: 7}, *g.Node("root").Position)
}

func TestExpandThenSettleWithRealForces(t *testing.T) {
	g := clusterGraph(t)
	e := New(seededOptions())
	e.Reseed(g)
	e.Settle(1000)
	require.False(t, e.Live())

	opts := disclosure.DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(9, 9))
	opts.Reseeder = e
	c := disclosure.New(g, opts)

	change, err := c.Toggle("A")
	require.NoError(t, err)
	require.Len(t, change.Added, 5)
	assert.True(t, e.Live(), "an edit wakes the simulation")
	assert.Equal(t, 1.0, e.Alpha())

	ticks := e.Settle(1000)
	assert.Equal(t, 300, ticks)
	for _, n := range g.Nodes() {
		require.NotNil(t, n.Position, n.ID)
	}
	require.NoError(t, g.Validate())

	_, err = c.Toggle("A")
	require.NoError(t, err)
	assert.Equal(t, 6, g.Len())
	assert.Equal(t, 300, e.Settle(0))
}
