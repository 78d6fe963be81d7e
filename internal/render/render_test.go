package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/msalah0e/canopy/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func sample(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "root", Position: &r2.Vec{X: 10, Y: 20}}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "A", Parent: "root", Depth: 1, State: graph.Collapsed, ChildCount: 5, Position: &r2.Vec{X: 110, Y: 20}}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "C", Parent: "root", Depth: 1, Position: &r2.Vec{X: 10, Y: 120}}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "C1", Parent: "C", Depth: 2}))
	require.NoError(t, g.AddLink("root", "A"))
	require.NoError(t, g.AddLink("root", "C"))
	require.NoError(t, g.AddLink("C", "C1"))
	return g
}

func TestProjectIdentity(t *testing.T) {
	f := Project(sample(t), Identity)

	require.Len(t, f.Lines, 2, "the link to the unpositioned C1 is not drawn")
	assert.Equal(t, Line{Source: "root", Target: "A", X1: 10, Y1: 20, X2: 110, Y2: 20, Stroke: "#999"}, f.Lines[0])
	assert.Empty(t, f.Skipped)

	require.Len(t, f.Circles, 3)
	assert.Equal(t, Circle{ID: "root", CX: 10, CY: 20, R: 10, Fill: "#1f77b4", Stroke: "#fff"}, f.Circles[0])
	assert.Equal(t, "#ff7f0e", f.Circles[1].Fill)

	// root label, A badge, A label, C label
	require.Len(t, f.Labels, 4)
	assert.Equal(t, Label{Text: "5", X: 110, Y: 20, Fill: "white", Size: 10, Align: "center", Baseline: "middle"}, f.Labels[1])
	assert.Equal(t, Label{Text: "A", X: 110, Y: 5, Fill: "#000", Size: 10, Align: "center", Baseline: "bottom"}, f.Labels[2])
}

func TestProjectCamera(t *testing.T) {
	cam := Camera{TX: 100, TY: -50, K: 2}
	f := Project(sample(t), cam)

	root := f.Circles[0]
	assert.Equal(t, 120.0, root.CX)
	assert.Equal(t, -10.0, root.CY)
	assert.Equal(t, 20.0, root.R)
	assert.Equal(t, -10.0-30.0, f.Labels[0].Y, "label offset scales with zoom")
	assert.Equal(t, 20.0, f.Labels[0].Size)

	p := r2.Vec{X: 3, Y: 4}
	assert.Equal(t, p, cam.Invert(cam.Apply(p)))
}

func TestProjectZeroZoomIsIdentityScale(t *testing.T) {
	f := Project(sample(t), Camera{})
	assert.Equal(t, 10.0, f.Circles[0].R)
}

func TestProjectNoBadgeForEmptyCluster(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "x", State: graph.Collapsed, Position: &r2.Vec{}}))
	f := Project(g, Identity)
	require.Len(t, f.Labels, 1)
	assert.Equal(t, "x", f.Labels[0].Text)
}

// danglingScene reports a link to a node it does not hold.
type danglingScene struct{ *graph.Graph }

func (d danglingScene) Links() []graph.Link {
	return append(d.Graph.Links(), graph.Link{Source: "root", Target: "ghost"})
}

func TestProjectReportsUnresolvableLinks(t *testing.T) {
	f := Project(danglingScene{sample(t)}, Identity)
	assert.Equal(t, []graph.Link{{Source: "root", Target: "ghost"}}, f.Skipped)
	assert.Len(t, f.Lines, 2)
}

func TestProjectNil(t *testing.T) {
	f := Project(nil, Identity)
	assert.Empty(t, f.Circles)
}

func TestFrameJSON(t *testing.T) {
	data, err := json.Marshal(Project(sample(t), Identity))
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `"circles":[{"id":"root","cx":10,"cy":20,"r":10`)
	assert.Contains(t, s, `"camera":{"tx":0,"ty":0,"k":1}`)
	assert.NotContains(t, s, "skipped")
}

func TestWriteSVG(t *testing.T) {
	g := sample(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSVG(&buf, Project(g, Identity), 960, 600))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<svg xmlns="http://www.w3.org/2000/svg" width="960.00" height="600.00"`))
	assert.Equal(t, 2, strings.Count(out, "<line "))
	assert.Equal(t, 3, strings.Count(out, "<circle "))
	assert.Contains(t, out, `fill="#ff7f0e"`)
	assert.Contains(t, out, `dominant-baseline="central">5</text>`)
	assert.True(t, strings.HasSuffix(out, "</svg>\n"))
}

func TestWriteSVGEscapesText(t *testing.T) {
	f := Frame{Labels: []Label{{Text: `<a&b>`, Align: AlignCenter}}}
	var buf bytes.Buffer
	require.NoError(t, WriteSVG(&buf, f, 10, 10))
	assert.Contains(t, buf.String(), "&lt;a&amp;b&gt;")
}
