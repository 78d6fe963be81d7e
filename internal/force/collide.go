package force

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r2"
)

// point is a body's predicted position, indexed back into the body slice.
type point struct {
	index int
	at    r2.Vec
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	if d == 0 {
		return p.at.X - q.at.X
	}
	return p.at.Y - q.at.Y
}

func (p point) Dims() int { return 2 }

// Distance is squared, as kdtree keepers expect.
func (p point) Distance(c kdtree.Comparable) float64 {
	return r2.Norm2(r2.Sub(p.at, c.(point).at))
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return axis{points: p, Dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type axis struct {
	kdtree.Dim
	points
}

func (a axis) Less(i, j int) bool {
	if a.Dim == 0 {
		return a.points[i].at.X < a.points[j].at.X
	}
	return a.points[i].at.Y < a.points[j].at.Y
}
func (a axis) Pivot() int { return kdtree.Partition(a, kdtree.MedianOfMedians(a)) }
func (a axis) Slice(start, end int) kdtree.SortSlicer {
	a.points = a.points[start:end]
	return a
}
func (a axis) Swap(i, j int) {
	a.points[i], a.points[j] = a.points[j], a.points[i]
}

// collisionIndex answers radius queries over predicted positions at the
// start of a collide pass.
type collisionIndex struct {
	tree *kdtree.Tree
}

func newCollisionIndex(bodies []*Body) collisionIndex {
	pts := make(points, len(bodies))
	for i, b := range bodies {
		pts[i] = point{index: i, at: r2.Add(b.Pos, b.Vel)}
	}
	return collisionIndex{tree: kdtree.New(pts, false)}
}

// within returns the indexes of bodies whose predicted position lies within
// dist of at.
func (c collisionIndex) within(at r2.Vec, dist float64) []int {
	keep := kdtree.NewDistKeeper(dist * dist)
	c.tree.NearestSet(keep, point{index: -1, at: at})
	out := make([]int, 0, keep.Len())
	for _, cd := range keep.Heap {
		p, ok := cd.Comparable.(point)
		if !ok {
			continue
		}
		out = append(out, p.index)
	}
	return out
}
