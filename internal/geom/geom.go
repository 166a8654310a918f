// Package geom provides the integer geometry primitives used across the
// compositor: points and rectangles in the global coordinate space, and
// damage regions as rectangle sets.
package geom

// Point is a position in global layout coordinates.
type Point struct {
	X, Y int
}

// Rect is an axis-aligned rectangle. W and H are never negative for
// rectangles produced by this package.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

func (r Rect) Translate(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

func (r Rect) Overlaps(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Intersect returns the overlap of two rectangles, or an empty Rect.
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.W, o.X+o.W)
	y2 := min(r.Y+r.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Union returns the smallest rectangle covering both inputs. An empty
// input does not contribute.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x1 := min(r.X, o.X)
	y1 := min(r.Y, o.Y)
	x2 := max(r.X+r.W, o.X+o.W)
	y2 := max(r.Y+r.H, o.Y+o.H)
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// contains reports whether o lies entirely inside r.
func (r Rect) containsRect(o Rect) bool {
	return !r.Empty() && !o.Empty() &&
		o.X >= r.X && o.Y >= r.Y &&
		o.X+o.W <= r.X+r.W && o.Y+o.H <= r.Y+r.H
}

// DistanceSq is the squared distance between the centers of two rectangles.
// Used for nearest-output selection; squared avoids the float round trip.
func (r Rect) DistanceSq(o Rect) int {
	a, b := r.Center(), o.Center()
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

// Region is an accumulated set of damaged rectangles. The zero value is an
// empty region ready for use.
type Region struct {
	rects []Rect
}

func (g *Region) Empty() bool {
	return len(g.rects) == 0
}

// Add accumulates a rectangle. Rectangles already covered are dropped and
// rectangles covering existing entries replace them; beyond that no
// splitting is attempted, the renderer copes with overlap.
func (g *Region) Add(r Rect) {
	if r.Empty() {
		return
	}
	kept := g.rects[:0]
	for _, have := range g.rects {
		if have.containsRect(r) {
			return
		}
		if !r.containsRect(have) {
			kept = append(kept, have)
		}
	}
	g.rects = append(kept, r)
}

// AddRegion merges another region into this one.
func (g *Region) AddRegion(o Region) {
	for _, r := range o.rects {
		g.Add(r)
	}
}

// Rects returns the accumulated rectangles. Callers must not mutate the
// returned slice.
func (g *Region) Rects() []Rect {
	return g.rects
}

// Bounds returns the bounding rectangle of the region.
func (g *Region) Bounds() Rect {
	var b Rect
	for _, r := range g.rects {
		b = b.Union(r)
	}
	return b
}

// Overlaps reports whether any part of the region touches r.
func (g *Region) Overlaps(r Rect) bool {
	for _, have := range g.rects {
		if have.Overlaps(r) {
			return true
		}
	}
	return false
}

// Clip returns a copy of the region restricted to bounds.
func (g *Region) Clip(bounds Rect) Region {
	var out Region
	for _, r := range g.rects {
		out.Add(r.Intersect(bounds))
	}
	return out
}

// Reset empties the region, keeping its backing storage.
func (g *Region) Reset() {
	g.rects = g.rects[:0]
}
