package sdf

import "math"

// Primitive is a shape described by its signed distance function.
// Distance must return negative values inside the shape, positive outside,
// with magnitude equal to the distance to the nearest boundary. Distance is
// expected to be pure and 1-Lipschitz; the solvers rely on the Lipschitz
// property for pruning, so a non-metric distance function produces unreliable
// (but memory-safe) results.
//
// Bounds returns the bounding region of the shape itself, not of its
// influence: a primitive still contributes finite distance values far outside
// its bounds.
type Primitive interface {
	Distance(p Point) float64
	Bounds() Rect
}

// Circle is a filled disk.
type Circle struct {
	Center Point
	R      float64
}

// Distance returns the signed distance from p to the circle boundary.
func (c Circle) Distance(p Point) float64 {
	return p.Dist(c.Center) - c.R
}

// Bounds returns the bounding box of the circle.
func (c Circle) Bounds() Rect {
	return Rect{
		Min: Point{X: c.Center.X - c.R, Y: c.Center.Y - c.R},
		Max: Point{X: c.Center.X + c.R, Y: c.Center.Y + c.R},
	}
}

// Square is a filled axis-aligned square.
type Square struct {
	Center Point
	Size   float64
}

// Distance returns the signed distance from p to the square boundary.
func (s Square) Distance(p Point) float64 {
	// Fold into the first quadrant and measure against the half-extent.
	dx := math.Abs(p.X-s.Center.X) - s.Size/2
	dy := math.Abs(p.Y-s.Center.Y) - s.Size/2
	outside := math.Hypot(math.Max(dx, 0), math.Max(dy, 0))
	inside := math.Min(math.Max(dx, dy), 0)
	return outside + inside
}

// Bounds returns the bounding box of the square.
func (s Square) Bounds() Rect {
	h := s.Size / 2
	return Rect{
		Min: Point{X: s.Center.X - h, Y: s.Center.Y - h},
		Max: Point{X: s.Center.X + h, Y: s.Center.Y + h},
	}
}

// Capsule is a line segment with thickness: the set of points within R of the
// segment AB. With R zero it degenerates to a bare curve segment.
type Capsule struct {
	A, B Point
	R    float64
}

// Distance returns the signed distance from p to the capsule boundary.
func (c Capsule) Distance(p Point) float64 {
	pa := p.Sub(c.A)
	ba := c.B.Sub(c.A)
	denom := ba.Dot(ba)
	var h float64
	if denom > 0 {
		h = math.Min(math.Max(pa.Dot(ba)/denom, 0), 1)
	}
	return V2(pa.X-ba.X*h, pa.Y-ba.Y*h).Length() - c.R
}

// Bounds returns the bounding box of the capsule.
func (c Capsule) Bounds() Rect {
	return Rect{
		Min: Point{X: math.Min(c.A.X, c.B.X) - c.R, Y: math.Min(c.A.Y, c.B.Y) - c.R},
		Max: Point{X: math.Max(c.A.X, c.B.X) + c.R, Y: math.Max(c.A.Y, c.B.Y) + c.R},
	}
}

// Polygon is a filled simple polygon given by its vertices in order.
type Polygon []Point

// Distance returns the signed distance from p to the polygon boundary.
// Sign is determined by even-odd crossing parity, so the winding direction
// of the vertices does not matter.
func (poly Polygon) Distance(p Point) float64 {
	n := len(poly)
	if n == 0 {
		return math.MaxFloat64 / 2
	}
	if n == 1 {
		return p.Dist(poly[0])
	}
	d := math.MaxFloat64
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[j], poly[i]
		// Distance to edge.
		e := b.Sub(a)
		w := p.Sub(a)
		denom := e.Dot(e)
		var h float64
		if denom > 0 {
			h = math.Min(math.Max(w.Dot(e)/denom, 0), 1)
		}
		d = math.Min(d, V2(w.X-e.X*h, w.Y-e.Y*h).Length())
		// Even-odd ray crossing.
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
			if p.X < x {
				inside = !inside
			}
		}
	}
	if inside {
		return -d
	}
	return d
}

// Bounds returns the bounding box of the polygon vertices.
func (poly Polygon) Bounds() Rect {
	if len(poly) == 0 {
		return Rect{}
	}
	r := Rect{Min: poly[0], Max: poly[0]}
	for _, p := range poly[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}

// Func wraps a user-supplied distance function as a Primitive.
// Box should bound the region where Fn is negative; use UnitRect when in
// doubt. Fn must satisfy the Primitive contract.
type Func struct {
	Fn  func(Point) float64
	Box Rect
}

// Distance invokes the wrapped function.
func (f Func) Distance(p Point) float64 { return f.Fn(p) }

// Bounds returns the declared bounding box.
func (f Func) Bounds() Rect { return f.Box }

// Invert negates a primitive's field, turning its inside out. The result is
// no longer a primitive with a finite extent, so its bounds cover everything.
func Invert(p Primitive) Primitive {
	return inverted{p}
}

type inverted struct {
	p Primitive
}

func (i inverted) Distance(p Point) float64 { return -i.p.Distance(p) }
func (i inverted) Bounds() Rect             { return unbounded() }

// Boundary returns the inverted unit square: the primitive that keeps a
// packing inside the [0,1]² domain. Drivers conventionally insert it first.
func Boundary() Primitive {
	return Invert(Square{Center: Point{X: 0.5, Y: 0.5}, Size: 1})
}
