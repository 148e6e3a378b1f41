package sdf

import "math"

// Point represents a position in the normalized [0,1)² field domain.
type Point struct {
	X, Y float64
}

// Pt is a convenience function to create a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the point translated by the vector v.
func (p Point) Add(v Vec2) Point {
	return Point{X: p.X + v.X, Y: p.Y + v.Y}
}

// Sub returns the displacement from q to p.
func (p Point) Sub(q Point) Vec2 {
	return Vec2{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Vec2 represents a 2D displacement vector.
// Unlike Point which represents a position, Vec2 represents a direction and
// magnitude. The distinction keeps gradient code readable.
type Vec2 struct {
	X, Y float64
}

// V2 is a convenience function to create a Vec2.
func V2(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

// Add returns the sum of two vectors.
func (v Vec2) Add(w Vec2) Vec2 {
	return Vec2{X: v.X + w.X, Y: v.Y + w.Y}
}

// Mul returns the vector scaled by a scalar.
func (v Vec2) Mul(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Dot returns the dot product of two vectors.
func (v Vec2) Dot(w Vec2) float64 {
	return v.X*w.X + v.Y*w.Y
}

// Length returns the magnitude of the vector.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize returns a unit vector in the same direction.
// Returns the zero vector if the original vector has zero length.
func (v Vec2) Normalize() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// Rect is an axis-aligned rectangle given by its corner points.
type Rect struct {
	Min, Max Point
}

// UnitRect returns the [0,1]² field domain.
func UnitRect() Rect {
	return Rect{Min: Point{0, 0}, Max: Point{1, 1}}
}

// unbounded is a rectangle covering every point a solver will ever sample.
// Used as the bounding influence of primitives without a finite extent.
func unbounded() Rect {
	const big = math.MaxFloat64 / 4
	return Rect{Min: Point{-big, -big}, Max: Point{big, big}}
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Dx returns the width of the rectangle.
func (r Rect) Dx() float64 { return r.Max.X - r.Min.X }

// Dy returns the height of the rectangle.
func (r Rect) Dy() float64 { return r.Max.Y - r.Min.Y }

// Radius returns half the diagonal: the largest distance from the center to
// any point of the rectangle. Lipschitz pruning bounds are built on it.
func (r Rect) Radius() float64 {
	return math.Hypot(r.Dx(), r.Dy()) / 2
}

// Contains reports whether p lies inside the half-open rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// Intersects reports whether two rectangles overlap.
func (r Rect) Intersects(s Rect) bool {
	return r.Min.X < s.Max.X && s.Min.X < r.Max.X &&
		r.Min.Y < s.Max.Y && s.Min.Y < r.Max.Y
}

// Intersect returns the overlapping region of two rectangles.
// The result has non-positive extent if they do not overlap.
func (r Rect) Intersect(s Rect) Rect {
	return Rect{
		Min: Point{X: math.Max(r.Min.X, s.Min.X), Y: math.Max(r.Min.Y, s.Min.Y)},
		Max: Point{X: math.Min(r.Max.X, s.Max.X), Y: math.Min(r.Max.Y, s.Max.Y)},
	}
}

// Expand returns the rectangle grown by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X - d, Y: r.Min.Y - d},
		Max: Point{X: r.Max.X + d, Y: r.Max.Y + d},
	}
}

// Quadrant returns one of the four equal sub-rectangles.
// Quadrants are ordered TL, TR, BL, BR to match the quadtree layout.
func (r Rect) Quadrant(i int) Rect {
	c := r.Center()
	switch i {
	case 0:
		return Rect{Min: r.Min, Max: c}
	case 1:
		return Rect{Min: Point{c.X, r.Min.Y}, Max: Point{r.Max.X, c.Y}}
	case 2:
		return Rect{Min: Point{r.Min.X, c.Y}, Max: Point{c.X, r.Max.Y}}
	default:
		return Rect{Min: c, Max: r.Max}
	}
}
