package sdf

import "math"

// emptyDistance is the value of a field with no primitives, matching the
// "effectively infinite" convention of the grid's initial cell value.
const emptyDistance = math.MaxFloat64 / 2

// Field is anything that can be sampled as a signed distance function.
// Both solvers and the plain Union aggregate implement it, which is the
// single contract the gradient-ascent optimizer builds on.
//
// A Field is safe for concurrent sampling; implementations that also mutate
// (the solvers' Insert) require callers to serialize inserts against samples.
type Field interface {
	Sample(p Point) float64
}

// FieldFunc adapts an ordinary function to the Field interface.
type FieldFunc func(Point) float64

// Sample invokes the function.
func (f FieldFunc) Sample(p Point) float64 { return f(p) }

// Union aggregates primitives by pointwise minimum, realizing the union of
// their shapes. It evaluates every member on each sample, so it is the
// brute-force reference the indexed solvers are measured against.
type Union []Primitive

// Sample returns the minimum distance over all members.
func (u Union) Sample(p Point) float64 {
	d := emptyDistance
	for _, prim := range u {
		d = math.Min(d, prim.Distance(p))
	}
	return d
}

// Negate returns the pointwise negation of a field.
func Negate(f Field) Field {
	return FieldFunc(func(p Point) float64 { return -f.Sample(p) })
}

// DistPoint is a sampled field value together with the point it was taken at.
// Solver queries return it as the maximal-empty-disk result: a new shape of
// radius up to Distance fits at Point without touching anything inserted.
type DistPoint struct {
	Point    Point
	Distance float64
}

// EmpiricalDomain returns a conservative rectangle around a placement that
// covers every cell whose value can change when a shape sized by maxDist is
// inserted at center. Drivers pass it to InsertDomain to avoid full-field
// scans.
func EmpiricalDomain(center Point, maxDist float64) Rect {
	half := maxDist * 2 * math.Sqrt2
	return Rect{
		Min: Point{X: center.X - half, Y: center.Y - half},
		Max: Point{X: center.X + half, Y: center.Y + half},
	}
}

// MinFeatureSize returns the smallest distance still meaningfully
// representable on an n-cell grid. Drivers conventionally stop inserting when
// the solver's maximum drops below it.
func MinFeatureSize(n int) float64 {
	return 0.5 * math.Sqrt2 / float64(n)
}
