package sdf

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestNewGridArgmaxValidation(t *testing.T) {
	tests := []struct {
		name string
		n    int
		opts []GridOption
		ok   bool
	}{
		{"power of two", 64, nil, true},
		{"not power of two", 100, nil, false},
		{"zero", 0, nil, false},
		{"negative", -8, nil, false},
		{"chunk larger than grid clamps", 8, []GridOption{WithChunkSize(64)}, true},
		{"chunk not power of two", 64, []GridOption{WithChunkSize(12)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGridArgmax(tt.n, tt.opts...)
			if tt.ok {
				if err != nil {
					t.Fatalf("NewGridArgmax(%d) error: %v", tt.n, err)
				}
				g.Close()
				return
			}
			if err == nil {
				t.Fatalf("NewGridArgmax(%d) succeeded, want error", tt.n)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error type %T, want *ConfigurationError", err)
			}
		})
	}
}

func TestGridEmptyArgmax(t *testing.T) {
	g, err := NewGridArgmax(64)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	best := g.Argmax()
	if best.Distance < 1e30 {
		t.Errorf("empty field Argmax distance = %v, want effectively infinite", best.Distance)
	}
	// Tie-break: all cells equal, the first cell wins.
	want := g.cellPoint(0)
	if best.Point != want {
		t.Errorf("empty field Argmax point = %v, want %v", best.Point, want)
	}
}

func TestGridCircleAtCenter(t *testing.T) {
	// A single circle at the center pushes the maximum to a domain corner,
	// the farthest cell from the circle boundary.
	g, err := NewGridArgmax(256)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	g.Insert(Circle{Center: Point{X: 0.5, Y: 0.5}, R: 0.1})

	best := g.Argmax()
	corner := math.Min(
		math.Min(best.Point.Dist(Point{X: 0, Y: 0}), best.Point.Dist(Point{X: 1, Y: 0})),
		math.Min(best.Point.Dist(Point{X: 0, Y: 1}), best.Point.Dist(Point{X: 1, Y: 1})),
	)
	if corner > 0.01 {
		t.Errorf("Argmax point %v not near any corner", best.Point)
	}
	want := math.Hypot(0.5, 0.5) - 0.1
	if math.Abs(best.Distance-want) > 0.01 {
		t.Errorf("Argmax distance = %v, want about %v", best.Distance, want)
	}
}

func TestGridGlobalMaxExhaustive(t *testing.T) {
	// Argmax must dominate every cell on a small grid.
	g, err := NewGridArgmax(64, WithChunkSize(8))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	g.Insert(Boundary())
	rng := rand.New(rand.NewPCG(1, 0))
	for i := 0; i < 10; i++ {
		g.Insert(Circle{
			Center: Point{X: rng.Float64(), Y: rng.Float64()},
			R:      rng.Float64() * 0.2,
		})
	}

	best := g.Argmax()
	n := g.Resolution()
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			p := Point{X: (float64(x) + 0.5) / float64(n), Y: (float64(y) + 0.5) / float64(n)}
			if s := g.Sample(p); s > best.Distance {
				t.Fatalf("Sample(%v) = %v exceeds Argmax distance %v", p, s, best.Distance)
			}
		}
	}
	if s := g.Sample(best.Point); !almostEqual(s, best.Distance, 1e-6) {
		t.Errorf("Sample(Argmax point) = %v, want %v", s, best.Distance)
	}
}

func TestGridFieldInvariant(t *testing.T) {
	// Grid sampling agrees with brute force within discretization error.
	g, err := NewGridArgmax(256)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	rng := rand.New(rand.NewPCG(2, 0))
	var u Union
	for i := 0; i < 50; i++ {
		c := Circle{
			Center: Point{X: rng.Float64(), Y: rng.Float64()},
			R:      rng.Float64() * 0.1,
		}
		u = append(u, c)
		g.Insert(c)
	}

	tol := math.Sqrt2 / float64(g.Resolution())
	for i := 0; i < 10000; i++ {
		p := Point{X: rng.Float64(), Y: rng.Float64()}
		got, want := g.Sample(p), u.Sample(p)
		if math.Abs(got-want) > tol {
			t.Fatalf("Sample(%v) = %v, brute force %v, diff %v > %v",
				p, got, want, math.Abs(got-want), tol)
		}
	}
}

func TestGridArgmaxIdempotent(t *testing.T) {
	g, err := NewGridArgmax(64)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	g.Insert(Boundary())
	g.Insert(Circle{Center: Point{X: 0.3, Y: 0.7}, R: 0.05})

	first := g.Argmax()
	for i := 0; i < 5; i++ {
		if got := g.Argmax(); got != first {
			t.Fatalf("Argmax call %d = %+v, want %+v", i+2, got, first)
		}
	}
}

func TestGridNoIntersection(t *testing.T) {
	// Inserting a circle sized by Argmax never drives previously
	// non-negative cells negative.
	g, err := NewGridArgmax(128)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	g.Insert(Boundary())

	for i := 0; i < 20; i++ {
		best := g.Argmax()
		c := Circle{Center: best.Point, R: best.Distance / 4}

		before := make([]float32, len(g.cells))
		copy(before, g.cells)
		g.InsertDomain(EmpiricalDomain(best.Point, best.Distance), c)

		tol := float32(math.Sqrt2 / float64(g.Resolution()))
		for idx, old := range before {
			if old >= 0 && g.cells[idx] < -tol {
				t.Fatalf("insert %d: cell %d went from %v to %v", i, idx, old, g.cells[idx])
			}
		}
	}
}

func TestGridInsertDomainMatchesInsert(t *testing.T) {
	full, err := NewGridArgmax(128)
	if err != nil {
		t.Fatal(err)
	}
	defer full.Close()
	domained, err := NewGridArgmax(128)
	if err != nil {
		t.Fatal(err)
	}
	defer domained.Close()

	full.Insert(Boundary())
	domained.Insert(Boundary())

	best := full.Argmax()
	c := Circle{Center: best.Point, R: best.Distance / 4}
	full.Insert(c)
	domained.InsertDomain(EmpiricalDomain(best.Point, best.Distance), c)

	if got, want := domained.Argmax(), full.Argmax(); got != want {
		t.Errorf("Argmax after domain insert = %+v, full insert %+v", got, want)
	}
}

func TestGridInvert(t *testing.T) {
	g, err := NewGridArgmax(64)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	c := Circle{Center: Point{X: 0.5, Y: 0.5}, R: 0.2}
	g.Insert(c)

	p := Point{X: 0.5, Y: 0.5}
	before := g.Sample(p)
	g.Invert()
	if got := g.Sample(p); !almostEqual(got, -before, 1e-9) {
		t.Errorf("Sample after Invert = %v, want %v", got, -before)
	}
	// The maximum is now inside the circle.
	best := g.Argmax()
	if c.Distance(best.Point) > 0 {
		t.Errorf("Argmax after Invert at %v, want inside the circle", best.Point)
	}
}

func TestGridSampleOutsideDomain(t *testing.T) {
	g, err := NewGridArgmax(64)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	p := Point{X: 1.5, Y: 0.5}
	if got, want := g.Sample(p), Boundary().Distance(p); !almostEqual(got, want, 1e-12) {
		t.Errorf("Sample(%v) = %v, want boundary distance %v", p, got, want)
	}
	if g.Sample(p) >= 0 {
		t.Error("outside the domain the field must be negative")
	}
}

func TestGridReset(t *testing.T) {
	g, err := NewGridArgmax(64)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	g.Insert(Circle{Center: Point{X: 0.5, Y: 0.5}, R: 0.2})
	g.Reset()
	if best := g.Argmax(); best.Distance < 1e30 {
		t.Errorf("Argmax after Reset = %v, want effectively infinite", best.Distance)
	}
}
