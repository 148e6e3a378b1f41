package sdf

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestNewADFValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []ADFOption
		ok   bool
	}{
		{"defaults", nil, true},
		{"zero capacity", []ADFOption{WithBucketCapacity(0)}, false},
		{"zero depth", []ADFOption{WithMaxDepth(0)}, false},
		{"tiny control grid", []ADFOption{WithControlGrid(1)}, false},
		{"custom", []ADFOption{WithBucketCapacity(4), WithMaxDepth(8), WithControlGrid(4)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewADF(tt.opts...)
			if tt.ok && err != nil {
				t.Fatalf("NewADF error: %v", err)
			}
			if !tt.ok {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("error = %v, want *ConfigurationError", err)
				}
			}
		})
	}
}

func TestADFSampleEmpty(t *testing.T) {
	adf, err := NewADF()
	if err != nil {
		t.Fatal(err)
	}
	if d := adf.Sample(Point{X: 0.5, Y: 0.5}); d < 1e30 {
		t.Errorf("empty field Sample = %v, want effectively infinite", d)
	}
}

func TestADFFieldInvariant(t *testing.T) {
	// ADF sampling is exact: it must agree with brute force up to float
	// noise, for any bucket capacity. Elimination may only remove
	// primitives that never realize the minimum.
	for _, capacity := range []int{2, 4, 8} {
		adf, err := NewADF(WithBucketCapacity(capacity))
		if err != nil {
			t.Fatal(err)
		}
		adf.Insert(Boundary())
		u := Union{Boundary()}

		rng := rand.New(rand.NewPCG(3, 0))
		for i := 0; i < 50; i++ {
			c := Circle{
				Center: Point{X: rng.Float64(), Y: rng.Float64()},
				R:      rng.Float64() * 0.1,
			}
			u = append(u, c)
			adf.Insert(c)
		}

		for i := 0; i < 10000; i++ {
			p := Point{X: rng.Float64(), Y: rng.Float64()}
			got, want := adf.Sample(p), u.Sample(p)
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("capacity %d: Sample(%v) = %v, brute force %v",
					capacity, p, got, want)
			}
		}
	}
}

func TestADFMixedPrimitives(t *testing.T) {
	adf, err := NewADF(WithBucketCapacity(3))
	if err != nil {
		t.Fatal(err)
	}
	prims := []Primitive{
		Boundary(),
		Circle{Center: Point{X: 0.3, Y: 0.3}, R: 0.1},
		Square{Center: Point{X: 0.7, Y: 0.3}, Size: 0.15},
		Capsule{A: Point{X: 0.2, Y: 0.7}, B: Point{X: 0.5, Y: 0.8}, R: 0.05},
		Polygon{{X: 0.6, Y: 0.6}, {X: 0.9, Y: 0.65}, {X: 0.75, Y: 0.9}},
	}
	u := Union{}
	for _, p := range prims {
		adf.Insert(p)
		u = append(u, p)
	}
	rng := rand.New(rand.NewPCG(4, 0))
	for i := 0; i < 5000; i++ {
		p := Point{X: rng.Float64(), Y: rng.Float64()}
		got, want := adf.Sample(p), u.Sample(p)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("Sample(%v) = %v, brute force %v", p, got, want)
		}
	}
}

func TestADFSplits(t *testing.T) {
	adf, err := NewADF(WithBucketCapacity(2))
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(5, 0))
	for i := 0; i < 30; i++ {
		adf.Insert(Circle{
			Center: Point{X: rng.Float64(), Y: rng.Float64()},
			R:      0.02,
		})
	}
	s := adf.Stats()
	if s.Leaves < 4 {
		t.Errorf("Stats.Leaves = %d, want tree to have split", s.Leaves)
	}
	if s.Nodes != s.Leaves+(s.Leaves-1)/3 {
		// 4-ary tree: internal nodes = (leaves-1)/3.
		t.Errorf("Stats inconsistent: %+v", s)
	}
}

func TestADFMaxDepthDegrades(t *testing.T) {
	// Identical overlapping primitives cannot be separated by splitting;
	// at max depth the bucket grows and sampling stays correct.
	adf, err := NewADF(WithBucketCapacity(1), WithMaxDepth(3))
	if err != nil {
		t.Fatal(err)
	}
	u := Union{}
	for i := 0; i < 10; i++ {
		c := Circle{
			Center: Point{X: 0.5 + float64(i)*1e-4, Y: 0.5},
			R:      0.1,
		}
		adf.Insert(c)
		u = append(u, c)
	}
	s := adf.Stats()
	if s.MaxDepth > 3 {
		t.Errorf("Stats.MaxDepth = %d, want at most 3", s.MaxDepth)
	}
	rng := rand.New(rand.NewPCG(6, 0))
	for i := 0; i < 2000; i++ {
		p := Point{X: rng.Float64(), Y: rng.Float64()}
		got, want := adf.Sample(p), u.Sample(p)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("Sample(%v) = %v, brute force %v", p, got, want)
		}
	}
}

func TestADFEliminationSoundness(t *testing.T) {
	// Property test: whatever gets eliminated, sampling must equal brute
	// force everywhere. A false elimination would show up as a sample
	// above the true minimum.
	rng := rand.New(rand.NewPCG(7, 0))
	for trial := 0; trial < 20; trial++ {
		adf, err := NewADF(WithBucketCapacity(3))
		if err != nil {
			t.Fatal(err)
		}
		u := Union{}
		for i := 0; i < 20; i++ {
			c := Circle{
				Center: Point{X: rng.Float64(), Y: rng.Float64()},
				R:      rng.Float64()*0.3 + 0.01,
			}
			adf.Insert(c)
			u = append(u, c)
		}
		for i := 0; i < 500; i++ {
			p := Point{X: rng.Float64(), Y: rng.Float64()}
			got, want := adf.Sample(p), u.Sample(p)
			if got > want+1e-9 {
				t.Fatalf("trial %d: Sample(%v) = %v above true minimum %v, a primitive was falsely eliminated",
					trial, p, got, want)
			}
			if got < want-1e-9 {
				t.Fatalf("trial %d: Sample(%v) = %v below true minimum %v", trial, p, got, want)
			}
		}
	}
}

func TestADFSampleOutsideDomain(t *testing.T) {
	adf, err := NewADF()
	if err != nil {
		t.Fatal(err)
	}
	adf.Insert(Boundary())
	p := Point{X: -0.2, Y: 0.5}
	if got, want := adf.Sample(p), Boundary().Distance(p); !almostEqual(got, want, 1e-12) {
		t.Errorf("Sample(%v) = %v, want %v", p, got, want)
	}
}
