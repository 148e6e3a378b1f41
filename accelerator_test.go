package sdf

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
)

// fakeAccelerator records calls and defers everything to the CPU path.
type fakeAccelerator struct {
	mu      sync.Mutex
	inits   int
	closes  int
	inserts int
	reduces int
	logger  *slog.Logger
}

func (f *fakeAccelerator) Name() string { return "fake" }

func (f *fakeAccelerator) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return nil
}

func (f *fakeAccelerator) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeAccelerator) CanAccelerate(op AccelOp) bool {
	return op&(AccelInsertCircle|AccelReduce) != 0
}

func (f *fakeAccelerator) InsertCircle(GridTarget, Circle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	return ErrFallbackToCPU
}

func (f *fakeAccelerator) Reduce(GridTarget) (DistPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reduces++
	return DistPoint{}, ErrFallbackToCPU
}

func (f *fakeAccelerator) SetLogger(l *slog.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = l
}

// clearAccelerator removes any registered accelerator after a test.
func clearAccelerator() {
	accelMu.Lock()
	old := accel
	accel = nil
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
}

func TestRegisterAccelerator(t *testing.T) {
	defer clearAccelerator()

	fake := &fakeAccelerator{}
	if err := RegisterAccelerator(fake); err != nil {
		t.Fatal(err)
	}
	if fake.inits != 1 {
		t.Errorf("Init called %d times, want 1", fake.inits)
	}
	if got := RegisteredAccelerator(); got != fake {
		t.Errorf("RegisteredAccelerator = %v, want the fake", got)
	}
	if fake.logger == nil {
		t.Error("logger was not propagated on registration")
	}

	// Replacing closes the previous accelerator.
	second := &fakeAccelerator{}
	if err := RegisterAccelerator(second); err != nil {
		t.Fatal(err)
	}
	if fake.closes != 1 {
		t.Errorf("old accelerator Close called %d times, want 1", fake.closes)
	}
	if got := RegisteredAccelerator(); got != second {
		t.Errorf("RegisteredAccelerator = %v, want the replacement", got)
	}
}

func TestRegisterNilAccelerator(t *testing.T) {
	if err := RegisterAccelerator(nil); err == nil {
		t.Fatal("RegisterAccelerator(nil) succeeded, want error")
	}
}

func TestGridFallsBackOnAcceleratorError(t *testing.T) {
	defer clearAccelerator()

	fake := &fakeAccelerator{}
	if err := RegisterAccelerator(fake); err != nil {
		t.Fatal(err)
	}

	g, err := NewGridArgmax(64)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	g.Insert(Boundary())
	g.Insert(Circle{Center: Point{X: 0.5, Y: 0.5}, R: 0.1})
	best := g.Argmax()

	if fake.inserts == 0 {
		t.Error("accelerator InsertCircle was never tried")
	}
	if fake.reduces == 0 {
		t.Error("accelerator Reduce was never tried")
	}
	if best.Distance <= 0 {
		t.Errorf("CPU fallback Argmax = %+v, want a positive result", best)
	}
}

func TestCPUAcceleratorMatchesSolver(t *testing.T) {
	// The reference accelerator and the solver's own CPU path must agree
	// exactly, inserts and reductions both.
	plain, err := NewGridArgmax(128)
	if err != nil {
		t.Fatal(err)
	}
	defer plain.Close()

	accelerated, err := NewGridArgmax(128)
	if err != nil {
		t.Fatal(err)
	}
	defer accelerated.Close()

	cpu := NewCPUAccelerator(0)
	defer cpu.Close()

	rng := rand.New(rand.NewPCG(10, 0))
	for i := 0; i < 20; i++ {
		c := Circle{
			Center: Point{X: rng.Float64(), Y: rng.Float64()},
			R:      rng.Float64() * 0.2,
		}
		plain.Insert(c)
		if err := cpu.InsertCircle(accelerated.target(), c); err != nil {
			t.Fatal(err)
		}
	}

	for i, cell := range plain.cells {
		if cell != accelerated.cells[i] {
			t.Fatalf("cell %d: solver %v, accelerator %v", i, cell, accelerated.cells[i])
		}
	}

	want := plain.Argmax()
	got, err := cpu.Reduce(accelerated.target())
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("accelerator Reduce = %+v, solver Argmax = %+v", got, want)
	}
}

func TestSetLoggerPropagates(t *testing.T) {
	defer clearAccelerator()
	defer SetLogger(nil)

	fake := &fakeAccelerator{}
	if err := RegisterAccelerator(fake); err != nil {
		t.Fatal(err)
	}
	l := slog.New(nopHandler{})
	SetLogger(l)
	if fake.logger != l {
		t.Error("SetLogger did not propagate to the accelerator")
	}
}
