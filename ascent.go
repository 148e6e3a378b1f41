package sdf

import (
	"math"
	"math/rand/v2"
)

// AscentConfig parameterizes the gradient-ascent optimizer. The zero value
// is not usable; start from DefaultAscentConfig and override fields.
type AscentConfig struct {
	// InitialStep is the first step length D.
	InitialStep float64

	// Decay is the per-step multiplier y in (0,1): step_k = D * y^k.
	Decay float64

	// Epsilon is the finite-difference offset for gradient estimation.
	Epsilon float64

	// StepTolerance terminates the ascent once the step length falls
	// below it.
	StepTolerance float64

	// MaxSteps caps the iteration count. Hitting the cap before the step
	// tolerance yields a best-effort result with Converged unset.
	MaxSteps int

	// MaxAttempts is the number of random seed candidates FindLocalMax
	// evaluates before ascending from the best one.
	MaxAttempts int
}

// DefaultAscentConfig returns the tuning that works well over the unit
// domain: the step schedule just reaches the tolerance within the step cap.
func DefaultAscentConfig() AscentConfig {
	return AscentConfig{
		InitialStep:   0.05,
		Decay:         0.85,
		Epsilon:       1.0 / 2048,
		StepTolerance: 1e-4,
		MaxSteps:      40,
		MaxAttempts:   50,
	}
}

// Result is the outcome of one ascent run. Point is the best point visited,
// Distance the field value there. Converged reports whether the step length
// reached the tolerance; a non-converged result is still usable, just
// possibly short of the local maximum.
type Result struct {
	Point     Point
	Distance  float64
	Converged bool
}

// Ascent is a gradient-ascent local-maximum search over any Field.
//
// A distance field has unit gradient magnitude almost everywhere, so only
// the direction of the finite-difference gradient is used; the step length
// follows the configured exponential schedule independent of field scale.
// That keeps steps stable across primitive boundaries where the numerical
// gradient magnitude spikes.
//
// Ascent is stateless after construction and safe for concurrent use as long
// as the field is not mutated during a run.
type Ascent struct {
	cfg AscentConfig
}

// NewAscent validates the configuration and creates an optimizer.
func NewAscent(cfg AscentConfig) (*Ascent, error) {
	if cfg.InitialStep <= 0 {
		return nil, configErr("initial step", cfg.InitialStep, "must be positive")
	}
	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		return nil, configErr("decay", cfg.Decay, "must be in (0, 1)")
	}
	if cfg.Epsilon <= 0 {
		return nil, configErr("epsilon", cfg.Epsilon, "must be positive")
	}
	if cfg.StepTolerance <= 0 {
		return nil, configErr("step tolerance", cfg.StepTolerance, "must be positive")
	}
	if cfg.MaxSteps < 1 {
		return nil, configErr("max steps", cfg.MaxSteps, "must be at least 1")
	}
	if cfg.MaxAttempts < 1 {
		return nil, configErr("max attempts", cfg.MaxAttempts, "must be at least 1")
	}
	return &Ascent{cfg: cfg}, nil
}

// Ascend climbs the field from seed and returns the best point visited.
// The returned Distance is never below the field value at the seed.
func (a *Ascent) Ascend(f Field, seed Point) Result {
	best := DistPoint{Point: seed, Distance: f.Sample(seed)}
	p := seed
	step := a.cfg.InitialStep
	eps := a.cfg.Epsilon

	converged := false
	for k := 0; k < a.cfg.MaxSteps; k++ {
		if step < a.cfg.StepTolerance {
			converged = true
			break
		}
		grad := Vec2{
			X: f.Sample(Point{X: p.X + eps, Y: p.Y}) - f.Sample(Point{X: p.X - eps, Y: p.Y}),
			Y: f.Sample(Point{X: p.X, Y: p.Y + eps}) - f.Sample(Point{X: p.X, Y: p.Y - eps}),
		}
		if grad.Length() == 0 {
			// Flat estimate: either a plateau or a symmetric ridge.
			// Nothing to follow.
			converged = true
			break
		}
		p = p.Add(grad.Normalize().Mul(step))
		if d := f.Sample(p); d > best.Distance {
			best = DistPoint{Point: p, Distance: d}
		}
		step *= a.cfg.Decay
	}
	return Result{Point: best.Point, Distance: best.Distance, Converged: converged}
}

// FindLocalMax samples MaxAttempts uniform random points in the unit domain,
// then ascends from the best of them. With a seeded rng the result is
// deterministic.
func (a *Ascent) FindLocalMax(f Field, rng *rand.Rand) Result {
	best := DistPoint{Distance: math.Inf(-1)}
	for i := 0; i < a.cfg.MaxAttempts; i++ {
		p := Point{X: rng.Float64(), Y: rng.Float64()}
		if d := f.Sample(p); d > best.Distance {
			best = DistPoint{Point: p, Distance: d}
		}
	}
	return a.Ascend(f, best.Point)
}
