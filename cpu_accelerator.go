package sdf

import (
	"math"

	"github.com/gogpu/sdf/internal/parallel"
)

// CPUAccelerator is a CPU implementation of the accelerator contract. It
// runs the same two kernels the GPU backend dispatches, fanned out over a
// worker pool instead of workgroups, which makes it both a fallback for
// machines without a usable device and the reference the GPU path is tested
// against.
//
// Usage:
//
//	sdf.RegisterAccelerator(sdf.NewCPUAccelerator(0))
type CPUAccelerator struct {
	pool *parallel.Pool
}

// Compile-time interface check.
var _ Accelerator = (*CPUAccelerator)(nil)

// NewCPUAccelerator creates the accelerator with the given worker count.
// Zero or negative selects GOMAXPROCS.
func NewCPUAccelerator(workers int) *CPUAccelerator {
	return &CPUAccelerator{pool: parallel.New(workers)}
}

// Name returns the accelerator name.
func (a *CPUAccelerator) Name() string { return "argmax-cpu" }

// Init initializes the accelerator. No resources are needed.
func (a *CPUAccelerator) Init() error { return nil }

// Close stops the worker pool.
func (a *CPUAccelerator) Close() { a.pool.Close() }

// CanAccelerate reports whether the accelerator supports the given operation.
func (a *CPUAccelerator) CanAccelerate(op AccelOp) bool {
	return op&(AccelInsertCircle|AccelReduce) != 0
}

// InsertCircle applies cell = min(cell, distance to c) over every cell, one
// chunk per task.
func (a *CPUAccelerator) InsertCircle(target GridTarget, c Circle) error {
	area := target.Chunk * target.Chunk
	a.pool.ForN(len(target.Cells)/area, func(id int) {
		base := id * area
		for off := 0; off < area; off++ {
			d := float32(c.Distance(targetCellPoint(target, base+off)))
			if d < target.Cells[base+off] {
				target.Cells[base+off] = d
			}
		}
	})
	return nil
}

// Reduce runs the two-phase reduction: each task produces its chunk's
// (distance, cell) winner, then a single pass combines the partials. Ties
// resolve to the lowest cell index in both phases.
func (a *CPUAccelerator) Reduce(target GridTarget) (DistPoint, error) {
	area := target.Chunk * target.Chunk
	chunks := len(target.Cells) / area
	partial := make([]winner, chunks)
	a.pool.ForN(chunks, func(id int) {
		base := id * area
		w := winner{dist: float32(math.Inf(-1))}
		for off := 0; off < area; off++ {
			if target.Cells[base+off] > w.dist {
				w = winner{dist: target.Cells[base+off], cell: uint32(base + off)}
			}
		}
		partial[id] = w
	})
	best := winner{dist: float32(math.Inf(-1)), cell: math.MaxUint32}
	for _, w := range partial {
		if w.beats(best) {
			best = w
		}
	}
	return DistPoint{
		Point:    targetCellPoint(target, int(best.cell)),
		Distance: float64(best.dist),
	}, nil
}

// targetCellPoint maps a chunk-major storage index to the cell center.
func targetCellPoint(t GridTarget, idx int) Point {
	cps := t.Size / t.Chunk
	id := idx / (t.Chunk * t.Chunk)
	off := idx % (t.Chunk * t.Chunk)
	x := (id%cps)*t.Chunk + off%t.Chunk
	y := (id/cps)*t.Chunk + off/t.Chunk
	return Point{
		X: (float64(x) + 0.5) / float64(t.Size),
		Y: (float64(y) + 0.5) / float64(t.Size),
	}
}
