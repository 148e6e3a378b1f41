package sdf

import (
	"errors"
	"sync"
)

// AccelOp describes operation types for accelerator capability checking.
type AccelOp uint32

const (
	// AccelInsertCircle is the cell-parallel min(cell, circle distance) kernel.
	AccelInsertCircle AccelOp = 1 << iota

	// AccelReduce is the two-phase block argmax reduction.
	AccelReduce
)

// GridTarget exposes a grid solver's cell storage to an accelerator.
// Cells holds Size×Size float32 distances in chunk-major order: the grid is
// divided into Chunk×Chunk blocks, each block stored contiguously row-major,
// blocks themselves ordered row-major. The accelerator reads and writes Cells
// in place; the host owns dispatch sizing and any readback.
type GridTarget struct {
	Cells []float32
	Size  int
	Chunk int
}

// Accelerator is an optional compute offload provider for the grid solver.
//
// When registered via RegisterAccelerator, GridArgmax tries the accelerator
// first for supported operations. If the accelerator returns ErrFallbackToCPU
// or any other error, the solver transparently runs its CPU path.
//
// Implementations are provided by backend packages. Users opt in via blank
// import:
//
//	import _ "github.com/gogpu/sdf/gpu" // enables GPU offload
type Accelerator interface {
	// Name returns the accelerator name (e.g., "argmax-gpu").
	Name() string

	// Init initializes device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// CanAccelerate reports whether the accelerator supports the given
	// operation. A fast check used to skip offload entirely.
	CanAccelerate(op AccelOp) bool

	// InsertCircle applies cell = min(cell, circle.Distance(cell center))
	// over all cells of the target in parallel.
	// Returns ErrFallbackToCPU if the kernel cannot run.
	InsertCircle(target GridTarget, c Circle) error

	// Reduce runs the two-phase reduction: per-workgroup partial maxima,
	// then repeated reduction of partial winners until a single global
	// (point, distance) winner remains. Ties resolve to the lowest cell
	// index.
	Reduce(target GridTarget) (DistPoint, error)
}

// DeviceProviderAware is an optional interface for accelerators that can
// share a GPU device with an external provider (e.g., a gogpu window).
// When SetDeviceProvider is called, the accelerator reuses the provided
// device instead of creating its own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	accelMu sync.RWMutex
	accel   Accelerator
)

// RegisterAccelerator registers a compute accelerator for optional offload.
//
// Only one accelerator can be registered; subsequent calls replace the
// previous one. Init is called during registration; if it fails, the
// accelerator is not registered and the error is returned.
func RegisterAccelerator(a Accelerator) error {
	if a == nil {
		return errors.New("sdf: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	propagateLogger(a, Logger())
	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// RegisteredAccelerator returns the current accelerator, or nil if none.
func RegisteredAccelerator() Accelerator {
	accelMu.RLock()
	a := accel
	accelMu.RUnlock()
	return a
}

// SetAcceleratorDeviceProvider passes a device provider to the registered
// accelerator, enabling GPU device sharing. No-op if no accelerator is
// registered or it does not support sharing.
func SetAcceleratorDeviceProvider(provider any) error {
	a := RegisteredAccelerator()
	if a == nil {
		return nil
	}
	if dpa, ok := a.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
