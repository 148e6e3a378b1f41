// Package sdf solves the maximal-empty-disk problem over signed distance
// fields: given a set of already-placed shapes, find the point farthest from
// all of them, so a new shape of that radius can be placed without overlap.
// Repeating query and insert builds space-filling packings.
//
// # Quick Start
//
//	import "github.com/gogpu/sdf"
//
//	grid, _ := sdf.NewGridArgmax(1024)
//	grid.Insert(sdf.Boundary())
//
//	for {
//		best := grid.Argmax()
//		if best.Distance < sdf.MinFeatureSize(grid.Resolution()) {
//			break
//		}
//		grid.Insert(sdf.Circle{Center: best.Point, R: best.Distance / 4})
//	}
//
// # Solvers
//
// Two engines answer the same question with different tradeoffs:
//
//   - [GridArgmax] discretizes the field on an N×N grid with a reduction
//     pyramid. Argmax returns the true global maximum, exact up to grid
//     resolution, at O(N²) memory.
//   - [ADF] stores primitive references in an adaptive quadtree with no
//     discretization. Paired with [Ascent] it finds local maxima with
//     continuous precision at a fraction of the memory.
//
// Both operate on the unit domain [0,1)² and accept anything implementing
// [Primitive]. [Union] is the brute-force reference aggregate.
//
// # GPU Offload
//
// Grid insertion and reduction can be offloaded to a compute device through
// the [Accelerator] interface. The offload never changes results, only
// speed. Enable the wgpu backend with a blank import:
//
//	import _ "github.com/gogpu/sdf/gpu"
//
// # Logging
//
// sdf is silent by default. Pass a [log/slog.Logger] to [SetLogger] to see
// accelerator lifecycle events and solver degradation warnings.
package sdf

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 2

	// VersionPatch is the patch version
	VersionPatch = 0
)
