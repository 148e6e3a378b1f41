//go:build !nogpu

// Package gpu registers the wgpu compute accelerator for the grid solver.
//
// Import this package to offload circle insertion and the argmax reduction
// to the GPU. If no usable device is found (no Vulkan available), every
// operation transparently falls back to the CPU path; results are identical
// either way.
//
// Usage:
//
//	import _ "github.com/gogpu/sdf/gpu" // enable GPU offload
package gpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/sdf"
	gpuimpl "github.com/gogpu/sdf/internal/gpu"
)

func init() {
	accel := &gpuimpl.ArgmaxAccelerator{}
	if err := sdf.RegisterAccelerator(accel); err != nil {
		sdf.Logger().Warn("GPU accelerator not available", "err", err)
	}
}

// SetDeviceProvider configures the accelerator to share a GPU device with an
// external provider instead of creating its own instance. The provider
// typically comes from a gogpu window (App.GPUContextProvider()) and must
// also expose HAL handles for direct compute access.
//
// Call this after the blank import has registered the accelerator, before
// solver operations.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return sdf.SetAcceleratorDeviceProvider(provider)
}
