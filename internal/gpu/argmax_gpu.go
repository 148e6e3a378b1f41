//go:build !nogpu

// Package gpu implements the wgpu/hal compute backend for the grid solver.
package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/sdf"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

//go:embed shaders/argmax.wgsl
var argmaxShaderWGSL string

const wgSize = 256

// gpuParams is the uniform block shared by all kernels.
// Must match Params in argmax.wgsl.
type gpuParams struct {
	Size  uint32
	Chunk uint32
	Count uint32
	Pad0  uint32
	CX    float32
	CY    float32
	R     float32
	Pad1  float32
}

// ArgmaxAccelerator offloads grid circle insertion and the two-phase argmax
// reduction to a compute device via wgpu/hal. It implements sdf.Accelerator.
//
// Every operation is a full round trip: upload cells, dispatch, read back.
// That keeps the host-side grid authoritative, so mixing accelerated and CPU
// operations on the same grid is always safe.
type ArgmaxAccelerator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader hal.ShaderModule

	insertBindLayout hal.BindGroupLayout
	insertPipeLayout hal.PipelineLayout
	insertPipeline   hal.ComputePipeline

	reduceBindLayout    hal.BindGroupLayout
	reducePipeLayout    hal.PipelineLayout
	reduceCellsPipeline hal.ComputePipeline
	reduceWinsPipeline  hal.ComputePipeline

	log            *slog.Logger
	gpuReady       bool
	externalDevice bool // true when using shared device (don't destroy on Close)
}

var _ sdf.Accelerator = (*ArgmaxAccelerator)(nil)

func (a *ArgmaxAccelerator) Name() string { return "argmax-gpu" }

// SetLogger routes backend diagnostics to l. Called by sdf.SetLogger through
// the registration hook.
func (a *ArgmaxAccelerator) SetLogger(l *slog.Logger) {
	a.mu.Lock()
	a.log = l
	a.mu.Unlock()
}

func (a *ArgmaxAccelerator) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	return sdf.Logger()
}

func (a *ArgmaxAccelerator) CanAccelerate(op sdf.AccelOp) bool {
	return op&(sdf.AccelInsertCircle|sdf.AccelReduce) != 0
}

// Init creates the device and pipelines. A failed device init is not an
// error: the accelerator stays registered and every operation reports
// sdf.ErrFallbackToCPU, so solvers silently run their CPU paths.
func (a *ArgmaxAccelerator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.initGPU(); err != nil {
		a.logger().Warn("gpu init failed, operations fall back to CPU", "err", err)
	}
	return nil
}

func (a *ArgmaxAccelerator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destroyPipelines()
	if !a.externalDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.instance = nil
	a.device = nil
	a.queue = nil
	a.gpuReady = false
	a.externalDevice = false
}

// SetDeviceProvider switches the accelerator to a shared GPU device from an
// external provider (e.g., a gogpu window). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func (a *ArgmaxAccelerator) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("argmax-gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("argmax-gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("argmax-gpu: provider HalQueue is not hal.Queue")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.destroyPipelines()
	if !a.externalDevice && a.device != nil {
		a.device.Destroy()
	}
	if a.instance != nil {
		a.instance.Destroy()
		a.instance = nil
	}

	a.device = device
	a.queue = queue
	a.externalDevice = true

	if err := a.createPipelines(); err != nil {
		a.gpuReady = false
		return fmt.Errorf("argmax-gpu: create pipelines with shared device: %w", err)
	}
	a.gpuReady = true
	a.logger().Info("switched to shared GPU device")
	return nil
}

// InsertCircle runs the insert kernel over all cells and reads the result
// back into target.Cells.
func (a *ArgmaxAccelerator) InsertCircle(target sdf.GridTarget, c sdf.Circle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.gpuReady {
		return sdf.ErrFallbackToCPU
	}

	n := len(target.Cells)
	cellsSize := uint64(n * 4)
	params := gpuParams{
		Size:  uint32(target.Size),
		Chunk: uint32(target.Chunk),
		Count: uint32(n),
		CX:    float32(c.Center.X),
		CY:    float32(c.Center.Y),
		R:     float32(c.R),
	}

	cellsBuf, stagingBuf, err := a.createCellBuffers(cellsSize)
	if err != nil {
		return err
	}
	defer a.device.DestroyBuffer(cellsBuf)
	defer a.device.DestroyBuffer(stagingBuf)

	paramsBuf, err := a.createUniform(params)
	if err != nil {
		return err
	}
	defer a.device.DestroyBuffer(paramsBuf)

	a.queue.WriteBuffer(cellsBuf, 0, cellsToBytes(target.Cells))

	bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "argmax_insert_bind", Layout: a.insertBindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: uint64(unsafe.Sizeof(params))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: cellsBuf.NativeHandle(), Offset: 0, Size: cellsSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer a.device.DestroyBindGroup(bg)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "argmax_insert_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("argmax_insert"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "insert_circle"})
	pass.SetPipeline(a.insertPipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(uint32((n+wgSize-1)/wgSize), 1, 1)
	pass.End()
	encoder.CopyBufferToBuffer(cellsBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: cellsSize},
	})

	readback := make([]byte, cellsSize)
	if err := a.submitAndRead(encoder, stagingBuf, readback); err != nil {
		return err
	}
	for i := range target.Cells {
		target.Cells[i] = math.Float32frombits(binary.LittleEndian.Uint32(readback[i*4:]))
	}
	return nil
}

// Reduce runs the two-phase reduction. Phase one collapses 256 cells per
// workgroup into partial winners; phase two re-dispatches over winners,
// ping-ponging two buffers, until a single winner remains.
func (a *ArgmaxAccelerator) Reduce(target sdf.GridTarget) (sdf.DistPoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.gpuReady {
		return sdf.DistPoint{}, sdf.ErrFallbackToCPU
	}

	n := len(target.Cells)
	cellsSize := uint64(n * 4)
	w1 := (n + wgSize - 1) / wgSize
	w2 := (w1 + wgSize - 1) / wgSize

	cellsBuf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "argmax_cells", Size: cellsSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return sdf.DistPoint{}, fmt.Errorf("create cells buffer: %w", err)
	}
	defer a.device.DestroyBuffer(cellsBuf)

	sizeA := uint64(w1 * 8)
	sizeB := uint64(max(w2, 1) * 8)
	winA, err := a.createWinnerBuffer("argmax_win_a", sizeA)
	if err != nil {
		return sdf.DistPoint{}, err
	}
	defer a.device.DestroyBuffer(winA)
	winB, err := a.createWinnerBuffer("argmax_win_b", sizeB)
	if err != nil {
		return sdf.DistPoint{}, err
	}
	defer a.device.DestroyBuffer(winB)
	bufSize := func(b hal.Buffer) uint64 {
		if b == winA {
			return sizeA
		}
		return sizeB
	}

	stagingBuf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "argmax_staging", Size: 8,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return sdf.DistPoint{}, fmt.Errorf("create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(stagingBuf)

	a.queue.WriteBuffer(cellsBuf, 0, cellsToBytes(target.Cells))

	// Plan the passes up front: counts shrink by the workgroup factor.
	type reducePass struct {
		pipeline hal.ComputePipeline
		in, out  hal.Buffer
		count    int
	}
	passes := []reducePass{{a.reduceCellsPipeline, winB, winA, n}}
	in, out, count := winA, winB, w1
	for count > 1 {
		passes = append(passes, reducePass{a.reduceWinsPipeline, in, out, count})
		in, out = out, in
		count = (count + wgSize - 1) / wgSize
	}
	final := passes[len(passes)-1].out

	var uniforms []hal.Buffer
	var bindGroups []hal.BindGroup
	defer func() {
		for _, bg := range bindGroups {
			a.device.DestroyBindGroup(bg)
		}
		for _, ub := range uniforms {
			a.device.DestroyBuffer(ub)
		}
	}()
	for _, p := range passes {
		params := gpuParams{
			Size:  uint32(target.Size),
			Chunk: uint32(target.Chunk),
			Count: uint32(p.count),
		}
		ub, err := a.createUniform(params)
		if err != nil {
			return sdf.DistPoint{}, err
		}
		uniforms = append(uniforms, ub)
		bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label: "argmax_reduce_bind", Layout: a.reduceBindLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: uint64(unsafe.Sizeof(params))}},
				{Binding: 1, Resource: gputypes.BufferBinding{Buffer: cellsBuf.NativeHandle(), Offset: 0, Size: cellsSize}},
				{Binding: 2, Resource: gputypes.BufferBinding{Buffer: p.in.NativeHandle(), Offset: 0, Size: bufSize(p.in)}},
				{Binding: 3, Resource: gputypes.BufferBinding{Buffer: p.out.NativeHandle(), Offset: 0, Size: bufSize(p.out)}},
			},
		})
		if err != nil {
			return sdf.DistPoint{}, fmt.Errorf("create bind group: %w", err)
		}
		bindGroups = append(bindGroups, bg)
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "argmax_reduce_encoder"})
	if err != nil {
		return sdf.DistPoint{}, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("argmax_reduce"); err != nil {
		return sdf.DistPoint{}, fmt.Errorf("begin encoding: %w", err)
	}
	// One compute pass per reduction step; the pass boundary is the barrier
	// between producing and consuming partial winners.
	for i, p := range passes {
		cp := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "reduce"})
		cp.SetPipeline(p.pipeline)
		cp.SetBindGroup(0, bindGroups[i], nil)
		cp.Dispatch(uint32((p.count+wgSize-1)/wgSize), 1, 1)
		cp.End()
	}
	encoder.CopyBufferToBuffer(final, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: 8},
	})

	readback := make([]byte, 8)
	if err := a.submitAndRead(encoder, stagingBuf, readback); err != nil {
		return sdf.DistPoint{}, err
	}
	dist := math.Float32frombits(binary.LittleEndian.Uint32(readback[0:]))
	idx := binary.LittleEndian.Uint32(readback[4:])
	return sdf.DistPoint{
		Point:    targetCellPoint(target, int(idx)),
		Distance: float64(dist),
	}, nil
}

// submitAndRead finishes encoding, submits with a fence, waits, and reads
// the staging buffer into dst.
func (a *ArgmaxAccelerator) submitAndRead(encoder hal.CommandEncoder, staging hal.Buffer, dst []byte) error {
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	fence, err := a.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer a.device.DestroyFence(fence)
	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := a.device.Wait(fence, 1, 5*time.Second)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return fmt.Errorf("wait for GPU: fence timeout")
	}
	if err := a.queue.ReadBuffer(staging, 0, dst); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	return nil
}

func (a *ArgmaxAccelerator) createCellBuffers(cellsSize uint64) (storage, staging hal.Buffer, err error) {
	storage, err = a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "argmax_cells", Size: cellsSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create cells buffer: %w", err)
	}
	staging, err = a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "argmax_staging", Size: cellsSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		a.device.DestroyBuffer(storage)
		return nil, nil, fmt.Errorf("create staging buffer: %w", err)
	}
	return storage, staging, nil
}

func (a *ArgmaxAccelerator) createWinnerBuffer(label string, size uint64) (hal.Buffer, error) {
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return buf, nil
}

func (a *ArgmaxAccelerator) createUniform(params gpuParams) (hal.Buffer, error) {
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "argmax_params", Size: uint64(unsafe.Sizeof(params)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create uniform buffer: %w", err)
	}
	a.queue.WriteBuffer(buf, 0, structToBytes(unsafe.Pointer(&params), unsafe.Sizeof(params))) //nolint:gosec // safe struct access
	return buf, nil
}

func (a *ArgmaxAccelerator) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	a.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	a.device = openDev.Device
	a.queue = openDev.Queue
	if err := a.createPipelines(); err != nil {
		a.device.Destroy()
		a.device = nil
		a.queue = nil
		return fmt.Errorf("create pipelines: %w", err)
	}
	a.gpuReady = true
	a.logger().Info("gpu accelerator initialized", "device", selected.Info.Name)
	return nil
}

func (a *ArgmaxAccelerator) createPipelines() error {
	spirvBytes, err := naga.Compile(argmaxShaderWGSL)
	if err != nil {
		return fmt.Errorf("compile argmax shader: %w", err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	shader, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "argmax",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	a.shader = shader

	uniform := gputypes.BindGroupLayoutEntry{
		Binding: 0, Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	storage := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding: binding, Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}

	a.insertBindLayout, err = a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "argmax_insert_layout",
		Entries: []gputypes.BindGroupLayoutEntry{uniform, storage(1)},
	})
	if err != nil {
		return fmt.Errorf("create insert bind group layout: %w", err)
	}
	a.insertPipeLayout, err = a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "argmax_insert_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{a.insertBindLayout},
	})
	if err != nil {
		return fmt.Errorf("create insert pipeline layout: %w", err)
	}
	a.insertPipeline, err = a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "argmax_insert_pipeline", Layout: a.insertPipeLayout,
		Compute: hal.ComputeState{Module: a.shader, EntryPoint: "insert_circle"},
	})
	if err != nil {
		return fmt.Errorf("create insert pipeline: %w", err)
	}

	a.reduceBindLayout, err = a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "argmax_reduce_layout",
		Entries: []gputypes.BindGroupLayoutEntry{uniform, storage(1), storage(2), storage(3)},
	})
	if err != nil {
		return fmt.Errorf("create reduce bind group layout: %w", err)
	}
	a.reducePipeLayout, err = a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "argmax_reduce_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{a.reduceBindLayout},
	})
	if err != nil {
		return fmt.Errorf("create reduce pipeline layout: %w", err)
	}
	a.reduceCellsPipeline, err = a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "argmax_reduce_cells_pipeline", Layout: a.reducePipeLayout,
		Compute: hal.ComputeState{Module: a.shader, EntryPoint: "reduce_cells"},
	})
	if err != nil {
		return fmt.Errorf("create reduce_cells pipeline: %w", err)
	}
	a.reduceWinsPipeline, err = a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "argmax_reduce_winners_pipeline", Layout: a.reducePipeLayout,
		Compute: hal.ComputeState{Module: a.shader, EntryPoint: "reduce_winners"},
	})
	if err != nil {
		return fmt.Errorf("create reduce_winners pipeline: %w", err)
	}
	return nil
}

func (a *ArgmaxAccelerator) destroyPipelines() {
	if a.device == nil {
		return
	}
	if a.reduceWinsPipeline != nil {
		a.device.DestroyComputePipeline(a.reduceWinsPipeline)
		a.reduceWinsPipeline = nil
	}
	if a.reduceCellsPipeline != nil {
		a.device.DestroyComputePipeline(a.reduceCellsPipeline)
		a.reduceCellsPipeline = nil
	}
	if a.reducePipeLayout != nil {
		a.device.DestroyPipelineLayout(a.reducePipeLayout)
		a.reducePipeLayout = nil
	}
	if a.reduceBindLayout != nil {
		a.device.DestroyBindGroupLayout(a.reduceBindLayout)
		a.reduceBindLayout = nil
	}
	if a.insertPipeline != nil {
		a.device.DestroyComputePipeline(a.insertPipeline)
		a.insertPipeline = nil
	}
	if a.insertPipeLayout != nil {
		a.device.DestroyPipelineLayout(a.insertPipeLayout)
		a.insertPipeLayout = nil
	}
	if a.insertBindLayout != nil {
		a.device.DestroyBindGroupLayout(a.insertBindLayout)
		a.insertBindLayout = nil
	}
	if a.shader != nil {
		a.device.DestroyShaderModule(a.shader)
		a.shader = nil
	}
}

// targetCellPoint maps a chunk-major storage index to the cell center,
// matching cell_point in argmax.wgsl.
func targetCellPoint(t sdf.GridTarget, idx int) sdf.Point {
	cps := t.Size / t.Chunk
	id := idx / (t.Chunk * t.Chunk)
	off := idx % (t.Chunk * t.Chunk)
	x := (id%cps)*t.Chunk + off%t.Chunk
	y := (id/cps)*t.Chunk + off/t.Chunk
	return sdf.Point{
		X: (float64(x) + 0.5) / float64(t.Size),
		Y: (float64(y) + 0.5) / float64(t.Size),
	}
}

func structToBytes(ptr unsafe.Pointer, size uintptr) []byte {
	return unsafe.Slice((*byte)(ptr), size) //nolint:gosec // safe struct serialization
}

func cellsToBytes(cells []float32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&cells[0])), len(cells)*4) //nolint:gosec // safe float32 view
}
