package sdf

import (
	"errors"
	"math"
	"math/bits"

	"github.com/gogpu/sdf/internal/parallel"
)

// initialCell is the cell value of an empty field: effectively infinite, but
// with headroom so arithmetic on it cannot overflow to +Inf.
const initialCell = float32(math.MaxFloat32 / 2)

// GridOption configures a GridArgmax during creation.
type GridOption func(*gridOptions)

type gridOptions struct {
	chunk   int
	workers int
}

// WithChunkSize sets the side length of the square cell blocks that are the
// unit of storage locality and parallel work. Must be a power of two no
// larger than the resolution. The default is 16.
func WithChunkSize(c int) GridOption {
	return func(o *gridOptions) { o.chunk = c }
}

// WithWorkers sets the number of worker goroutines used for insertion and
// reduction. Zero or negative selects GOMAXPROCS.
func WithWorkers(n int) GridOption {
	return func(o *gridOptions) { o.workers = n }
}

// GridArgmax is the discretized maximal-empty-disk solver: an N×N signed
// distance grid paired with a reduction pyramid that keeps the global argmax
// available in O(1).
//
// Cells are stored chunk-major: the grid is divided into Chunk×Chunk blocks,
// each block contiguous in memory, so spatially adjacent cells stay
// memory-adjacent and one block is one unit of parallel work. The pyramid
// holds per-block (distance, cell) winners combined 2×2 per level up to a
// single root.
//
// Insert mutates the field; Argmax and Sample are read-only. Queries may run
// concurrently with each other but callers must serialize them against
// Insert on the same instance.
type GridArgmax struct {
	n     int // resolution, power of two
	chunk int // chunk side, power of two
	cps   int // chunks per side = n/chunk
	logC  int // log2(chunk)

	cells  []float32  // n*n distances, chunk-major
	levels [][]winner // levels[0] has cps² entries, last level has 1

	// dirty marks the pyramid stale relative to cells. Set after an
	// accelerator insert (the kernel updates cells only); cleared by the
	// next CPU reduction.
	dirty bool

	pool *parallel.Pool
}

// winner is a pyramid entry: the maximum distance within a block and the
// storage index of the cell attaining it. On equal distance the lower cell
// index wins, which makes every query deterministic.
type winner struct {
	dist float32
	cell uint32
}

func (w winner) beats(v winner) bool {
	return w.dist > v.dist || (w.dist == v.dist && w.cell < v.cell)
}

// NewGridArgmax creates an empty n×n grid solver. n must be a power of two,
// as must the chunk size, which may not exceed n.
func NewGridArgmax(n int, opts ...GridOption) (*GridArgmax, error) {
	o := gridOptions{chunk: 16}
	for _, opt := range opts {
		opt(&o)
	}
	if !isPowerOfTwo(n) {
		return nil, configErr("resolution", n, "must be a power of two")
	}
	if o.chunk > n {
		o.chunk = n
	}
	if !isPowerOfTwo(o.chunk) {
		return nil, configErr("chunk size", o.chunk, "must be a power of two")
	}

	g := &GridArgmax{
		n:     n,
		chunk: o.chunk,
		cps:   n / o.chunk,
		logC:  bits.TrailingZeros(uint(o.chunk)),
		cells: make([]float32, n*n),
		pool:  parallel.New(o.workers),
	}
	for side := g.cps; ; side /= 2 {
		g.levels = append(g.levels, make([]winner, side*side))
		if side == 1 {
			break
		}
	}
	g.Reset()
	return g, nil
}

// Close releases the solver's worker pool. The grid remains usable; further
// operations simply run single-threaded.
func (g *GridArgmax) Close() {
	g.pool.Close()
}

// Resolution returns the grid side length.
func (g *GridArgmax) Resolution() int { return g.n }

// Reset restores the empty field.
func (g *GridArgmax) Reset() {
	for i := range g.cells {
		g.cells[i] = initialCell
	}
	area := g.chunk * g.chunk
	for id := range g.levels[0] {
		g.levels[0][id] = winner{dist: initialCell, cell: uint32(id * area)}
	}
	g.propagateAll()
	g.dirty = false
}

// cellIndex maps grid coordinates to the chunk-major storage index.
func (g *GridArgmax) cellIndex(x, y int) int {
	id := (y>>g.logC)*g.cps + x>>g.logC
	off := (y&(g.chunk-1))<<g.logC | x&(g.chunk-1)
	return id<<(2*g.logC) + off
}

// cellPoint returns the center of the cell at a storage index.
func (g *GridArgmax) cellPoint(idx int) Point {
	id := idx >> (2 * g.logC)
	off := idx & (g.chunk*g.chunk - 1)
	x := (id%g.cps)<<g.logC + off&(g.chunk-1)
	y := (id/g.cps)<<g.logC + off>>g.logC
	return Point{
		X: (float64(x) + 0.5) / float64(g.n),
		Y: (float64(y) + 0.5) / float64(g.n),
	}
}

// chunkRect returns the domain rectangle covered by a chunk.
func (g *GridArgmax) chunkRect(id int) Rect {
	cx, cy := id%g.cps, id/g.cps
	side := float64(g.chunk) / float64(g.n)
	return Rect{
		Min: Point{X: float64(cx) * side, Y: float64(cy) * side},
		Max: Point{X: float64(cx+1) * side, Y: float64(cy+1) * side},
	}
}

// Sample returns the stored distance at the cell containing p. Points
// outside the unit domain sample the boundary field instead, so gradient
// ascent seeded near an edge is pushed back inside.
func (g *GridArgmax) Sample(p Point) float64 {
	if !(p.X >= 0 && p.X < 1 && p.Y >= 0 && p.Y < 1) {
		return Boundary().Distance(p)
	}
	x := int(p.X * float64(g.n))
	y := int(p.Y * float64(g.n))
	return float64(g.cells[g.cellIndex(x, y)])
}

// Insert rasterizes the primitive into the grid: every cell becomes
// min(cell, distance to the primitive). The scan covers the whole domain;
// chunks provably unaffected are skipped (a chunk whose lower distance bound
// already exceeds its current maximum cannot change, by the Lipschitz
// property of the distance contract).
func (g *GridArgmax) Insert(prim Primitive) {
	if c, ok := prim.(Circle); ok && g.tryAccelInsert(c) {
		return
	}
	g.InsertDomain(UnitRect(), prim)
}

// InsertDomain is Insert restricted to cells inside domain. The caller
// asserts that no cell outside domain can change; EmpiricalDomain provides
// such a rectangle for shapes placed at a solver query result.
func (g *GridArgmax) InsertDomain(domain Rect, prim Primitive) {
	d := domain.Intersect(UnitRect())
	if d.Dx() <= 0 || d.Dy() <= 0 {
		return
	}
	side := float64(g.chunk) / float64(g.n)
	x0 := int(d.Min.X / side)
	y0 := int(d.Min.Y / side)
	x1 := min(int(math.Ceil(d.Max.X/side)), g.cps)
	y1 := min(int(math.Ceil(d.Max.Y/side)), g.cps)
	w, h := x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return
	}

	touched := make([]bool, len(g.levels[0]))
	g.pool.ForN(w*h, func(i int) {
		id := (y0+i/w)*g.cps + x0 + i%w
		r := g.chunkRect(id)
		// Conservative skip: the lowest value the primitive can take
		// anywhere in the chunk is still above every cell in it.
		if prim.Distance(r.Center())-r.Radius() >= float64(g.levels[0][id].dist) {
			return
		}
		if g.updateChunk(id, prim) {
			touched[id] = true
		}
	})
	g.propagate(touched)
}

// updateChunk applies the min update to one chunk and recomputes its winner.
// Reports whether any cell changed.
func (g *GridArgmax) updateChunk(id int, prim Primitive) bool {
	area := g.chunk * g.chunk
	base := id * area
	changed := false
	w := winner{dist: float32(math.Inf(-1))}
	for off := 0; off < area; off++ {
		idx := base + off
		d := float32(prim.Distance(g.cellPoint(idx)))
		if d < g.cells[idx] {
			g.cells[idx] = d
			changed = true
		}
		if g.cells[idx] > w.dist {
			w = winner{dist: g.cells[idx], cell: uint32(idx)}
		}
	}
	if changed {
		g.levels[0][id] = w
	}
	return changed
}

// Invert negates the whole field in place, turning free space into occupied
// space and vice versa.
func (g *GridArgmax) Invert() {
	area := g.chunk * g.chunk
	g.pool.ForN(len(g.levels[0]), func(id int) {
		base := id * area
		w := winner{dist: float32(math.Inf(-1))}
		for off := 0; off < area; off++ {
			idx := base + off
			g.cells[idx] = -g.cells[idx]
			if g.cells[idx] > w.dist {
				w = winner{dist: g.cells[idx], cell: uint32(idx)}
			}
		}
		g.levels[0][id] = w
	})
	g.propagateAll()
	g.dirty = false
}

// Argmax returns the point with the globally maximal distance and that
// distance: the center of the largest empty disk, exact up to grid
// discretization. Repeated calls without an intervening Insert return
// identical results.
func (g *GridArgmax) Argmax() DistPoint {
	if a := RegisteredAccelerator(); a != nil && a.CanAccelerate(AccelReduce) {
		dp, err := a.Reduce(g.target())
		if err == nil {
			return dp
		}
		if !errors.Is(err, ErrFallbackToCPU) {
			Logger().Warn("accelerator reduce failed", "accelerator", a.Name(), "err", err)
		}
	}
	if g.dirty {
		g.rebuild()
	}
	root := g.levels[len(g.levels)-1][0]
	return DistPoint{Point: g.cellPoint(int(root.cell)), Distance: float64(root.dist)}
}

// target exposes the cell storage to an accelerator.
func (g *GridArgmax) target() GridTarget {
	return GridTarget{Cells: g.cells, Size: g.n, Chunk: g.chunk}
}

// tryAccelInsert offloads a circle insertion to the registered accelerator.
// Reports whether the offload fully handled the insertion.
func (g *GridArgmax) tryAccelInsert(c Circle) bool {
	a := RegisteredAccelerator()
	if a == nil || !a.CanAccelerate(AccelInsertCircle) {
		return false
	}
	if err := a.InsertCircle(g.target(), c); err != nil {
		if !errors.Is(err, ErrFallbackToCPU) {
			Logger().Warn("accelerator insert failed", "accelerator", a.Name(), "err", err)
		}
		return false
	}
	// The kernel wrote cells only; pyramid winners are now stale.
	g.dirty = true
	return true
}

// rebuild recomputes every chunk winner from cells and refreshes the pyramid.
func (g *GridArgmax) rebuild() {
	area := g.chunk * g.chunk
	g.pool.ForN(len(g.levels[0]), func(id int) {
		base := id * area
		w := winner{dist: float32(math.Inf(-1))}
		for off := 0; off < area; off++ {
			if g.cells[base+off] > w.dist {
				w = winner{dist: g.cells[base+off], cell: uint32(base + off)}
			}
		}
		g.levels[0][id] = w
	})
	g.propagateAll()
	g.dirty = false
}

// propagate recombines pyramid blocks bottom-up, visiting only parents of
// touched entries.
func (g *GridArgmax) propagate(touched []bool) {
	side := g.cps
	for lv := 0; lv+1 < len(g.levels); lv++ {
		parentSide := side / 2
		parentTouched := make([]bool, parentSide*parentSide)
		for id, t := range touched {
			if t {
				parentTouched[(id/side/2)*parentSide+(id%side)/2] = true
			}
		}
		for pid, t := range parentTouched {
			if t {
				g.combine(lv, pid)
			}
		}
		touched = parentTouched
		side = parentSide
	}
}

// propagateAll recombines every pyramid block bottom-up.
func (g *GridArgmax) propagateAll() {
	for lv := 0; lv+1 < len(g.levels); lv++ {
		for pid := range g.levels[lv+1] {
			g.combine(lv, pid)
		}
	}
}

// combine recomputes parent pid at level lv+1 from its 2×2 children.
// Children are visited in index order so ties keep the lowest cell index.
func (g *GridArgmax) combine(lv, pid int) {
	side := g.cps >> lv
	parentSide := side / 2
	px, py := pid%parentSide, pid/parentSide
	best := winner{dist: float32(math.Inf(-1)), cell: math.MaxUint32}
	for dy := 0; dy < 2; dy++ {
		for dx := 0; dx < 2; dx++ {
			c := g.levels[lv][(2*py+dy)*side+2*px+dx]
			if c.beats(best) {
				best = c
			}
		}
	}
	g.levels[lv+1][pid] = best
}
