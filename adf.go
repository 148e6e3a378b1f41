package sdf

import "math"

// ADFOption configures an ADF during creation.
type ADFOption func(*adfOptions)

type adfOptions struct {
	capacity int
	maxDepth int
	ctrl     int
}

// WithBucketCapacity sets the number of primitives a leaf holds before it
// tries elimination and, failing that, splits. The default is 8.
func WithBucketCapacity(k int) ADFOption {
	return func(o *adfOptions) { o.capacity = k }
}

// WithMaxDepth caps the quadtree depth. A leaf at the cap grows its bucket
// without bound instead of splitting, degrading to a linear scan. The
// default is 12.
func WithMaxDepth(d int) ADFOption {
	return func(o *adfOptions) { o.maxDepth = d }
}

// WithControlGrid sets the side length of the point lattice used by the
// redundancy certificate during elimination. Larger lattices eliminate more
// aggressively at higher insert cost. The default is 6.
func WithControlGrid(m int) ADFOption {
	return func(o *adfOptions) { o.ctrl = m }
}

// ADF is the adaptive distance field: a quadtree over the unit domain whose
// leaves hold references to the primitives that can realize the field
// minimum somewhere in the leaf's rectangle. It stores no sampled values, so
// Sample is exact and memory stays proportional to the primitive count
// rather than to a grid resolution.
//
// Nodes live in an arena addressed by index. An internal node records the
// index of the first of its four contiguous children; -1 marks a leaf.
// Leaves are split on bucket overflow, never merged. A primitive may sit in
// many leaves at once; entries are flagged eliminated rather than removed so
// the shared reference stays cheap.
//
// ADF has no argmax of its own. Pair it with Ascent to locate maxima.
type ADF struct {
	nodes    []adfNode
	capacity int
	maxDepth int
	ctrl     int
}

type adfNode struct {
	rect     Rect
	children int32 // arena index of first child, -1 for a leaf
	depth    int16
	warned   bool
	bucket   []bucketEntry
}

// bucketEntry is one primitive reference in a leaf. An eliminated entry is
// provably never the minimizer inside the leaf's rectangle and is skipped by
// Sample, but kept in place so sibling leaves sharing the primitive are
// unaffected.
type bucketEntry struct {
	prim       Primitive
	eliminated bool
}

// NewADF creates an empty adaptive field over the unit domain.
func NewADF(opts ...ADFOption) (*ADF, error) {
	o := adfOptions{capacity: 8, maxDepth: 12, ctrl: 6}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 1 {
		return nil, configErr("bucket capacity", o.capacity, "must be at least 1")
	}
	if o.maxDepth < 1 {
		return nil, configErr("max depth", o.maxDepth, "must be at least 1")
	}
	if o.ctrl < 2 {
		return nil, configErr("control grid", o.ctrl, "must be at least 2")
	}
	t := &ADF{capacity: o.capacity, maxDepth: o.maxDepth, ctrl: o.ctrl}
	t.nodes = append(t.nodes, adfNode{rect: UnitRect(), children: -1})
	return t, nil
}

// Sample returns the field value at p: the minimum distance over the
// non-eliminated primitives of the leaf containing p. Points outside the
// unit domain sample the boundary field, like the grid solver.
func (t *ADF) Sample(p Point) float64 {
	if !UnitRect().Contains(p) {
		return Boundary().Distance(p)
	}
	return t.sampleFrom(0, p)
}

func (t *ADF) sampleFrom(idx int32, p Point) float64 {
	for t.nodes[idx].children >= 0 {
		idx = t.childAt(idx, p)
	}
	d := emptyDistance
	for _, e := range t.nodes[idx].bucket {
		if e.eliminated {
			continue
		}
		d = math.Min(d, e.prim.Distance(p))
	}
	return d
}

// childAt returns the child of an internal node whose rectangle contains p.
func (t *ADF) childAt(idx int32, p Point) int32 {
	c := t.nodes[idx].rect.Center()
	q := int32(0)
	if p.X >= c.X {
		q |= 1
	}
	if p.Y >= c.Y {
		q |= 2
	}
	return t.nodes[idx].children + q
}

// Insert adds a primitive to every leaf where it can still matter. Subtrees
// where the primitive provably never realizes the minimum are skipped: both
// the primitive and the current field are distance functions, so comparing a
// lower bound on one against an upper bound on the other over the node's
// rectangle settles the whole subtree at once.
func (t *ADF) Insert(prim Primitive) {
	t.insert(0, prim)
}

func (t *ADF) insert(idx int32, prim Primitive) {
	rect := t.nodes[idx].rect
	r := rect.Radius()
	center := rect.Center()
	if prim.Distance(center)-r >= t.sampleFrom(idx, center)+r {
		return
	}
	if kids := t.nodes[idx].children; kids >= 0 {
		for i := int32(0); i < 4; i++ {
			t.insert(kids+i, prim)
		}
		return
	}
	t.nodes[idx].bucket = append(t.nodes[idx].bucket, bucketEntry{prim: prim})
	if t.activeCount(idx) <= t.capacity {
		return
	}
	t.eliminate(idx)
	if t.activeCount(idx) <= t.capacity {
		return
	}
	if int(t.nodes[idx].depth) >= t.maxDepth {
		if !t.nodes[idx].warned {
			t.nodes[idx].warned = true
			Logger().Warn("adf leaf at max depth, bucket grows unbounded",
				"depth", t.nodes[idx].depth,
				"bucket", t.activeCount(idx))
		}
		return
	}
	t.split(idx)
}

func (t *ADF) activeCount(idx int32) int {
	n := 0
	for _, e := range t.nodes[idx].bucket {
		if !e.eliminated {
			n++
		}
	}
	return n
}

// split turns a leaf into an internal node with four children, hands every
// active entry to each child, and lets per-child elimination trim the
// copies. Children still over capacity split recursively.
func (t *ADF) split(idx int32) {
	// The append below may move the arena; take what we need first.
	rect := t.nodes[idx].rect
	depth := t.nodes[idx].depth
	bucket := t.nodes[idx].bucket

	first := int32(len(t.nodes))
	for i := 0; i < 4; i++ {
		child := adfNode{rect: rect.Quadrant(i), children: -1, depth: depth + 1}
		for _, e := range bucket {
			if !e.eliminated {
				child.bucket = append(child.bucket, bucketEntry{prim: e.prim})
			}
		}
		t.nodes = append(t.nodes, child)
	}
	t.nodes[idx].children = first
	t.nodes[idx].bucket = nil

	for i := int32(0); i < 4; i++ {
		c := first + i
		t.eliminate(c)
		if t.activeCount(c) > t.capacity && int(t.nodes[c].depth) < t.maxDepth {
			t.split(c)
		}
	}
}

// eliminate flags bucket entries that provably never realize the minimum
// anywhere in the leaf's rectangle. The check must not produce false
// positives: a wrongly eliminated primitive would corrupt Sample. Failing to
// eliminate a redundant one only costs memory.
func (t *ADF) eliminate(idx int32) {
	bucket := t.nodes[idx].bucket
	if t.activeCount(idx) < 2 {
		return
	}
	rect := t.nodes[idx].rect
	for i := range bucket {
		if bucket[i].eliminated {
			continue
		}
		if t.redundant(bucket, i, rect) {
			bucket[i].eliminated = true
		}
	}
}

// redundant reports whether entry i can be eliminated from the bucket over
// rect. A descent from the rectangle center looks for a witness point where
// the entry beats all others, which settles most non-redundant entries
// before the lattice scan. Without a witness the decision needs a proof:
// g(x) = d_i(x) - min_others(x) is 2-Lipschitz, so if g stays at least
// h*sqrt(2) above zero on a lattice with spacing h, g is positive on the
// whole rectangle and the entry is provably never the minimizer. Entries
// with neither witness nor certificate are kept; that costs memory, never
// correctness.
func (t *ADF) redundant(bucket []bucketEntry, i int, rect Rect) bool {
	others := func(p Point) float64 {
		d := emptyDistance
		for j, e := range bucket {
			if j == i || e.eliminated {
				continue
			}
			d = math.Min(d, e.prim.Distance(p))
		}
		return d
	}
	g := func(p Point) float64 {
		return bucket[i].prim.Distance(p) - others(p)
	}

	if descendBelowZero(g, rect.Center(), rect, rect.Radius()/2) {
		return false
	}

	m := t.ctrl
	h := math.Max(rect.Dx(), rect.Dy()) / float64(m)
	gMin := math.Inf(1)
	for gy := 0; gy < m; gy++ {
		for gx := 0; gx < m; gx++ {
			p := Point{
				X: rect.Min.X + (float64(gx)+0.5)*rect.Dx()/float64(m),
				Y: rect.Min.Y + (float64(gy)+0.5)*rect.Dy()/float64(m),
			}
			v := g(p)
			if v < 0 {
				return false // witness on the lattice
			}
			gMin = math.Min(gMin, v)
		}
	}
	return gMin >= h*math.Sqrt2
}

// descendBelowZero runs a short normalized-gradient descent of g from seed,
// clamped to rect, reporting whether any visited point had g < 0.
func descendBelowZero(g func(Point) float64, seed Point, rect Rect, step float64) bool {
	const (
		steps = 20
		decay = 0.7
	)
	delta := step / 64
	p := seed
	for k := 0; k < steps; k++ {
		grad := Vec2{
			X: g(Point{X: p.X + delta, Y: p.Y}) - g(Point{X: p.X - delta, Y: p.Y}),
			Y: g(Point{X: p.X, Y: p.Y + delta}) - g(Point{X: p.X, Y: p.Y - delta}),
		}
		if grad.Length() == 0 {
			return false
		}
		p = p.Add(grad.Normalize().Mul(-step))
		p.X = math.Min(math.Max(p.X, rect.Min.X), rect.Max.X)
		p.Y = math.Min(math.Max(p.Y, rect.Min.Y), rect.Max.Y)
		if g(p) < 0 {
			return true
		}
		step *= decay
	}
	return false
}

// Stats summarizes the tree shape, mostly for logging and tests.
type ADFStats struct {
	Nodes      int
	Leaves     int
	MaxDepth   int
	Entries    int
	Eliminated int
}

// Stats walks the arena and returns tree statistics.
func (t *ADF) Stats() ADFStats {
	var s ADFStats
	s.Nodes = len(t.nodes)
	for i := range t.nodes {
		n := &t.nodes[i]
		if int(n.depth) > s.MaxDepth {
			s.MaxDepth = int(n.depth)
		}
		if n.children >= 0 {
			continue
		}
		s.Leaves++
		s.Entries += len(n.bucket)
		for _, e := range n.bucket {
			if e.eliminated {
				s.Eliminated++
			}
		}
	}
	return s
}
