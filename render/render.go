// Package render rasterizes distance fields and packings to images.
//
// It draws primitives directly from their signed distance with smoothstep
// anti-aliasing, so circles and capsules come out smooth at any scale.
// Polygons go through the scanline rasterizer in golang.org/x/image/vector.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/vector"

	"github.com/gogpu/sdf"
)

// antialiasWidth controls the smoothstep transition width in pixels.
const antialiasWidth = 0.7

// Canvas maps the unit domain onto a square RGBA image.
type Canvas struct {
	img  *image.RGBA
	size int
}

// NewCanvas creates a size×size canvas cleared to white.
func NewCanvas(size int) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return &Canvas{img: img, size: size}
}

// Image returns the underlying image.
func (c *Canvas) Image() *image.RGBA { return c.img }

// Fill draws a primitive by evaluating its distance per pixel and converting
// it to coverage. The scan is restricted to the primitive's bounds with one
// pixel of anti-aliasing padding; unbounded primitives scan the whole
// canvas.
func (c *Canvas) Fill(prim sdf.Primitive, col color.RGBA) {
	if poly, ok := prim.(sdf.Polygon); ok {
		c.fillPolygon(poly, col)
		return
	}
	s := float64(c.size)
	b := prim.Bounds()
	minX := clampInt(int(math.Floor(b.Min.X*s))-1, 0, c.size-1)
	maxX := clampInt(int(math.Ceil(b.Max.X*s))+1, 0, c.size-1)
	minY := clampInt(int(math.Floor(b.Min.Y*s))-1, 0, c.size-1)
	maxY := clampInt(int(math.Ceil(b.Max.Y*s))+1, 0, c.size-1)

	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			p := sdf.Point{X: (float64(px) + 0.5) / s, Y: (float64(py) + 0.5) / s}
			coverage := smoothstepCoverage(prim.Distance(p) * s)
			if coverage > 0 {
				blendPixel(c.img, px, py, col, coverage)
			}
		}
	}
}

// fillPolygon rasterizes a polygon with the scanline rasterizer; per-pixel
// distance would cost an edge scan per pixel for many-sided polygons.
func (c *Canvas) fillPolygon(poly sdf.Polygon, col color.RGBA) {
	if len(poly) < 3 {
		return
	}
	s := float32(c.size)
	r := vector.NewRasterizer(c.size, c.size)
	r.DrawOp = draw.Over
	r.MoveTo(float32(poly[0].X)*s, float32(poly[0].Y)*s)
	for _, p := range poly[1:] {
		r.LineTo(float32(p.X)*s, float32(p.Y)*s)
	}
	r.ClosePath()
	r.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

// SavePNG writes the canvas to a PNG file.
func (c *Canvas) SavePNG(path string) error {
	return SavePNG(path, c.img)
}

// SavePNG writes any image to a PNG file.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return png.Encode(f, img)
}

// Heatmap renders a field as a size×size image: red where the field is
// positive (empty space), blue where negative (inside shapes), white at the
// boundary. The distance is tone-mapped so detail near zero stays visible.
func Heatmap(f sdf.Field, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	s := float64(size)
	for py := 0; py < size; py++ {
		for px := 0; px < size; px++ {
			d := f.Sample(sdf.Point{X: (float64(px) + 0.5) / s, Y: (float64(py) + 0.5) / s})
			t := 1 - math.Exp(-math.Abs(d)*8)
			var col color.RGBA
			if d >= 0 {
				col = color.RGBA{255, uint8(255 * (1 - t)), uint8(255 * (1 - t)), 255}
			} else {
				col = color.RGBA{uint8(255 * (1 - t)), uint8(255 * (1 - t)), 255, 255}
			}
			img.SetRGBA(px, py, col)
		}
	}
	return img
}

// smoothstepCoverage converts a signed distance in pixels to anti-aliased
// coverage with a Hermite smoothstep.
func smoothstepCoverage(dist float64) float64 {
	if dist >= antialiasWidth {
		return 0
	}
	if dist <= -antialiasWidth {
		return 1
	}
	t := (dist + antialiasWidth) / (2 * antialiasWidth)
	return 1 - (t * t * (3 - 2*t))
}

// blendPixel performs source-over compositing of a single pixel.
func blendPixel(img *image.RGBA, x, y int, col color.RGBA, coverage float64) {
	i := img.PixOffset(x, y)
	srcA := float64(col.A) / 255 * coverage
	invA := 1 - srcA
	img.Pix[i+0] = clamp255(float64(col.R)*srcA + float64(img.Pix[i+0])*invA)
	img.Pix[i+1] = clamp255(float64(col.G)*srcA + float64(img.Pix[i+1])*invA)
	img.Pix[i+2] = clamp255(float64(col.B)*srcA + float64(img.Pix[i+2])*invA)
	img.Pix[i+3] = clamp255(255*srcA + float64(img.Pix[i+3])*invA)
}

func clamp255(x float64) uint8 {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
