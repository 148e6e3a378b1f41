package render

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/gogpu/sdf"
)

func TestFillCircle(t *testing.T) {
	c := NewCanvas(64)
	c.Fill(sdf.Circle{Center: sdf.Point{X: 0.5, Y: 0.5}, R: 0.25}, color.RGBA{A: 255})

	img := c.Image()
	// Center pixel fully covered, corner untouched.
	if _, _, _, a := img.At(32, 32).RGBA(); a != 0xffff {
		t.Errorf("center alpha = %v, want opaque", a)
	}
	if r, g, b, _ := img.At(32, 32).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Errorf("center color = (%v,%v,%v), want black", r, g, b)
	}
	if r, _, _, _ := img.At(2, 2).RGBA(); r != 0xffff {
		t.Errorf("corner red = %v, want white background", r)
	}
}

func TestFillPolygon(t *testing.T) {
	c := NewCanvas(64)
	c.Fill(sdf.Polygon{
		{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1}, {X: 0.9, Y: 0.9}, {X: 0.1, Y: 0.9},
	}, color.RGBA{R: 255, A: 255})

	if r, g, _, _ := c.Image().At(32, 32).RGBA(); r != 0xffff || g != 0 {
		t.Errorf("interior = (%v,%v), want red", r, g)
	}
	if g, _, _, _ := c.Image().At(1, 1).RGBA(); g != 0xffff {
		t.Errorf("exterior = %v, want white background", g)
	}
}

func TestHeatmapSigns(t *testing.T) {
	u := sdf.Union{sdf.Circle{Center: sdf.Point{X: 0.5, Y: 0.5}, R: 0.25}}
	img := Heatmap(u, 64)

	// Inside the circle the field is negative: blue dominates.
	r, _, b, _ := img.At(32, 32).RGBA()
	if b <= r {
		t.Errorf("inside pixel r=%v b=%v, want blue dominant", r, b)
	}
	// Far outside it is positive: red dominates.
	r, _, b, _ = img.At(2, 2).RGBA()
	if r <= b {
		t.Errorf("outside pixel r=%v b=%v, want red dominant", r, b)
	}
}

func TestSavePNG(t *testing.T) {
	c := NewCanvas(16)
	c.Fill(sdf.Circle{Center: sdf.Point{X: 0.5, Y: 0.5}, R: 0.3}, color.RGBA{A: 255})
	path := filepath.Join(t.TempDir(), "out.png")
	if err := c.SavePNG(path); err != nil {
		t.Fatal(err)
	}
}
