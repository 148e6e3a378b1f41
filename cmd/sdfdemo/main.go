// Command sdfdemo generates a circle packing with either solver engine and
// writes it to a PNG, optionally alongside a heatmap of the final field.
package main

import (
	"flag"
	"image/color"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"

	"github.com/gogpu/sdf"
	"github.com/gogpu/sdf/render"
)

func main() {
	var (
		engine  = flag.String("engine", "grid", "solver engine: grid or adf")
		mode    = flag.String("mode", "fractal", "distribution: fractal or random")
		count   = flag.Int("n", 1000, "number of shapes")
		res     = flag.Int("res", 1024, "grid resolution (grid engine)")
		size    = flag.Int("size", 2048, "output image size")
		seed    = flag.Uint64("seed", 0, "random seed (random mode)")
		output  = flag.String("output", "packing.png", "output file")
		heatmap = flag.String("heatmap", "", "optional field heatmap output file")
		verbose = flag.Bool("v", false, "log solver diagnostics")
	)
	flag.Parse()

	if *verbose {
		sdf.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}

	rng := rand.New(rand.NewPCG(*seed, 0))
	canvas := render.NewCanvas(*size)

	var field sdf.Field
	switch *engine {
	case "grid":
		grid, err := sdf.NewGridArgmax(*res)
		if err != nil {
			log.Fatal(err)
		}
		defer grid.Close()
		grid.Insert(sdf.Boundary())
		field = grid
		runGrid(grid, canvas, rng, *mode, *count)
	case "adf":
		adf, err := sdf.NewADF()
		if err != nil {
			log.Fatal(err)
		}
		adf.Insert(sdf.Boundary())
		field = adf
		runADF(adf, canvas, rng, *mode, *count)
	default:
		log.Fatalf("unknown engine %q", *engine)
	}

	if err := canvas.SavePNG(*output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Saved %s", *output)

	if *heatmap != "" {
		if err := render.SavePNG(*heatmap, render.Heatmap(field, *size)); err != nil {
			log.Fatalf("Failed to save heatmap: %v", err)
		}
		log.Printf("Saved %s", *heatmap)
	}
}

func runGrid(grid *sdf.GridArgmax, canvas *render.Canvas, rng *rand.Rand, mode string, count int) {
	minDist := sdf.MinFeatureSize(grid.Resolution())
	for i := 0; i < count; i++ {
		best := grid.Argmax()
		if best.Distance < minDist {
			return
		}
		circle := placeCircle(best, rng, mode)
		grid.InsertDomain(sdf.EmpiricalDomain(best.Point, best.Distance), circle)
		canvas.Fill(circle, color.RGBA{A: 255})
	}
}

func runADF(field *sdf.ADF, canvas *render.Canvas, rng *rand.Rand, mode string, count int) {
	ascent, err := sdf.NewAscent(sdf.DefaultAscentConfig())
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < count; i++ {
		local := ascent.FindLocalMax(field, rng)
		if local.Distance < 1.0/2048 {
			return
		}
		circle := placeCircle(sdf.DistPoint{Point: local.Point, Distance: local.Distance}, rng, mode)
		field.Insert(circle)
		canvas.Fill(circle, color.RGBA{A: 255})
	}
}

// placeCircle sizes and positions a circle from a solver result. Fractal
// mode centers a quarter-radius circle on the maximum; random mode picks a
// random radius and shifts the circle so it still fits.
func placeCircle(best sdf.DistPoint, rng *rand.Rand, mode string) sdf.Circle {
	if mode == "fractal" {
		return sdf.Circle{Center: best.Point, R: best.Distance / 4}
	}
	angle := rng.Float64()*2*math.Pi - math.Pi
	r := math.Min(rng.Float64()*best.Distance, 1.0/6)
	delta := best.Distance - r
	return sdf.Circle{
		Center: best.Point.Add(sdf.V2(math.Cos(angle), math.Sin(angle)).Mul(-delta)),
		R:      r,
	}
}
