// Command sublperf benchmarks the nano-block engine across fold shapes
// and domain sizes, reporting achieved throughput, mirroring the
// teacher's sublperf's role as a microbenchmark harness for the compute
// core rather than the compile/run pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"
	"time"

	"github.com/sbl8/stencilcore/bundle"
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/engine"
	"github.com/sbl8/stencilcore/nano"
	"github.com/sbl8/stencilcore/refbundle"
)

var (
	domainSize = flag.Int("size", 256, "Per-dim domain extent")
	iterations = flag.Int("iter", 10, "Number of steps to time per configuration")
	workers    = flag.Int("workers", runtime.NumCPU(), "Outer thread pool size")
	verbose    = flag.Bool("verbose", false, "Print per-configuration detail")
)

func main() {
	flag.Parse()

	fmt.Println("Stencil Core Performance Analysis Tool")
	fmt.Println("=======================================")
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
	fmt.Printf("Domain:     %d x %d\n", *domainSize, *domainSize)
	fmt.Printf("Iterations: %d\n\n", *iterations)

	foldShapes := []struct {
		name string
		lens []dims.Index
	}{
		{"scalar (VLEN=1)", []dims.Index{1, 1}},
		{"vec4   (VLEN=4)", []dims.Index{4, 1}},
		{"vec8   (VLEN=8)", []dims.Index{8, 1}},
	}

	for _, fs := range foldShapes {
		if err := benchmark2D(fs.name, fs.lens); err != nil {
			fmt.Printf("%-20s: %v\n", fs.name, err)
		}
	}
}

// benchmark2D times a Jacobi5 update over a domainSize^2 grid under the
// given fold shape, reporting achieved millions of points per second.
func benchmark2D(name string, foldLens []dims.Index) error {
	extent := dims.NewIndices(dims.Index(*domainSize), dims.Index(*domainSize))
	halo := dims.NewIndices(1, 1)
	grid := refbundle.NewGrid(extent, halo).SetName(name)
	grid.Fill(1)

	fold := dims.NewFoldShape(foldLens, 0)
	cluster := dims.NewClusterShape([]dims.Index{1, 1})
	domain := grid.Domain()

	desc := refbundle.Jacobi2D(grid, fold)
	b, err := bundle.NewBundle(desc)
	if err != nil {
		return fmt.Errorf("bundle setup: %w", err)
	}
	b.FindBoundingBoxes(grid, domain)
	b.AddInput(grid)
	b.AddOutput(grid)

	stage := bundle.NewStage("bench")
	if err := stage.AddBundle(b, grid); err != nil {
		return fmt.Errorf("stage setup: %w", err)
	}

	settings := engine.Settings{
		Nano: nano.Settings{
			PicoBlockSizes:     dims.FromConst(1, 2),
			NanoBlockTileSizes: dims.FromConst(0, 2),
			ThreadLimit:        1,
		},
		MicroBlockSizes: dims.FromConst(32, 2),
		OuterThreads:    *workers,
	}

	ctx := engine.NewStencilContext(fold, cluster, domain, settings, nil)
	if err := ctx.AddStage(stage); err != nil {
		return fmt.Errorf("context setup: %w", err)
	}
	if err := ctx.RegisterGridVar(grid); err != nil {
		return fmt.Errorf("grid var setup: %w", err)
	}

	start := time.Now()
	for t := dims.Index(0); t < dims.Index(*iterations); t++ {
		if err := ctx.RunStep(context.Background(), grid, t); err != nil {
			return fmt.Errorf("run: %w", err)
		}
		grid.SwapBuffers()
	}
	elapsed := time.Since(start)

	points := float64(domain.NumPoints())
	mpts := points * float64(*iterations) / elapsed.Seconds() / 1e6

	fmt.Printf("%-20s: %-14v %.2f Mpts/s\n", name, elapsed, mpts)
	if *verbose {
		fmt.Printf("  fold=%v points/step=%d\n", foldLens, domain.NumPoints())
	}
	return nil
}
