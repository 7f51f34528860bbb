// Command sublrun loads a compiled stage artifact and executes it for a
// requested number of time-steps, mirroring the teacher's sublrun's role
// as the "back end" of the compile/run pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/sbl8/stencilcore/compiler"
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/engine"
	"github.com/sbl8/stencilcore/nano"
)

func main() {
	var (
		stageName   = flag.String("stage", "main", "Name assigned to the loaded stage")
		workers     = flag.Int("workers", runtime.NumCPU(), "Outer thread pool size")
		inner       = flag.Int("inner", 1, "Inner thread team size per micro-block")
		steps       = flag.Int("steps", 1, "Number of time-steps to run")
		microBlock  = flag.Int("micro", 8, "Micro-block tile size, applied to every dim")
		forceScalar = flag.Bool("force-scalar", false, "Route every nano-block through the scalar debug path")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		version     = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("sublrun - stencil execution engine")
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <stage.compiled>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cs, err := compiler.LoadCompiledStage(args[0], *stageName)
	if err != nil {
		log.Fatalf("failed to load %s: %v", args[0], err)
	}

	n := cs.Grid.NumDims()
	settings := engine.Settings{
		Nano: nano.Settings{
			PicoBlockSizes:     dims.FromConst(1, n),
			NanoBlockTileSizes: dims.FromConst(0, n),
			ForceScalar:        *forceScalar,
			ThreadLimit:        *inner,
		},
		MicroBlockSizes: dims.FromConst(dims.Index(*microBlock), n),
		OuterThreads:    *workers,
		EnableStats:     true,
	}

	ctx := engine.NewStencilContext(cs.Fold, cs.Cluster, cs.Domain, settings, logger)
	if err := ctx.AddStage(cs.Stage); err != nil {
		log.Fatalf("failed to register stage: %v", err)
	}
	if err := ctx.RegisterGridVar(cs.Grid); err != nil {
		log.Fatalf("failed to register grid var: %v", err)
	}

	logger.Info("running stage", "name", cs.Stage.Name(), "steps", *steps, "workers", *workers, "inner", *inner)

	for t := dims.Index(0); t < dims.Index(*steps); t++ {
		if err := ctx.RunStep(context.Background(), cs.Grid, t); err != nil {
			log.Fatalf("step %d failed: %v", t, err)
		}
		cs.Grid.SwapBuffers()
	}

	logger.Info("run complete", "stepsDone", cs.Stage.StepsDone)
}
