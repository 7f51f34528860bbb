package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sbl8/stencilcore/bundle"
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
	"github.com/sbl8/stencilcore/nano"
)

// GridVar aliases kernel.GridVar, the grid access contract a
// StencilContext exclusively owns per §3: Bundle only keeps references
// into the set registered here via RegisterGridVar.
type GridVar = kernel.GridVar

// StencilContext owns the compile-time-fixed fold/cluster shape, the
// overall domain, the named stages evaluated against it, and every grid
// var those stages' bundles read or write. It is the generalization of
// runtime.Engine to an open set of named bundles instead of a fixed
// node/kernel-ID graph.
type StencilContext struct {
	fold    dims.FoldShape
	cluster dims.ClusterShape
	domain  dims.BoundingBox

	settings Settings
	stages   []*bundle.Stage
	byName   map[string]*bundle.Stage

	grids map[string]GridVar

	scratch *ScratchArena
	logger  *slog.Logger
}

// NewStencilContext builds a StencilContext over the given fold/cluster
// shape and overall domain. A nil logger falls back to slog.Default,
// matching the ambient logging convention used elsewhere in this module.
func NewStencilContext(fold dims.FoldShape, cluster dims.ClusterShape, domain dims.BoundingBox, settings Settings, logger *slog.Logger) *StencilContext {
	if logger == nil {
		logger = slog.Default()
	}
	outer := settings.OuterThreads
	if outer < 1 {
		outer = 1
	}
	return &StencilContext{
		fold:     fold,
		cluster:  cluster,
		domain:   domain,
		settings: settings,
		byName:   make(map[string]*bundle.Stage),
		grids:    make(map[string]GridVar),
		scratch:  NewScratchArena(outer, settings.ScratchBytesPerThread),
		logger:   logger,
	}
}

// RegisterGridVar gives the StencilContext ownership of v, keyed by
// v.Name(). Per §3's ownership invariant, this is the only place a grid
// var enters the context; bundles built against v (via
// bundle.Bundle.AddInput/AddOutput) only ever hold a reference to the
// var the context owns here.
func (c *StencilContext) RegisterGridVar(v GridVar) error {
	if v.Name() == "" {
		return fmt.Errorf("engine: grid var has empty name")
	}
	if _, exists := c.grids[v.Name()]; exists {
		return fmt.Errorf("engine: grid var %q already registered", v.Name())
	}
	c.grids[v.Name()] = v
	return nil
}

// GridVarNamed looks up a registered grid var by name.
func (c *StencilContext) GridVarNamed(name string) (GridVar, bool) {
	v, ok := c.grids[name]
	return v, ok
}

// GridVars returns every grid var the context owns.
func (c *StencilContext) GridVars() []GridVar {
	out := make([]GridVar, 0, len(c.grids))
	for _, v := range c.grids {
		out = append(out, v)
	}
	return out
}

// AddStage registers a fully-built stage (its bundles' bounding boxes
// already computed via Bundle.FindBoundingBoxes) and recomputes the
// stage's overall bounding box.
func (c *StencilContext) AddStage(s *bundle.Stage) error {
	if _, exists := c.byName[s.Name()]; exists {
		return fmt.Errorf("engine: stage %q already registered", s.Name())
	}
	s.RecomputeBB()
	c.stages = append(c.stages, s)
	c.byName[s.Name()] = s
	return nil
}

// Stage looks up a registered stage by name.
func (c *StencilContext) Stage(name string) (*bundle.Stage, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Stages returns every registered stage, in registration order.
func (c *StencilContext) Stages() []*bundle.Stage { return c.stages }

// Domain returns the context's overall domain bounding box.
func (c *StencilContext) Domain() dims.BoundingBox { return c.domain }

// RunStep evaluates every registered stage for time-step t, in
// registration order, skipping any stage whose step predicate excludes
// t. Each stage's bundles run in dependency order (Stage.EvaluationOrder),
// each preceded by its own scratch children; within one bundle, work
// fans out across the outer thread pool and, per micro-block, an inner
// thread team — the two-level fork-join model.
func (c *StencilContext) RunStep(ctx context.Context, core any, t dims.Index) error {
	ctx = withLogger(ctx, c.logger)
	c.scratch.ResetAll()
	for _, stage := range c.stages {
		if !stage.IsInValidStep(core, t) {
			continue
		}

		order, err := stage.EvaluationOrder()
		if err != nil {
			return fmt.Errorf("engine: stage %q: %w", stage.Name(), err)
		}

		start := time.Now()
		stage.StartTimer()
		visited := make(map[*bundle.Bundle]bool, len(order))
		for _, bd := range order {
			for _, req := range bd.ReqdBundles() {
				if visited[req] {
					continue
				}
				visited[req] = true
				if err := c.runBundle(ctx, core, req); err != nil {
					stage.StopTimer(time.Since(start).Nanoseconds())
					return &StepError{Stage: stage.Name(), Bundle: req.Name(), Range: req.BB(), Err: err}
				}
				req.UpdateVarInfo(nil, t)
			}
		}
		stage.StopTimer(time.Since(start).Nanoseconds())
		stage.AddSteps(1)
	}
	return nil
}

// runBundle fans one bundle's bounding-box list out across micro-blocks,
// dispatched concurrently via an errgroup-bounded outer thread pool.
// Scratch bundles are routed through runScratchMicroBlock instead of the
// shared core every non-scratch bundle writes into (P6 isolation).
func (c *StencilContext) runBundle(ctx context.Context, core any, b *bundle.Bundle) error {
	desc := b.Descriptor()

	var microBlocks []dims.BoundingBox
	for _, box := range b.BBList() {
		microBlocks = append(microBlocks, splitBoundingBox(box, c.settings.MicroBlockSizes)...)
	}

	outer := c.settings.OuterThreads
	if outer < 1 {
		outer = 1
	}

	LoggerFromContext(ctx).Debug("dispatching bundle", "bundle", b.Name(), "microBlocks", len(microBlocks), "outerThreads", outer)

	// Outer thread ids are handed out from a pool so that no two
	// concurrently running micro-blocks share one id (and its scratch
	// region).
	threads := make(chan int, outer)
	for t := 0; t < outer; t++ {
		threads <- t
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(outer)
	for _, box := range microBlocks {
		box := box
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			thread := <-threads
			defer func() { threads <- thread }()
			if b.IsScratch() {
				return c.runScratchMicroBlock(b, box, thread)
			}
			return c.runMicroBlock(core, desc, box, thread)
		})
	}
	return g.Wait()
}

// runScratchMicroBlock widens box by b's recorded write halos (§4.1
// scratch expansion), rewrites the result to the widened span's own
// zero-based coordinate frame via Bundle.AdjustScratchSpan, and
// dispatches into a fresh thread-local scratch core sized to that span
// instead of the parent's shared core — the isolation P6 requires so
// concurrent outer threads never alias the same scratch storage.
func (c *StencilContext) runScratchMicroBlock(b *bundle.Bundle, box dims.BoundingBox, outerThread int) error {
	desc := b.Descriptor()
	idxs := dims.NewScanIndices(box.Begin, box.End)
	local, err := b.AdjustScratchSpan(outerThread, idxs, c.fold, c.settings.Nano)
	if err != nil {
		return fmt.Errorf("engine: scratch bundle %q: %w", b.Name(), err)
	}

	needed := 1
	for i := 0; i < local.NumDims; i++ {
		needed *= int(local.End.Get(i) - local.Begin.Get(i))
	}
	// Allocate/Reset here only enforce the outer thread's configured
	// scratch-byte budget for this span; the scratch core's own backing
	// storage is allocated fresh below, not carved out of this arena.
	if _, err := c.scratch.Allocate(outerThread, needed*8); err != nil {
		return fmt.Errorf("engine: scratch bundle %q: %w", b.Name(), err)
	}
	c.scratch.Reset(outerThread)

	span := dims.NewBoundingBox(local.Begin, local.End)
	scratchCore := desc.NewScratchCore(span)
	return c.runMicroBlock(scratchCore, desc, span, outerThread)
}

// runMicroBlock splits one micro-block along the fold's inner dim across
// the inner thread team and dispatches each piece to the nano-block
// engine, mirroring runtime.Engine.worker's groupWg pattern: a
// sync.WaitGroup of goroutines, with panics converted to errors instead
// of propagating.
func (c *StencilContext) runMicroBlock(core any, desc *kernel.Descriptor, box dims.BoundingBox, outerThread int) error {
	inner := c.settings.Nano.ThreadLimit
	if inner < 1 {
		inner = 1
	}
	pieces := splitInner(box, c.fold.InnerDim(), inner)

	var wg sync.WaitGroup
	errs := make([]error, len(pieces))
	for i, piece := range pieces {
		i, piece := i, piece
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("engine: panic in nano-block %d: %v", i, r)
				}
			}()
			idxs := dims.NewScanIndices(piece.Begin, piece.End)
			if c.settings.Nano.ForceScalar {
				nano.CalcNanoBlockDbg(core, outerThread, c.settings.Nano, idxs, desc)
				return
			}
			errs[i] = nano.CalcNanoBlockOpt(core, outerThread, i, c.settings.Nano, idxs, c.fold, c.cluster, dims.FromConst(0, box.NumDims), desc)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
