// Package stencilcore implements the core execution engine of a
// high-performance stencil kernel framework: given a compiled description
// of one or more stencil update rules over multi-dimensional regular
// grids, it evaluates those rules across a rank-local sub-region of the
// problem domain with maximum arithmetic throughput.
//
// # Architecture Overview
//
// Work flows through five increasingly fine layers:
//
//   - Stage: an ordered collection of independent bundles sharing a
//     time-step predicate.
//   - Bundle: one stencil update rule, with dependency edges, bounding
//     boxes, and scratch-bundle children that must run first.
//   - Micro-block driver: slices a bundle's work across the rank domain.
//   - Nano-block engine: the hot path — peel/full-vector/full-cluster/
//     remainder decomposition with masked-vector fallback.
//   - Kernel dispatch: calc_clusters/calc_vectors/calc_scalar, supplied
//     per bundle by the stencil compiler (or, in this repository, by the
//     refbundle package and the compiler DSL).
//
// # Performance characteristics
//
//   - Two-level fork-join parallelism: an outer thread pool over
//     micro-blocks, an inner thread team over the hot cluster/vector
//     kernels.
//   - Per-dimension peel/body/remainder decomposition with lane masking,
//     avoiding scalar fallback on partial vectors.
//   - Per-outer-thread scratch byte budgets are tracked in a
//     ScratchArena; the thread-local scratch core for each scratch
//     micro-block is allocated when that micro-block runs.
//
// # Basic usage
//
//	cs, err := compiler.CompileFile("diffusion.stencil", "main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx := engine.NewStencilContext(cs.Fold, cs.Cluster, cs.Domain, settings, nil)
//	ctx.AddStage(cs.Stage)
//	if err := ctx.RunStep(context.Background(), cs.Grid, stepIndex); err != nil {
//	    log.Fatal(err)
//	}
//
// # Package structure
//
//   - dims: Index/Indices/ScanIndices/BoundingBox/fold-cluster shapes.
//   - kernel: the downward interface to stencil-compiler-emitted code.
//   - bundle: Bundle and Stage, dependency ordering, scratch children.
//   - nano: the nano-block engine (the hot path).
//   - engine: StencilContext, Settings, concurrency, scratch arena.
//   - refbundle: reference bundle implementations used by tests, by the
//     compiler's generated bundles, and by cmd/sublperf.
//   - compiler: a small DSL compiling a stencil spec into a Stage.
//   - cmd: command-line tools (sublc, sublrun, sublperf).
package stencilcore
