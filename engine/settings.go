// Package engine implements StencilContext: the top-level driver that owns
// a stencil's stages, fold/cluster shape, and scratch memory, and runs one
// time-step by fanning bundle work out across an outer thread pool and,
// within each outer task, an inner thread team — the two-level fork-join
// concurrency model.
package engine

import (
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/nano"
)

// Settings carries the engine-level knobs layered on top of nano.Settings:
// the micro-block tile shape used to partition a bundle's bounding boxes
// for the outer thread pool, the outer thread count, and the per-thread
// scratch region size.
type Settings struct {
	Nano nano.Settings

	// MicroBlockSizes gives the per-dim tile shape used to split a
	// bundle's bounding boxes into independently-dispatchable
	// micro-blocks (the outer fork-join granularity).
	MicroBlockSizes dims.Indices

	// OuterThreads is the outer thread pool size; micro-blocks are
	// dispatched across it via an errgroup.Group with SetLimit.
	OuterThreads int

	// ScratchBytesPerThread sizes the per-outer-thread scratch region.
	ScratchBytesPerThread int

	// EnableStats is carried for callers but not read by RunStep, which
	// updates Stage perf counters on every step whether or not it is set.
	EnableStats bool
}
