// Package nano implements the nano-block engine: the hot path that,
// given a rectilinear micro-block sub-region, decomposes it along every
// domain dimension into peel, full-vector body, full-cluster body, and
// remainder parts, and dispatches to the cluster/vector/scalar kernels
// supplied per bundle.
package nano

import "github.com/sbl8/stencilcore/dims"

// Settings carries the §6.3 fields the nano-block engine consumes:
// pico-block strides, nano-block tile sizes, the debug-path switch, and
// the inner-thread cap.
type Settings struct {
	// PicoBlockSizes gives the per-dim element strides inside a
	// nano-block.
	PicoBlockSizes dims.Indices
	// NanoBlockTileSizes gives the per-dim tile shape used for
	// cache-friendly traversal.
	NanoBlockTileSizes dims.Indices
	// ForceScalar routes calc_nano_block to the scalar debug path.
	ForceScalar bool
	// ThreadLimit caps the inner-thread count passed to kernel calls.
	ThreadLimit int
	// Offload models redirecting the scalar debug path to an
	// accelerator device under a static schedule (see SPEC_FULL.md
	// supplemented features); when true, CalcNanoBlockDbg fans the
	// scalar loop out across OffloadLanes goroutines instead of
	// running it serially.
	Offload      bool
	OffloadLanes int
}
