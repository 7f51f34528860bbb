package kernel

import "github.com/sbl8/stencilcore/dims"

// GridVar is the access contract a bundle's input/output grid variables
// satisfy: the minimum bookkeeping surface a StencilContext needs to own
// and update a grid var without knowing its concrete storage layout. A
// compiled grid (refbundle.Grid, or whatever a real stencil compiler
// emits) implements it directly.
//
// update_var_info (§4.1) drives MarkDirty/SetLastValidStep: after a
// bundle finishes writing a time-step, the engine marks every output
// var dirty for that step and advances its last-valid-step counter, so
// a dependent bundle reading the same var later in the same step
// observes the update rather than a stale snapshot.
type GridVar interface {
	// Name identifies the grid var within its StencilContext.
	Name() string

	// MarkDirty records that step has been written since the var was
	// last swapped/reset.
	MarkDirty(step dims.Index)

	// IsDirty reports whether step has been written and not yet
	// consumed by a swap/reset.
	IsDirty(step dims.Index) bool

	// LastValidStep returns the highest step index known to hold a
	// fully-written value.
	LastValidStep() dims.Index

	// SetLastValidStep advances the var's last-valid-step counter.
	SetLastValidStep(step dims.Index)
}
