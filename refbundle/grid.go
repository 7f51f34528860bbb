// Package refbundle is a reference stand-in for stencil-compiler-emitted
// code: ordinary Go closures satisfying kernel.Descriptor's capability
// set, so the rest of the pipeline has something concrete to run against
// without an actual offline stencil compiler.
package refbundle

import (
	"sync"
	"sync/atomic"

	"github.com/sbl8/stencilcore/dims"
)

// Grid is a flat, row-major, halo-padded scalar field: the simplest
// possible stand-in for the per-run storage a compiled stencil program
// would generate and manage itself. It satisfies kernel.GridVar, so a
// StencilContext can register and own it directly as a bundle's input
// or output grid var.
type Grid struct {
	numDims int
	Extent  dims.Indices // per-dim core size, halo excluded
	Halo    dims.Indices // per-dim halo width, symmetric
	strides dims.Indices

	In, Out []float64

	name string

	dirtyMu sync.Mutex
	dirty   map[dims.Index]bool

	lastValidStep int64
}

// NewGrid allocates a Grid covering extent with the given symmetric halo
// width in every dim.
func NewGrid(extent, halo dims.Indices) *Grid {
	n := extent.NumDims()
	strides := make([]dims.Index, n)
	total := dims.Index(1)
	for d := n - 1; d >= 0; d-- {
		strides[d] = total
		total *= extent.Get(d) + 2*halo.Get(d)
	}
	return &Grid{
		numDims:       n,
		Extent:        extent,
		Halo:          halo,
		strides:       dims.NewIndices(strides...),
		In:            make([]float64, total),
		Out:           make([]float64, total),
		dirty:         make(map[dims.Index]bool),
		lastValidStep: -1,
	}
}

// SetName assigns the grid's GridVar name and returns g, so a caller can
// chain it onto NewGrid's result.
func (g *Grid) SetName(name string) *Grid {
	g.name = name
	return g
}

// NumDims reports the grid's dimensionality.
func (g *Grid) NumDims() int { return g.numDims }

func (g *Grid) offset(idx dims.Indices) int {
	off := dims.Index(0)
	for d := 0; d < g.numDims; d++ {
		off += (idx.Get(d) + g.Halo.Get(d)) * g.strides.Get(d)
	}
	return int(off)
}

// At reads the input buffer at idx, which may lie in the halo (negative
// or >= Extent in any dim).
func (g *Grid) At(idx dims.Indices) float64 { return g.In[g.offset(idx)] }

// SetOut writes the output buffer at idx.
func (g *Grid) SetOut(idx dims.Indices, v float64) { g.Out[g.offset(idx)] = v }

// AtOut reads the output buffer at idx.
func (g *Grid) AtOut(idx dims.Indices) float64 { return g.Out[g.offset(idx)] }

// SetIn writes the input buffer at idx, which may lie in the halo. Used
// to load an initial condition.
func (g *Grid) SetIn(idx dims.Indices, v float64) { g.In[g.offset(idx)] = v }

// Fill sets every input cell, halo included, to v.
func (g *Grid) Fill(v float64) {
	for i := range g.In {
		g.In[i] = v
	}
}

// SwapBuffers exchanges In and Out, the usual end-of-step rotation for a
// Jacobi-style (read-old, write-new) update, and clears the dirty set
// now that the written step has been rotated into In.
func (g *Grid) SwapBuffers() {
	g.In, g.Out = g.Out, g.In
	g.dirtyMu.Lock()
	g.dirty = make(map[dims.Index]bool)
	g.dirtyMu.Unlock()
}

// Domain returns the grid's core (halo-excluded) bounding box, [0, Extent)
// in every dim.
func (g *Grid) Domain() dims.BoundingBox {
	return dims.NewBoundingBox(dims.FromConst(0, g.numDims), g.Extent)
}

// Name returns the grid's GridVar name, set via SetName.
func (g *Grid) Name() string { return g.name }

// MarkDirty records that step has been written.
func (g *Grid) MarkDirty(step dims.Index) {
	g.dirtyMu.Lock()
	defer g.dirtyMu.Unlock()
	g.dirty[step] = true
}

// IsDirty reports whether step has been written and not yet cleared by
// SwapBuffers.
func (g *Grid) IsDirty(step dims.Index) bool {
	g.dirtyMu.Lock()
	defer g.dirtyMu.Unlock()
	return g.dirty[step]
}

// LastValidStep returns the highest step index update_var_info has
// confirmed fully written, or -1 if none yet.
func (g *Grid) LastValidStep() dims.Index {
	return dims.Index(atomic.LoadInt64(&g.lastValidStep))
}

// SetLastValidStep advances the grid's last-valid-step counter.
func (g *Grid) SetLastValidStep(step dims.Index) {
	atomic.StoreInt64(&g.lastValidStep, int64(step))
}
