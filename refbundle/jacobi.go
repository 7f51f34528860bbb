package refbundle

import (
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
)

// neighborOffsets returns the 2*numDims axis-aligned unit offsets, the
// N-dim generalization of the borkshop Stencil5 (2D, 4 neighbors) /
// Stencil9-style neighbor tables, expressed as index deltas rather than
// a flat-array adjacency table since this grid addresses by dims.Indices.
func neighborOffsets(numDims int) []dims.Indices {
	offsets := make([]dims.Indices, 0, 2*numDims)
	for d := 0; d < numDims; d++ {
		offsets = append(offsets, dims.FromConst(0, numDims).Set(d, 1))
		offsets = append(offsets, dims.FromConst(0, numDims).Set(d, -1))
	}
	return offsets
}

// averageAt computes the mean of idx and every point reached by offsets.
func averageAt(g *Grid, idx dims.Indices, offsets []dims.Indices) float64 {
	sum := g.At(idx)
	for _, o := range offsets {
		sum += g.At(idx.Add(o))
	}
	return sum / float64(len(offsets)+1)
}

// NewJacobiDescriptor builds a reference N-dim Jacobi averaging bundle:
// each output point is the mean of itself and its 2*numDims axis
// neighbors. CalcVectors/CalcClusters both expand their normalized range
// back to element space via forEachElement and apply the same per-point
// formula CalcScalar uses — this bundle is a correctness stand-in, not a
// vectorized one, so there is no separate SIMD code path to keep in
// sync.
func NewJacobiDescriptor(name string, grid *Grid, fold dims.FoldShape) *kernel.Descriptor {
	offsets := neighborOffsets(grid.NumDims())
	return &kernel.Descriptor{
		Name:                name,
		ScalarFPOps:         len(offsets) + 1,
		ScalarPointsRead:    len(offsets) + 1,
		ScalarPointsWritten: 1,

		IsInValidDomain:    func(core any, idx dims.Indices) bool { return true },
		IsInValidStep:      func(core any, t dims.Index) bool { return true },
		GetOutputStepIndex: func(core any, t dims.Index) (dims.Index, bool) { return t, false },

		CalcScalar: func(core any, outerThread int, idx dims.Indices) {
			g := core.(*Grid)
			g.SetOut(idx, averageAt(g, idx, offsets))
		},
		CalcVectors: func(core any, outerThread, innerThread, threadLimit int, normIdxs dims.ScanIndices, mask kernel.Mask) {
			g := core.(*Grid)
			forEachElement(normIdxs, fold, mask, func(idx dims.Indices) {
				g.SetOut(idx, averageAt(g, idx, offsets))
			})
		},
		CalcClusters: func(core any, outerThread, innerThread, threadLimit int, normIdxs dims.ScanIndices) {
			g := core.(*Grid)
			forEachElement(normIdxs, fold, kernel.FullMask, func(idx dims.Indices) {
				g.SetOut(idx, averageAt(g, idx, offsets))
			})
		},
		// The scratch core needs its own 1-cell halo: averageAt reads
		// each point's axis neighbors, and span already starts at 0
		// with no margin of its own.
		NewScratchCore: func(span dims.BoundingBox) any {
			return NewGrid(span.End, dims.FromConst(1, span.NumDims))
		},
	}
}

// Jacobi2D builds the 5-point (2D) reference averaging bundle.
func Jacobi2D(grid *Grid, fold dims.FoldShape) *kernel.Descriptor {
	return NewJacobiDescriptor("jacobi5", grid, fold)
}

// Jacobi3D builds the 7-point (3D) reference averaging bundle.
func Jacobi3D(grid *Grid, fold dims.FoldShape) *kernel.Descriptor {
	return NewJacobiDescriptor("jacobi7", grid, fold)
}
