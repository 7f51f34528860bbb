package refbundle

import (
	"testing"

	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/nano"
)

// seedGrid loads an arbitrary, non-constant field into g's input buffer,
// halo included, so averageAt's neighbor reads exercise real values
// rather than a degenerate constant.
func seedGrid(g *Grid) {
	for y := dims.Index(-1); y < g.Extent.Get(1)+1; y++ {
		for x := dims.Index(-1); x < g.Extent.Get(0)+1; x++ {
			g.SetIn(dims.NewIndices(x, y), float64(x)*3.1+float64(y)*1.7)
		}
	}
}

// TestReferenceAgreementOptVsDbg covers the reference-agreement property
// named in spec.md §8 (P3): for a bundle with no aliasing between inputs
// and outputs, nano.CalcNanoBlockOpt and nano.CalcNanoBlockDbg must
// produce byte-identical output. Grid's separate In/Out buffers already
// satisfy the no-aliasing precondition, so the same Jacobi bundle run
// through each path against identically-seeded grids must agree exactly.
func TestReferenceAgreementOptVsDbg(t *testing.T) {
	extent := dims.NewIndices(8, 8)
	halo := dims.NewIndices(1, 1)
	gOpt := NewGrid(extent, halo)
	gDbg := NewGrid(extent, halo)
	seedGrid(gOpt)
	seedGrid(gDbg)

	fold := dims.NewFoldShape([]dims.Index{4, 4}, 0)
	cluster := dims.NewClusterShape([]dims.Index{1, 1})
	descOpt := Jacobi2D(gOpt, fold)
	descDbg := Jacobi2D(gDbg, fold)

	idxs := dims.NewScanIndices(dims.NewIndices(0, 0), dims.NewIndices(8, 8))

	if err := nano.CalcNanoBlockOpt(gOpt, 0, 0, nano.Settings{}, idxs, fold, cluster, dims.NewIndices(0, 0), descOpt); err != nil {
		t.Fatalf("CalcNanoBlockOpt: %v", err)
	}
	nano.CalcNanoBlockDbg(gDbg, 0, nano.Settings{}, idxs, descDbg)

	for y := dims.Index(0); y < 8; y++ {
		for x := dims.Index(0); x < 8; x++ {
			idx := dims.NewIndices(x, y)
			if got, want := gOpt.AtOut(idx), gDbg.AtOut(idx); got != want {
				t.Fatalf("mismatch at (%d,%d): opt=%v dbg=%v", x, y, got, want)
			}
		}
	}
}
