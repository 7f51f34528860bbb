package nano

import (
	"sync"

	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
)

// CalcNanoBlockDbg calculates results for one nano-block using pure
// scalar code, disregarding all vectorization: stride and alignment are
// forced to 1 in every dim. This is the slow reference/debug path,
// selected via Settings.ForceScalar.
func CalcNanoBlockDbg(
	core any,
	outerThread int,
	settings Settings,
	microBlockIdxs dims.ScanIndices,
	desc *kernel.Descriptor,
) {
	sbIdxs := microBlockIdxs.CreateInner()
	n := sbIdxs.NumDims
	sbIdxs.Stride = dims.FromConst(1, n)
	sbIdxs.Align = dims.FromConst(1, n)

	if !settings.Offload || settings.OffloadLanes <= 1 {
		walkScalar(sbIdxs, func(pt dims.Indices) {
			desc.CalcScalar(core, outerThread, pt)
		})
		return
	}

	// Offload: model a device's static schedule by fanning the scalar
	// loop across a fixed worker pool instead of running it serially,
	// without requiring real accelerator hardware (SPEC_FULL.md
	// supplemented features).
	points := collectScalarPoints(sbIdxs)
	lanes := settings.OffloadLanes
	var wg sync.WaitGroup
	for lane := 0; lane < lanes; lane++ {
		lane := lane
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := lane; i < len(points); i += lanes {
				desc.CalcScalar(core, outerThread, points[i])
			}
		}()
	}
	wg.Wait()
}

// walkScalar visits every point in [idxs.Begin, idxs.End) with stride 1,
// calling fn once per point in row-major (last-dim-fastest) order.
func walkScalar(idxs dims.ScanIndices, fn func(dims.Indices)) {
	n := idxs.NumDims
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		if idxs.Begin.Get(i) >= idxs.End.Get(i) {
			return
		}
	}
	cur := idxs.Begin
	for {
		fn(cur)
		i := n - 1
		for i >= 0 {
			v := cur.Get(i) + 1
			if v < idxs.End.Get(i) {
				cur = cur.Set(i, v)
				break
			}
			cur = cur.Set(i, idxs.Begin.Get(i))
			i--
		}
		if i < 0 {
			return
		}
	}
}

func collectScalarPoints(idxs dims.ScanIndices) []dims.Indices {
	var out []dims.Indices
	walkScalar(idxs, func(pt dims.Indices) {
		out = append(out, pt)
	})
	return out
}
