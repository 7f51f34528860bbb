package refbundle

import (
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
)

// forEachElement expands a normalized (fold-unit) scan range into
// element-space points, honoring mask exactly as nano.CalcNanoBlockOpt
// produces it: normIdxs coordinates are element coordinates divided by
// the fold length in each dim, and mask bit i selects the i-th lane in
// fold.VisitAll's visitation order. FullMask's all-ones pattern makes
// the bit test below correct for both the masked and unmasked calls
// without a separate branch.
func forEachElement(normIdxs dims.ScanIndices, fold dims.FoldShape, mask kernel.Mask, fn func(idx dims.Indices)) {
	n := normIdxs.NumDims
	if n == 0 {
		return
	}
	for d := 0; d < n; d++ {
		if normIdxs.Begin.Get(d) >= normIdxs.End.Get(d) {
			return
		}
	}

	cur := normIdxs.Begin
	for {
		vpos := cur
		fold.VisitAll(func(pt dims.Indices, linear int) bool {
			bit := kernel.Mask(1) << uint(linear)
			if mask&bit == 0 {
				return true
			}
			elem := vpos
			for d := 0; d < n; d++ {
				elem = elem.Set(d, vpos.Get(d)*fold.Len(d)+pt.Get(d))
			}
			fn(elem)
			return true
		})

		i := n - 1
		for i >= 0 {
			v := cur.Get(i) + 1
			if v < normIdxs.End.Get(i) {
				cur = cur.Set(i, v)
				break
			}
			cur = cur.Set(i, normIdxs.Begin.Get(i))
			i--
		}
		if i < 0 {
			return
		}
	}
}
