package engine

import "github.com/sbl8/stencilcore/dims"

// splitBoundingBox tiles box into a row-major sequence of sub-boxes no
// larger than tile in any dim (tile[j] <= 0 means "don't split dim j").
// The walk itself mirrors bundle.walkOuterRows's nested-counter idiom,
// generalized from visiting points to visiting tiles.
func splitBoundingBox(box dims.BoundingBox, tile dims.Indices) []dims.BoundingBox {
	n := box.NumDims
	if n == 0 {
		return []dims.BoundingBox{box}
	}

	starts := make([][]dims.Index, n)
	steps := make([]dims.Index, n)
	for j := 0; j < n; j++ {
		step := tile.Get(j)
		if step <= 0 {
			step = box.End.Get(j) - box.Begin.Get(j)
		}
		if step <= 0 {
			step = 1
		}
		steps[j] = step
		for s := box.Begin.Get(j); s < box.End.Get(j); s += step {
			starts[j] = append(starts[j], s)
		}
		if len(starts[j]) == 0 {
			starts[j] = append(starts[j], box.Begin.Get(j))
		}
	}

	var out []dims.BoundingBox
	idx := make([]int, n)
	for {
		begin, end := box.Begin, box.End
		for j := 0; j < n; j++ {
			s := starts[j][idx[j]]
			e := s + steps[j]
			if e > box.End.Get(j) {
				e = box.End.Get(j)
			}
			begin = begin.Set(j, s)
			end = end.Set(j, e)
		}
		out = append(out, dims.NewBoundingBox(begin, end))

		i := n - 1
		for i >= 0 {
			idx[i]++
			if idx[i] < len(starts[i]) {
				break
			}
			idx[i] = 0
			i--
		}
		if i < 0 {
			break
		}
	}
	return out
}

// splitInner divides box along dim into at most pieces contiguous
// sub-boxes, used to spread one micro-block's nano-block work across an
// inner thread team.
func splitInner(box dims.BoundingBox, dim, pieces int) []dims.BoundingBox {
	if pieces < 1 {
		pieces = 1
	}
	lo, hi := box.Begin.Get(dim), box.End.Get(dim)
	total := hi - lo
	if total <= 0 {
		return []dims.BoundingBox{box}
	}
	if dims.Index(pieces) > total {
		pieces = int(total)
	}
	chunk := total / dims.Index(pieces)
	if chunk < 1 {
		chunk = 1
	}

	var out []dims.BoundingBox
	cur := lo
	for i := 0; i < pieces && cur < hi; i++ {
		end := cur + chunk
		if i == pieces-1 || end > hi {
			end = hi
		}
		begin := box.Begin.Set(dim, cur)
		e := box.End.Set(dim, end)
		out = append(out, dims.NewBoundingBox(begin, e))
		cur = end
	}
	return out
}
