package dims

import "fmt"

// ScanIndices is the iteration descriptor passed down the pipeline: the
// element-unit interval to cover (Begin/End), the current window within
// it (Start/Stop, used by nested loop code), the per-dim stride, the
// tile size, and the vector-alignment reference (Align/AlignOfs).
//
// Invariants: Begin <= End and Stride >= 1 in every dim. A ScanIndices is
// either "normalized" (coordinates divided by fold lengths) or
// "element-unit"; the two forms must never mix within one call.
type ScanIndices struct {
	Begin, End       Indices
	Start, Stop      Indices
	Stride           Indices
	TileSize         Indices
	Align, AlignOfs  Indices
	NumDims          int
}

// NewScanIndices builds a ScanIndices covering [begin, end) with unit
// stride and no tiling, mirroring the reference's default construction.
func NewScanIndices(begin, end Indices) ScanIndices {
	n := begin.NumDims()
	s := ScanIndices{
		Begin: begin, End: end,
		Start: begin, Stop: end,
		Stride:   FromConst(1, n),
		TileSize: FromConst(0, n),
		Align:    FromConst(1, n),
		AlignOfs: FromConst(0, n),
		NumDims:  n,
	}
	return s
}

// Validate checks the ScanIndices invariants: Begin <= End and Stride >=
// 1 in every dimension.
func (s ScanIndices) Validate() error {
	for i := 0; i < s.NumDims; i++ {
		if s.Begin.Get(i) > s.End.Get(i) {
			return fmt.Errorf("dims: ScanIndices dim %d begin %d > end %d", i, s.Begin.Get(i), s.End.Get(i))
		}
		if s.Stride.Get(i) < 1 {
			return fmt.Errorf("dims: ScanIndices dim %d stride %d < 1", i, s.Stride.Get(i))
		}
	}
	return nil
}

// CreateInner returns a copy suitable for the next-finer loop layer: its
// Begin/End become the current Start/Stop window, matching the
// reference's create_inner().
func (s ScanIndices) CreateInner() ScanIndices {
	inner := s
	inner.Begin = s.Start
	inner.End = s.Stop
	return inner
}

// SetStridesFromInner sets Stride to the given per-dim sizes, falling
// back to fallback for any dim where sizes[i] <= 0, mirroring the
// reference's set_strides_from_inner.
func (s *ScanIndices) SetStridesFromInner(sizes Indices, fallback Index) {
	for i := 0; i < s.NumDims; i++ {
		v := sizes.Get(i)
		if v <= 0 {
			v = fallback
		}
		s.Stride = s.Stride.Set(i, v)
	}
}

// MakeRangeStr renders a "[begin..end)" style description per dimension,
// used by tracing and error messages (the reference's make_range_str).
func (s ScanIndices) MakeRangeStr(withStep bool) string {
	out := ""
	for i := 0; i < s.NumDims; i++ {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("[%d..%d)", s.Begin.Get(i), s.End.Get(i))
		if withStep {
			out += fmt.Sprintf("/%d", s.Stride.Get(i))
		}
	}
	return out
}
