package dims

// BoundingBox is a possibly non-solid N-dim axis-aligned rectangle
// covering [Begin, End) in every dimension. A Bundle's _bundle_bb is the
// convex hull over its valid output points; its _bb_list (see BBList) is
// a non-overlapping decomposition of the actually-valid points, every
// member of which lies inside the bundle's BoundingBox.
type BoundingBox struct {
	Begin, End Indices
	NumDims    int
	// Solid is true when every point in [Begin,End) is a valid output
	// point; false means the box is only a convex hull and the valid
	// points are refined by a BBList.
	Solid bool
}

// NewBoundingBox builds a BoundingBox over [begin, end).
func NewBoundingBox(begin, end Indices) BoundingBox {
	return BoundingBox{Begin: begin, End: end, NumDims: begin.NumDims(), Solid: true}
}

// Contains reports whether pt lies within [Begin, End) in every dim.
func (b BoundingBox) Contains(pt Indices) bool {
	for i := 0; i < b.NumDims; i++ {
		if pt.Get(i) < b.Begin.Get(i) || pt.Get(i) >= b.End.Get(i) {
			return false
		}
	}
	return true
}

// ContainsBox reports whether other is entirely contained within b,
// i.e. every point in other also lies in b. Used to check the §3
// invariant that every _bb_list member fits inside _bundle_bb and that
// _bundle_bb fits inside the rank's extended BB.
func (b BoundingBox) ContainsBox(other BoundingBox) bool {
	for i := 0; i < b.NumDims; i++ {
		if other.Begin.Get(i) < b.Begin.Get(i) || other.End.Get(i) > b.End.Get(i) {
			return false
		}
	}
	return true
}

// Overlaps reports whether b and other share any point.
func (b BoundingBox) Overlaps(other BoundingBox) bool {
	for i := 0; i < b.NumDims; i++ {
		if b.Begin.Get(i) >= other.End.Get(i) || other.Begin.Get(i) >= b.End.Get(i) {
			return false
		}
	}
	return true
}

// Equal reports whether b and other cover identical ranges, used by the
// idempotent-bounding-box-construction property (P7).
func (b BoundingBox) Equal(other BoundingBox) bool {
	return b.NumDims == other.NumDims &&
		b.Begin.Equal(other.Begin) && b.End.Equal(other.End) && b.Solid == other.Solid
}

// NumPoints returns the scalar point count covered by [Begin, End).
func (b BoundingBox) NumPoints() int64 {
	total := int64(1)
	for i := 0; i < b.NumDims; i++ {
		n := int64(b.End.Get(i) - b.Begin.Get(i))
		if n < 0 {
			return 0
		}
		total *= n
	}
	return total
}

// BBList is a non-overlapping decomposition of a bundle's actually-valid
// points. Every member must lie inside the bundle's overall BoundingBox,
// and members must be pairwise disjoint (§3 invariant).
type BBList []BoundingBox

// Disjoint reports whether every pair of boxes in the list is
// non-overlapping, part of the §3 invariant checked by tests.
func (l BBList) Disjoint() bool {
	for i := 0; i < len(l); i++ {
		for j := i + 1; j < len(l); j++ {
			if l[i].Overlaps(l[j]) {
				return false
			}
		}
	}
	return true
}

// AllInside reports whether every box in the list is contained within
// outer, the other half of the §3 invariant.
func (l BBList) AllInside(outer BoundingBox) bool {
	for _, b := range l {
		if !outer.ContainsBox(b) {
			return false
		}
	}
	return true
}
