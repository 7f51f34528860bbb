// Package dims implements the index and shape arithmetic shared by every
// layer of the stencil pipeline: fixed-width index tuples, floor-signed
// rounding, scan descriptors, bounding boxes, and fold/cluster shapes.
package dims

import "fmt"

// MaxDims bounds the number of stencil dimensions (time plus up to four
// spatial domain dims). A fixed-length array avoids heap allocation on
// the hot path.
const MaxDims = 5

// Index is a signed whole-domain element coordinate. Values may be
// negative inside halo regions, so all division and modulo on Index
// values must be floor-signed, never truncating.
type Index int64

// Indices is a fixed-length tuple of Index, one entry per stencil
// dimension. Only the first NumDims entries are meaningful.
type Indices struct {
	vals    [MaxDims]Index
	numDims int
}

// NewIndices builds an Indices from the given values, in dimension order.
func NewIndices(vals ...Index) Indices {
	if len(vals) > MaxDims {
		panic(fmt.Sprintf("dims: %d values exceeds MaxDims %d", len(vals), MaxDims))
	}
	var idx Indices
	idx.numDims = len(vals)
	copy(idx.vals[:], vals)
	return idx
}

// NumDims reports how many dimensions this tuple carries.
func (idx Indices) NumDims() int { return idx.numDims }

// Get returns the value at dimension i.
func (idx Indices) Get(i int) Index { return idx.vals[i] }

// Set returns a copy of idx with dimension i set to v.
func (idx Indices) Set(i int, v Index) Indices {
	idx.vals[i] = v
	return idx
}

// Add returns the elementwise sum of idx and other. Both must carry the
// same NumDims.
func (idx Indices) Add(other Indices) Indices {
	idx.mustMatch(other)
	out := idx
	for i := 0; i < idx.numDims; i++ {
		out.vals[i] = idx.vals[i] + other.vals[i]
	}
	return out
}

// Sub returns the elementwise difference idx - other.
func (idx Indices) Sub(other Indices) Indices {
	idx.mustMatch(other)
	out := idx
	for i := 0; i < idx.numDims; i++ {
		out.vals[i] = idx.vals[i] - other.vals[i]
	}
	return out
}

// Equal reports whether idx and other carry identical values.
func (idx Indices) Equal(other Indices) bool {
	if idx.numDims != other.numDims {
		return false
	}
	for i := 0; i < idx.numDims; i++ {
		if idx.vals[i] != other.vals[i] {
			return false
		}
	}
	return true
}

func (idx Indices) mustMatch(other Indices) {
	if idx.numDims != other.numDims {
		panic(fmt.Sprintf("dims: dimension mismatch %d vs %d", idx.numDims, other.numDims))
	}
}

// FromConst returns an Indices of the given width with every entry set
// to v. Mirrors stride.set_from_const(1) in the reference implementation.
func FromConst(v Index, numDims int) Indices {
	var idx Indices
	idx.numDims = numDims
	for i := 0; i < numDims; i++ {
		idx.vals[i] = v
	}
	return idx
}

// IndexTuple is an Indices paired with dimension names, used for
// diagnostics and shape queries against fold/cluster sizes.
type IndexTuple struct {
	Indices
	Names [MaxDims]string
}

// NewIndexTuple pairs names with values; len(names) must equal len(vals).
func NewIndexTuple(names []string, vals []Index) IndexTuple {
	if len(names) != len(vals) {
		panic("dims: names/values length mismatch")
	}
	t := IndexTuple{Indices: NewIndices(vals...)}
	copy(t.Names[:], names)
	return t
}

// DimName returns the name of dimension j.
func (t IndexTuple) DimName(j int) string { return t.Names[j] }

// String renders a human-readable "name=value, ..." description, used
// for get_domain_description-style diagnostics.
func (t IndexTuple) String() string {
	s := ""
	for i := 0; i < t.NumDims(); i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%d", t.Names[i], t.Get(i))
	}
	return s
}
