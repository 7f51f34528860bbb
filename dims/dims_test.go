package dims

import "testing"

func TestFloorDivMod(t *testing.T) {
	cases := []struct{ n, d, q, r Index }{
		{7, 4, 1, 3},
		{-7, 4, -2, 1},
		{-8, 4, -2, 0},
		{8, 4, 2, 0},
		{-1, 4, -1, 3},
	}
	for _, c := range cases {
		if q := FloorDiv(c.n, c.d); q != c.q {
			t.Errorf("FloorDiv(%d,%d) = %d, want %d", c.n, c.d, q, c.q)
		}
		if r := FloorMod(c.n, c.d); r != c.r {
			t.Errorf("FloorMod(%d,%d) = %d, want %d", c.n, c.d, r, c.r)
		}
	}
}

func TestRoundUpDownFlr(t *testing.T) {
	if got := RoundUpFlr(-7, 4); got != -4 {
		t.Errorf("RoundUpFlr(-7,4) = %d, want -4", got)
	}
	if got := RoundDownFlr(-7, 4); got != -8 {
		t.Errorf("RoundDownFlr(-7,4) = %d, want -8", got)
	}
	if got := RoundUpFlr(8, 4); got != 8 {
		t.Errorf("RoundUpFlr(8,4) = %d, want 8", got)
	}
}

func TestBoundingBoxInvariants(t *testing.T) {
	outer := NewBoundingBox(NewIndices(0, 0), NewIndices(10, 10))
	list := BBList{
		NewBoundingBox(NewIndices(0, 0), NewIndices(5, 5)),
		NewBoundingBox(NewIndices(5, 5), NewIndices(10, 10)),
	}
	if !list.Disjoint() {
		t.Error("expected disjoint list")
	}
	if !list.AllInside(outer) {
		t.Error("expected all boxes inside outer")
	}
}

func TestBoundingBoxOverlap(t *testing.T) {
	a := NewBoundingBox(NewIndices(0), NewIndices(4))
	b := NewBoundingBox(NewIndices(3), NewIndices(8))
	if !a.Overlaps(b) {
		t.Error("expected overlap")
	}
	c := NewBoundingBox(NewIndices(4), NewIndices(8))
	if a.Overlaps(c) {
		t.Error("expected no overlap on half-open boundary")
	}
}

func TestFoldShapeProductAndVisit(t *testing.T) {
	f := NewFoldShape([]Index{4, 4}, 1)
	if f.Product() != 16 {
		t.Fatalf("Product() = %d, want 16", f.Product())
	}
	seen := 0
	f.VisitAll(func(pt Indices, linear int) bool {
		seen++
		return true
	})
	if seen != 16 {
		t.Errorf("VisitAll visited %d points, want 16", seen)
	}
}

func TestScanIndicesValidate(t *testing.T) {
	s := NewScanIndices(NewIndices(0, 0), NewIndices(16, 16))
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := NewScanIndices(NewIndices(16, 0), NewIndices(0, 16))
	if err := bad.Validate(); err == nil {
		t.Error("expected validation error for begin > end")
	}
}
