package engine

import (
	"testing"

	"github.com/sbl8/stencilcore/dims"
)

func TestSplitBoundingBoxCoversWithoutOverlap(t *testing.T) {
	box := dims.NewBoundingBox(dims.NewIndices(0, 0), dims.NewIndices(10, 7))
	tile := dims.NewIndices(4, 3)

	tiles := splitBoundingBox(box, tile)

	var total int64
	for _, bx := range tiles {
		total += bx.NumPoints()
	}
	if total != box.NumPoints() {
		t.Fatalf("tile point total = %d, want %d", total, box.NumPoints())
	}

	dims.BBList(tiles).Disjoint()
	if !dims.BBList(tiles).Disjoint() {
		t.Error("tiles overlap")
	}
	if !dims.BBList(tiles).AllInside(box) {
		t.Error("tile escapes original box")
	}
}

func TestSplitInnerBoundsPieceCount(t *testing.T) {
	box := dims.NewBoundingBox(dims.NewIndices(0), dims.NewIndices(7))
	pieces := splitInner(box, 0, 4)
	if len(pieces) > 4 {
		t.Fatalf("got %d pieces, want at most 4", len(pieces))
	}
	var total int64
	for _, p := range pieces {
		total += p.NumPoints()
	}
	if total != 7 {
		t.Errorf("piece point total = %d, want 7", total)
	}
}

func TestSplitInnerClampsToRangeSize(t *testing.T) {
	box := dims.NewBoundingBox(dims.NewIndices(0), dims.NewIndices(2))
	pieces := splitInner(box, 0, 10)
	if len(pieces) != 2 {
		t.Fatalf("got %d pieces, want 2 (clamped to range size)", len(pieces))
	}
}
