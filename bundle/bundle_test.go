package bundle

import (
	"testing"

	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
	"github.com/sbl8/stencilcore/nano"
)

func mkDesc(name string, isScratch bool) *kernel.Descriptor {
	d := &kernel.Descriptor{
		Name:               name,
		IsScratch:          isScratch,
		CalcScalar:         func(core any, outerThread int, idx dims.Indices) {},
		IsInValidDomain:    func(core any, idx dims.Indices) bool { return true },
		IsInValidStep:      func(core any, t dims.Index) bool { return true },
		GetOutputStepIndex: func(core any, t dims.Index) (dims.Index, bool) { return t, true },
	}
	if isScratch {
		d.NewScratchCore = func(span dims.BoundingBox) any { return nil }
	}
	return d
}

func TestStageRejectsMixedStepPredicates(t *testing.T) {
	s := NewStage("diffusion")
	a, _ := NewBundle(mkDesc("a", false))
	if err := s.AddBundle(a, nil); err != nil {
		t.Fatalf("unexpected error adding first bundle: %v", err)
	}

	oddDesc := mkDesc("b", false)
	oddDesc.StepCondDescription = "t is odd"
	oddDesc.IsInValidStep = func(core any, t dims.Index) bool { return t%2 == 1 }
	b, _ := NewBundle(oddDesc)

	if err := s.AddBundle(b, nil); err == nil {
		t.Error("expected error adding bundle with disagreeing step predicate")
	}
}

func TestStageEvaluationOrderRespectsDeps(t *testing.T) {
	s := NewStage("s")
	a, _ := NewBundle(mkDesc("a", false))
	b, _ := NewBundle(mkDesc("b", false))
	c, _ := NewBundle(mkDesc("c", false))
	b.AddDep(a)
	c.AddDep(b)

	for _, bd := range []*Bundle{c, a, b} { // add out of order
		if err := s.AddBundle(bd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	order, err := s.EvaluationOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := map[*Bundle]int{}
	for i, bd := range order {
		pos[bd] = i
	}
	if pos[a] >= pos[b] || pos[b] >= pos[c] {
		t.Errorf("evaluation order %v does not respect dependencies", order)
	}
}

func TestStageEvaluationOrderDetectsCycle(t *testing.T) {
	s := NewStage("s")
	a, _ := NewBundle(mkDesc("a", false))
	b, _ := NewBundle(mkDesc("b", false))
	a.AddDep(b)
	b.AddDep(a)
	s.AddBundle(a, nil)
	s.AddBundle(b, nil)

	if _, err := s.EvaluationOrder(); err == nil {
		t.Error("expected cycle-detection error")
	}
}

func TestFindBoundingBoxesIdempotent(t *testing.T) {
	b, _ := NewBundle(mkDesc("a", false))
	box := dims.NewBoundingBox(dims.NewIndices(0, 0), dims.NewIndices(8, 8))

	b.FindBoundingBoxes(nil, box)
	bb1, list1 := b.BB(), b.BBList()

	b.FindBoundingBoxes(nil, box)
	bb2, list2 := b.BB(), b.BBList()

	if !bb1.Equal(bb2) {
		t.Errorf("BB changed across calls: %+v vs %+v", bb1, bb2)
	}
	if len(list1) != len(list2) {
		t.Errorf("BBList length changed across calls: %d vs %d", len(list1), len(list2))
	}
}

func TestAdjustScratchSpanRejectsNonScratch(t *testing.T) {
	b, _ := NewBundle(mkDesc("a", false))
	fold := dims.NewFoldShape([]dims.Index{4}, 0)
	idxs := dims.NewScanIndices(dims.NewIndices(0), dims.NewIndices(4))
	if _, err := b.AdjustScratchSpan(0, idxs, fold, nano.Settings{}); err == nil {
		t.Error("expected error adjusting scratch span on non-scratch bundle")
	}
}

func TestAdjustScratchSpanRejectsNegativeThread(t *testing.T) {
	b, _ := NewBundle(mkDesc("scr", true))
	fold := dims.NewFoldShape([]dims.Index{4}, 0)
	idxs := dims.NewScanIndices(dims.NewIndices(0), dims.NewIndices(4))
	if _, err := b.AdjustScratchSpan(-1, idxs, fold, nano.Settings{}); err == nil {
		t.Error("expected error for negative outer thread")
	}
}

func TestAdjustScratchSpanRejectsUnalignedSpan(t *testing.T) {
	b, _ := NewBundle(mkDesc("scr", true))
	fold := dims.NewFoldShape([]dims.Index{4}, 0)
	idxs := dims.NewScanIndices(dims.NewIndices(2), dims.NewIndices(8))
	if _, err := b.AdjustScratchSpan(0, idxs, fold, nano.Settings{}); err == nil {
		t.Error("expected error for span not aligned to fold length")
	}
}

func TestAdjustScratchSpanForceScalarSkipsAlignmentCheck(t *testing.T) {
	b, _ := NewBundle(mkDesc("scr", true))
	b.FindWriteHalos(dims.NewIndices(1), dims.NewIndices(2))
	fold := dims.NewFoldShape([]dims.Index{4}, 0)
	idxs := dims.NewScanIndices(dims.NewIndices(2), dims.NewIndices(8))
	out, err := b.AdjustScratchSpan(0, idxs, fold, nano.Settings{ForceScalar: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Begin.Get(0) != 0 || out.End.Get(0) != 9 {
		t.Errorf("got begin=%d end=%d, want begin=0 end=9", out.Begin.Get(0), out.End.Get(0))
	}
}

func TestAdjustScratchSpanWidensByHaloAndRewritesToLocalFrame(t *testing.T) {
	b, _ := NewBundle(mkDesc("scr", true))
	b.FindWriteHalos(dims.NewIndices(1), dims.NewIndices(2))
	fold := dims.NewFoldShape([]dims.Index{4}, 0)
	idxs := dims.NewScanIndices(dims.NewIndices(4), dims.NewIndices(8))
	out, err := b.AdjustScratchSpan(0, idxs, fold, nano.Settings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// widened absolute span is [4-1, 8+2) = [3, 10), 7 elements wide;
	// rewritten to the scratch core's own zero-based frame that's [0,7).
	if out.Begin.Get(0) != 0 || out.End.Get(0) != 7 {
		t.Errorf("got begin=%d end=%d, want begin=0 end=7", out.Begin.Get(0), out.End.Get(0))
	}
}
