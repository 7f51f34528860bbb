package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/sbl8/stencilcore/bundle"
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
	"github.com/sbl8/stencilcore/nano"
	"github.com/sbl8/stencilcore/refbundle"
)

type callRecorder struct {
	mu     sync.Mutex
	ranges []dims.BoundingBox
}

func (r *callRecorder) record(idxs dims.ScanIndices) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges = append(r.ranges, dims.NewBoundingBox(idxs.Begin, idxs.End))
}

func unitFoldDescriptor(r *callRecorder) *kernel.Descriptor {
	return &kernel.Descriptor{
		Name: "identity",
		CalcClusters: func(core any, outerThread, innerThread, threadLimit int, normIdxs dims.ScanIndices) {
			r.record(normIdxs)
		},
		CalcVectors: func(core any, outerThread, innerThread, threadLimit int, normIdxs dims.ScanIndices, mask kernel.Mask) {
			r.record(normIdxs)
		},
		CalcScalar:         func(core any, outerThread int, idx dims.Indices) {},
		IsInValidDomain:    func(core any, idx dims.Indices) bool { return true },
		IsInValidStep:      func(core any, t dims.Index) bool { return true },
		GetOutputStepIndex: func(core any, t dims.Index) (dims.Index, bool) { return t, true },
	}
}

func TestRunStepCoversDomainExactlyOnce(t *testing.T) {
	fold := dims.NewFoldShape([]dims.Index{1}, 0)
	cluster := dims.NewClusterShape([]dims.Index{1})
	domain := dims.NewBoundingBox(dims.NewIndices(0), dims.NewIndices(8))

	settings := Settings{
		Nano: nano.Settings{
			PicoBlockSizes:     dims.NewIndices(4),
			NanoBlockTileSizes: dims.NewIndices(0),
			ThreadLimit:        2,
		},
		MicroBlockSizes: dims.NewIndices(4),
		OuterThreads:    2,
	}

	ctx := NewStencilContext(fold, cluster, domain, settings, nil)

	rec := &callRecorder{}
	b, err := bundle.NewBundle(unitFoldDescriptor(rec))
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	b.FindBoundingBoxes(nil, domain)

	stage := bundle.NewStage("main")
	if err := stage.AddBundle(b, nil); err != nil {
		t.Fatalf("AddBundle: %v", err)
	}
	if err := ctx.AddStage(stage); err != nil {
		t.Fatalf("AddStage: %v", err)
	}

	if err := ctx.RunStep(context.Background(), nil, 0); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	var total int64
	for _, bx := range rec.ranges {
		total += bx.NumPoints()
	}
	if total != domain.NumPoints() {
		t.Errorf("covered %d points, want %d", total, domain.NumPoints())
	}
	if !dims.BBList(rec.ranges).Disjoint() {
		t.Error("nano-block ranges overlap")
	}
	if !dims.BBList(rec.ranges).AllInside(domain) {
		t.Error("nano-block range escapes domain")
	}

	if got := stage.StepsDone; got != 1 {
		t.Errorf("StepsDone = %d, want 1", got)
	}
}

func TestRunStepSkipsStageOutsideStepPredicate(t *testing.T) {
	fold := dims.NewFoldShape([]dims.Index{1}, 0)
	cluster := dims.NewClusterShape([]dims.Index{1})
	domain := dims.NewBoundingBox(dims.NewIndices(0), dims.NewIndices(4))

	ctx := NewStencilContext(fold, cluster, domain, Settings{
		Nano:            nano.Settings{PicoBlockSizes: dims.NewIndices(4), ThreadLimit: 1},
		MicroBlockSizes: dims.NewIndices(4),
		OuterThreads:    1,
	}, nil)

	rec := &callRecorder{}
	desc := unitFoldDescriptor(rec)
	desc.IsInValidStep = func(core any, t dims.Index) bool { return t%2 == 0 }

	b, _ := bundle.NewBundle(desc)
	b.FindBoundingBoxes(nil, domain)
	stage := bundle.NewStage("even-only")
	stage.AddBundle(b, nil)
	ctx.AddStage(stage)

	if err := ctx.RunStep(context.Background(), nil, 1); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if len(rec.ranges) != 0 {
		t.Errorf("expected no dispatch on odd step, got %d calls", len(rec.ranges))
	}

	if err := ctx.RunStep(context.Background(), nil, 2); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if len(rec.ranges) == 0 {
		t.Error("expected dispatch on even step")
	}
}

func TestRunStepWrapsBundleErrorAsStepError(t *testing.T) {
	fold := dims.NewFoldShape([]dims.Index{1}, 0)
	cluster := dims.NewClusterShape([]dims.Index{1})
	domain := dims.NewBoundingBox(dims.NewIndices(0), dims.NewIndices(4))

	ctx := NewStencilContext(fold, cluster, domain, Settings{
		Nano:            nano.Settings{PicoBlockSizes: dims.NewIndices(4), ThreadLimit: 1},
		MicroBlockSizes: dims.NewIndices(4),
		OuterThreads:    1,
	}, nil)

	desc := &kernel.Descriptor{
		Name: "panics",
		CalcClusters: func(core any, outerThread, innerThread, threadLimit int, normIdxs dims.ScanIndices) {
			panic("boom")
		},
		CalcScalar:         func(core any, outerThread int, idx dims.Indices) {},
		IsInValidDomain:    func(core any, idx dims.Indices) bool { return true },
		IsInValidStep:      func(core any, t dims.Index) bool { return true },
		GetOutputStepIndex: func(core any, t dims.Index) (dims.Index, bool) { return t, true },
	}
	b, _ := bundle.NewBundle(desc)
	b.FindBoundingBoxes(nil, domain)
	stage := bundle.NewStage("boom-stage")
	stage.AddBundle(b, nil)
	ctx.AddStage(stage)

	err := ctx.RunStep(context.Background(), nil, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	stepErr, ok := err.(*StepError)
	if !ok {
		t.Fatalf("got %T, want *StepError", err)
	}
	if stepErr.Stage != "boom-stage" || stepErr.Bundle != "panics" {
		t.Errorf("got stage=%q bundle=%q", stepErr.Stage, stepErr.Bundle)
	}
}

// TestRunStepPropagatesDependencyWithinOneStep covers scenario 6: bundle
// B, which depends on bundle A, must observe A's just-written output
// through a single live RunStep call rather than A's stale input. A
// writes a marker value via SetOut; B reads it back via AtOut (the
// output buffer A wrote, not the input buffer SwapBuffers would later
// rotate it into) and records what it saw.
func TestRunStepPropagatesDependencyWithinOneStep(t *testing.T) {
	fold := dims.NewFoldShape([]dims.Index{1}, 0)
	cluster := dims.NewClusterShape([]dims.Index{1})
	domain := dims.NewBoundingBox(dims.NewIndices(0), dims.NewIndices(4))

	grid := refbundle.NewGrid(dims.NewIndices(4), dims.NewIndices(0)).SetName("shared")

	const marker = 100.0
	descA := &kernel.Descriptor{
		Name: "writer",
		CalcScalar: func(core any, outerThread int, idx dims.Indices) {
			core.(*refbundle.Grid).SetOut(idx, marker)
		},
		IsInValidDomain:    func(core any, idx dims.Indices) bool { return true },
		IsInValidStep:      func(core any, t dims.Index) bool { return true },
		GetOutputStepIndex: func(core any, t dims.Index) (dims.Index, bool) { return t, true },
	}

	var mu sync.Mutex
	var observed []float64
	descB := &kernel.Descriptor{
		Name: "reader",
		CalcScalar: func(core any, outerThread int, idx dims.Indices) {
			v := core.(*refbundle.Grid).AtOut(idx)
			mu.Lock()
			observed = append(observed, v)
			mu.Unlock()
		},
		IsInValidDomain:    func(core any, idx dims.Indices) bool { return true },
		IsInValidStep:      func(core any, t dims.Index) bool { return true },
		GetOutputStepIndex: func(core any, t dims.Index) (dims.Index, bool) { return t, true },
	}

	a, err := bundle.NewBundle(descA)
	if err != nil {
		t.Fatalf("NewBundle A: %v", err)
	}
	a.FindBoundingBoxes(grid, domain)
	a.AddOutput(grid)

	b, err := bundle.NewBundle(descB)
	if err != nil {
		t.Fatalf("NewBundle B: %v", err)
	}
	b.FindBoundingBoxes(grid, domain)
	b.AddDep(a)

	stage := bundle.NewStage("dependency")
	if err := stage.AddBundle(a, grid); err != nil {
		t.Fatalf("AddBundle A: %v", err)
	}
	if err := stage.AddBundle(b, grid); err != nil {
		t.Fatalf("AddBundle B: %v", err)
	}

	settings := Settings{
		Nano:            nano.Settings{ForceScalar: true, ThreadLimit: 1},
		MicroBlockSizes: dims.NewIndices(4),
		OuterThreads:    1,
	}
	ctx := NewStencilContext(fold, cluster, domain, settings, nil)
	if err := ctx.AddStage(stage); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if err := ctx.RegisterGridVar(grid); err != nil {
		t.Fatalf("RegisterGridVar: %v", err)
	}

	if err := ctx.RunStep(context.Background(), grid, 0); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	if len(observed) != 4 {
		t.Fatalf("got %d observations, want 4", len(observed))
	}
	for i, v := range observed {
		if v != marker {
			t.Errorf("observation %d = %v, want %v (B must see A's same-step write)", i, v, marker)
		}
	}
	if got := grid.LastValidStep(); got != 0 {
		t.Errorf("grid.LastValidStep() = %d, want 0", got)
	}
}
