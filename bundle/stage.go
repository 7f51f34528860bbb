package bundle

import (
	"fmt"

	"github.com/sbl8/stencilcore/dims"
)

// Stage is an ordered collection of independent bundles traversed once
// per time-step: the unit at which time-step enablement is evaluated.
// "Independent" means the bundles may be evaluated in any order relative
// to each other, subject to the dependency edges each Bundle carries.
type Stage struct {
	name    string
	bundles []*Bundle
	stageBB dims.BoundingBox

	// Perf counters: StepsDone accumulates across invocations; the
	// per-step counts are recomputed from the bundles by AddSteps.
	StepsDone         int64
	NumReadsPerStep   int64
	NumWritesPerStep  int64
	NumFPOpsPerStep   int64

	timerRunning bool
	timerElapsed int64 // nanoseconds; advanced externally via StartTimer/StopTimer callers
}

// NewStage returns an empty, named Stage.
func NewStage(name string) *Stage {
	return &Stage{name: name}
}

// Name returns the stage's name.
func (s *Stage) Name() string { return s.name }

// Bundles returns the stage's bundles in declaration order.
func (s *Stage) Bundles() []*Bundle { return s.bundles }

// AddBundle appends b to the stage. Resolves spec.md §9's Open Question
// explicitly: if b's step predicate disagrees with the stage's existing
// non-scratch bundles, AddBundle rejects it rather than silently
// trusting whichever bundle happens to be first.
func (s *Stage) AddBundle(b *Bundle, core any) error {
	if !b.IsScratch() {
		for _, existing := range s.bundles {
			if existing.IsScratch() {
				continue
			}
			if !stepPredicatesAgree(existing, b, core) {
				return fmt.Errorf("bundle: stage %q: bundle %q's step predicate disagrees with existing bundle %q",
					s.name, b.Name(), existing.Name())
			}
			break
		}
	}
	s.bundles = append(s.bundles, b)
	return nil
}

// stepPredicatesAgree compares two bundles' step-condition descriptions
// and a probe over a representative step range, a heuristic good enough
// to reject genuinely mismatched predicates without requiring bundles
// to expose their predicate's internal structure.
func stepPredicatesAgree(a, b *Bundle, core any) bool {
	if a.GetStepCondDescription() != b.GetStepCondDescription() {
		return false
	}
	for t := dims.Index(0); t < 8; t++ {
		if a.IsInValidStep(core, t) != b.IsInValidStep(core, t) {
			return false
		}
	}
	return true
}

// IsInValidStep determines whether step index t is enabled for this
// stage: it consults the first non-scratch bundle, since AddBundle
// already guarantees all non-scratch bundles agree.
func (s *Stage) IsInValidStep(core any, t dims.Index) bool {
	if len(s.bundles) == 0 {
		return false
	}
	for _, b := range s.bundles {
		if !b.IsScratch() {
			return b.IsInValidStep(core, t)
		}
	}
	return false
}

// BB returns the stage's bounding box: the union of bounding boxes for
// all non-scratch bundles in the stage.
func (s *Stage) BB() dims.BoundingBox { return s.stageBB }

// RecomputeBB recomputes the stage's bounding box as the union of every
// non-scratch bundle's BB, after FindBoundingBoxes has been called on
// each bundle.
func (s *Stage) RecomputeBB() {
	first := true
	for _, b := range s.bundles {
		if b.IsScratch() {
			continue
		}
		bb := b.BB()
		if first {
			s.stageBB = bb
			first = false
			continue
		}
		s.stageBB = unionBB(s.stageBB, bb)
	}
}

func unionBB(a, bb dims.BoundingBox) dims.BoundingBox {
	n := a.NumDims
	begin, end := a.Begin, a.End
	for i := 0; i < n; i++ {
		if bb.Begin.Get(i) < begin.Get(i) {
			begin = begin.Set(i, bb.Begin.Get(i))
		}
		if bb.End.Get(i) > end.Get(i) {
			end = end.Set(i, bb.End.Get(i))
		}
	}
	out := dims.NewBoundingBox(begin, end)
	out.Solid = false
	return out
}

// StartTimer marks the beginning of a stage invocation.
func (s *Stage) StartTimer() { s.timerRunning = true }

// StopTimer marks the end of a stage invocation and records elapsed
// nanoseconds (callers pass wall-clock delta; the Stage itself never
// calls time.Now so it stays free of hidden global state, per §9).
func (s *Stage) StopTimer(elapsedNanos int64) {
	s.timerRunning = false
	s.timerElapsed += elapsedNanos
}

// ElapsedNanos returns total accumulated timer duration.
func (s *Stage) ElapsedNanos() int64 { return s.timerElapsed }

// AddSteps records that numSteps additional steps of this stage have
// completed, and recomputes the per-step read/write/flop counts as the
// sums over the stage's bundles.
func (s *Stage) AddSteps(numSteps int64) {
	s.StepsDone += numSteps
	s.NumReadsPerStep = s.computeReads()
	s.NumWritesPerStep = s.computeWrites()
	s.NumFPOpsPerStep = s.computeFPOps()
}

func (s *Stage) computeReads() int64 {
	var total int64
	for _, b := range s.bundles {
		total += int64(b.ScalarPointsRead())
	}
	return total
}

func (s *Stage) computeWrites() int64 {
	var total int64
	for _, b := range s.bundles {
		total += int64(b.ScalarPointsWritten())
	}
	return total
}

func (s *Stage) computeFPOps() int64 {
	var total int64
	for _, b := range s.bundles {
		total += int64(b.ScalarFPOps())
	}
	return total
}

// EvaluationOrder returns the bundles of the stage ordered so that every
// bundle appears after everything it (transitively) depends on, via
// Kahn's algorithm — the direct descendant of the dependency-ordering
// routine the teacher implemented three times over (see DESIGN.md).
// Returns an error if the dependency graph contains a cycle.
func (s *Stage) EvaluationOrder() ([]*Bundle, error) {
	inDegree := make(map[*Bundle]int, len(s.bundles))
	dependents := make(map[*Bundle][]*Bundle, len(s.bundles))
	index := make(map[*Bundle]int, len(s.bundles))
	for i, b := range s.bundles {
		inDegree[b] = 0
		index[b] = i
	}
	for _, b := range s.bundles {
		for _, dep := range b.Deps() {
			if _, ok := inDegree[dep]; !ok {
				return nil, fmt.Errorf("bundle: stage %q: bundle %q depends on %q, which is not in this stage",
					s.name, b.Name(), dep.Name())
			}
			inDegree[b]++
			dependents[dep] = append(dependents[dep], b)
		}
	}

	queue := make([]*Bundle, 0, len(s.bundles))
	for _, b := range s.bundles {
		if inDegree[b] == 0 {
			queue = append(queue, b)
		}
	}

	order := make([]*Bundle, 0, len(s.bundles))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, next := range dependents[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(s.bundles) {
		return nil, fmt.Errorf("bundle: stage %q: dependency cycle detected among bundles", s.name)
	}
	return order, nil
}
