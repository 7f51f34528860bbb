package engine

import (
	"fmt"

	"github.com/sbl8/stencilcore/dims"
)

// StepError reports a failure evaluating one bundle within one stage
// during RunStep: which stage, which bundle, the bounding box it was
// evaluating, and the underlying cause.
type StepError struct {
	Stage  string
	Bundle string
	Range  dims.BoundingBox
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("engine: stage %q bundle %q range %s: %v", e.Stage, e.Bundle, rangeStr(e.Range), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func rangeStr(bb dims.BoundingBox) string {
	out := ""
	for i := 0; i < bb.NumDims; i++ {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("[%d..%d)", bb.Begin.Get(i), bb.End.Get(i))
	}
	return out
}
