package environment

import (
	"github.com/samuelfneumann/gomarl/timestep"
)

// FunctionEnder ends an episode whenever a predicate over the current
// timestep returns true. The predicate may inspect any agent's
// observation or reward, or the global environment state.
type FunctionEnder struct {
	end func(timestep.TimeStep) bool
}

// NewFunctionEnder returns a new FunctionEnder which ends episodes
// when f returns true
func NewFunctionEnder(f func(timestep.TimeStep) bool) Ender {
	return &FunctionEnder{f}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode termination. If the episode
// should be ended, End() will modify the timestep so that its StepType
// field is timestep.Last.
func (f *FunctionEnder) End(t *timestep.TimeStep) bool {
	if f.end(*t) {
		t.SetType(timestep.Last)
		return true
	}
	return false
}
