package environment

import (
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/gomarl/timestep"
)

// IntervalLimit implements the Ender interface to end episodes
// whenever a feature of the global environment state leaves some
// interval. Environments without a global state never trigger this
// ender.
type IntervalLimit struct {
	intervals []r1.Interval
	indices   []int
}

// NewIntervalLimit creates and returns a new interval limit over the
// state features at obsIndices
func NewIntervalLimit(limits []r1.Interval, obsIndices []int) Ender {
	if len(limits) != len(obsIndices) {
		panic("limits should have same length as state indices")
	}

	return &IntervalLimit{limits, obsIndices}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode termination. If the episode
// should be ended End() will modify the timestep so that its StepType
// field is timestep.Last.
func (i *IntervalLimit) End(t *timestep.TimeStep) bool {
	if t.State == nil {
		return false
	}

	for index := range i.indices {
		featureIndex := i.indices[index]
		interval := i.intervals[index]

		if t.State.AtVec(featureIndex) > interval.Max ||
			t.State.AtVec(featureIndex) < interval.Min {
			t.SetType(timestep.Last)
			return true
		}
	}
	return false
}
