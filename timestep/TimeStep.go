// Package timestep implements timesteps of the agent-environment
// interaction for systems of multiple agents acting in parallel
package timestep

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either a
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in a multi-agent
// environment. Rewards, Discounts, and Observations are keyed by agent
// ID and always share the same key set. State holds the global
// environment state when the environment reports one and is nil
// otherwise.
type TimeStep struct {
	stepType     StepType
	Rewards      map[string]float64
	Discounts    map[string]float64
	Observations map[string]*mat.VecDense
	State        *mat.VecDense
	Number       int
}

// New returns a new TimeStep with no global state information
func New(t StepType, r, d map[string]float64, o map[string]*mat.VecDense,
	n int) TimeStep {
	return TimeStep{t, r, d, o, nil, n}
}

// NewWithState returns a new TimeStep carrying the global environment
// state in addition to the per-agent observations
func NewWithState(t StepType, r, d map[string]float64,
	o map[string]*mat.VecDense, state *mat.VecDense, n int) TimeStep {
	return TimeStep{t, r, d, o, state, n}
}

// Type returns the StepType of the TimeStep
func (t TimeStep) Type() StepType {
	return t.stepType
}

// SetType sets the StepType of the TimeStep. Enders use this to cut
// episodes short by rewriting a Mid step to a Last step.
func (t *TimeStep) SetType(s StepType) {
	t.stepType = s
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// Agents returns the sorted agent IDs present in the TimeStep
func (t TimeStep) Agents() []string {
	agents := make([]string, 0, len(t.Observations))
	for agent := range t.Observations {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}

// MeanReward returns the reward averaged over all agents on the
// TimeStep
func (t TimeStep) MeanReward() float64 {
	if len(t.Rewards) == 0 {
		return 0.0
	}
	total := 0.0
	for _, r := range t.Rewards {
		total += r
	}
	return total / float64(len(t.Rewards))
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Agents: %v  |  Mean Reward:  %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, len(t.Observations), t.MeanReward(),
		t.Number)
}
