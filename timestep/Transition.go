package timestep

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Transition packages together the data of a single multi-agent
// environmental transition. Each map is keyed by agent ID, and all
// maps share the same key set. Rewards and Discounts are those
// accumulated between State and NextState; for an n-step transition
// the reward is the discounted n-step return and the discount is the
// product of the intermediate discounts.
type Transition struct {
	State      map[string]*mat.VecDense
	Action     map[string]*mat.VecDense
	Reward     map[string]float64
	Discount   map[string]float64
	NextState  map[string]*mat.VecDense
	NextAction map[string]*mat.VecDense

	// Global environment states for state-based critics. Nil when the
	// environment does not report global state.
	EnvState     *mat.VecDense
	NextEnvState *mat.VecDense
}

// NewTransition packages two sequential TimeSteps and the actions
// taken at each into a Transition
func NewTransition(step TimeStep, action map[string]*mat.VecDense,
	nextStep TimeStep, nextAction map[string]*mat.VecDense) Transition {
	return Transition{
		State:        step.Observations,
		Action:       action,
		Reward:       nextStep.Rewards,
		Discount:     nextStep.Discounts,
		NextState:    nextStep.Observations,
		NextAction:   nextAction,
		EnvState:     step.State,
		NextEnvState: nextStep.State,
	}
}

// Agents returns the sorted agent IDs present in the Transition
func (t Transition) Agents() []string {
	agents := make([]string, 0, len(t.State))
	for agent := range t.State {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}
