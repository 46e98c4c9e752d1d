package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testStep(t StepType, n int) TimeStep {
	rewards := map[string]float64{"agent_0": 1.0, "agent_1": 1.0}
	discounts := map[string]float64{"agent_0": 0.99, "agent_1": 0.99}
	obs := map[string]*mat.VecDense{
		"agent_0": mat.NewVecDense(2, []float64{0.0, 1.0}),
		"agent_1": mat.NewVecDense(2, []float64{1.0, 0.0}),
	}
	return New(t, rewards, discounts, obs, n)
}

func TestStepTypePredicates(t *testing.T) {
	first := testStep(First, 0)
	if !first.First() || first.Mid() || first.Last() {
		t.Error("first step misreports its type")
	}

	mid := testStep(Mid, 1)
	if mid.First() || !mid.Mid() || mid.Last() {
		t.Error("mid step misreports its type")
	}

	last := testStep(Last, 2)
	if last.First() || last.Mid() || !last.Last() {
		t.Error("last step misreports its type")
	}
}

func TestSetType(t *testing.T) {
	step := testStep(Mid, 5)
	step.SetType(Last)
	if !step.Last() {
		t.Error("SetType did not rewrite the step type")
	}
}

func TestAgentsSorted(t *testing.T) {
	step := testStep(First, 0)
	agents := step.Agents()

	if len(agents) != 2 {
		t.Fatalf("wrong number of agents \n\twant(%v)\n\thave(%v)", 2,
			len(agents))
	}
	if agents[0] != "agent_0" || agents[1] != "agent_1" {
		t.Errorf("agents not sorted: %v", agents)
	}
}

func TestMeanReward(t *testing.T) {
	step := testStep(Mid, 1)
	step.Rewards["agent_1"] = 3.0

	if mean := step.MeanReward(); mean != 2.0 {
		t.Errorf("wrong mean reward \n\twant(%v)\n\thave(%v)", 2.0, mean)
	}
}

func TestNewTransition(t *testing.T) {
	step := testStep(First, 0)
	next := testStep(Mid, 1)

	actions := map[string]*mat.VecDense{
		"agent_0": mat.NewVecDense(2, []float64{0.5, -0.5}),
		"agent_1": mat.NewVecDense(2, []float64{-0.5, 0.5}),
	}

	transition := NewTransition(step, actions, next, nil)

	for _, agent := range transition.Agents() {
		if transition.Reward[agent] != next.Rewards[agent] {
			t.Errorf("agent %v: transition reward does not match the "+
				"reward of the next step", agent)
		}
		if transition.State[agent] != step.Observations[agent] {
			t.Errorf("agent %v: transition state does not match the "+
				"observation of the first step", agent)
		}
	}
	if transition.EnvState != nil {
		t.Error("transition should have no global state when the " +
			"environment reports none")
	}
}
