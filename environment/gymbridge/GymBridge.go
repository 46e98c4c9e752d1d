// Package gymbridge exposes a single OpenAI Gym environment as a
// one-agent environment through the GoGym bindings. The wrapped
// environment's observations, rewards, and termination signals are
// reported under the single agent "agent_0".
//
// All environments in the Classic Control and MuJoCo suites can be
// used, with their default tasks and episode cutoffs.
package gymbridge

import (
	"fmt"

	"github.com/samuelfneumann/gogym"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/timestep"
)

// AgentName is the name under which the wrapped environment's single
// agent is reported.
const AgentName string = "agent_0"

type gymBridge struct {
	env      gogym.Environment
	agents   []string
	discount float64

	prevStep timestep.TimeStep
}

// New returns a new environment wrapping the Gym environment with the
// given name, which must be a legal name from the OpenAI Gym suite,
// along with the first timestep of the first episode.
func New(name string, discount float64, seed uint64) (
	environment.Environment, timestep.TimeStep, error) {
	if discount < 0.0 || discount > 1.0 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: discount "+
			"must be in [0, 1] \n\thave(%v)", discount)
	}

	gymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: could not "+
			"create environment: %v", err)
	}
	gymEnv.Seed(int(seed))

	obs, err := gymEnv.Reset()
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: could not "+
			"reset environment: %v", err)
	}

	g := &gymBridge{
		env:      gymEnv,
		agents:   []string{AgentName},
		discount: discount,
	}
	step := g.timeStep(timestep.First, 0.0, g.discount, obs, 0)
	g.prevStep = step

	return g, step, nil
}

// timeStep packages a Gym observation into a one-agent timestep
func (g *gymBridge) timeStep(t timestep.StepType, reward,
	discount float64, obs *mat.VecDense, number int) timestep.TimeStep {
	return timestep.New(t,
		map[string]float64{AgentName: reward},
		map[string]float64{AgentName: discount},
		map[string]*mat.VecDense{AgentName: obs},
		number,
	)
}

// Agents returns the names of the agents in the environment
func (g *gymBridge) Agents() []string {
	agents := make([]string, len(g.agents))
	copy(agents, g.agents)
	return agents
}

// Reset resets the wrapped environment, returning the first timestep
// of the new episode. Reset panics if the Gym process cannot reset
// the environment.
func (g *gymBridge) Reset() timestep.TimeStep {
	obs, err := g.env.Reset()
	if err != nil {
		panic(fmt.Sprintf("reset: could not reset environment: %v",
			err))
	}

	step := g.timeStep(timestep.First, 0.0, g.discount, obs, 0)
	g.prevStep = step
	return step
}

// Step takes one environment step given the single agent's action
func (g *gymBridge) Step(actions map[string]*mat.VecDense) (
	timestep.TimeStep, bool, error) {
	if g.prevStep.Last() {
		return timestep.TimeStep{}, true, fmt.Errorf("step: episode " +
			"has ended, call Reset")
	}

	action, ok := actions[AgentName]
	if !ok {
		return timestep.TimeStep{}, true, fmt.Errorf("step: no "+
			"action for agent %v", AgentName)
	}

	obs, reward, done, err := g.env.Step(action)
	if err != nil {
		return timestep.TimeStep{}, true, fmt.Errorf("step: could "+
			"not step environment: %v", err)
	}

	discount := g.discount
	stepType := timestep.Mid
	if done {
		discount = 0.0
		stepType = timestep.Last
	}

	step := g.timeStep(stepType, reward, discount, obs,
		g.prevStep.Number+1)
	g.prevStep = step
	return step, done, nil
}

// spec converts a GoGym space into an environment specification of
// the given type. Only box and discrete spaces are supported.
func spec(space gogym.Space, t environment.SpecType) environment.Spec {
	var cardinality environment.Cardinality
	switch space.(type) {
	case *gogym.BoxSpace:
		cardinality = environment.Continuous
	case *gogym.DiscreteSpace:
		cardinality = environment.Discrete
	default:
		panic(fmt.Sprintf("spec: unsupported space type %T, only "+
			"box and discrete spaces are supported", space))
	}

	low := space.Low()[0]
	high := space.High()[0]
	shape := mat.NewVecDense(low.Len(), nil)

	return environment.NewSpec(shape, t, low, high, cardinality)
}

// ObservationSpecs returns the per-agent observation specifications
func (g *gymBridge) ObservationSpecs() map[string]environment.Spec {
	return map[string]environment.Spec{
		AgentName: spec(g.env.ObservationSpace(),
			environment.Observation),
	}
}

// ActionSpecs returns the per-agent action specifications
func (g *gymBridge) ActionSpecs() map[string]environment.Spec {
	return map[string]environment.Spec{
		AgentName: spec(g.env.ActionSpace(), environment.Action),
	}
}

// DiscountSpec returns the discount specification of the environment
func (g *gymBridge) DiscountSpec() environment.Spec {
	return environment.NewContinuousSpec(1, environment.Discount, 0.0,
		g.discount)
}

// Close releases the wrapped Gym environment's resources
func (g *gymBridge) Close() error {
	g.env.Close()
	return nil
}
