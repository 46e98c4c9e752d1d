// Package environment outlines the interfaces and structs needed to implement
// concrete multi-agent environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gomarl/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Ender determines when environments end episodes. Enders modify the
// timesteps of an environment so that the timestep's StepType field is
// timestep.Last whenever the episode has ended.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Environment implements a simulated environment shared by a fixed set
// of agents. On each step, every agent listed by Agents() submits an
// action, and the environment returns a single timestep holding each
// agent's next observation, reward, and discount.
type Environment interface {
	// Reset resets the environment between episodes, returning the
	// first timestep of the new episode
	Reset() timestep.TimeStep

	// Step takes one environment step given an action for each agent.
	// The second return value indicates whether the episode has ended.
	Step(actions map[string]*mat.VecDense) (timestep.TimeStep, bool, error)

	// Agents returns the names of the agents acting in the
	// environment, sorted lexicographically
	Agents() []string

	// ObservationSpecs returns the per-agent observation specifications
	ObservationSpecs() map[string]Spec

	// ActionSpecs returns the per-agent action specifications
	ActionSpecs() map[string]Spec

	// DiscountSpec returns the discount specification, which is shared
	// by all agents
	DiscountSpec() Spec
}

// StateReporter is implemented by environments that expose a global
// environment state in addition to per-agent observations. Such states
// are placed in the State field of each timestep and may be used by
// centralised training procedures.
type StateReporter interface {
	StateSpec() Spec
}
