// Package system defines the roles making up a multi-agent
// actor-learner system. Executors select actions in environments and
// feed experience to replay, trainers consume replay batches to update
// networks, and a System wires both into a launchable program. The
// split mirrors a single-agent Agent's Policy and Learner halves, with
// replay and variable exchange made explicit so the roles can run on
// separate nodes.
package system

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gomarl/launcher"
	"github.com/samuelfneumann/gomarl/timestep"
)

// Executor selects actions for every agent in an environment and
// records the experience the environment returns. Executors hold
// behaviour copies of the policy networks and refresh them from the
// trainer through Update.
type Executor interface {
	// ObserveFirst records the first timestep of an episode
	ObserveFirst(timestep.TimeStep) error

	// Observe records that actions led to the next timestep
	Observe(actions map[string]*mat.VecDense,
		next timestep.TimeStep) error

	// SelectActions returns an action for each agent given the last
	// observed timestep
	SelectActions() (map[string]*mat.VecDense, error)

	// Update pulls the newest policy weights if they are due
	Update() error
}

// Trainer updates networks from replayed experience. Step performs a
// single update.
type Trainer interface {
	Step() error
}

// System builds a launchable program of replay, trainer, and executor
// nodes.
type System interface {
	Build() (*launcher.Program, error)
}
