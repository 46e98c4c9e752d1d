// Package teammaze implements a cooperative maze environment backed by
// GoMaze. Each agent navigates its own maze, built by a shared
// initialisation algorithm, and the episode ends once every agent has
// reached its goal cell. All agents receive the same reward on every
// step, so the team is solved only when its slowest member is.
package teammaze

import (
	"fmt"
	"sort"

	"github.com/samuelfneumann/gomaze"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/timestep"
	"github.com/samuelfneumann/gomarl/utils/floatutils"
)

const (
	// Rewards
	TimeStepReward float64 = -1.0
	TerminalReward float64 = 0.0

	// Negative positions let GoMaze choose start and goal cells
	defaultStartRow int = -1
	defaultStartCol int = -1
	defaultGoalRow  int = -1
	defaultGoalCol  int = -1
)

type teamMaze struct {
	agents []string
	mazes  []*gomaze.Maze
	cells  [][2]int
	done   []bool

	rows, cols int
	discount   float64
	ender      environment.Ender

	prevStep timestep.TimeStep
}

// New returns a new cooperative maze environment with numAgents agents
// in rows by cols mazes built by init, along with the first timestep
// of the first episode. Episodes are cut off after cutoff steps.
func New(numAgents, rows, cols, cutoff int, discount float64,
	init gomaze.Initer) (environment.Environment, timestep.TimeStep,
	error) {
	if numAgents < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: environment "+
			"requires at least one agent \n\thave(%v)", numAgents)
	}
	if rows < 2 || cols < 2 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: maze must "+
			"be at least 2x2 \n\thave(%vx%v)", rows, cols)
	}
	if cutoff < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: cutoff must "+
			"be positive \n\thave(%v)", cutoff)
	}
	if discount < 0.0 || discount > 1.0 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: discount "+
			"must be in [0, 1] \n\thave(%v)", discount)
	}
	if init == nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: no maze " +
			"initialisation algorithm given")
	}

	t := &teamMaze{
		agents:   make([]string, numAgents),
		mazes:    make([]*gomaze.Maze, numAgents),
		cells:    make([][2]int, numAgents),
		done:     make([]bool, numAgents),
		rows:     rows,
		cols:     cols,
		discount: discount,
		ender:    environment.NewStepLimit(cutoff),
	}
	for i := range t.agents {
		t.agents[i] = fmt.Sprintf("agent_%d", i)
	}
	sort.Strings(t.agents)

	for i := range t.mazes {
		maze, err := gomaze.NewMaze(rows, cols, defaultGoalRow,
			defaultGoalCol, defaultStartRow, defaultStartCol, init,
			false)
		if err != nil {
			return nil, timestep.TimeStep{}, fmt.Errorf("new: could "+
				"not create maze: %v", err)
		}

		state := maze.Reset()
		if len(state) < 2 {
			return nil, timestep.TimeStep{}, fmt.Errorf("new: maze "+
				"state does not hold a cell position \n\thave(%v)",
				len(state))
		}
		t.mazes[i] = maze
	}

	return t, t.Reset(), nil
}

// Agents returns the names of the agents in the environment
func (t *teamMaze) Agents() []string {
	agents := make([]string, len(t.agents))
	copy(agents, t.agents)
	return agents
}

// Reset resets every maze, returning the first timestep of the new
// episode
func (t *teamMaze) Reset() timestep.TimeStep {
	for i, maze := range t.mazes {
		state := maze.Reset()
		t.cells[i] = [2]int{int(state[0]), int(state[1])}
		t.done[i] = false
	}

	rewards := make(map[string]float64, len(t.agents))
	discounts := make(map[string]float64, len(t.agents))
	for _, agent := range t.agents {
		rewards[agent] = 0.0
		discounts[agent] = t.discount
	}

	step := timestep.New(timestep.First, rewards, discounts,
		t.observations(), 0)
	t.prevStep = step
	return step
}

// Step takes one environment step given an action for each agent.
// Agents already at their goal ignore their action and stay put.
func (t *teamMaze) Step(actions map[string]*mat.VecDense) (
	timestep.TimeStep, bool, error) {
	if t.prevStep.Last() {
		return timestep.TimeStep{}, true, fmt.Errorf("step: episode " +
			"has ended, call Reset")
	}

	for i, agent := range t.agents {
		action, ok := actions[agent]
		if !ok {
			return timestep.TimeStep{}, true, fmt.Errorf("step: no "+
				"action for agent %v", agent)
		}
		if action.Len() != 1 {
			return timestep.TimeStep{}, true, fmt.Errorf("step: "+
				"illegal action dimensions for agent %v \n\twant(%v) "+
				"\n\thave(%v)", agent, 1, action.Len())
		}

		a := int(action.AtVec(0))
		if a < 0 || a >= gomaze.Actions {
			return timestep.TimeStep{}, true, fmt.Errorf("step: "+
				"illegal action for agent %v \n\thave(%v)", agent, a)
		}

		if t.done[i] {
			continue
		}

		state, _, _, err := t.mazes[i].Step(a)
		if err != nil {
			return timestep.TimeStep{}, true, fmt.Errorf("step: %v",
				err)
		}
		t.cells[i] = [2]int{int(state[0]), int(state[1])}
		if t.mazes[i].AtGoal() {
			t.done[i] = true
		}
	}

	solved := true
	for _, done := range t.done {
		solved = solved && done
	}

	reward := TimeStepReward
	if solved {
		reward = TerminalReward
	}
	rewards := make(map[string]float64, len(t.agents))
	discounts := make(map[string]float64, len(t.agents))
	for _, agent := range t.agents {
		rewards[agent] = reward
		if solved {
			discounts[agent] = 0.0
		} else {
			discounts[agent] = t.discount
		}
	}

	step := timestep.New(timestep.Mid, rewards, discounts,
		t.observations(), t.prevStep.Number+1)

	last := solved
	if solved {
		step.SetType(timestep.Last)
	} else {
		last = t.ender.End(&step)
	}

	t.prevStep = step
	return step, last, nil
}

// observations constructs the per-agent observation vectors: the
// agent's own cell one-hot encoded, followed by each teammate's cell
// one-hot encoded in agent order.
func (t *teamMaze) observations() map[string]*mat.VecDense {
	cells := t.rows * t.cols
	dims := len(t.agents) * cells

	observations := make(map[string]*mat.VecDense, len(t.agents))
	for i, agent := range t.agents {
		obs := make([]float64, dims)
		obs[t.cellIndex(i)] = 1.0

		offset := cells
		for j := range t.agents {
			if j == i {
				continue
			}
			obs[offset+t.cellIndex(j)] = 1.0
			offset += cells
		}
		observations[agent] = mat.NewVecDense(dims, obs)
	}
	return observations
}

// cellIndex returns the flat index of agent i's cell
func (t *teamMaze) cellIndex(i int) int {
	return t.cells[i][0]*t.cols + t.cells[i][1]
}

// ObservationSpecs returns the per-agent observation specifications
func (t *teamMaze) ObservationSpecs() map[string]environment.Spec {
	dims := len(t.agents) * t.rows * t.cols
	lower := mat.NewVecDense(dims, nil)
	upper := mat.NewVecDense(dims, floatutils.Ones(dims))

	specs := make(map[string]environment.Spec, len(t.agents))
	for _, agent := range t.agents {
		specs[agent] = environment.NewSpec(mat.NewVecDense(dims, nil),
			environment.Observation, lower, upper,
			environment.Discrete)
	}
	return specs
}

// ActionSpecs returns the per-agent action specifications
func (t *teamMaze) ActionSpecs() map[string]environment.Spec {
	lower := mat.NewVecDense(1, nil)
	upper := mat.NewVecDense(1,
		[]float64{float64(gomaze.Actions - 1)})

	specs := make(map[string]environment.Spec, len(t.agents))
	for _, agent := range t.agents {
		specs[agent] = environment.NewSpec(mat.NewVecDense(1, nil),
			environment.Action, lower, upper, environment.Discrete)
	}
	return specs
}

// DiscountSpec returns the discount specification of the environment
func (t *teamMaze) DiscountSpec() environment.Spec {
	return environment.NewContinuousSpec(1, environment.Discount, 0.0,
		t.discount)
}
