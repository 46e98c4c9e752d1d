// Package adders converts streams of environment timesteps into
// replay items.
package adders

import (
	"fmt"

	"github.com/samuelfneumann/gomarl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Adder accumulates the timesteps of an episode and writes items of
// experience to a replay.Writer. ObserveFirst starts a new episode
// with the episode's first timestep; Observe records the actions
// taken and the timestep they produced. Items never span episode
// boundaries, and a Last timestep flushes any experience the adder is
// still holding.
type Adder interface {
	ObserveFirst(ts timestep.TimeStep)
	Observe(actions map[string]*mat.VecDense,
		ts timestep.TimeStep) error
}

// Dims holds the per-agent observation and action dimensions of the
// items an adder produces, plus the dimension of the environment's
// global state (0 when the environment reports none).
type Dims struct {
	Agents     []string
	ObsDims    map[string]int
	ActionDims map[string]int
	StateDim   int
}

// Validate returns an error if any agent is missing a dimension.
func (d Dims) Validate() error {
	if len(d.Agents) == 0 {
		return fmt.Errorf("dims: must have at least one agent")
	}
	for _, agent := range d.Agents {
		if d.ObsDims[agent] < 1 {
			return fmt.Errorf("dims: agent %v has no observation "+
				"dimension", agent)
		}
		if d.ActionDims[agent] < 1 {
			return fmt.Errorf("dims: agent %v has no action dimension",
				agent)
		}
	}
	return nil
}

// record holds the experience gathered by one environment step: the
// observations the actions were selected from, the actions, and the
// rewards and discounts the following timestep carried.
type record struct {
	obs       map[string][]float64
	action    map[string][]float64
	reward    map[string]float64
	discount  map[string]float64
	state     []float64
	timestepN int
}

// newRecord deep-copies one step of experience. The prevObs and
// prevState parameters are the observations and state that the
// actions were selected from; ts is the timestep the actions produced.
func newRecord(dims Dims, prevObs map[string]*mat.VecDense,
	prevState *mat.VecDense, actions map[string]*mat.VecDense,
	ts timestep.TimeStep) (record, error) {
	rec := record{
		obs:       make(map[string][]float64, len(dims.Agents)),
		action:    make(map[string][]float64, len(dims.Agents)),
		reward:    make(map[string]float64, len(dims.Agents)),
		discount:  make(map[string]float64, len(dims.Agents)),
		timestepN: ts.Number,
	}

	for _, agent := range dims.Agents {
		obs, ok := prevObs[agent]
		if !ok {
			return record{}, fmt.Errorf("missing observation for "+
				"agent %v", agent)
		}
		if obs.Len() != dims.ObsDims[agent] {
			return record{}, fmt.Errorf("wrong observation size for "+
				"agent %v \n\twant(%v)\n\thave(%v)", agent,
				dims.ObsDims[agent], obs.Len())
		}
		action, ok := actions[agent]
		if !ok {
			return record{}, fmt.Errorf("missing action for agent %v",
				agent)
		}
		if action.Len() != dims.ActionDims[agent] {
			return record{}, fmt.Errorf("wrong action size for "+
				"agent %v \n\twant(%v)\n\thave(%v)", agent,
				dims.ActionDims[agent], action.Len())
		}
		reward, ok := ts.Rewards[agent]
		if !ok {
			return record{}, fmt.Errorf("missing reward for agent %v",
				agent)
		}
		discount, ok := ts.Discounts[agent]
		if !ok {
			return record{}, fmt.Errorf("missing discount for agent %v",
				agent)
		}

		rec.obs[agent] = copyVec(obs, dims.ObsDims[agent])
		rec.action[agent] = copyVec(action, dims.ActionDims[agent])
		rec.reward[agent] = reward
		rec.discount[agent] = discount
	}

	if dims.StateDim > 0 {
		if prevState == nil {
			return record{}, fmt.Errorf("missing environment state")
		}
		rec.state = copyVec(prevState, dims.StateDim)
	}

	return rec, nil
}

// copyVec copies the first n values of v into a fresh slice.
func copyVec(v *mat.VecDense, n int) []float64 {
	out := make([]float64, n)
	copy(out, v.RawVector().Data[:n])
	return out
}

// copyObs deep-copies a map of per-agent observations.
func copyObs(dims Dims,
	obs map[string]*mat.VecDense) map[string][]float64 {
	out := make(map[string][]float64, len(dims.Agents))
	for _, agent := range dims.Agents {
		if v, ok := obs[agent]; ok {
			out[agent] = copyVec(v, dims.ObsDims[agent])
		}
	}
	return out
}
