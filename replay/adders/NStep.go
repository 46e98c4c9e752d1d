package adders

import (
	"fmt"

	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/timestep"
	"gonum.org/v1/gonum/mat"
)

// NStepLayout returns the replay table layout of the items an n-step
// adder built with dims produces: per agent, the observation and
// action the item starts from, the accumulated n-step reward and
// discount, and the observation n steps later; plus the environment's
// global state at both ends when dims reports one.
func NStepLayout(dims Dims) replay.Layout {
	layout := make(replay.Layout, 0, 5*len(dims.Agents)+2)
	for _, agent := range dims.Agents {
		layout = append(layout,
			replay.Block{Name: replay.ObsKey(agent), Size: dims.ObsDims[agent]},
			replay.Block{Name: replay.ActionKey(agent), Size: dims.ActionDims[agent]},
			replay.Block{Name: replay.RewardKey(agent), Size: 1},
			replay.Block{Name: replay.DiscountKey(agent), Size: 1},
			replay.Block{Name: replay.NextObsKey(agent), Size: dims.ObsDims[agent]},
		)
	}
	if dims.StateDim > 0 {
		layout = append(layout,
			replay.Block{Name: replay.StateKey, Size: dims.StateDim},
			replay.Block{Name: replay.NextStateKey, Size: dims.StateDim},
		)
	}
	return layout
}

// nStep is an Adder which writes one item per source timestep, with
// rewards accumulated over the following n steps:
//
//	R_t = Σ_{i=1..n} r_{t+i} Π_{j=1..i-1} d_{t+j}
//	D_t = Π_{j=1..n} d_{t+j}
//
// and the item's next observation taken n steps after its first. The
// per-step discounts d are the environment's, so a terminal timestep
// zeroes the item's accumulated discount. Near the end of an episode,
// items accumulate over however many steps remain.
type nStep struct {
	dims   Dims
	n      int
	writer replay.Writer

	pending   []record
	lastObs   map[string]*mat.VecDense
	lastState *mat.VecDense
	active    bool
}

// NewNStep returns an Adder which writes n-step transition items to
// writer.
func NewNStep(dims Dims, n int, writer replay.Writer) (Adder, error) {
	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("newnstep: %v", err)
	}
	if n < 1 {
		return nil, fmt.Errorf("newnstep: n must be positive "+
			"\n\thave(%v)", n)
	}
	if writer == nil {
		return nil, fmt.Errorf("newnstep: writer cannot be nil")
	}

	return &nStep{
		dims:   dims,
		n:      n,
		writer: writer,
	}, nil
}

// ObserveFirst starts a new episode.
func (a *nStep) ObserveFirst(ts timestep.TimeStep) {
	a.pending = a.pending[:0]
	a.lastObs = ts.Observations
	a.lastState = ts.State
	a.active = true
}

// Observe records the actions selected from the previously observed
// timestep and the timestep they produced, writing any items that are
// now complete.
func (a *nStep) Observe(actions map[string]*mat.VecDense,
	ts timestep.TimeStep) error {
	if !a.active {
		return fmt.Errorf("observe: no active episode")
	}

	rec, err := newRecord(a.dims, a.lastObs, a.lastState, actions, ts)
	if err != nil {
		return fmt.Errorf("observe: %v", err)
	}
	a.pending = append(a.pending, rec)
	a.lastObs = ts.Observations
	a.lastState = ts.State

	if len(a.pending) >= a.n {
		if err := a.write(a.pending[0], a.pending[1:], ts); err != nil {
			return fmt.Errorf("observe: %v", err)
		}
		a.pending = a.pending[1:]
	}

	if ts.Last() {
		for len(a.pending) > 0 {
			err := a.write(a.pending[0], a.pending[1:], ts)
			if err != nil {
				return fmt.Errorf("observe: %v", err)
			}
			a.pending = a.pending[1:]
		}
		a.active = false
	}

	return nil
}

// write builds the item starting at first, accumulating the rewards
// and discounts of the records following it, and writes it. The
// timestep ts supplies the item's next observation.
func (a *nStep) write(first record, rest []record,
	ts timestep.TimeStep) error {
	item := make(replay.Item, 5*len(a.dims.Agents)+2)

	for _, agent := range a.dims.Agents {
		reward := first.reward[agent]
		discount := first.discount[agent]
		for _, rec := range rest {
			reward += discount * rec.reward[agent]
			discount *= rec.discount[agent]
		}

		item[replay.ObsKey(agent)] = first.obs[agent]
		item[replay.ActionKey(agent)] = first.action[agent]
		item[replay.RewardKey(agent)] = []float64{reward}
		item[replay.DiscountKey(agent)] = []float64{discount}
		item[replay.NextObsKey(agent)] = copyVec(ts.Observations[agent],
			a.dims.ObsDims[agent])
	}

	if a.dims.StateDim > 0 {
		if ts.State == nil {
			return fmt.Errorf("missing environment state")
		}
		item[replay.StateKey] = first.state
		item[replay.NextStateKey] = copyVec(ts.State, a.dims.StateDim)
	}

	return a.writer.Add(item)
}
