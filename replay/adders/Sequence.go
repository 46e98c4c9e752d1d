package adders

import (
	"fmt"

	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/timestep"
	"gonum.org/v1/gonum/mat"
)

// SequenceLayout returns the replay table layout of the items a
// sequence adder built with dims produces: per agent, seqLen
// consecutive observations, actions, rewards, and discounts laid out
// time-major, plus a shared padding mask.
func SequenceLayout(dims Dims, seqLen int) replay.Layout {
	layout := make(replay.Layout, 0, 4*len(dims.Agents)+1)
	for _, agent := range dims.Agents {
		layout = append(layout,
			replay.Block{Name: replay.ObsKey(agent), Size: seqLen * dims.ObsDims[agent]},
			replay.Block{Name: replay.ActionKey(agent), Size: seqLen * dims.ActionDims[agent]},
			replay.Block{Name: replay.RewardKey(agent), Size: seqLen},
			replay.Block{Name: replay.DiscountKey(agent), Size: seqLen},
		)
	}
	layout = append(layout, replay.Block{Name: replay.MaskKey,
		Size: seqLen})
	return layout
}

// sequence is an Adder which writes fixed-length sequences of
// consecutive steps, starting a new sequence every period steps. A
// sequence holds, per timestep, the observation its action was
// selected from, the action, and the reward and discount the action
// produced. Sequences never span episode boundaries: when an episode
// ends partway through a sequence, the tail is zero-padded and the
// item's mask marks the padded steps with 0.
type sequence struct {
	dims   Dims
	seqLen int
	period int
	writer replay.Writer

	records   []record
	nextStart int
	lastObs   map[string]*mat.VecDense
	active    bool
}

// NewSequence returns an Adder which writes sequence items of seqLen
// steps to writer, starting a sequence every period steps. The
// environment's global state is not stored in sequence items.
func NewSequence(dims Dims, seqLen, period int,
	writer replay.Writer) (Adder, error) {
	// Sequence items never carry the global state
	dims.StateDim = 0

	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("newsequence: %v", err)
	}
	if seqLen < 1 {
		return nil, fmt.Errorf("newsequence: sequence length must be "+
			"positive \n\thave(%v)", seqLen)
	}
	if period < 1 {
		return nil, fmt.Errorf("newsequence: period must be positive "+
			"\n\thave(%v)", period)
	}
	if writer == nil {
		return nil, fmt.Errorf("newsequence: writer cannot be nil")
	}

	return &sequence{
		dims:   dims,
		seqLen: seqLen,
		period: period,
		writer: writer,
	}, nil
}

// ObserveFirst starts a new episode.
func (a *sequence) ObserveFirst(ts timestep.TimeStep) {
	a.records = a.records[:0]
	a.nextStart = 0
	a.lastObs = ts.Observations
	a.active = true
}

// Observe records the actions selected from the previously observed
// timestep and the timestep they produced, writing any sequences that
// are now complete. A Last timestep flushes the remaining partial
// sequences with zero padding.
func (a *sequence) Observe(actions map[string]*mat.VecDense,
	ts timestep.TimeStep) error {
	if !a.active {
		return fmt.Errorf("observe: no active episode")
	}

	rec, err := newRecord(a.dims, a.lastObs, nil, actions, ts)
	if err != nil {
		return fmt.Errorf("observe: %v", err)
	}
	a.records = append(a.records, rec)
	a.lastObs = ts.Observations

	for len(a.records) >= a.nextStart+a.seqLen {
		err := a.write(a.records[a.nextStart : a.nextStart+a.seqLen])
		if err != nil {
			return fmt.Errorf("observe: %v", err)
		}
		a.nextStart += a.period
	}

	if ts.Last() {
		for a.nextStart < len(a.records) {
			end := a.nextStart + a.seqLen
			if end > len(a.records) {
				end = len(a.records)
			}
			if err := a.write(a.records[a.nextStart:end]); err != nil {
				return fmt.Errorf("observe: %v", err)
			}
			a.nextStart += a.period
		}
		a.active = false
	}

	return nil
}

// write builds a sequence item from up to seqLen records, zero-padding
// the tail, and writes it.
func (a *sequence) write(records []record) error {
	item := make(replay.Item, 4*len(a.dims.Agents)+1)

	for _, agent := range a.dims.Agents {
		obsDim := a.dims.ObsDims[agent]
		actionDim := a.dims.ActionDims[agent]

		obs := make([]float64, a.seqLen*obsDim)
		action := make([]float64, a.seqLen*actionDim)
		reward := make([]float64, a.seqLen)
		discount := make([]float64, a.seqLen)

		for t, rec := range records {
			copy(obs[t*obsDim:(t+1)*obsDim], rec.obs[agent])
			copy(action[t*actionDim:(t+1)*actionDim], rec.action[agent])
			reward[t] = rec.reward[agent]
			discount[t] = rec.discount[agent]
		}

		item[replay.ObsKey(agent)] = obs
		item[replay.ActionKey(agent)] = action
		item[replay.RewardKey(agent)] = reward
		item[replay.DiscountKey(agent)] = discount
	}

	mask := make([]float64, a.seqLen)
	for t := range records {
		mask[t] = 1
	}
	item[replay.MaskKey] = mask

	return a.writer.Add(item)
}
