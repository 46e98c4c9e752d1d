// Package architecture decides how much of the joint observation and
// action information each agent's critic sees. Decentralised critics
// condition on their own agent's experience only, centralised critics
// on every agent's observations and actions, and state-based critics
// on the environment's global state and every agent's actions. The
// package computes the resulting network input sizes and assembles
// critic input batches from replayed experience.
package architecture

import (
	"fmt"
	"strings"

	env "github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/adders"
)

// Type determines the information a critic conditions on
type Type string

const (
	// Decentralised critics see their own agent's observation and
	// action
	Decentralised Type = "decentralised"

	// CentralisedQValueCritic critics see every agent's observations
	// and actions
	CentralisedQValueCritic Type = "centralised"

	// StateBasedQValueCritic critics see the environment's global
	// state and every agent's actions
	StateBasedQValueCritic Type = "state-based"
)

// Validate returns an error if t is not a known architecture type
func (t Type) Validate() error {
	switch t {
	case Decentralised, CentralisedQValueCritic, StateBasedQValueCritic:
		return nil
	}
	return fmt.Errorf("no such architecture type %v", t)
}

// EnvDims returns the experience dimensions of e, including the global
// state dimension when e reports one.
func EnvDims(e env.Environment) adders.Dims {
	agents := e.Agents()
	obsSpecs := e.ObservationSpecs()
	actionSpecs := e.ActionSpecs()

	dims := adders.Dims{
		Agents:     agents,
		ObsDims:    make(map[string]int, len(agents)),
		ActionDims: make(map[string]int, len(agents)),
	}
	for _, agent := range agents {
		dims.ObsDims[agent] = obsSpecs[agent].Dims()
		dims.ActionDims[agent] = actionSpecs[agent].Dims()
	}
	if reporter, ok := e.(env.StateReporter); ok {
		dims.StateDim = reporter.StateSpec().Dims()
	}

	return dims
}

// ObsFeatures returns the width of the observation part of agent's
// critic input.
func ObsFeatures(t Type, dims adders.Dims, agent string) (int, error) {
	switch t {
	case Decentralised:
		return dims.ObsDims[agent], nil

	case CentralisedQValueCritic:
		features := 0
		for _, a := range dims.Agents {
			features += dims.ObsDims[a]
		}
		return features, nil

	case StateBasedQValueCritic:
		if dims.StateDim < 1 {
			return 0, fmt.Errorf("obsFeatures: state-based critics " +
				"require an environment with global state")
		}
		return dims.StateDim, nil
	}

	return 0, fmt.Errorf("obsFeatures: no such architecture type %v", t)
}

// ActionFeatures returns the width of the action part of agent's
// critic input: the agent's own action for decentralised critics and
// every agent's actions otherwise.
func ActionFeatures(t Type, dims adders.Dims, agent string) int {
	if t == Decentralised {
		return dims.ActionDims[agent]
	}

	features := 0
	for _, a := range dims.Agents {
		features += dims.ActionDims[a]
	}
	return features
}

// CriticFeatures returns the total width of agent's critic input
func CriticFeatures(t Type, dims adders.Dims, agent string) (int, error) {
	obs, err := ObsFeatures(t, dims, agent)
	if err != nil {
		return 0, err
	}
	return obs + ActionFeatures(t, dims, agent), nil
}

// NetworkKey returns the key under which agent's networks are stored.
// With shared weights, agents of the same type share one key: their
// agent-ID prefix before the final underscore.
func NetworkKey(agent string, shared bool) string {
	if !shared {
		return agent
	}
	if i := strings.LastIndex(agent, "_"); i > 0 {
		return agent[:i]
	}
	return agent
}

// NetworkKeys returns the distinct network keys of agents, in the
// order the keys first appear.
func NetworkKeys(agents []string, shared bool) []string {
	keys := make([]string, 0, len(agents))
	seen := make(map[string]bool, len(agents))
	for _, agent := range agents {
		key := NetworkKey(agent, shared)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// ValidateShared returns an error if shared weights are requested but
// agents sharing a network key differ in observation or action
// dimension.
func ValidateShared(dims adders.Dims, shared bool) error {
	if !shared {
		return nil
	}

	obs := make(map[string]int)
	actions := make(map[string]int)
	for _, agent := range dims.Agents {
		key := NetworkKey(agent, true)
		if prev, ok := obs[key]; ok && prev != dims.ObsDims[agent] {
			return fmt.Errorf("validateShared: agents with network "+
				"key %v differ in observation dimension", key)
		}
		if prev, ok := actions[key]; ok &&
			prev != dims.ActionDims[agent] {
			return fmt.Errorf("validateShared: agents with network "+
				"key %v differ in action dimension", key)
		}
		obs[key] = dims.ObsDims[agent]
		actions[key] = dims.ActionDims[agent]
	}
	return nil
}

// part is one column block of an assembled row-major batch
type part struct {
	data  []float64
	width int
}

// hstack concatenates column blocks row by row into one row-major
// batch of rows rows.
func hstack(rows int, parts ...part) []float64 {
	width := 0
	for _, p := range parts {
		width += p.width
	}

	out := make([]float64, rows*width)
	for r := 0; r < rows; r++ {
		offset := r * width
		for _, p := range parts {
			copy(out[offset:offset+p.width],
				p.data[r*p.width:(r+1)*p.width])
			offset += p.width
		}
	}
	return out
}

// batchPart pulls the named block out of a sampled batch
func batchPart(b replay.Batch, key string, width int) (part, error) {
	data, ok := b[key]
	if !ok {
		return part{}, fmt.Errorf("batch has no block %v", key)
	}
	return part{data: data, width: width}, nil
}

// CriticObs assembles the observation part of agent's critic input
// from a sampled batch. With next true the part is assembled from the
// batch's next observations and next state, for bootstrap targets.
func CriticObs(t Type, dims adders.Dims, agent string, b replay.Batch,
	rows int, next bool) ([]float64, error) {
	obsKey, stateKey := replay.ObsKey, replay.StateKey
	if next {
		obsKey, stateKey = replay.NextObsKey, replay.NextStateKey
	}

	switch t {
	case Decentralised:
		p, err := batchPart(b, obsKey(agent), dims.ObsDims[agent])
		if err != nil {
			return nil, fmt.Errorf("criticObs: %v", err)
		}
		return p.data, nil

	case CentralisedQValueCritic:
		parts := make([]part, len(dims.Agents))
		for i, a := range dims.Agents {
			p, err := batchPart(b, obsKey(a), dims.ObsDims[a])
			if err != nil {
				return nil, fmt.Errorf("criticObs: %v", err)
			}
			parts[i] = p
		}
		return hstack(rows, parts...), nil

	case StateBasedQValueCritic:
		p, err := batchPart(b, stateKey, dims.StateDim)
		if err != nil {
			return nil, fmt.Errorf("criticObs: %v", err)
		}
		return p.data, nil
	}

	return nil, fmt.Errorf("criticObs: no such architecture type %v", t)
}

// AssembleActions assembles the action part of agent's critic input
// from per-agent row-major action batches, such as replayed actions or
// target policy outputs.
func AssembleActions(t Type, dims adders.Dims, agent string,
	actions map[string][]float64, rows int) ([]float64, error) {
	if t == Decentralised {
		data, ok := actions[agent]
		if !ok {
			return nil, fmt.Errorf("assembleActions: no actions for "+
				"agent %v", agent)
		}
		return data, nil
	}

	parts := make([]part, len(dims.Agents))
	for i, a := range dims.Agents {
		data, ok := actions[a]
		if !ok {
			return nil, fmt.Errorf("assembleActions: no actions for "+
				"agent %v", a)
		}
		parts[i] = part{data: data, width: dims.ActionDims[a]}
	}
	return hstack(rows, parts...), nil
}

// BatchActions extracts each agent's replayed actions from a sampled
// batch.
func BatchActions(dims adders.Dims, b replay.Batch) (map[string][]float64,
	error) {
	actions := make(map[string][]float64, len(dims.Agents))
	for _, agent := range dims.Agents {
		data, ok := b[replay.ActionKey(agent)]
		if !ok {
			return nil, fmt.Errorf("batchActions: batch has no "+
				"actions for agent %v", agent)
		}
		actions[agent] = data
	}
	return actions, nil
}

// CriticInput assembles agent's full critic input, observation part
// followed by action part, from a sampled batch.
func CriticInput(t Type, dims adders.Dims, agent string, b replay.Batch,
	rows int) ([]float64, error) {
	obs, err := CriticObs(t, dims, agent, b, rows, false)
	if err != nil {
		return nil, err
	}
	batchActions, err := BatchActions(dims, b)
	if err != nil {
		return nil, err
	}
	actions, err := AssembleActions(t, dims, agent, batchActions, rows)
	if err != nil {
		return nil, err
	}

	obsFeatures, err := ObsFeatures(t, dims, agent)
	if err != nil {
		return nil, err
	}
	return hstack(rows,
		part{data: obs, width: obsFeatures},
		part{data: actions, width: ActionFeatures(t, dims, agent)},
	), nil
}

// TargetCriticInput assembles agent's critic input for bootstrap
// targets: the next observation part of a sampled batch followed by
// externally computed actions, such as target policy outputs on the
// next observations.
func TargetCriticInput(t Type, dims adders.Dims, agent string,
	b replay.Batch, rows int,
	actions map[string][]float64) ([]float64, error) {
	obs, err := CriticObs(t, dims, agent, b, rows, true)
	if err != nil {
		return nil, err
	}
	acts, err := AssembleActions(t, dims, agent, actions, rows)
	if err != nil {
		return nil, err
	}

	obsFeatures, err := ObsFeatures(t, dims, agent)
	if err != nil {
		return nil, err
	}
	return hstack(rows,
		part{data: obs, width: obsFeatures},
		part{data: acts, width: ActionFeatures(t, dims, agent)},
	), nil
}

// SplitActions assembles the replayed actions of the agents before and
// after agent in the joint action ordering, for policy losses that
// substitute agent's own action with its policy output. Decentralised
// critics have no neighbouring actions, so both parts have zero width.
func SplitActions(t Type, dims adders.Dims, agent string,
	b replay.Batch, rows int) (before, after []float64, beforeWidth,
	afterWidth int, err error) {
	if t == Decentralised {
		return nil, nil, 0, 0, nil
	}

	batchActions, err := BatchActions(dims, b)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	var beforeParts, afterParts []part
	seenAgent := false
	for _, a := range dims.Agents {
		if a == agent {
			seenAgent = true
			continue
		}

		p := part{data: batchActions[a], width: dims.ActionDims[a]}
		if seenAgent {
			afterParts = append(afterParts, p)
			afterWidth += p.width
		} else {
			beforeParts = append(beforeParts, p)
			beforeWidth += p.width
		}
	}
	if !seenAgent {
		return nil, nil, 0, 0, fmt.Errorf("splitActions: no such "+
			"agent %v", agent)
	}

	if beforeWidth > 0 {
		before = hstack(rows, beforeParts...)
	}
	if afterWidth > 0 {
		after = hstack(rows, afterParts...)
	}
	return before, after, beforeWidth, afterWidth, nil
}
