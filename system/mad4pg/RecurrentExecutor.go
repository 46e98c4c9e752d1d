package mad4pg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/replay/adders"
	"github.com/samuelfneumann/gomarl/system"
	"github.com/samuelfneumann/gomarl/system/architecture"
	"github.com/samuelfneumann/gomarl/timestep"
	"github.com/samuelfneumann/gomarl/utils/floatutils"
)

// RecurrentExecutor selects actions with recurrent policy networks,
// carrying a separate recurrent state per agent so that agents sharing
// weights still condition on their own histories. States reset at
// episode boundaries. Exploration, recording, and weight updates work
// as in FeedforwardExecutor.
type RecurrentExecutor struct {
	agents []string
	keys   map[string]string

	nets map[string]network.Recurrent // by network key, batch 1
	vms  map[string]G.VM

	hidden map[string][]float64 // by agent
	cell   map[string][]float64

	sigma float64
	noise map[string]distmv.Rander
	lower map[string][]float64
	upper map[string][]float64

	adder  adders.Adder
	client *system.VariableClient

	step timestep.TimeStep
}

// NewRecurrentExecutor creates an executor acting in e with recurrent
// policy networks from nets. Parameters work as in
// NewFeedforwardExecutor.
func NewRecurrentExecutor(e environment.Environment, nets *Networks,
	shared bool, sigma float64, seed uint64, adder adders.Adder,
	source system.VariableSource,
	updatePeriod int) (*RecurrentExecutor, error) {
	if !nets.Recurrent {
		return nil, fmt.Errorf("newrecurrentexecutor: policies are " +
			"not recurrent")
	}

	dims := architecture.EnvDims(e)
	if err := architecture.ValidateShared(dims, shared); err != nil {
		return nil, fmt.Errorf("newrecurrentexecutor: %v", err)
	}

	keys := make(map[string]string, len(dims.Agents))
	for _, agent := range dims.Agents {
		keys[agent] = architecture.NetworkKey(agent, shared)
	}

	networks := make(map[string]network.Recurrent)
	clientNets := make(map[string]network.NeuralNet)
	vms := make(map[string]G.VM)
	for _, key := range architecture.NetworkKeys(dims.Agents, shared) {
		net, err := nets.NewPolicy(key, 1, 1)
		if err != nil {
			return nil, fmt.Errorf("newrecurrentexecutor: %v", err)
		}
		recurrent, ok := net.(network.Recurrent)
		if !ok {
			return nil, fmt.Errorf("newrecurrentexecutor: policy for "+
				"key %v is not recurrent", key)
		}
		networks[key] = recurrent
		clientNets[key] = net
		vms[key] = G.NewTapeMachine(net.Graph())
	}

	// Fresh networks carry zeroed recurrent states, so each agent's
	// initial state is a copy of its network's.
	hidden := make(map[string][]float64, len(dims.Agents))
	cell := make(map[string][]float64, len(dims.Agents))
	for _, agent := range dims.Agents {
		h, c := networks[keys[agent]].State()
		hidden[agent], cell[agent] = h, c
	}

	var noise map[string]distmv.Rander
	if sigma > 0 {
		var err error
		noise, err = actionNoise(dims, seed)
		if err != nil {
			return nil, fmt.Errorf("newrecurrentexecutor: %v", err)
		}
	}
	lower, upper := actionBounds(e)

	var client *system.VariableClient
	if source != nil {
		var err error
		client, err = system.NewVariableClient(source, clientNets,
			updatePeriod)
		if err != nil {
			return nil, fmt.Errorf("newrecurrentexecutor: %v", err)
		}
	}

	return &RecurrentExecutor{
		agents: dims.Agents,
		keys:   keys,
		nets:   networks,
		vms:    vms,
		hidden: hidden,
		cell:   cell,
		sigma:  sigma,
		noise:  noise,
		lower:  lower,
		upper:  upper,
		adder:  adder,
		client: client,
	}, nil
}

// ObserveFirst observes the first timestep of an episode and zeroes
// every agent's recurrent state.
func (r *RecurrentExecutor) ObserveFirst(ts timestep.TimeStep) error {
	if !ts.First() {
		return fmt.Errorf("observefirst: timestep is not the first "+
			"of an episode \n\thave(%v)", ts.Type())
	}

	for _, agent := range r.agents {
		zero(r.hidden[agent])
		zero(r.cell[agent])
	}

	r.step = ts
	if r.adder != nil {
		r.adder.ObserveFirst(ts)
	}
	return nil
}

// Observe records the actions taken on the last observed timestep and
// the timestep they led to.
func (r *RecurrentExecutor) Observe(actions map[string]*mat.VecDense,
	next timestep.TimeStep) error {
	if r.adder != nil {
		if err := r.adder.Observe(actions, next); err != nil {
			return fmt.Errorf("observe: %v", err)
		}
	}
	r.step = next
	return nil
}

// SelectActions returns each agent's action on the last observed
// timestep and advances the agent's recurrent state.
func (r *RecurrentExecutor) SelectActions() (map[string]*mat.VecDense,
	error) {
	if r.step.Observations == nil {
		return nil, fmt.Errorf("selectactions: no timestep observed " +
			"yet")
	}

	actions := make(map[string]*mat.VecDense, len(r.agents))
	for _, agent := range r.agents {
		key := r.keys[agent]
		net, vm := r.nets[key], r.vms[key]

		if err := net.SetState(r.hidden[agent],
			r.cell[agent]); err != nil {
			return nil, fmt.Errorf("selectactions: %v", err)
		}
		obs := r.step.Observations[agent]
		if err := net.SetInput(obs.RawVector().Data); err != nil {
			return nil, fmt.Errorf("selectactions: %v", err)
		}
		if err := vm.RunAll(); err != nil {
			return nil, fmt.Errorf("selectactions: %v", err)
		}
		action := copyValue(net.Output()[0])
		r.hidden[agent], r.cell[agent] = net.State()
		vm.Reset()

		if r.noise != nil {
			sample := r.noise[agent].Rand(nil)
			for i := range action {
				action[i] = floatutils.Clip(
					action[i]+r.sigma*sample[i],
					r.lower[agent][i],
					r.upper[agent][i],
				)
			}
		}
		actions[agent] = mat.NewVecDense(len(action), action)
	}
	return actions, nil
}

// Update pulls fresh policy weights from the variable source when a
// pull is due.
func (r *RecurrentExecutor) Update() error {
	if r.client == nil {
		return nil
	}
	return r.client.Update()
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
