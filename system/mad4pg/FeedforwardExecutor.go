package mad4pg

import (
	"fmt"

	"golang.org/x/exp/rand"
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

// FeedforwardExecutor selects actions with feedforward policy networks
// and records the resulting experience through a transition adder.
// Exploration adds Gaussian noise to the policy output before clipping
// to the environment's action bounds. An executor with a nil adder
// observes without recording, and an executor with a nil variable
// source never refreshes its policy weights; evaluators use both.
type FeedforwardExecutor struct {
	agents []string
	keys   map[string]string // agent -> network key

	nets map[string]network.NeuralNet // by network key, batch 1
	vms  map[string]G.VM

	sigma float64
	noise map[string]distmv.Rander
	lower map[string][]float64
	upper map[string][]float64

	adder  adders.Adder
	client *system.VariableClient

	step timestep.TimeStep
}

// NewFeedforwardExecutor creates an executor acting in e with policy
// networks from nets. Agents share networks according to shared, noise
// scales with sigma, and experience is recorded through adder. When
// source is non-nil, policy weights are pulled from it every
// updatePeriod action selections.
func NewFeedforwardExecutor(e environment.Environment, nets *Networks,
	shared bool, sigma float64, seed uint64, adder adders.Adder,
	source system.VariableSource,
	updatePeriod int) (*FeedforwardExecutor, error) {
	if nets.Recurrent {
		return nil, fmt.Errorf("newfeedforwardexecutor: policies are " +
			"recurrent")
	}

	dims := architecture.EnvDims(e)
	if err := architecture.ValidateShared(dims, shared); err != nil {
		return nil, fmt.Errorf("newfeedforwardexecutor: %v", err)
	}

	keys := make(map[string]string, len(dims.Agents))
	for _, agent := range dims.Agents {
		keys[agent] = architecture.NetworkKey(agent, shared)
	}

	networks := make(map[string]network.NeuralNet)
	vms := make(map[string]G.VM)
	for _, key := range architecture.NetworkKeys(dims.Agents, shared) {
		net, err := nets.NewPolicy(key, 1, 1)
		if err != nil {
			return nil, fmt.Errorf("newfeedforwardexecutor: %v", err)
		}
		networks[key] = net
		vms[key] = G.NewTapeMachine(net.Graph())
	}

	var noise map[string]distmv.Rander
	if sigma > 0 {
		var err error
		noise, err = actionNoise(dims, seed)
		if err != nil {
			return nil, fmt.Errorf("newfeedforwardexecutor: %v", err)
		}
	}
	lower, upper := actionBounds(e)

	var client *system.VariableClient
	if source != nil {
		var err error
		client, err = system.NewVariableClient(source, networks,
			updatePeriod)
		if err != nil {
			return nil, fmt.Errorf("newfeedforwardexecutor: %v", err)
		}
	}

	return &FeedforwardExecutor{
		agents: dims.Agents,
		keys:   keys,
		nets:   networks,
		vms:    vms,
		sigma:  sigma,
		noise:  noise,
		lower:  lower,
		upper:  upper,
		adder:  adder,
		client: client,
	}, nil
}

// ObserveFirst observes the first timestep of an episode
func (f *FeedforwardExecutor) ObserveFirst(ts timestep.TimeStep) error {
	if !ts.First() {
		return fmt.Errorf("observefirst: timestep is not the first "+
			"of an episode \n\thave(%v)", ts.Type())
	}

	f.step = ts
	if f.adder != nil {
		f.adder.ObserveFirst(ts)
	}
	return nil
}

// Observe records the actions taken on the last observed timestep and
// the timestep they led to.
func (f *FeedforwardExecutor) Observe(actions map[string]*mat.VecDense,
	next timestep.TimeStep) error {
	if f.adder != nil {
		if err := f.adder.Observe(actions, next); err != nil {
			return fmt.Errorf("observe: %v", err)
		}
	}
	f.step = next
	return nil
}

// SelectActions returns each agent's action on the last observed
// timestep.
func (f *FeedforwardExecutor) SelectActions() (map[string]*mat.VecDense,
	error) {
	if f.step.Observations == nil {
		return nil, fmt.Errorf("selectactions: no timestep observed " +
			"yet")
	}

	actions := make(map[string]*mat.VecDense, len(f.agents))
	for _, agent := range f.agents {
		key := f.keys[agent]
		net, vm := f.nets[key], f.vms[key]

		obs := f.step.Observations[agent]
		if err := net.SetInput(obs.RawVector().Data); err != nil {
			return nil, fmt.Errorf("selectactions: %v", err)
		}
		if err := vm.RunAll(); err != nil {
			return nil, fmt.Errorf("selectactions: %v", err)
		}
		action := copyValue(net.Output()[0])
		vm.Reset()

		if f.noise != nil {
			sample := f.noise[agent].Rand(nil)
			for i := range action {
				action[i] = floatutils.Clip(
					action[i]+f.sigma*sample[i],
					f.lower[agent][i],
					f.upper[agent][i],
				)
			}
		}
		actions[agent] = mat.NewVecDense(len(action), action)
	}
	return actions, nil
}

// Update pulls fresh policy weights from the variable source when a
// pull is due.
func (f *FeedforwardExecutor) Update() error {
	if f.client == nil {
		return nil
	}
	return f.client.Update()
}

// actionNoise creates a standard Gaussian noise source per agent, all
// drawing from one stream seeded with seed.
func actionNoise(dims adders.Dims,
	seed uint64) (map[string]distmv.Rander, error) {
	source := rand.NewSource(seed)

	noise := make(map[string]distmv.Rander, len(dims.Agents))
	for _, agent := range dims.Agents {
		n := dims.ActionDims[agent]
		means := make([]float64, n)
		stds := mat.NewDiagDense(n, floatutils.Ones(n))

		normal, ok := distmv.NewNormal(means, stds, source)
		if !ok {
			return nil, fmt.Errorf("actionnoise: could not create "+
				"noise distribution for agent %v", agent)
		}
		noise[agent] = normal
	}
	return noise, nil
}

// actionBounds extracts each agent's action bounds from e
func actionBounds(e environment.Environment) (lower,
	upper map[string][]float64) {
	specs := e.ActionSpecs()
	lower = make(map[string][]float64, len(specs))
	upper = make(map[string][]float64, len(specs))
	for agent, spec := range specs {
		lower[agent] = specBounds(spec.LowerBound)
		upper[agent] = specBounds(spec.UpperBound)
	}
	return lower, upper
}

// copyValue copies a network output's backing data, which the next
// machine run overwrites.
func copyValue(v G.Value) []float64 {
	data := v.Data().([]float64)
	out := make([]float64, len(data))
	copy(out, data)
	return out
}
