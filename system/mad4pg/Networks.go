package mad4pg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/initwfn"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/system/architecture"
)

// MakeDefaultNetworks returns a NetworkFactory constructing
// feedforward policy networks and feedforward distributional critics
// with the given hidden layer sizes. Hidden layers use ReLU
// activations with Glorot initialisation, policy outputs are squashed
// into the environment's action bounds, and critic input widths are
// determined by the architecture.
func MakeDefaultNetworks(policySizes, criticSizes []int,
	support network.Support, arch architecture.Type) NetworkFactory {
	return makeNetworks(policySizes, criticSizes, 0, false, support,
		arch)
}

// MakeDefaultRecurrentNetworks returns a NetworkFactory like
// MakeDefaultNetworks, except that policy networks are LSTM networks
// with hiddenSize recurrent units followed by the policySizes hidden
// layers. Critics remain feedforward.
func MakeDefaultRecurrentNetworks(policySizes, criticSizes []int,
	hiddenSize int, support network.Support,
	arch architecture.Type) NetworkFactory {
	return makeNetworks(policySizes, criticSizes, hiddenSize, true,
		support, arch)
}

func makeNetworks(policySizes, criticSizes []int, hiddenSize int,
	recurrent bool, support network.Support,
	arch architecture.Type) NetworkFactory {
	return func(e environment.Environment) (*Networks, error) {
		if err := support.Validate(); err != nil {
			return nil, fmt.Errorf("networks: %v", err)
		}
		if err := arch.Validate(); err != nil {
			return nil, fmt.Errorf("networks: %v", err)
		}
		if recurrent && hiddenSize < 1 {
			return nil, fmt.Errorf("networks: recurrent hidden size "+
				"must be positive \n\twant(k > 0) \n\thave(%v)",
				hiddenSize)
		}

		dims := architecture.EnvDims(e)
		actionSpecs := e.ActionSpecs()

		init, err := initwfn.NewGlorotN(math.Sqrt(2))
		if err != nil {
			return nil, fmt.Errorf("networks: %v", err)
		}

		newPolicy := func(key string, batch,
			seqLen int) (network.NeuralNet, error) {
			agent, err := agentFor(dims.Agents, key)
			if err != nil {
				return nil, fmt.Errorf("newpolicy: %v", err)
			}

			features := dims.ObsDims[agent]
			actions := dims.ActionDims[agent]
			lower := specBounds(actionSpecs[agent].LowerBound)
			upper := specBounds(actionSpecs[agent].UpperBound)

			if recurrent {
				return network.NewRecurrentPolicyMLP(features, batch,
					seqLen, hiddenSize, actions, G.NewGraph(),
					policySizes, trues(len(policySizes)),
					init.InitWFn(), relus(len(policySizes)), lower,
					upper)
			}
			return network.NewPolicyMLP(features, batch, actions,
				G.NewGraph(), policySizes, trues(len(policySizes)),
				init.InitWFn(), relus(len(policySizes)), lower, upper)
		}

		newCritic := func(key string, batch int) (network.NeuralNet,
			error) {
			agent, err := agentFor(dims.Agents, key)
			if err != nil {
				return nil, fmt.Errorf("newcritic: %v", err)
			}

			features, err := architecture.CriticFeatures(arch, dims,
				agent)
			if err != nil {
				return nil, fmt.Errorf("newcritic: %v", err)
			}

			return network.NewDistributionalMLP(features, batch,
				G.NewGraph(), criticSizes, trues(len(criticSizes)),
				init.InitWFn(), relus(len(criticSizes)), support)
		}

		return &Networks{
			NewPolicy: newPolicy,
			NewCritic: newCritic,
			Recurrent: recurrent,
		}, nil
	}
}

// agentFor returns an agent whose dimensions the networks stored under
// key must match. A key is either an agent or, with shared weights,
// the common prefix of the agents sharing the key, in which case
// architecture.ValidateShared guarantees that any matching agent's
// dimensions agree.
func agentFor(agents []string, key string) (string, error) {
	for _, agent := range agents {
		if agent == key || architecture.NetworkKey(agent, true) == key {
			return agent, nil
		}
	}
	return "", fmt.Errorf("no agent matches network key %v", key)
}

// specBounds copies a spec's bound vector into a slice
func specBounds(v mat.Vector) []float64 {
	bounds := make([]float64, v.Len())
	for i := range bounds {
		bounds[i] = v.AtVec(i)
	}
	return bounds
}

func relus(n int) []*network.Activation {
	activations := make([]*network.Activation, n)
	for i := range activations {
		activations[i] = network.ReLU()
	}
	return activations
}

func trues(n int) []bool {
	biases := make([]bool, n)
	for i := range biases {
		biases[i] = true
	}
	return biases
}
