package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NewPolicyMLP creates and returns a new multi-layered perceptron
// which predicts one continuous action per input row. The network is
// an MLP with a final linear layer of actionDims units, followed by a
// tanh squashing into the closed action intervals [lower[i],
// upper[i]], so that every prediction is a legal action.
//
// The hiddenSizes, biases, activations, and init parameters determine
// the hidden layers in the same way as NewMultiHeadMLP.
func NewPolicyMLP(features, batch, actionDims int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, lower, upper []float64) (NeuralNet,
	error) {
	if len(lower) != actionDims || len(upper) != actionDims {
		return nil, fmt.Errorf("newpolicymlp: action bounds must have "+
			"one entry per action dimension \n\twant(%d)\n\thave(%d, %d)",
			actionDims, len(lower), len(upper))
	}

	squash, err := newBoundsLayer(lower, upper)
	if err != nil {
		return nil, fmt.Errorf("newpolicymlp: %v", err)
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	return newMultiHeadMLPFromInput([]*G.Node{input}, actionDims, g,
		hiddenSizes, biases, init, activations, "Policy", "", true,
		squash)
}
