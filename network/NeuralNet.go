// Package network provides Gorgonia-backed neural networks for policy
// and value function approximation.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet implements a neural network. All networks in this package
// hold their own computational graph, and computations for separate
// networks are never placed in the same graph unless a network is
// explicitly cloned onto another network's graph with
// CloneWithInputsTo.
type NeuralNet interface {
	// Graph returns the computational graph that the network's
	// forward pass has been added to
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph
	// with a new input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of rows in the network's input
	BatchSize() int

	// Features returns the number of features in a single input row
	Features() int

	// Outputs returns the number of values the network predicts per
	// input row
	Outputs() int

	// SetInput sets the value of the network's input node(s) before
	// running the network's computational graph
	SetInput([]float64) error

	// Set sets the weights of the network to be those of another
	// network
	Set(NeuralNet) error

	// Polyak sets the weights of the network to be a Polyak average
	// between its existing weights and those of another network
	Polyak(NeuralNet, float64) error

	// Learnables returns the nodes of the network which hold learnable
	// weights
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the values of the network's prediction nodes,
	// valid after the network's graph has been run
	Output() []G.Value

	// Prediction returns the nodes of the computational graph which
	// hold the network's predictions
	Prediction() []*G.Node
}

// Recurrent is a NeuralNet which holds recurrent state between calls
// to its computational graph. The state is stored as raw values so
// that callers can carry it across episode steps and zero it when an
// episode starts.
type Recurrent interface {
	NeuralNet

	// State returns the recurrent state computed by the last run of
	// the network's graph
	State() (hidden, cell []float64)

	// SetState sets the recurrent state used by the next run of the
	// network's graph
	SetState(hidden, cell []float64) error

	// ResetState zeroes the recurrent state
	ResetState()
}

// Distributional is a NeuralNet which predicts a categorical
// distribution over a fixed support of values instead of a scalar.
type Distributional interface {
	NeuralNet

	// Support returns the fixed support that the predicted
	// distribution is defined over
	Support() Support
}

// inputCloner is implemented by networks which can be cloned onto an
// existing graph with externally provided input nodes. It is the
// mechanism by which a network's output is fed as the input of a copy
// of another network in a single graph, so that gradients flow
// through both.
type inputCloner interface {
	CloneWithInputsTo(axis int, inputs []*G.Node,
		g *G.ExprGraph) (NeuralNet, error)
}

// CloneWithInputsTo clones net onto the graph g, using inputs as the
// cloned network's input nodes. If multiple input nodes are given,
// they are concatenated along axis before the forward pass. The
// inputs must already be in g.
func CloneWithInputsTo(net NeuralNet, axis int, inputs []*G.Node,
	g *G.ExprGraph) (NeuralNet, error) {
	cloner, ok := net.(inputCloner)
	if !ok {
		return nil, fmt.Errorf("clonewithinputsto: network of type %T "+
			"cannot be cloned with new inputs", net)
	}
	return cloner.CloneWithInputsTo(axis, inputs, g)
}

// setLearnables sets the weights of dest to be those of source. The
// networks must have the same learnables in the same order. Source
// weights are deep-copied so that later updates to one network do not
// silently update the other.
func setLearnables(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: incompatible networks \n\twant(%d "+
			"learnables)\n\thave(%d learnables)", len(nodes),
			len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// polyakLearnables sets the weights w of dest to be a Polyak average
// w = (1-τ)w + τw' between its existing weights and the weights w'
// of source.
func polyakLearnables(dest, source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}
