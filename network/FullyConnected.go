package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer implements a single layer of a neural network. Layers which
// hold no learnable weights return nil from Weights and Bias.
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer
	Weights() *G.Node
	Bias() *G.Node
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if f.act == nil || f.act.IsNil() || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

// CloneTo clones an fcLayer to a new computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if f.Weights() != nil {
		newWeights = f.Weights().CloneTo(g)
	}
	if f.Bias() != nil {
		newBias = f.Bias().CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// addfcLayers adds the weight and bias nodes for a sequence of fully
// connected layers to the graph g and returns the layers. For index i,
// hiddenSizes[i] is the number of units in layer i; biases[i]
// determines whether layer i has a bias unit; and activations[i] is
// the activation function of layer i. The parameter features is the
// number of input features to the first layer. Weights are initialized
// with init, biases with zeroes. The prefix and suffix parameters
// disambiguate node names when multiple networks share a graph.
func addfcLayers(g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, features int,
	prefix, suffix string) []Layer {
	layers := make([]Layer, 0, len(hiddenSizes))

	for i := range hiddenSizes {
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(features, hiddenSizes[i]),
			G.WithName(fmt.Sprintf("%vL%dW%v", prefix, i, suffix)),
			G.WithInit(init),
		)

		var bias *G.Node
		if biases[i] {
			bias = G.NewVector(
				g,
				tensor.Float64,
				G.WithShape(hiddenSizes[i]),
				G.WithName(fmt.Sprintf("%vL%dB%v", prefix, i, suffix)),
				G.WithInit(G.Zeroes()),
			)
		}

		layers = append(layers, &fcLayer{
			weights: weights,
			bias:    bias,
			act:     activations[i],
		})
		features = hiddenSizes[i]
	}

	return layers
}

// boundsLayer squashes each input feature into a fixed closed interval
// with a scaled tanh: out = lower + (tanh(x) + 1) / 2 * (upper -
// lower), computed elementwise over features and broadcast over the
// batch dimension. It holds no learnable weights.
type boundsLayer struct {
	lower, upper []float64
}

func newBoundsLayer(lower, upper []float64) (*boundsLayer, error) {
	if len(lower) != len(upper) {
		return nil, fmt.Errorf("newboundslayer: bounds have different "+
			"lengths \n\tlower(%d)\n\tupper(%d)", len(lower), len(upper))
	}
	for i := range lower {
		if lower[i] >= upper[i] {
			return nil, fmt.Errorf("newboundslayer: lower bound must be "+
				"below upper bound at index %d \n\tlower(%v)\n\tupper(%v)",
				i, lower[i], upper[i])
		}
	}
	return &boundsLayer{lower: lower, upper: upper}, nil
}

// fwd adds the squashing operation to the graph that x belongs to. The
// interval centre and half-range enter the graph as constants, so the
// layer contributes no learnables.
func (b *boundsLayer) fwd(x *G.Node) (*G.Node, error) {
	dims := len(b.lower)
	centre := make([]float64, dims)
	halfRange := make([]float64, dims)
	for i := range b.lower {
		centre[i] = (b.lower[i] + b.upper[i]) / 2
		halfRange[i] = (b.upper[i] - b.lower[i]) / 2
	}

	centreNode := G.NewConstant(tensor.New(
		tensor.WithBacking(centre),
		tensor.WithShape(dims),
	))
	halfRangeNode := G.NewConstant(tensor.New(
		tensor.WithBacking(halfRange),
		tensor.WithShape(dims),
	))

	out := G.Must(G.Tanh(x))
	out = G.Must(G.BroadcastHadamardProd(out, halfRangeNode, nil,
		[]byte{0}))
	out = G.Must(G.BroadcastAdd(out, centreNode, nil, []byte{0}))
	return out, nil
}

// CloneTo implements the Layer interface. The layer holds no
// graph-bound state, so the clone shares the bound slices.
func (b *boundsLayer) CloneTo(g *G.ExprGraph) Layer {
	return &boundsLayer{lower: b.lower, upper: b.upper}
}

func (b *boundsLayer) Weights() *G.Node {
	return nil
}

func (b *boundsLayer) Bias() *G.Node {
	return nil
}
