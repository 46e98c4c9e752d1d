package network

import (
	"fmt"

	"github.com/samuelfneumann/gomarl/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// lstmCell holds the weights of a single LSTM layer. The cell itself
// adds no nodes to the graph until step is called, so one cell can be
// stepped many times to unroll a sequence, with every step sharing the
// same weights.
type lstmCell struct {
	wi, ui, bi *G.Node // input gate
	wf, uf, bf *G.Node // forget gate
	wc, uc, bc *G.Node // cell candidate
	wo, uo, bo *G.Node // output gate
}

// newLSTMCell adds the weight nodes of an LSTM layer with hidden units
// to the graph g. Input weights have shape (features, hidden),
// recurrent weights (hidden, hidden), and biases (hidden). Weights are
// initialized with init, biases with zeroes.
func newLSTMCell(g *G.ExprGraph, features, hidden int, init G.InitWFn,
	prefix, suffix string) *lstmCell {
	gateWeights := func(gate string) (*G.Node, *G.Node, *G.Node) {
		w := G.NewMatrix(g, tensor.Float64,
			G.WithShape(features, hidden),
			G.WithName(fmt.Sprintf("%vLSTMW%v%v", prefix, gate, suffix)),
			G.WithInit(init),
		)
		u := G.NewMatrix(g, tensor.Float64,
			G.WithShape(hidden, hidden),
			G.WithName(fmt.Sprintf("%vLSTMU%v%v", prefix, gate, suffix)),
			G.WithInit(init),
		)
		b := G.NewVector(g, tensor.Float64,
			G.WithShape(hidden),
			G.WithName(fmt.Sprintf("%vLSTMB%v%v", prefix, gate, suffix)),
			G.WithInit(G.Zeroes()),
		)
		return w, u, b
	}

	cell := &lstmCell{}
	cell.wi, cell.ui, cell.bi = gateWeights("i")
	cell.wf, cell.uf, cell.bf = gateWeights("f")
	cell.wc, cell.uc, cell.bc = gateWeights("c")
	cell.wo, cell.uo, cell.bo = gateWeights("o")
	return cell
}

// preact computes x*w + hPrev*u + b with the bias broadcast along the
// batch dimension.
func (l *lstmCell) preact(x, hPrev, w, u, b *G.Node) *G.Node {
	sum := G.Must(G.Add(G.Must(G.Mul(x, w)), G.Must(G.Mul(hPrev, u))))
	return G.Must(G.BroadcastAdd(sum, b, nil, []byte{0}))
}

// step adds one LSTM step to the graph, consuming the input x and the
// previous hidden and cell states, and returns the new hidden and cell
// state nodes.
func (l *lstmCell) step(x, hPrev, cPrev *G.Node) (*G.Node, *G.Node) {
	input := G.Must(G.Sigmoid(l.preact(x, hPrev, l.wi, l.ui, l.bi)))
	forget := G.Must(G.Sigmoid(l.preact(x, hPrev, l.wf, l.uf, l.bf)))
	output := G.Must(G.Sigmoid(l.preact(x, hPrev, l.wo, l.uo, l.bo)))
	candidate := G.Must(G.Tanh(l.preact(x, hPrev, l.wc, l.uc, l.bc)))

	c := G.Must(G.Add(
		G.Must(G.HadamardProd(forget, cPrev)),
		G.Must(G.HadamardProd(input, candidate)),
	))
	h := G.Must(G.HadamardProd(output, G.Must(G.Tanh(c))))
	return h, c
}

// learnables returns the cell's weight nodes in a fixed order.
func (l *lstmCell) learnables() G.Nodes {
	return G.Nodes{
		l.wi, l.ui, l.bi,
		l.wf, l.uf, l.bf,
		l.wc, l.uc, l.bc,
		l.wo, l.uo, l.bo,
	}
}

// recurrentPolicyMLP implements a recurrent policy network: an LSTM
// layer followed by a fully connected head whose output is squashed
// into the action bounds. The network is built for a fixed sequence
// length. With sequence length 1 it computes a single step, reading
// its recurrent state from state nodes that the caller may set between
// runs; with a longer sequence length the LSTM is statically unrolled
// over the input sequence, starting from the
// current state values (zeroes unless SetState has been called).
type recurrentPolicyMLP struct {
	g    *G.ExprGraph
	cell *lstmCell
	head []Layer

	input        *G.Node
	statePrev    *G.Node // hidden state input
	cellPrev     *G.Node // cell state input
	hLast, cLast *G.Node
	hVal, cVal   G.Value

	seqLen     int
	hiddenSize int
	batchSize  int
	features   int
	actions    int

	// Configuration needed to rebuild the network when cloning
	hiddenSizes  []int
	biases       []bool
	activations  []*Activation
	init         G.InitWFn
	lower, upper []float64

	learnables G.Nodes
	model      []G.ValueGrad

	predictions []*G.Node
	predVals    []G.Value
}

// NewRecurrentPolicyMLP creates and returns a new recurrent policy
// network: a single LSTM layer of hiddenSize units followed by a
// fully connected head which predicts one continuous action per
// timestep, squashed into the closed action intervals [lower[i],
// upper[i]].
//
// The network's input holds seqLen consecutive observations per row,
// laid out as [o_0, o_1, ..., o_{seqLen-1}] with features values each.
// The LSTM is unrolled over the sequence, and the network predicts one
// action per timestep: Prediction()[t] holds the actions for timestep
// t. With seqLen equal to 1 the network computes a single step and the
// recurrent state can be carried across runs with SetState and State.
//
// The hiddenSizes, biases, activations, and init parameters determine
// the head's hidden layers in the same way as NewMultiHeadMLP; a final
// linear layer of actionDims units is always added before the
// squashing.
func NewRecurrentPolicyMLP(features, batch, seqLen, hiddenSize,
	actionDims int, g *G.ExprGraph, hiddenSizes []int, biases []bool,
	init G.InitWFn, activations []*Activation,
	lower, upper []float64) (NeuralNet, error) {
	if seqLen < 1 {
		return nil, fmt.Errorf("newrecurrentpolicymlp: sequence length "+
			"must be positive \n\thave(%d)", seqLen)
	}
	if hiddenSize < 1 {
		return nil, fmt.Errorf("newrecurrentpolicymlp: hidden size "+
			"must be positive \n\thave(%d)", hiddenSize)
	}
	if len(hiddenSizes) != len(activations) {
		msg := "newrecurrentpolicymlp: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newrecurrentpolicymlp: invalid number of biases" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}
	if len(lower) != actionDims || len(upper) != actionDims {
		return nil, fmt.Errorf("newrecurrentpolicymlp: action bounds "+
			"must have one entry per action dimension "+
			"\n\twant(%d)\n\thave(%d, %d)", actionDims, len(lower),
			len(upper))
	}

	squash, err := newBoundsLayer(lower, upper)
	if err != nil {
		return nil, fmt.Errorf("newrecurrentpolicymlp: %v", err)
	}

	// Copy the head configuration so that the stored configuration is
	// not shared with the caller
	sizes := make([]int, len(hiddenSizes))
	copy(sizes, hiddenSizes)
	withBias := make([]bool, len(biases))
	copy(withBias, biases)
	acts := make([]*Activation, len(activations))
	copy(acts, activations)

	input := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, features*seqLen), G.WithName("input"),
		G.WithInit(G.Zeroes()))
	statePrev := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, hiddenSize), G.WithName("hiddenState"),
		G.WithInit(G.Zeroes()))
	cellPrev := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, hiddenSize), G.WithName("cellState"),
		G.WithInit(G.Zeroes()))

	cell := newLSTMCell(g, features, hiddenSize, init, "Policy", "")

	headSizes := append(append([]int{}, sizes...), actionDims)
	headBiases := append(append([]bool{}, withBias...), true)
	headActivations := append(append([]*Activation{}, acts...),
		Identity())
	head := addfcLayers(g, headSizes, headBiases, headActivations, init,
		hiddenSize, "PolicyHead", "")
	head = append(head, squash)

	net := &recurrentPolicyMLP{
		g:           g,
		cell:        cell,
		head:        head,
		input:       input,
		statePrev:   statePrev,
		cellPrev:    cellPrev,
		seqLen:      seqLen,
		hiddenSize:  hiddenSize,
		batchSize:   batch,
		features:    features,
		actions:     actionDims,
		hiddenSizes: sizes,
		biases:      withBias,
		activations: acts,
		init:        init,
		lower:       lower,
		upper:       upper,
	}
	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newrecurrentpolicymlp: could not "+
			"compute forward pass: %v", err)
	}

	return net, nil
}

// fwd unrolls the LSTM over the input sequence and adds the head's
// forward pass for each timestep.
func (r *recurrentPolicyMLP) fwd() error {
	r.predictions = make([]*G.Node, r.seqLen)
	r.predVals = make([]G.Value, r.seqLen)

	h, c := r.statePrev, r.cellPrev
	for t := 0; t < r.seqLen; t++ {
		xt := r.input
		if r.seqLen > 1 {
			xt = G.Must(G.Slice(r.input, nil,
				tensorutils.NewSlice(t*r.features, (t+1)*r.features, 1)))
		}
		h, c = r.cell.step(xt, h, c)

		out := h
		var err error
		for i, l := range r.head {
			if out, err = l.fwd(out); err != nil {
				return fmt.Errorf("fwd: could not compute forward pass "+
					"of head layer %v at timestep %v: %v", i, t, err)
			}
		}

		r.predictions[t] = out
		G.Read(r.predictions[t], &r.predVals[t])
	}

	r.hLast, r.cLast = h, c
	G.Read(r.hLast, &r.hVal)
	G.Read(r.cLast, &r.cVal)
	return nil
}

// Graph returns the computational graph of the recurrentPolicyMLP.
func (r *recurrentPolicyMLP) Graph() *G.ExprGraph {
	return r.g
}

// Clone clones a recurrentPolicyMLP
func (r *recurrentPolicyMLP) Clone() (NeuralNet, error) {
	return r.CloneWithBatch(r.batchSize)
}

// CloneWithBatch clones a recurrentPolicyMLP with a new input batch
// size. The clone is built on a new graph and the weights are copied
// over, so unlike the feedforward networks the clone does not share
// its configuration slices with the original.
func (r *recurrentPolicyMLP) CloneWithBatch(batch int) (NeuralNet,
	error) {
	clone, err := NewRecurrentPolicyMLP(r.features, batch, r.seqLen,
		r.hiddenSize, r.actions, G.NewGraph(), r.hiddenSizes, r.biases,
		r.init, r.activations, r.lower, r.upper)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	if err := clone.Set(r); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy "+
			"weights: %v", err)
	}
	return clone, nil
}

// BatchSize returns the batch size of inputs to the network
func (r *recurrentPolicyMLP) BatchSize() int {
	return r.batchSize
}

// Features returns the number of features in a single observation. The
// network's input holds SequenceLength() observations per row.
func (r *recurrentPolicyMLP) Features() int {
	return r.features
}

// Outputs returns the number of action dimensions predicted per
// timestep
func (r *recurrentPolicyMLP) Outputs() int {
	return r.actions
}

// SequenceLength returns the number of timesteps the network's LSTM
// is unrolled over
func (r *recurrentPolicyMLP) SequenceLength() int {
	return r.seqLen
}

// SetInput sets the value of the input node before running the forward
// pass. The input holds BatchSize() rows of SequenceLength()
// observations each.
func (r *recurrentPolicyMLP) SetInput(input []float64) error {
	if len(input) != r.features*r.seqLen*r.batchSize {
		msg := fmt.Sprintf("invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", r.features*r.seqLen*r.batchSize, len(input))
		panic(msg)
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(r.input.Shape()...),
	)
	return G.Let(r.input, inputTensor)
}

// SetState sets the recurrent state consumed by the next run of the
// network's graph. Both slices hold BatchSize() rows of hidden-layer
// values.
func (r *recurrentPolicyMLP) SetState(hidden, cell []float64) error {
	if len(hidden) != r.batchSize*r.hiddenSize ||
		len(cell) != r.batchSize*r.hiddenSize {
		return fmt.Errorf("setstate: invalid state size \n\twant(%v)"+
			"\n\thave(%v, %v)", r.batchSize*r.hiddenSize, len(hidden),
			len(cell))
	}

	err := G.Let(r.statePrev, tensor.New(
		tensor.WithBacking(hidden),
		tensor.WithShape(r.batchSize, r.hiddenSize),
	))
	if err != nil {
		return err
	}
	return G.Let(r.cellPrev, tensor.New(
		tensor.WithBacking(cell),
		tensor.WithShape(r.batchSize, r.hiddenSize),
	))
}

// State returns a copy of the recurrent state computed by the last run
// of the network's graph.
func (r *recurrentPolicyMLP) State() ([]float64, []float64) {
	hidden := make([]float64, r.batchSize*r.hiddenSize)
	cell := make([]float64, r.batchSize*r.hiddenSize)
	if r.hVal != nil {
		copy(hidden, r.hVal.Data().([]float64))
	}
	if r.cVal != nil {
		copy(cell, r.cVal.Data().([]float64))
	}
	return hidden, cell
}

// ResetState zeroes the recurrent state consumed by the next run of
// the network's graph.
func (r *recurrentPolicyMLP) ResetState() {
	size := r.batchSize * r.hiddenSize
	r.SetState(make([]float64, size), make([]float64, size))
}

// Set sets the weights of a recurrentPolicyMLP to be equal to the
// weights of another NeuralNet
func (r *recurrentPolicyMLP) Set(source NeuralNet) error {
	return setLearnables(r, source)
}

// Polyak sets the weights of a recurrentPolicyMLP to be a polyak
// average between its existing weights and the weights of another
// NeuralNet
func (r *recurrentPolicyMLP) Polyak(source NeuralNet,
	tau float64) error {
	return polyakLearnables(r, source, tau)
}

// Learnables returns the learnable nodes in a recurrentPolicyMLP. The
// cell's weights come first, then the head's, so that networks built
// with different batch or sequence sizes but the same configuration
// can copy weights between each other.
func (r *recurrentPolicyMLP) Learnables() G.Nodes {
	if r.learnables == nil {
		r.learnables = r.cell.learnables()
		for i := range r.head {
			if weights := r.head[i].Weights(); weights != nil {
				r.learnables = append(r.learnables, weights)
			}
			if bias := r.head[i].Bias(); bias != nil {
				r.learnables = append(r.learnables, bias)
			}
		}
	}
	return r.learnables
}

// Model returns the learnables nodes with their gradients.
func (r *recurrentPolicyMLP) Model() []G.ValueGrad {
	if r.model == nil {
		learnables := r.Learnables()
		r.model = make([]G.ValueGrad, 0, len(learnables))
		for _, node := range learnables {
			r.model = append(r.model, node)
		}
	}
	return r.model
}

// Output returns the network's predicted actions, one value per
// timestep, valid after the network's graph has been run.
func (r *recurrentPolicyMLP) Output() []G.Value {
	return r.predVals
}

// Prediction returns the nodes holding the network's predicted
// actions, one node per timestep.
func (r *recurrentPolicyMLP) Prediction() []*G.Node {
	return r.predictions
}
