package network

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Support is the fixed support of a categorical value distribution: a
// uniform grid of NumAtoms values over the closed interval [VMin,
// VMax]. A distributional network predicts one logit per atom, and the
// distribution it represents places the softmax of those logits on the
// atom values.
type Support struct {
	VMin     float64
	VMax     float64
	NumAtoms int
}

// Validate returns an error if the Support does not describe a legal
// grid of atoms.
func (s Support) Validate() error {
	if s.NumAtoms < 2 {
		return fmt.Errorf("support: need at least 2 atoms \n\thave(%d)",
			s.NumAtoms)
	}
	if s.VMin >= s.VMax {
		return fmt.Errorf("support: vmin must be below vmax "+
			"\n\tvmin(%v)\n\tvmax(%v)", s.VMin, s.VMax)
	}
	return nil
}

// Delta returns the spacing between adjacent atoms.
func (s Support) Delta() float64 {
	return (s.VMax - s.VMin) / float64(s.NumAtoms-1)
}

// Atoms returns the atom values z_i = VMin + i*Delta for
// i = 0, ..., NumAtoms-1.
func (s Support) Atoms() []float64 {
	atoms := make([]float64, s.NumAtoms)
	delta := s.Delta()
	for i := range atoms {
		atoms[i] = s.VMin + float64(i)*delta
	}
	return atoms
}

// Project computes the categorical projection of the distributions
// probs, shifted and scaled through the Bellman backup r + d*z, back
// onto the support. For each row b, the source distribution places
// probs[b][i] on the value rewards[b] + discounts[b]*z_i; mass falling
// between two atoms is split between them in proportion to proximity,
// and mass falling outside [VMin, VMax] accumulates at the edge atoms.
// Each returned row sums to the same total mass as its source row.
func (s Support) Project(rewards, discounts []float64,
	probs [][]float64) ([][]float64, error) {
	if len(rewards) != len(discounts) || len(rewards) != len(probs) {
		return nil, fmt.Errorf("project: rewards, discounts, and probs "+
			"must have the same length \n\thave(%d, %d, %d)",
			len(rewards), len(discounts), len(probs))
	}

	atoms := s.Atoms()
	delta := s.Delta()

	projected := make([][]float64, len(probs))
	for b := range probs {
		if len(probs[b]) != s.NumAtoms {
			return nil, fmt.Errorf("project: row %d has %d atoms "+
				"\n\twant(%d)", b, len(probs[b]), s.NumAtoms)
		}

		row := make([]float64, s.NumAtoms)
		for i, p := range probs[b] {
			tz := rewards[b] + discounts[b]*atoms[i]
			if tz < s.VMin {
				tz = s.VMin
			} else if tz > s.VMax {
				tz = s.VMax
			}

			pos := (tz - s.VMin) / delta
			lower := math.Floor(pos)
			upper := math.Ceil(pos)
			if lower == upper {
				row[int(lower)] += p
			} else {
				row[int(lower)] += p * (upper - pos)
				row[int(upper)] += p * (pos - lower)
			}
		}
		projected[b] = row
	}
	return projected, nil
}

// distributionalMLP is a multiHeadMLP which predicts the logits of a
// categorical value distribution over a fixed support.
type distributionalMLP struct {
	NeuralNet
	support Support
}

// NewDistributionalMLP creates and returns a new multi-layered
// perceptron which predicts, for each input row, the logits of a
// categorical distribution over support. The hiddenSizes, biases,
// activations, and init parameters determine the hidden layers in the
// same way as NewMultiHeadMLP; a final linear layer of
// support.NumAtoms units is always added.
func NewDistributionalMLP(features, batch int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, support Support) (NeuralNet, error) {
	if err := support.Validate(); err != nil {
		return nil, fmt.Errorf("newdistributionalmlp: %v", err)
	}

	net, err := NewMultiHeadMLP(features, batch, support.NumAtoms, g,
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newdistributionalmlp: %v", err)
	}

	return &distributionalMLP{NeuralNet: net, support: support}, nil
}

// Support returns the support of the predicted distribution.
func (d *distributionalMLP) Support() Support {
	return d.support
}

// Clone clones a distributionalMLP
func (d *distributionalMLP) Clone() (NeuralNet, error) {
	net, err := d.NeuralNet.Clone()
	if err != nil {
		return nil, err
	}
	return &distributionalMLP{NeuralNet: net, support: d.support}, nil
}

// CloneWithBatch clones a distributionalMLP with a new input batch
// size.
func (d *distributionalMLP) CloneWithBatch(batch int) (NeuralNet,
	error) {
	net, err := d.NeuralNet.CloneWithBatch(batch)
	if err != nil {
		return nil, err
	}
	return &distributionalMLP{NeuralNet: net, support: d.support}, nil
}

// CloneWithInputsTo clones a distributionalMLP onto the graph, with
// inputs as the cloned network's input nodes.
func (d *distributionalMLP) CloneWithInputsTo(axis int,
	inputs []*G.Node, graph *G.ExprGraph) (NeuralNet, error) {
	net, err := CloneWithInputsTo(d.NeuralNet, axis, inputs, graph)
	if err != nil {
		return nil, err
	}
	return &distributionalMLP{NeuralNet: net, support: d.support}, nil
}

// logSumExp computes log(Σ exp(logits)) along the given axis in a
// numerically stable manner by subtracting the row maximum before
// exponentiating.
func logSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// LogProbabilities adds the log-softmax of logits along axis 1 to the
// graph that logits belongs to. The input must be a (batch, atoms)
// matrix of distribution logits.
func LogProbabilities(logits *G.Node) *G.Node {
	return G.Must(G.BroadcastSub(logits, logSumExp(logits, 1), nil,
		[]byte{1}))
}

// Probabilities adds the softmax of logits along axis 1 to the graph
// that logits belongs to.
func Probabilities(logits *G.Node) *G.Node {
	return G.Must(G.Exp(LogProbabilities(logits)))
}

// Expectation adds the expected value of the distributions represented
// by logits to the graph that logits belongs to: for each row, the
// probability-weighted sum of the support's atom values. The returned
// node is a vector with one expectation per row.
func Expectation(logits *G.Node, support Support) *G.Node {
	atoms := G.NewConstant(tensor.New(
		tensor.WithBacking(support.Atoms()),
		tensor.WithShape(support.NumAtoms),
	))
	return G.Must(G.Mul(Probabilities(logits), atoms))
}

// CrossEntropy adds the mean cross-entropy between the target
// distributions and the distributions represented by logits to the
// graph that logits belongs to: -mean over rows of Σ target *
// log-softmax(logits). The target node is treated as a constant with
// respect to differentiation, so gradients flow only through logits.
func CrossEntropy(logits, target *G.Node) *G.Node {
	perAtom := G.Must(G.HadamardProd(target, LogProbabilities(logits)))
	perRow := G.Must(G.Sum(perAtom, 1))
	return G.Must(G.Neg(G.Must(G.Mean(perRow))))
}

// MaskedMean adds the mean of the values whose mask entry is nonzero:
// Σ(values ⊙ mask) / Σ mask. Both nodes must be vectors of the same
// length, and the mask must have at least one nonzero entry.
func MaskedMean(values, mask *G.Node) *G.Node {
	masked := G.Must(G.HadamardProd(values, mask))
	return G.Must(G.HadamardDiv(
		G.Must(G.Sum(masked)),
		G.Must(G.Sum(mask)),
	))
}

// MaskedCrossEntropy is CrossEntropy averaged only over the rows whose
// mask entry is nonzero. Rows of padding in fixed-length sequence
// batches carry a zero mask and contribute nothing to the loss.
func MaskedCrossEntropy(logits, target, mask *G.Node) *G.Node {
	perAtom := G.Must(G.HadamardProd(target, LogProbabilities(logits)))
	perRow := G.Must(G.Sum(perAtom, 1))
	return G.Must(G.Neg(MaskedMean(perRow, mask)))
}
