package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

func TestRecurrentPolicyMLPSingleStep(t *testing.T) {
	hidden := 3

	g := G.NewGraph()
	net, err := NewRecurrentPolicyMLP(2, 1, 1, hidden, 2, g, []int{4},
		[]bool{true}, G.Zeroes(), []*Activation{ReLU()},
		[]float64{-1, -1}, []float64{1, 1})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	recurrent, ok := net.(Recurrent)
	if !ok {
		t.Fatal("network does not carry recurrent state")
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	if err := net.SetInput([]float64{0.5, -0.5}); err != nil {
		t.Fatalf("could not set input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	// With zero weights every gate preactivation is 0, so the
	// candidate cell state is tanh(0) = 0 and the state stays zero
	h, c := recurrent.State()
	for i := range h {
		if math.Abs(h[i]) > tolerance || math.Abs(c[i]) > tolerance {
			t.Errorf("state not zero at index %d \n\thidden(%v)"+
				"\n\tcell(%v)", i, h[i], c[i])
		}
	}

	// The action is the centre of the bounds
	actions := net.Output()[0].Data().([]float64)
	for i := range actions {
		if math.Abs(actions[i]) > tolerance {
			t.Errorf("wrong action at index %d \n\twant(%v)"+
				"\n\thave(%v)", i, 0.0, actions[i])
		}
	}
}

func TestRecurrentPolicyMLPStateCarry(t *testing.T) {
	hidden := 3

	g := G.NewGraph()
	net, err := NewRecurrentPolicyMLP(2, 1, 1, hidden, 1, g, []int{4},
		[]bool{true}, G.Zeroes(), []*Activation{ReLU()},
		[]float64{-1}, []float64{1})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	recurrent := net.(Recurrent)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	// Seed the cell state with ones. With zero weights the gates all
	// sit at sigmoid(0) = 0.5 and the candidate is 0, so the new cell
	// state is 0.5*1 and the hidden state is 0.5*tanh(0.5).
	ones := []float64{1, 1, 1}
	if err := recurrent.SetState(make([]float64, hidden), ones); err != nil {
		t.Fatalf("could not set state: %v", err)
	}
	if err := net.SetInput([]float64{0, 0}); err != nil {
		t.Fatalf("could not set input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	h, c := recurrent.State()
	wantCell := 0.5
	wantHidden := 0.5 * math.Tanh(0.5)
	for i := range h {
		if math.Abs(c[i]-wantCell) > tolerance {
			t.Errorf("wrong cell state at index %d \n\twant(%v)"+
				"\n\thave(%v)", i, wantCell, c[i])
		}
		if math.Abs(h[i]-wantHidden) > tolerance {
			t.Errorf("wrong hidden state at index %d \n\twant(%v)"+
				"\n\thave(%v)", i, wantHidden, h[i])
		}
	}

	// After a reset the state feeding the next run is zero again
	recurrent.ResetState()
	vm.Reset()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}
	h, c = recurrent.State()
	for i := range h {
		if math.Abs(h[i]) > tolerance || math.Abs(c[i]) > tolerance {
			t.Errorf("state not zero after reset at index %d "+
				"\n\thidden(%v)\n\tcell(%v)", i, h[i], c[i])
		}
	}
}

func TestRecurrentPolicyMLPUnrolled(t *testing.T) {
	seqLen := 3
	batch := 2

	g := G.NewGraph()
	net, err := NewRecurrentPolicyMLP(2, batch, seqLen, 4, 1, g,
		[]int{4}, []bool{true}, G.GlorotN(1.0), []*Activation{ReLU()},
		[]float64{-1}, []float64{1})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	if len(net.Prediction()) != seqLen {
		t.Errorf("wrong number of predictions \n\twant(%v)"+
			"\n\thave(%v)", seqLen, len(net.Prediction()))
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	input := make([]float64, batch*seqLen*2)
	for i := range input {
		input[i] = float64(i) / 10
	}
	if err := net.SetInput(input); err != nil {
		t.Fatalf("could not set input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	for step, out := range net.Output() {
		shape := out.Shape()
		if shape[0] != batch || shape[1] != 1 {
			t.Errorf("wrong output shape at timestep %d \n\twant(%v)"+
				"\n\thave(%v)", step, []int{batch, 1}, shape)
		}
		for _, action := range out.Data().([]float64) {
			if action < -1 || action > 1 {
				t.Errorf("action out of bounds at timestep %d: %v",
					step, action)
			}
		}
	}
}

func TestRecurrentPolicyMLPSetAcrossShapes(t *testing.T) {
	// A single-step network used for acting and an unrolled network
	// used for learning must be able to exchange weights
	g1 := G.NewGraph()
	actor, err := NewRecurrentPolicyMLP(2, 1, 1, 4, 1, g1, []int{8},
		[]bool{true}, G.GlorotN(1.0), []*Activation{ReLU()},
		[]float64{-1}, []float64{1})
	if err != nil {
		t.Fatalf("could not create single-step network: %v", err)
	}

	g2 := G.NewGraph()
	learner, err := NewRecurrentPolicyMLP(2, 16, 4, 4, 1, g2, []int{8},
		[]bool{true}, G.GlorotN(1.0), []*Activation{ReLU()},
		[]float64{-1}, []float64{1})
	if err != nil {
		t.Fatalf("could not create unrolled network: %v", err)
	}

	if len(actor.Learnables()) != len(learner.Learnables()) {
		t.Fatalf("learnable counts differ \n\twant(%v)\n\thave(%v)",
			len(learner.Learnables()), len(actor.Learnables()))
	}
	if err := actor.Set(learner); err != nil {
		t.Fatalf("could not copy weights: %v", err)
	}

	for i, learnable := range actor.Learnables() {
		want := learner.Learnables()[i].Value().Data().([]float64)
		have := learnable.Value().Data().([]float64)
		for j := range want {
			if math.Abs(want[j]-have[j]) > tolerance {
				t.Errorf("weights differ at learnable %d index %d "+
					"\n\twant(%v)\n\thave(%v)", i, j, want[j], have[j])
			}
		}
	}
}
