package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const tolerance = 1e-8

func TestSupportAtoms(t *testing.T) {
	support := Support{VMin: -10, VMax: 50, NumAtoms: 51}
	atoms := support.Atoms()

	if len(atoms) != support.NumAtoms {
		t.Errorf("wrong number of atoms \n\twant(%v)\n\thave(%v)",
			support.NumAtoms, len(atoms))
	}
	if atoms[0] != support.VMin {
		t.Errorf("wrong first atom \n\twant(%v)\n\thave(%v)",
			support.VMin, atoms[0])
	}
	if math.Abs(atoms[len(atoms)-1]-support.VMax) > tolerance {
		t.Errorf("wrong last atom \n\twant(%v)\n\thave(%v)",
			support.VMax, atoms[len(atoms)-1])
	}

	delta := support.Delta()
	for i := 1; i < len(atoms); i++ {
		if math.Abs(atoms[i]-atoms[i-1]-delta) > tolerance {
			t.Errorf("atoms %d and %d are not spaced by delta "+
				"\n\twant(%v)\n\thave(%v)", i-1, i, delta,
				atoms[i]-atoms[i-1])
		}
	}
}

func TestSupportValidate(t *testing.T) {
	if err := (Support{VMin: 0, VMax: 1, NumAtoms: 1}).Validate(); err == nil {
		t.Error("expected error for support with a single atom")
	}
	if err := (Support{VMin: 1, VMax: 1, NumAtoms: 5}).Validate(); err == nil {
		t.Error("expected error for support with vmin == vmax")
	}
	if err := (Support{VMin: -1, VMax: 1, NumAtoms: 5}).Validate(); err != nil {
		t.Errorf("unexpected error for legal support: %v", err)
	}
}

func TestSupportProject(t *testing.T) {
	support := Support{VMin: -1, VMax: 1, NumAtoms: 3}

	projected, err := support.Project(
		[]float64{0.5},
		[]float64{1.0},
		[][]float64{{0.2, 0.5, 0.3}},
	)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	// Atom -1 maps to -0.5, splitting 0.2 between atoms 0 and 1; atom
	// 0 maps to 0.5, splitting 0.5 between atoms 1 and 2; atom 1 maps
	// to 1.5, clipped to 1, placing 0.3 on atom 2.
	want := []float64{0.1, 0.35, 0.55}
	for i := range want {
		if math.Abs(projected[0][i]-want[i]) > tolerance {
			t.Errorf("wrong projected mass at atom %d "+
				"\n\twant(%v)\n\thave(%v)", i, want[i], projected[0][i])
		}
	}
}

func TestSupportProjectPreservesMass(t *testing.T) {
	support := Support{VMin: -10, VMax: 50, NumAtoms: 51}

	rewards := []float64{0, -3.25, 12.7, 100, -100}
	discounts := []float64{1, 0.99, 0.5, 1, 1}
	probs := make([][]float64, len(rewards))
	for b := range probs {
		probs[b] = make([]float64, support.NumAtoms)
		for i := range probs[b] {
			probs[b][i] = 1 / float64(support.NumAtoms)
		}
	}

	projected, err := support.Project(rewards, discounts, probs)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	for b := range projected {
		sum := 0.0
		for _, p := range projected[b] {
			sum += p
			if p < 0 {
				t.Errorf("row %d has negative mass %v", b, p)
			}
		}
		if math.Abs(sum-1) > tolerance {
			t.Errorf("row %d mass not preserved \n\twant(%v)"+
				"\n\thave(%v)", b, 1.0, sum)
		}
	}
}

func TestSupportProjectZeroDiscount(t *testing.T) {
	support := Support{VMin: -1, VMax: 1, NumAtoms: 3}

	// With a discount of 0, the projection is a point mass on the
	// reward regardless of the source distribution.
	projected, err := support.Project(
		[]float64{0},
		[]float64{0},
		[][]float64{{0.25, 0.25, 0.5}},
	)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	want := []float64{0, 1, 0}
	for i := range want {
		if math.Abs(projected[0][i]-want[i]) > tolerance {
			t.Errorf("wrong projected mass at atom %d "+
				"\n\twant(%v)\n\thave(%v)", i, want[i], projected[0][i])
		}
	}
}

func TestSupportProjectSizeMismatch(t *testing.T) {
	support := Support{VMin: -1, VMax: 1, NumAtoms: 3}

	_, err := support.Project([]float64{0, 1}, []float64{0},
		[][]float64{{1, 0, 0}})
	if err == nil {
		t.Error("expected error for mismatched argument lengths")
	}

	_, err = support.Project([]float64{0}, []float64{0},
		[][]float64{{1, 0}})
	if err == nil {
		t.Error("expected error for wrong number of atoms")
	}
}

func TestProbabilities(t *testing.T) {
	g := G.NewGraph()
	logits := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 3),
		G.WithName("logits"))

	probs := Probabilities(logits)
	var probsVal G.Value
	G.Read(probs, &probsVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	err := G.Let(logits, tensor.New(
		tensor.WithBacking([]float64{0, 0, 0, 1, 2, 3}),
		tensor.WithShape(2, 3),
	))
	if err != nil {
		t.Fatalf("could not set logits: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	have := probsVal.Data().([]float64)

	// Row 0 is uniform; row 1 is the softmax of [1, 2, 3]
	denom := math.Exp(1) + math.Exp(2) + math.Exp(3)
	want := []float64{
		1.0 / 3, 1.0 / 3, 1.0 / 3,
		math.Exp(1) / denom, math.Exp(2) / denom, math.Exp(3) / denom,
	}
	for i := range want {
		if math.Abs(have[i]-want[i]) > tolerance {
			t.Errorf("wrong probability at index %d \n\twant(%v)"+
				"\n\thave(%v)", i, want[i], have[i])
		}
	}
}

func TestExpectation(t *testing.T) {
	support := Support{VMin: -1, VMax: 1, NumAtoms: 3}

	g := G.NewGraph()
	logits := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 3),
		G.WithName("logits"))

	expectation := Expectation(logits, support)
	var expVal G.Value
	G.Read(expectation, &expVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	// Row 0 is a uniform distribution, whose expectation is the mean
	// of the atoms (0); row 1 places nearly all mass on the last atom.
	err := G.Let(logits, tensor.New(
		tensor.WithBacking([]float64{0, 0, 0, -500, -500, 0}),
		tensor.WithShape(2, 3),
	))
	if err != nil {
		t.Fatalf("could not set logits: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	have := expVal.Data().([]float64)
	if math.Abs(have[0]-0) > tolerance {
		t.Errorf("wrong expectation for uniform row \n\twant(%v)"+
			"\n\thave(%v)", 0.0, have[0])
	}
	if math.Abs(have[1]-1) > tolerance {
		t.Errorf("wrong expectation for point-mass row \n\twant(%v)"+
			"\n\thave(%v)", 1.0, have[1])
	}
}

func TestCrossEntropy(t *testing.T) {
	g := G.NewGraph()
	logits := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 3),
		G.WithName("logits"))
	target := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 3),
		G.WithName("target"))

	loss := CrossEntropy(logits, target)
	var lossVal G.Value
	G.Read(loss, &lossVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	// Uniform logits with a one-hot target give a loss of log(3)
	err := G.Let(logits, tensor.New(
		tensor.WithBacking([]float64{0, 0, 0}),
		tensor.WithShape(1, 3),
	))
	if err != nil {
		t.Fatalf("could not set logits: %v", err)
	}
	err = G.Let(target, tensor.New(
		tensor.WithBacking([]float64{1, 0, 0}),
		tensor.WithShape(1, 3),
	))
	if err != nil {
		t.Fatalf("could not set target: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	have := lossVal.Data().(float64)
	want := math.Log(3)
	if math.Abs(have-want) > tolerance {
		t.Errorf("wrong cross entropy \n\twant(%v)\n\thave(%v)", want,
			have)
	}
}

func TestMaskedMean(t *testing.T) {
	g := G.NewGraph()
	values := G.NewVector(g, tensor.Float64, G.WithShape(3),
		G.WithName("values"))
	mask := G.NewVector(g, tensor.Float64, G.WithShape(3),
		G.WithName("mask"))

	mean := MaskedMean(values, mask)
	var meanVal G.Value
	G.Read(mean, &meanVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	err := G.Let(values, tensor.New(
		tensor.WithBacking([]float64{2, 4, 6}),
		tensor.WithShape(3),
	))
	if err != nil {
		t.Fatalf("could not set values: %v", err)
	}
	err = G.Let(mask, tensor.New(
		tensor.WithBacking([]float64{1, 0, 1}),
		tensor.WithShape(3),
	))
	if err != nil {
		t.Fatalf("could not set mask: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	have := meanVal.Data().(float64)
	want := 4.0
	if math.Abs(have-want) > tolerance {
		t.Errorf("wrong masked mean \n\twant(%v)\n\thave(%v)", want, have)
	}
}

func TestMaskedCrossEntropy(t *testing.T) {
	g := G.NewGraph()
	logits := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 3),
		G.WithName("logits"))
	target := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 3),
		G.WithName("target"))
	mask := G.NewVector(g, tensor.Float64, G.WithShape(2),
		G.WithName("mask"))

	loss := MaskedCrossEntropy(logits, target, mask)
	var lossVal G.Value
	G.Read(loss, &lossVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	// Row 0 is uniform logits against a one-hot target (loss log(3));
	// row 1 is a padding row whose loss must not leak into the mean.
	err := G.Let(logits, tensor.New(
		tensor.WithBacking([]float64{0, 0, 0, 500, -500, 0}),
		tensor.WithShape(2, 3),
	))
	if err != nil {
		t.Fatalf("could not set logits: %v", err)
	}
	err = G.Let(target, tensor.New(
		tensor.WithBacking([]float64{1, 0, 0, 0, 0, 1}),
		tensor.WithShape(2, 3),
	))
	if err != nil {
		t.Fatalf("could not set target: %v", err)
	}
	err = G.Let(mask, tensor.New(
		tensor.WithBacking([]float64{1, 0}),
		tensor.WithShape(2),
	))
	if err != nil {
		t.Fatalf("could not set mask: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	have := lossVal.Data().(float64)
	want := math.Log(3)
	if math.Abs(have-want) > tolerance {
		t.Errorf("wrong masked cross entropy \n\twant(%v)\n\thave(%v)",
			want, have)
	}
}

func TestNewDistributionalMLP(t *testing.T) {
	support := Support{VMin: -10, VMax: 50, NumAtoms: 51}

	g := G.NewGraph()
	net, err := NewDistributionalMLP(4, 2, g, []int{8}, []bool{true},
		G.GlorotN(1.0), []*Activation{ReLU()}, support)
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	dist, ok := net.(Distributional)
	if !ok {
		t.Fatal("network does not report its support")
	}
	if dist.Support() != support {
		t.Errorf("wrong support \n\twant(%v)\n\thave(%v)", support,
			dist.Support())
	}
	if net.Outputs() != support.NumAtoms {
		t.Errorf("wrong number of outputs \n\twant(%v)\n\thave(%v)",
			support.NumAtoms, net.Outputs())
	}

	// The support should survive cloning
	clone, err := net.CloneWithBatch(7)
	if err != nil {
		t.Fatalf("could not clone network: %v", err)
	}
	cloneDist, ok := clone.(Distributional)
	if !ok {
		t.Fatal("clone does not report its support")
	}
	if cloneDist.Support() != support {
		t.Errorf("wrong clone support \n\twant(%v)\n\thave(%v)",
			support, cloneDist.Support())
	}
	if clone.BatchSize() != 7 {
		t.Errorf("wrong clone batch size \n\twant(%v)\n\thave(%v)", 7,
			clone.BatchSize())
	}
}
