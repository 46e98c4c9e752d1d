package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, a discount, a
// reward, or a global environment state.
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
	State
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, reward, or
// state in an environment
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// argument describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match upper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// NewContinuousSpec constructs a continuous specification of dims
// dimensions where every dimension shares the bounds [low, high]
func NewContinuousSpec(dims int, t SpecType, low, high float64) Spec {
	shape := make([]float64, dims)
	lower := make([]float64, dims)
	upper := make([]float64, dims)
	for i := range shape {
		lower[i] = low
		upper[i] = high
	}

	return NewSpec(mat.NewVecDense(dims, shape), t,
		mat.NewVecDense(dims, lower), mat.NewVecDense(dims, upper),
		Continuous)
}

// Dims returns the number of dimensions of the data described by the
// specification
func (s Spec) Dims() int {
	return s.Shape.Len()
}
