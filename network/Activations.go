package network

import (
	G "gorgonia.org/gorgonia"
)

// Activation is a named activation function applied by fully
// connected layers. The name travels with the function so that layers
// and networks can describe themselves.
type Activation struct {
	name string
	f    func(x *G.Node) (*G.Node, error)
}

// fwd applies the activation to x
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the fmt.Stringer interface
func (a *Activation) String() string {
	return a.name
}

// IsIdentity returns whether the Activation is the identity function
func (a *Activation) IsIdentity() bool {
	return a.name == "identity"
}

// IsNil returns whether the Activation applies no function at all
func (a *Activation) IsNil() bool {
	return a.name == "nil"
}

// Nil returns an Activation applying no function at all
func Nil() *Activation {
	return &Activation{name: "nil"}
}

// Identity returns the identity Activation
func Identity() *Activation {
	return &Activation{
		name: "identity",
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns the rectified linear unit Activation
func ReLU() *Activation {
	return &Activation{name: "relu", f: G.Rectify}
}

// TanH returns the hyperbolic tangent Activation
func TanH() *Activation {
	return &Activation{name: "tanh", f: G.Tanh}
}

// Sigmoid returns the logistic sigmoid Activation
func Sigmoid() *Activation {
	return &Activation{name: "sigmoid", f: G.Sigmoid}
}
