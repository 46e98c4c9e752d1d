// Package solver wraps Gorgonia solvers in serializable
// configurations so that experiment files can name an optimiser and
// its hyperparameters.
package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type names a gradient descent algorithm
type Type string

// Available solver types
const (
	Adam    Type = "adam"
	RMSProp Type = "rmsprop"
	Vanilla Type = "vanilla"
)

// Config describes a solver. Fields irrelevant to the configured Type
// are ignored.
type Config struct {
	Type     Type    `yaml:"type"`
	StepSize float64 `yaml:"step_size"`
	Batch    int     `yaml:"batch"`

	// Adam and RMSProp
	Epsilon float64 `yaml:"epsilon,omitempty"`

	// Adam
	Beta1 float64 `yaml:"beta1,omitempty"`
	Beta2 float64 `yaml:"beta2,omitempty"`

	// RMSProp
	Rho float64 `yaml:"rho,omitempty"`

	// Vanilla and RMSProp. Gradients are left unclipped when Clip is
	// not positive.
	Clip float64 `yaml:"clip,omitempty"`
}

// Validate returns an error describing why the configuration cannot
// construct a solver
func (c Config) Validate() error {
	switch c.Type {
	case Adam, RMSProp, Vanilla:
	default:
		return fmt.Errorf("validate: unknown solver type %q", c.Type)
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("validate: step size must be positive "+
			"\n\twant(x > 0) \n\thave(%v)", c.StepSize)
	}
	if c.Batch < 1 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\twant(k > 0) \n\thave(%v)", c.Batch)
	}
	return nil
}

// Create constructs a fresh Gorgonia solver from the configuration.
// Every call returns an independent solver: algorithms with internal
// state, such as Adam's moment estimates, must not be shared between
// networks.
func (c Config) Create() G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(c.StepSize),
		G.WithBatchSize(float64(c.Batch)),
	}

	switch c.Type {
	case Adam:
		opts = append(opts, G.WithEps(c.Epsilon),
			G.WithBeta1(c.Beta1), G.WithBeta2(c.Beta2))
		return G.NewAdamSolver(opts...)

	case RMSProp:
		opts = append(opts, G.WithEps(c.Epsilon), G.WithRho(c.Rho))
		if c.Clip > 0 {
			opts = append(opts, G.WithClip(c.Clip))
		}
		return G.NewRMSPropSolver(opts...)

	default:
		if c.Clip > 0 {
			opts = append(opts, G.WithClip(c.Clip))
		}
		return G.NewVanillaSolver(opts...)
	}
}

// Solver is a Gorgonia solver together with the configuration that
// built it, so that holders can mint further independent solvers of
// the same configuration with Config.Create.
type Solver struct {
	G.Solver
	Config
}

// New validates c and wraps a solver built from it
func New(c Config) (*Solver, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("solver: %v", err)
	}
	return &Solver{Solver: c.Create(), Config: c}, nil
}
