// Package initwfn wraps Gorgonia weight initialisation functions in
// serializable configurations so that experiment files can name an
// initialisation scheme and its parameters.
package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type names a weight initialisation scheme
type Type string

// Available initialisation schemes
const (
	GlorotU  Type = "glorot_uniform"
	GlorotN  Type = "glorot_normal"
	HeU      Type = "he_uniform"
	HeN      Type = "he_normal"
	Zeroes   Type = "zeroes"
	Ones     Type = "ones"
	Constant Type = "constant"
	Uniform  Type = "uniform"
	Gaussian Type = "gaussian"
)

// Config describes an initialisation scheme. Fields irrelevant to the
// configured Type are ignored.
type Config struct {
	Type Type `yaml:"type"`

	// Glorot and He
	Gain float64 `yaml:"gain,omitempty"`

	// Constant
	Value float64 `yaml:"value,omitempty"`

	// Uniform
	Low  float64 `yaml:"low,omitempty"`
	High float64 `yaml:"high,omitempty"`

	// Gaussian
	Mean   float64 `yaml:"mean,omitempty"`
	StdDev float64 `yaml:"stddev,omitempty"`
}

// Validate returns an error describing why the configuration cannot
// construct an initialisation function
func (c Config) Validate() error {
	switch c.Type {
	case GlorotU, GlorotN, HeU, HeN, Zeroes, Ones, Constant, Uniform,
		Gaussian:
	default:
		return fmt.Errorf("validate: unknown initialisation scheme "+
			"%q", c.Type)
	}
	if c.Type == Uniform && c.Low >= c.High {
		return fmt.Errorf("validate: uniform bounds out of order "+
			"\n\twant(low < high) \n\thave([%v, %v])", c.Low, c.High)
	}
	if c.Type == Gaussian && c.StdDev < 0 {
		return fmt.Errorf("validate: standard deviation cannot be "+
			"negative \n\thave(%v)", c.StdDev)
	}
	return nil
}

// Create constructs the Gorgonia initialisation function the
// configuration describes
func (c Config) Create() G.InitWFn {
	switch c.Type {
	case GlorotU:
		return G.GlorotU(c.Gain)
	case GlorotN:
		return G.GlorotN(c.Gain)
	case HeU:
		return G.HeU(c.Gain)
	case HeN:
		return G.HeN(c.Gain)
	case Zeroes:
		return G.Zeroes()
	case Ones:
		return G.Ones()
	case Constant:
		return G.ValuesOf(c.Value)
	case Uniform:
		return G.Uniform(c.Low, c.High)
	default:
		return G.Gaussian(c.Mean, c.StdDev)
	}
}

// InitWFn is a weight initialisation function together with the
// configuration that built it
type InitWFn struct {
	initWFn G.InitWFn
	Config
}

// New validates c and wraps an initialisation function built from it
func New(c Config) (*InitWFn, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("initwfn: %v", err)
	}
	return &InitWFn{initWFn: c.Create(), Config: c}, nil
}

// InitWFn returns the wrapped Gorgonia initialisation function
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// String implements the fmt.Stringer interface
func (w *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %+v}", w.Type, w.Config)
}
