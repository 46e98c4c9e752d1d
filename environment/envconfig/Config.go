// Package envconfig provides serializable configurations for
// constructing environments with default parameters. Configurations
// are YAML serializable so that experiment files can name the
// environment they run on.
//
// Environments requiring programmatic arguments, such as the
// cooperative maze's initialisation algorithm, are constructed in
// code rather than through this package.
package envconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/environment/box2d/spread"
	"github.com/samuelfneumann/gomarl/environment/gymbridge"
	"github.com/samuelfneumann/gomarl/timestep"
)

// EnvName names the environments that can be configured with this
// package
type EnvName string

// Environments available for configuration
const (
	Spread EnvName = "Spread"
	Gym    EnvName = "Gym"
)

// Config describes a specific configuration of a specific
// environment
type Config struct {
	Environment EnvName `yaml:"environment"`

	// Discount reported on every timestep
	Discount float64 `yaml:"discount"`

	// NumAgents and StateInfo configure the spread environment
	NumAgents int  `yaml:"num_agents,omitempty"`
	StateInfo bool `yaml:"state_info,omitempty"`

	// GymName names the wrapped environment when Environment is Gym
	GymName string `yaml:"gym_name,omitempty"`
}

// NewConfig returns a configuration of the spread environment
func NewConfig(envName EnvName, numAgents int, discount float64) Config {
	return Config{
		Environment: envName,
		NumAgents:   numAgents,
		Discount:    discount,
	}
}

// Load reads a Config from the YAML file at path
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	return c, nil
}

// Validate returns an error describing why the configuration cannot
// be created, or nil if it can
func (c Config) Validate() error {
	switch c.Environment {
	case Spread:
		if c.NumAgents < 1 {
			return fmt.Errorf("validate: spread requires at least "+
				"one agent \n\thave(%v)", c.NumAgents)
		}
	case Gym:
		if c.GymName == "" {
			return fmt.Errorf("validate: no gym environment named")
		}
	default:
		return fmt.Errorf("validate: no such environment %v",
			c.Environment)
	}

	if c.Discount < 0.0 || c.Discount > 1.0 {
		return fmt.Errorf("validate: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Discount)
	}
	return nil
}

// Create returns the environment described by the Config along with
// the first timestep of its first episode
func (c Config) Create(seed uint64) (environment.Environment,
	timestep.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("create: %v", err)
	}

	switch c.Environment {
	case Spread:
		var opts []spread.Option
		if c.StateInfo {
			opts = append(opts, spread.WithStateInfo())
		}
		return spread.New(c.NumAgents, c.Discount, seed, opts...)

	case Gym:
		return gymbridge.New(c.GymName, c.Discount, seed)
	}

	return nil, timestep.TimeStep{}, fmt.Errorf("create: no such "+
		"environment %v", c.Environment)
}

// Factory returns an environment factory closing over the Config,
// suitable for system configurations that construct one environment
// per executor.
func (c Config) Factory() func(seed uint64) (environment.Environment,
	error) {
	return func(seed uint64) (environment.Environment, error) {
		e, _, err := c.Create(seed)
		return e, err
	}
}
