package mad4pg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/replay/stream"
	"github.com/samuelfneumann/gomarl/solver"
	"github.com/samuelfneumann/gomarl/system/architecture"
)

// EnvironmentFactory constructs a new environment instance. Each
// executor of a system gets its own instance so that episodes can run
// concurrently.
type EnvironmentFactory func(seed uint64) (environment.Environment,
	error)

// Networks bundles the network constructors of a system. NewPolicy
// constructs a policy network for a network key with the given batch
// size and, when Recurrent is true, sequence length; feedforward
// constructors ignore seqLen. NewCritic constructs a distributional
// critic for a network key and batch size. Critics are always
// feedforward: recurrent trainers evaluate them on transition pairs
// drawn from sequences.
type Networks struct {
	NewPolicy func(key string, batch, seqLen int) (network.NeuralNet,
		error)
	NewCritic func(key string, batch int) (network.NeuralNet, error)
	Recurrent bool
}

// NetworkFactory constructs the network bundle of a system for an
// environment.
type NetworkFactory func(environment.Environment) (*Networks, error)

// Config holds the complete configuration of a MAD4PG system. The
// factory and solver fields cannot be expressed in YAML and must be
// set in code; all other fields may be loaded with LoadConfig.
type Config struct {
	Environment  EnvironmentFactory `yaml:"-"`
	Networks     NetworkFactory     `yaml:"-"`
	PolicySolver *solver.Solver     `yaml:"-"`
	CriticSolver *solver.Solver     `yaml:"-"`

	// Architecture determines what each agent's critic conditions
	// on. SharedWeights stores the networks of agents of the same
	// type under one key and requires a decentralised architecture.
	Architecture  architecture.Type `yaml:"architecture"`
	SharedWeights bool              `yaml:"shared_weights"`

	NumExecutors int `yaml:"num_executors"`

	BatchSize     int `yaml:"batch_size"`
	MinReplaySize int `yaml:"min_replay_size"`
	MaxReplaySize int `yaml:"max_replay_size"`

	// NStep is the horizon of the transition adder used with
	// feedforward networks.
	NStep int `yaml:"n_step"`

	// SequenceLength and Period control the sequence adder used with
	// recurrent networks, and BootstrapN the bootstrapping horizon
	// within each replayed sequence.
	SequenceLength int `yaml:"sequence_length"`
	Period         int `yaml:"period"`
	BootstrapN     int `yaml:"bootstrap_n"`

	// TargetUpdatePeriod is the number of trainer steps between
	// copies of the online networks into the target networks.
	TargetUpdatePeriod int `yaml:"target_update_period"`

	// SigmaNoise scales the Gaussian noise added to executor actions
	SigmaNoise float64 `yaml:"sigma_noise"`

	// VariableUpdatePeriod is the number of executor action
	// selections between pulls of the trainer's policy weights.
	VariableUpdatePeriod int `yaml:"variable_update_period"`

	Checkpoint      bool   `yaml:"checkpoint"`
	CheckpointDir   string `yaml:"checkpoint_dir"`
	CheckpointEvery int    `yaml:"checkpoint_every"`

	// LogEvery is the trainer's logging period in trainer steps and
	// the executors' logging period in episodes.
	LogEvery int `yaml:"log_every"`

	// Stream, when set, transports experience from executors to the
	// replay table over an external broker instead of in-process.
	Stream *stream.Config `yaml:"stream,omitempty"`

	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns a Config with default values for every field
// that does not require a factory.
func DefaultConfig() Config {
	return Config{
		Architecture:         architecture.Decentralised,
		SharedWeights:        true,
		NumExecutors:         1,
		BatchSize:            256,
		MinReplaySize:        1000,
		MaxReplaySize:        1000000,
		NStep:                5,
		SequenceLength:       20,
		Period:               10,
		BootstrapN:           5,
		TargetUpdatePeriod:   100,
		SigmaNoise:           0.3,
		VariableUpdatePeriod: 1000,
		CheckpointEvery:      60,
		LogEvery:             100,
	}
}

// LoadConfig reads a Config from the YAML file at path. Fields absent
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("loadconfig: could not read config "+
			"file: %v", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("loadconfig: could not parse config "+
			"file: %v", err)
	}

	return config, nil
}

// Validate returns an error describing the first problem found with
// the configuration.
func (c Config) Validate() error {
	if c.Environment == nil {
		return fmt.Errorf("validate: no environment factory given")
	}
	if c.Networks == nil {
		return fmt.Errorf("validate: no network factory given")
	}
	if c.PolicySolver == nil {
		return fmt.Errorf("validate: no policy solver given")
	}
	if c.CriticSolver == nil {
		return fmt.Errorf("validate: no critic solver given")
	}
	if err := c.Architecture.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.SharedWeights && c.Architecture != architecture.Decentralised {
		return fmt.Errorf("validate: %v critics are agent-specific "+
			"and cannot share weights", c.Architecture)
	}
	if c.NumExecutors < 1 {
		return fmt.Errorf("validate: executors must be positive "+
			"\n\twant(k > 0) \n\thave(%v)", c.NumExecutors)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\twant(k > 0) \n\thave(%v)", c.BatchSize)
	}
	if c.MinReplaySize < c.BatchSize {
		return fmt.Errorf("validate: minimum replay size is smaller "+
			"than the batch size \n\twant(k >= %v) \n\thave(%v)",
			c.BatchSize, c.MinReplaySize)
	}
	if c.MaxReplaySize < c.MinReplaySize {
		return fmt.Errorf("validate: maximum replay size is smaller "+
			"than the minimum replay size \n\twant(k >= %v) "+
			"\n\thave(%v)", c.MinReplaySize, c.MaxReplaySize)
	}
	if c.NStep < 1 {
		return fmt.Errorf("validate: bootstrapping horizon must be "+
			"positive \n\twant(k > 0) \n\thave(%v)", c.NStep)
	}
	if c.SequenceLength < 2 {
		return fmt.Errorf("validate: sequences need at least two "+
			"steps \n\twant(k >= 2) \n\thave(%v)", c.SequenceLength)
	}
	if c.Period < 1 || c.Period > c.SequenceLength {
		return fmt.Errorf("validate: sequence period must be in "+
			"[1, %v] \n\thave(%v)", c.SequenceLength, c.Period)
	}
	if c.BootstrapN < 1 || c.BootstrapN >= c.SequenceLength {
		return fmt.Errorf("validate: sequence bootstrapping horizon "+
			"must be in [1, %v) \n\thave(%v)", c.SequenceLength,
			c.BootstrapN)
	}
	if c.TargetUpdatePeriod < 1 {
		return fmt.Errorf("validate: target update period must be "+
			"positive \n\twant(k > 0) \n\thave(%v)",
			c.TargetUpdatePeriod)
	}
	if c.SigmaNoise < 0 {
		return fmt.Errorf("validate: exploration noise scale cannot "+
			"be negative \n\thave(%v)", c.SigmaNoise)
	}
	if c.VariableUpdatePeriod < 1 {
		return fmt.Errorf("validate: variable update period must be "+
			"positive \n\twant(k > 0) \n\thave(%v)",
			c.VariableUpdatePeriod)
	}
	if c.Checkpoint {
		if c.CheckpointDir == "" {
			return fmt.Errorf("validate: checkpointing requires a " +
				"directory")
		}
		if c.CheckpointEvery < 1 {
			return fmt.Errorf("validate: checkpoint period must be "+
				"positive \n\twant(k > 0) \n\thave(%v)",
				c.CheckpointEvery)
		}
	}
	if c.LogEvery < 1 {
		return fmt.Errorf("validate: logging period must be positive "+
			"\n\twant(k > 0) \n\thave(%v)", c.LogEvery)
	}
	return nil
}
