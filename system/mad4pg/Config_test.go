package mad4pg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/gomarl/system/architecture"
)

// validTestConfig returns a fully populated configuration that
// validates cleanly.
func validTestConfig(t *testing.T) Config {
	t.Helper()
	return feedforwardTestConfig(t, architecture.Decentralised, true,
		false)
}

func TestConfigValidate(t *testing.T) {
	conf := validTestConfig(t)
	if err := conf.Validate(); err != nil {
		t.Errorf("valid configuration did not validate: %v", err)
	}
}

func TestConfigValidateRequiresFactories(t *testing.T) {
	conf := validTestConfig(t)
	conf.Environment = nil
	if err := conf.Validate(); err == nil {
		t.Error("validated a configuration without an environment " +
			"factory")
	}

	conf = validTestConfig(t)
	conf.Networks = nil
	if err := conf.Validate(); err == nil {
		t.Error("validated a configuration without a network factory")
	}

	conf = validTestConfig(t)
	conf.PolicySolver = nil
	if err := conf.Validate(); err == nil {
		t.Error("validated a configuration without a policy solver")
	}
}

func TestConfigValidateSharedWeights(t *testing.T) {
	for _, arch := range []architecture.Type{
		architecture.CentralisedQValueCritic,
		architecture.StateBasedQValueCritic,
	} {
		conf := validTestConfig(t)
		conf.Architecture = arch
		conf.SharedWeights = true
		if err := conf.Validate(); err == nil {
			t.Errorf("validated shared weights with %v critics", arch)
		}
	}
}

func TestConfigValidateReplaySizes(t *testing.T) {
	conf := validTestConfig(t)
	conf.MinReplaySize = conf.BatchSize - 1
	if err := conf.Validate(); err == nil {
		t.Error("validated a minimum replay size below the batch size")
	}

	conf = validTestConfig(t)
	conf.MaxReplaySize = conf.MinReplaySize - 1
	if err := conf.Validate(); err == nil {
		t.Error("validated a maximum replay size below the minimum")
	}
}

func TestConfigValidateSequence(t *testing.T) {
	conf := validTestConfig(t)
	conf.BootstrapN = conf.SequenceLength
	if err := conf.Validate(); err == nil {
		t.Error("validated a bootstrapping horizon spanning the " +
			"whole sequence")
	}

	conf = validTestConfig(t)
	conf.Period = conf.SequenceLength + 1
	if err := conf.Validate(); err == nil {
		t.Error("validated a sequence period longer than the sequence")
	}
}

func TestConfigValidateCheckpoint(t *testing.T) {
	conf := validTestConfig(t)
	conf.Checkpoint = true
	conf.CheckpointDir = ""
	if err := conf.Validate(); err == nil {
		t.Error("validated checkpointing without a directory")
	}
}

func TestLoadConfig(t *testing.T) {
	data := []byte(`architecture: centralised
shared_weights: false
batch_size: 64
sequence_length: 8
seed: 7
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("could not write config file: %v", err)
	}

	conf, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("could not load config: %v", err)
	}

	if conf.Architecture != architecture.CentralisedQValueCritic {
		t.Errorf("wrong architecture \n\twant(%v) \n\thave(%v)",
			architecture.CentralisedQValueCritic, conf.Architecture)
	}
	if conf.SharedWeights {
		t.Error("shared weights were not overridden")
	}
	if conf.BatchSize != 64 {
		t.Errorf("wrong batch size \n\twant(%v) \n\thave(%v)", 64,
			conf.BatchSize)
	}
	if conf.SequenceLength != 8 {
		t.Errorf("wrong sequence length \n\twant(%v) \n\thave(%v)", 8,
			conf.SequenceLength)
	}
	if conf.Seed != 7 {
		t.Errorf("wrong seed \n\twant(%v) \n\thave(%v)", 7, conf.Seed)
	}

	// Fields absent from the file keep their defaults
	def := DefaultConfig()
	if conf.NStep != def.NStep {
		t.Errorf("wrong transition horizon \n\twant(%v) \n\thave(%v)",
			def.NStep, conf.NStep)
	}
	if conf.SigmaNoise != def.SigmaNoise {
		t.Errorf("wrong noise scale \n\twant(%v) \n\thave(%v)",
			def.SigmaNoise, conf.SigmaNoise)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.yaml")
	if _, err := LoadConfig(path); err == nil {
		t.Error("loaded a config from a missing file")
	}
}
