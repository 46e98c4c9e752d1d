// Package mad4pg implements multi-agent distributed distributional
// deep deterministic policy gradients. A system couples decentralised
// policies with distributional critics trained from a replay table
// that one or more executors feed, and assembles every part into the
// node groups of a launchable program: replay, counter, trainer,
// executor, evaluator, and, optionally, checkpointer. Critics
// condition on whatever the configured architecture dictates, and
// policies may be feedforward or recurrent.
package mad4pg

import (
	"context"
	"fmt"
	"time"

	"github.com/samuelfneumann/gomarl/checkpointer"
	"github.com/samuelfneumann/gomarl/counter"
	"github.com/samuelfneumann/gomarl/envloop"
	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/launcher"
	"github.com/samuelfneumann/gomarl/loggers"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/adders"
	"github.com/samuelfneumann/gomarl/replay/stream"
	"github.com/samuelfneumann/gomarl/system"
	"github.com/samuelfneumann/gomarl/system/architecture"
)

// MAD4PG is a multi-agent distributed distributional deep
// deterministic policy gradient system.
type MAD4PG struct {
	config Config
}

// New returns a system with the given configuration
func New(config Config) (*MAD4PG, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("mad4pg: %v", err)
	}
	return &MAD4PG{config: config}, nil
}

// Build constructs the system's program: its replay server, counter,
// trainer, executors, evaluator, and, when configured, checkpointer.
// The returned program has not been launched; tests drive single
// nodes through their handles instead.
func (m *MAD4PG) Build() (*launcher.Program, error) {
	cfg := m.config

	env, err := cfg.Environment(cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("build: could not create "+
			"environment: %v", err)
	}
	dims := architecture.EnvDims(env)
	if err := architecture.ValidateShared(dims,
		cfg.SharedWeights); err != nil {
		return nil, fmt.Errorf("build: %v", err)
	}
	if cfg.Architecture == architecture.StateBasedQValueCritic &&
		dims.StateDim < 1 {
		return nil, fmt.Errorf("build: state-based critics require " +
			"an environment with global state")
	}

	nets, err := cfg.Networks(env)
	if err != nil {
		return nil, fmt.Errorf("build: could not create networks: %v",
			err)
	}
	if nets.Recurrent && cfg.Architecture != architecture.Decentralised {
		return nil, fmt.Errorf("build: recurrent policies support " +
			"decentralised critics only")
	}

	var layout replay.Layout
	if nets.Recurrent {
		layout = adders.SequenceLayout(dims, cfg.SequenceLength)
	} else {
		layout = adders.NStepLayout(dims)
	}
	table, err := replay.New(
		layout,
		replay.NewFifoSelector(1),
		replay.NewUniformSelector(cfg.BatchSize, int64(cfg.Seed)),
		cfg.MinReplaySize,
		cfg.MaxReplaySize,
	)
	if err != nil {
		return nil, fmt.Errorf("build: %v", err)
	}

	// Executors write to the table directly unless a stream transport
	// is configured. Writers publish under a context that a dedicated
	// node cancels at shutdown, unblocking any executor mid-publish.
	var s stream.Stream
	var writerCtx context.Context
	var stopPublish context.CancelFunc
	if cfg.Stream != nil {
		s, err = cfg.Stream.Create()
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}
		writerCtx, stopPublish = context.WithCancel(
			context.Background())
	}

	program := launcher.NewProgram("mad4pg")
	program.AddNode("replay",
		system.NewReplayNode(table, s, cfg.NumExecutors))
	if stopPublish != nil {
		program.AddNode("replay",
			system.NewCancelNode("replay", stopPublish))
	}

	count := counter.New()
	program.AddNode("counter", system.NewServiceNode("counter", count))

	var train system.Trainer
	var source system.VariableSource
	trainLogger := loggers.NewTerminal("trainer", nil)
	switch {
	case nets.Recurrent:
		t, err := NewRecurrentTrainer(cfg, nets, dims, table, count,
			trainLogger)
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}
		train, source = t, t

	case cfg.Architecture == architecture.CentralisedQValueCritic:
		t, err := NewCentralisedTrainer(cfg, nets, dims, table, count,
			trainLogger)
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}
		train, source = t, t

	case cfg.Architecture == architecture.StateBasedQValueCritic:
		t, err := NewStateBasedTrainer(cfg, nets, dims, table, count,
			trainLogger)
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}
		train, source = t, t

	default:
		t, err := NewTrainer(cfg, nets, dims, table, count,
			trainLogger)
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}
		train, source = t, t
	}
	program.AddNode("trainer", system.NewTrainerNode(train))

	for i := 0; i < cfg.NumExecutors; i++ {
		e := env
		if i > 0 {
			e, err = cfg.Environment(cfg.Seed + uint64(i))
			if err != nil {
				return nil, fmt.Errorf("build: could not create "+
					"environment: %v", err)
			}
		}

		var w replay.Writer = table
		if s != nil {
			w = stream.NewWriter(writerCtx, s)
		}
		var adder adders.Adder
		if nets.Recurrent {
			adder, err = adders.NewSequence(dims, cfg.SequenceLength,
				cfg.Period, w)
		} else {
			adder, err = adders.NewNStep(dims, cfg.NStep, w)
		}
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}

		executor, err := m.newExecutor(e, nets, cfg.SigmaNoise,
			cfg.Seed+uint64(i), adder, source)
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}

		loop, err := envloop.New(e, executor,
			envloop.WithGroup("executor"),
			envloop.WithCounter(count, counter.ExecutorSteps,
				counter.ExecutorEpisodes),
			envloop.WithLogger(loggers.NewTerminal(
				fmt.Sprintf("executor-%d", i), nil)),
			envloop.WithLogEvery(cfg.LogEvery),
		)
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}
		program.AddNode("executor", loop)
	}

	// The evaluator runs the greedy policies in its own environment
	// and records nothing
	evalEnv, err := cfg.Environment(cfg.Seed + uint64(cfg.NumExecutors))
	if err != nil {
		return nil, fmt.Errorf("build: could not create "+
			"environment: %v", err)
	}
	evalExecutor, err := m.newExecutor(evalEnv, nets, 0,
		cfg.Seed+uint64(cfg.NumExecutors), nil, source)
	if err != nil {
		return nil, fmt.Errorf("build: %v", err)
	}
	evalLoop, err := envloop.New(evalEnv, evalExecutor,
		envloop.WithGroup("evaluator"),
		envloop.WithCounter(count, counter.EvaluatorSteps, ""),
		envloop.WithLogger(loggers.NewTerminal("evaluator", nil)),
		envloop.WithLogEvery(cfg.LogEvery),
	)
	if err != nil {
		return nil, fmt.Errorf("build: %v", err)
	}
	program.AddNode("evaluator", evalLoop)

	if cfg.Checkpoint {
		shadow := make(map[string]network.NeuralNet)
		for _, key := range architecture.NetworkKeys(dims.Agents,
			cfg.SharedWeights) {
			net, err := nets.NewPolicy(key, 1, 1)
			if err != nil {
				return nil, fmt.Errorf("build: %v", err)
			}
			shadow[key] = net
		}
		cp, err := checkpointer.New(cfg.CheckpointDir, source, shadow,
			time.Duration(cfg.CheckpointEvery)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("build: %v", err)
		}
		program.AddNode("checkpointer", cp)
	}

	return program, nil
}

// newExecutor creates the executor matching the network bundle
func (m *MAD4PG) newExecutor(e environment.Environment, nets *Networks,
	sigma float64, seed uint64, adder adders.Adder,
	source system.VariableSource) (system.Executor, error) {
	if nets.Recurrent {
		return NewRecurrentExecutor(e, nets, m.config.SharedWeights,
			sigma, seed, adder, source, m.config.VariableUpdatePeriod)
	}
	return NewFeedforwardExecutor(e, nets, m.config.SharedWeights,
		sigma, seed, adder, source, m.config.VariableUpdatePeriod)
}
