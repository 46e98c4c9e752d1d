package mad4pg

import (
	"github.com/samuelfneumann/gomarl/counter"
	"github.com/samuelfneumann/gomarl/loggers"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/adders"
	"github.com/samuelfneumann/gomarl/system/architecture"
)

// StateBasedTrainer learns state-based critics: each agent's critic
// conditions on the environment's global state and every agent's
// actions. The environment must report a global state.
type StateBasedTrainer struct {
	*trainer
}

// NewStateBasedTrainer creates a trainer with state-based critics.
// State-based critics are agent-specific, so cfg must not request
// shared weights.
func NewStateBasedTrainer(cfg Config, nets *Networks, dims adders.Dims,
	table *replay.Table, count *counter.Counter,
	logger loggers.Logger) (*StateBasedTrainer, error) {
	t, err := newTrainer(architecture.StateBasedQValueCritic, cfg,
		nets, dims, table, count, logger)
	if err != nil {
		return nil, err
	}
	return &StateBasedTrainer{trainer: t}, nil
}
