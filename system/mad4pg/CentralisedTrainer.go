package mad4pg

import (
	"github.com/samuelfneumann/gomarl/counter"
	"github.com/samuelfneumann/gomarl/loggers"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/adders"
	"github.com/samuelfneumann/gomarl/system/architecture"
)

// CentralisedTrainer learns centralised critics: each agent's critic
// conditions on every agent's observations and actions. Policies stay
// decentralised, so execution needs only local observations.
type CentralisedTrainer struct {
	*trainer
}

// NewCentralisedTrainer creates a trainer with centralised critics.
// Centralised critics are agent-specific, so cfg must not request
// shared weights.
func NewCentralisedTrainer(cfg Config, nets *Networks,
	dims adders.Dims, table *replay.Table, count *counter.Counter,
	logger loggers.Logger) (*CentralisedTrainer, error) {
	t, err := newTrainer(architecture.CentralisedQValueCritic, cfg,
		nets, dims, table, count, logger)
	if err != nil {
		return nil, err
	}
	return &CentralisedTrainer{trainer: t}, nil
}
