// Package checkpointer saves the policy weights of a running system
// to disk at a fixed interval. Checkpoints are written per network
// key, one gob-encoded file of learnable tensors each, and can be
// restored into any network with the same layer shapes.
package checkpointer

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gomarl/launcher"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/system"
)

// Checkpointer periodically copies policy weights from a variable
// source into shadow networks and writes them to disk.
type Checkpointer struct {
	id     string
	dir    string
	source system.VariableSource
	nets   map[string]network.NeuralNet
	every  time.Duration
}

// New creates a checkpointer writing the networks in nets to dir every
// interval. When source is non-nil, fresh weights are pulled from it
// before every write.
func New(dir string, source system.VariableSource,
	nets map[string]network.NeuralNet,
	every time.Duration) (*Checkpointer, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpointer: no directory given")
	}
	if len(nets) == 0 {
		return nil, fmt.Errorf("checkpointer: no networks given")
	}
	if every <= 0 {
		return nil, fmt.Errorf("checkpointer: checkpoint interval "+
			"must be positive \n\thave(%v)", every)
	}

	return &Checkpointer{
		id:     launcher.NewID("checkpointer"),
		dir:    dir,
		source: source,
		nets:   nets,
		every:  every,
	}, nil
}

// ID returns the checkpointer's node ID
func (c *Checkpointer) ID() string {
	return c.id
}

// Run writes checkpoints every interval until ctx is cancelled, then
// writes one final checkpoint.
func (c *Checkpointer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := c.checkpoint(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if err := c.checkpoint(); err != nil {
				return err
			}
		}
	}
}

func (c *Checkpointer) checkpoint() error {
	if c.source != nil {
		if err := c.source.CopyPoliciesTo(c.nets); err != nil {
			return fmt.Errorf("checkpoint: %v", err)
		}
	}
	return c.Save()
}

// Save writes every network's learnable weights to the checkpoint
// directory, one file per network key.
func (c *Checkpointer) Save() error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("save: could not create checkpoint "+
			"directory: %v", err)
	}

	for key, net := range c.nets {
		if err := save(filepath.Join(c.dir, key+".bin"),
			net); err != nil {
			return fmt.Errorf("save: could not checkpoint %v: %v", key,
				err)
		}
	}
	return nil
}

func save(path string, net network.NeuralNet) error {
	learnables := net.Learnables()
	weights := make([]*tensor.Dense, len(learnables))
	for i, learnable := range learnables {
		dense, ok := learnable.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("learnable %v holds no dense tensor",
				learnable.Name())
		}
		weights[i] = dense
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return gob.NewEncoder(f).Encode(weights)
}

// Restore loads the checkpoint files in dir into nets, keyed by
// network key. Every network must have a checkpoint file with
// matching learnable shapes.
func Restore(dir string, nets map[string]network.NeuralNet) error {
	for key, net := range nets {
		if err := restore(filepath.Join(dir, key+".bin"),
			net); err != nil {
			return fmt.Errorf("restore: could not restore %v: %v", key,
				err)
		}
	}
	return nil
}

func restore(path string, net network.NeuralNet) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var weights []*tensor.Dense
	if err := gob.NewDecoder(f).Decode(&weights); err != nil {
		return fmt.Errorf("could not decode weights: %v", err)
	}

	learnables := net.Learnables()
	if len(weights) != len(learnables) {
		return fmt.Errorf("checkpoint holds %v tensors "+
			"\n\twant(%v)", len(weights), len(learnables))
	}
	for i, learnable := range learnables {
		if !learnable.Shape().Eq(weights[i].Shape()) {
			return fmt.Errorf("tensor %v has shape %v \n\twant(%v)",
				i, weights[i].Shape(), learnable.Shape())
		}
		if err := G.Let(learnable, weights[i]); err != nil {
			return fmt.Errorf("could not set weights: %v", err)
		}
	}
	return nil
}
