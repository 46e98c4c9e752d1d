package system

import (
	"fmt"

	"github.com/samuelfneumann/gomarl/network"
)

// VariableSource provides the newest policy weights of a training
// process. Trainers implement this interface, guarding the copy with
// their own lock so executors can pull mid-training.
type VariableSource interface {
	// CopyPoliciesTo copies the current policy weights into each
	// network in nets. The keys of nets must be network keys known to
	// the source.
	CopyPoliciesTo(nets map[string]network.NeuralNet) error
}

// VariableClient refreshes an executor's behaviour networks from a
// VariableSource every period calls to Update.
type VariableClient struct {
	source VariableSource
	nets   map[string]network.NeuralNet
	period int
	calls  int
}

// NewVariableClient returns a client pulling weights into nets from
// source on the first Update and every period Updates thereafter.
func NewVariableClient(source VariableSource,
	nets map[string]network.NeuralNet, period int) (*VariableClient,
	error) {
	if source == nil {
		return nil, fmt.Errorf("newVariableClient: no source given")
	}
	if period <= 0 {
		return nil, fmt.Errorf("newVariableClient: period must be "+
			"positive \n\thave(%v)", period)
	}

	return &VariableClient{
		source: source,
		nets:   nets,
		period: period,
	}, nil
}

// Update pulls the newest weights if they are due
func (c *VariableClient) Update() error {
	due := c.calls%c.period == 0
	c.calls++
	if !due {
		return nil
	}
	return c.Pull()
}

// Pull immediately copies the newest weights into the client's
// networks.
func (c *VariableClient) Pull() error {
	return c.source.CopyPoliciesTo(c.nets)
}
