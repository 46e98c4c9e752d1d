package system

import (
	"context"
	"time"

	"github.com/samuelfneumann/gomarl/launcher"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/stream"
)

// retryWait is how long a trainer node waits before retrying a step
// when the replay table cannot fill a batch yet.
const retryWait = 10 * time.Millisecond

// ServiceNode hosts a shared value, such as a counter, that other
// nodes in the same process access directly. Its Run loop only waits
// for shutdown.
type ServiceNode struct {
	id    string
	value any
}

// NewServiceNode returns a node in the named group hosting value
func NewServiceNode(group string, value any) *ServiceNode {
	return &ServiceNode{id: launcher.NewID(group), value: value}
}

// ID returns the node's ID
func (n *ServiceNode) ID() string {
	return n.id
}

// Value returns the hosted value
func (n *ServiceNode) Value() any {
	return n.value
}

// Run blocks until ctx is cancelled
func (n *ServiceNode) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// ReplayNode hosts a replay table. When given an experience stream,
// its Run loop consumes the stream into the table; otherwise adders
// write to the table directly and Run only waits for shutdown.
type ReplayNode struct {
	id      string
	table   *replay.Table
	stream  stream.Stream
	workers int
}

// NewReplayNode returns a replay node serving table. A nil s means
// executors in the same process add to the table directly.
func NewReplayNode(table *replay.Table, s stream.Stream,
	workers int) *ReplayNode {
	return &ReplayNode{
		id:      launcher.NewID("replay"),
		table:   table,
		stream:  s,
		workers: workers,
	}
}

// ID returns the node's ID
func (n *ReplayNode) ID() string {
	return n.id
}

// Table returns the hosted replay table
func (n *ReplayNode) Table() *replay.Table {
	return n.table
}

// Run serves the table until ctx is cancelled
func (n *ReplayNode) Run(ctx context.Context) error {
	if n.stream == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return n.stream.Consume(ctx, n.workers, stream.TableHandler(n.table))
}

// TrainerNode runs a trainer's Step loop until cancellation or the
// first training error.
type TrainerNode struct {
	id      string
	trainer Trainer
}

// NewTrainerNode returns a node in the trainer group running t
func NewTrainerNode(t Trainer) *TrainerNode {
	return &TrainerNode{id: launcher.NewID("trainer"), trainer: t}
}

// ID returns the node's ID
func (n *TrainerNode) ID() string {
	return n.id
}

// Trainer returns the wrapped trainer, which tests drive directly
// after disabling the node's Run loop.
func (n *TrainerNode) Trainer() Trainer {
	return n.trainer
}

// Run steps the trainer until ctx is cancelled or a step fails.
// Steps attempted before the replay table can fill a batch are
// retried after a short wait rather than treated as failures.
func (n *TrainerNode) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := n.trainer.Step()
		switch {
		case err == nil:

		case replay.IsEmptyTable(err), replay.IsInsufficientSamples(err):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryWait):
			}

		default:
			return err
		}
	}
}

// CancelNode propagates program shutdown to a context created outside
// the launcher, such as the publish context bounding stream writers.
type CancelNode struct {
	id     string
	cancel context.CancelFunc
}

// NewCancelNode returns a node in the given group that calls cancel
// when the program shuts down.
func NewCancelNode(group string, cancel context.CancelFunc) *CancelNode {
	return &CancelNode{id: launcher.NewID(group), cancel: cancel}
}

// ID returns the node's ID
func (n *CancelNode) ID() string {
	return n.id
}

// Run waits for ctx to be cancelled, then cancels the linked context
func (n *CancelNode) Run(ctx context.Context) error {
	<-ctx.Done()
	n.cancel()
	return ctx.Err()
}
