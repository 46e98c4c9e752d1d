// Package launcher assembles the node groups of a multi-agent system
// and runs them in a single process. A Program collects built nodes
// into named groups, and Launch starts each node's Run loop in its own
// goroutine. Handles give synchronous access to the built node values,
// which tests use to drive individual nodes directly.
package launcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Node is a unit of computation run by a launched program, such as a
// replay server, a trainer, or an environment-executor loop. Run
// should block until ctx is cancelled or the node's work is done.
type Node interface {
	ID() string
	Run(ctx context.Context) error
}

// NewID returns a fresh node ID prefixed with the node's group name
func NewID(group string) string {
	return group + "-" + uuid.NewString()
}

// entry tracks one added node and whether its Run loop is enabled
type entry struct {
	group    string
	node     Node
	disabled bool
}

// Handle refers to a node added to a Program
type Handle struct {
	entry *entry
}

// Dereference returns the built node value. Callers type-assert to the
// concrete node to drive it synchronously.
func (h *Handle) Dereference() Node {
	return h.entry.node
}

// DisableRun marks the node so Launch builds but never runs it. The
// node remains reachable through Dereference.
func (h *Handle) DisableRun() {
	h.entry.disabled = true
}

// Program is an ordered collection of named node groups making up one
// system. Programs are assembled by a single goroutine before Launch.
type Program struct {
	name    string
	entries []*entry
	handles map[string][]*Handle
}

// NewProgram returns an empty program with the given name
func NewProgram(name string) *Program {
	return &Program{
		name:    name,
		handles: make(map[string][]*Handle),
	}
}

// Name returns the program's name
func (p *Program) Name() string {
	return p.name
}

// AddNode adds node to the named group and returns its handle
func (p *Program) AddNode(group string, node Node) *Handle {
	e := &entry{group: group, node: node}
	p.entries = append(p.entries, e)

	h := &Handle{entry: e}
	p.handles[group] = append(p.handles[group], h)
	return h
}

// Group returns the handles of every node in the named group, in the
// order the nodes were added.
func (p *Program) Group(group string) []*Handle {
	return p.handles[group]
}

// Launched is a running program. Stop shuts it down and Wait blocks
// until every node's Run loop has returned.
type Launched struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Option configures a launch
type Option func(*launchConfig)

type launchConfig struct {
	ctx context.Context
}

// WithContext bounds every node's Run loop by ctx. By default nodes
// run until Stop is called.
func WithContext(ctx context.Context) Option {
	return func(c *launchConfig) {
		c.ctx = ctx
	}
}

// Launch starts the Run loop of every enabled node in its own
// goroutine and returns once all of them have been started. Nodes
// whose handles called DisableRun are skipped but stay dereferencable.
func Launch(p *Program, opts ...Option) *Launched {
	cfg := launchConfig{ctx: context.Background()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(cfg.ctx)
	l := &Launched{cancel: cancel}

	for _, e := range p.entries {
		if e.disabled {
			continue
		}

		l.wg.Add(1)
		go func(e *entry) {
			defer l.wg.Done()
			if err := runNode(ctx, e.node); err != nil &&
				err != context.Canceled {
				l.record(fmt.Errorf("node %v: %v", e.node.ID(), err))
			}
		}(e)
	}

	return l
}

// runNode runs one node, recovering a panic into an error
func runNode(ctx context.Context, node Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return node.Run(ctx)
}

// record keeps the first error a node reported
func (l *Launched) record(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

// Wait blocks until every running node has returned, then reports the
// first error any node produced. Cancellation errors from shutdown are
// not reported.
func (l *Launched) Wait() error {
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stop cancels the shared context, waits for every node to return, and
// reports the first error any node produced.
func (l *Launched) Stop() error {
	l.cancel()
	return l.Wait()
}
