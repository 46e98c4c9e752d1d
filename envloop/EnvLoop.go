// Package envloop runs an executor against an environment as a
// launchable node. The loop drives the standard interaction cycle,
// observe, select actions, step, and feeds step and episode counts
// into a shared counter so that other nodes of a running system can
// see experience accumulate.
package envloop

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/gomarl/counter"
	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/launcher"
	"github.com/samuelfneumann/gomarl/loggers"
	"github.com/samuelfneumann/gomarl/system"
	"github.com/samuelfneumann/gomarl/utils/progressbar"
)

// Loop runs an executor in an environment until its context is
// cancelled or an optional step budget runs out.
type Loop struct {
	id string

	env      environment.Environment
	executor system.Executor

	count      *counter.Counter
	stepKey    string
	episodeKey string

	logger   loggers.Logger
	logEvery int

	maxSteps      int
	progressWidth int
	progress      *progressbar.Bar
}

// Option configures a Loop
type Option func(*Loop)

// WithGroup sets the node group the loop's ID is drawn from
func WithGroup(group string) Option {
	return func(l *Loop) {
		l.id = launcher.NewID(group)
	}
}

// WithCounter feeds the loop's step and episode counts into c under
// the given keys. An empty key skips the corresponding count.
func WithCounter(c *counter.Counter, stepKey, episodeKey string) Option {
	return func(l *Loop) {
		l.count = c
		l.stepKey = stepKey
		l.episodeKey = episodeKey
	}
}

// WithLogger logs episode results through logger
func WithLogger(logger loggers.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithLogEvery logs episode results every episodes episodes
func WithLogEvery(episodes int) Option {
	return func(l *Loop) {
		l.logEvery = episodes
	}
}

// WithMaxSteps stops the loop after steps environment steps
func WithMaxSteps(steps int) Option {
	return func(l *Loop) {
		l.maxSteps = steps
	}
}

// WithProgress displays a progress bar of the given width over the
// loop's step budget. Loops without a step budget display no progress.
func WithProgress(width int) Option {
	return func(l *Loop) {
		l.progressWidth = width
	}
}

// New creates a loop running executor in e
func New(e environment.Environment, executor system.Executor,
	opts ...Option) (*Loop, error) {
	if e == nil {
		return nil, fmt.Errorf("envloop: no environment given")
	}
	if executor == nil {
		return nil, fmt.Errorf("envloop: no executor given")
	}

	loop := &Loop{
		id:       launcher.NewID("envloop"),
		env:      e,
		executor: executor,
		logEvery: 1,
	}
	for _, opt := range opts {
		opt(loop)
	}

	if loop.logEvery < 1 {
		return nil, fmt.Errorf("envloop: logging period must be "+
			"positive \n\twant(k > 0) \n\thave(%v)", loop.logEvery)
	}
	if loop.progressWidth > 0 && loop.maxSteps > 0 {
		loop.progress = progressbar.New(loop.progressWidth,
			loop.maxSteps)
	}

	return loop, nil
}

// ID returns the loop's node ID
func (l *Loop) ID() string {
	return l.id
}

// Run drives the interaction cycle until ctx is cancelled, a step
// fails, or the step budget runs out.
func (l *Loop) Run(ctx context.Context) error {
	ts := l.env.Reset()
	if err := l.executor.ObserveFirst(ts); err != nil {
		return fmt.Errorf("run: %v", err)
	}
	if err := l.executor.Update(); err != nil {
		return fmt.Errorf("run: %v", err)
	}

	steps := 0
	episodes := 0
	episodeSteps := 0
	episodeReturn := 0.0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		actions, err := l.executor.SelectActions()
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		next, last, err := l.env.Step(actions)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		if err := l.executor.Observe(actions, next); err != nil {
			// Observing can fail because shutdown cancelled the
			// transport under the executor's adder
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("run: %v", err)
		}
		if err := l.executor.Update(); err != nil {
			return fmt.Errorf("run: %v", err)
		}

		steps++
		episodeSteps++
		episodeReturn += next.MeanReward()
		if l.count != nil && l.stepKey != "" {
			l.count.Increment(map[string]float64{l.stepKey: 1})
		}
		if l.progress != nil {
			l.progress.Increment()
			l.progress.Display()
		}

		if last {
			episodes++
			var values map[string]float64
			if l.count != nil && l.episodeKey != "" {
				values = l.count.Increment(
					map[string]float64{l.episodeKey: 1},
				)
			}
			if l.logger != nil && episodes%l.logEvery == 0 {
				if values == nil {
					values = make(map[string]float64)
				}
				values["episode_steps"] = float64(episodeSteps)
				values["episode_return"] = episodeReturn
				if err := l.logger.Write(values); err != nil {
					return fmt.Errorf("run: %v", err)
				}
			}
			episodeSteps = 0
			episodeReturn = 0

			if l.maxSteps > 0 && steps >= l.maxSteps {
				return nil
			}

			ts := l.env.Reset()
			if err := l.executor.ObserveFirst(ts); err != nil {
				return fmt.Errorf("run: %v", err)
			}
			if err := l.executor.Update(); err != nil {
				return fmt.Errorf("run: %v", err)
			}
			continue
		}

		if l.maxSteps > 0 && steps >= l.maxSteps {
			return nil
		}
	}
}
