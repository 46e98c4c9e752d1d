// Package counter provides a set of monotone counters shared between
// the nodes of a running system. Trainers count training steps,
// executors count environment steps and episodes, and loggers read
// snapshots. All methods are safe for concurrent use.
package counter

import (
	"sync"
	"time"
)

// Names of the counters the built-in nodes maintain
const (
	TrainerSteps     string = "trainer_steps"
	ExecutorSteps    string = "executor_steps"
	ExecutorEpisodes string = "executor_episodes"
	EvaluatorSteps   string = "evaluator_steps"
	Walltime         string = "walltime"
)

// Counter tracks named monotone counts plus the walltime since it was
// created.
type Counter struct {
	mu     sync.Mutex
	counts map[string]float64
	start  time.Time
}

// New returns an empty counter starting its walltime now
func New() *Counter {
	return &Counter{
		counts: make(map[string]float64),
		start:  time.Now(),
	}
}

// Increment adds each value in counts to the counter it names and
// returns a snapshot of all counts afterwards.
func (c *Counter) Increment(counts map[string]float64) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, count := range counts {
		c.counts[name] += count
	}
	return c.snapshot()
}

// Get returns a snapshot of all counts
func (c *Counter) Get() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// snapshot copies the counts and stamps the walltime. Callers must
// hold c.mu.
func (c *Counter) snapshot() map[string]float64 {
	counts := make(map[string]float64, len(c.counts)+1)
	for name, count := range c.counts {
		counts[name] = count
	}
	counts[Walltime] = time.Since(c.start).Seconds()
	return counts
}
