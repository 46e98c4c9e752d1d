package spread

import "github.com/samuelfneumann/gomarl/environment"

// Option modifies the construction of a spread environment
type Option func(*spread)

// WithStateInfo makes the environment report the global environment
// state on every timestep, in addition to the per-agent observations.
// Centralised training procedures that condition critics on the full
// state require this option.
func WithStateInfo() Option {
	return func(s *spread) {
		s.stateInfo = true
	}
}

// WithStepLimit replaces the default step limit with a limit of n
// steps per episode
func WithStepLimit(n int) Option {
	return func(s *spread) {
		s.ender = environment.NewStepLimit(n)
	}
}

// WithEnder replaces the default step limit ender entirely
func WithEnder(e environment.Ender) Option {
	return func(s *spread) {
		s.ender = e
	}
}
