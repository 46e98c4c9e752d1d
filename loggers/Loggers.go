// Package loggers provides run-metric loggers for trainers and
// environment loops. A Logger consumes flat maps of named float64
// values, one map per logging step.
package loggers

// Logger writes one row of named metric values per call
type Logger interface {
	Write(values map[string]float64) error
	Close() error
}

// Noop discards every write. Nodes that should not log use it in
// place of a nil Logger.
type Noop struct{}

// Write discards values
func (Noop) Write(map[string]float64) error {
	return nil
}

// Close does nothing
func (Noop) Close() error {
	return nil
}

// Multi fans writes out to several loggers, failing on the first
// logger that fails.
type Multi struct {
	loggers []Logger
}

// NewMulti returns a logger dispatching to each of loggers in turn
func NewMulti(loggers ...Logger) *Multi {
	return &Multi{loggers: loggers}
}

// Write writes values to each underlying logger
func (m *Multi) Write(values map[string]float64) error {
	for _, logger := range m.loggers {
		if err := logger.Write(values); err != nil {
			return err
		}
	}
	return nil
}

// Close closes each underlying logger, returning the first error
func (m *Multi) Close() error {
	var first error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
