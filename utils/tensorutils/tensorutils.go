// Package tensorutils provides utilities for working with Gorgonia
// tensors
package tensorutils

// Slice selects T[start:end:step] along one axis of a tensor. It
// satisfies the slicing interface of gorgonia.org/tensor.
type Slice struct {
	start, end, step int
}

// NewSlice returns a Slice selecting [start, end) with the given step
func NewSlice(start, end, step int) Slice {
	return Slice{start: start, end: end, step: step}
}

// Start returns the first selected index
func (s Slice) Start() int { return s.start }

// End returns the index one past the last selected index
func (s Slice) End() int { return s.end }

// Step returns the stride between selected indices
func (s Slice) Step() int { return s.step }
