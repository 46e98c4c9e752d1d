package replay

import (
	"fmt"
	"math/rand"

	"github.com/samuelfneumann/gomarl/utils/intutils"
)

// SelectorType describes a method of selecting indices from a replay
// table.
type SelectorType string

const (
	// Uniform selects indices uniformly randomly with replacement
	Uniform SelectorType = "uniform"

	// Fifo selects the indices least recently inserted into
	Fifo SelectorType = "fifo"
)

// CreateSelector returns a Selector of the given type which selects
// size indices at a time.
func CreateSelector(t SelectorType, size int, seed int64) (Selector,
	error) {
	switch t {
	case Uniform:
		return NewUniformSelector(size, seed), nil
	case Fifo:
		return NewFifoSelector(size), nil
	}
	return nil, fmt.Errorf("createselector: no such selector type %v", t)
}

// Selector implements functionality for choosing how data should be
// sampled and/or removed from a replay table
type Selector interface {
	// choose selects the indices at which data should be sampled from
	// the replay table
	choose(t *Table) []int

	// BatchSize returns the number of elements that will be selected
	BatchSize() int

	// registerAsRemover registers a Selector as a remover
	//
	// Some Selectors require different behaviour if they are removers,
	// so they should be notified if they become a remover to add this
	// additional behaviour
	registerAsRemover()
}

// uniformSelector is a Selector which selects data from a replay
// table uniformly randomly
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data
// uniformly randomly from a replay table
func NewUniformSelector(samples int, seed int64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &uniformSelector{samples: samples, rng: rng}
}

// registerAsRemover implements Selector interface
func (u *uniformSelector) registerAsRemover() {}

// BatchSize gets the number of samples in a batch drawn from the table
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of indices at which to draw data from the
// table
func (u *uniformSelector) choose(t *Table) []int {
	selected := make([]int, u.BatchSize())
	for i := 0; i < u.BatchSize(); i++ {
		index := u.rng.Int() % t.capacity()
		selected[i] = t.inUseIndices[index]
	}
	return selected
}

// fifoSelector is a Selector which selects data from a replay table
// as first-in-first-out.
type fifoSelector struct {
	samples int
	remover bool
}

// NewFifoSelector returns a new Selector which draws data from a
// replay table as FiFo.
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples, remover: false}
}

// registerAsRemover implements Selector interface
func (f *fifoSelector) registerAsRemover() {
	f.remover = true
}

// BatchSize gets the number of samples in a batch drawn from the table
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

// choose selects a number of indices at which to draw data from the
// table
func (f *fifoSelector) choose(t *Table) []int {
	selected := make([]int, intutils.Min(f.BatchSize(), t.capacity()))
	insertOrder := t.insertOrder(f.BatchSize())

	for i := 0; i < f.BatchSize() && i < t.capacity(); i++ {
		selected[i] = insertOrder[i]

		if f.remover {
			// In a Fifo remover, the indices at which data was first
			// added get freed first, so we can remove these from the
			// ordering of inserted indices
			t.removeFront()
		}
	}

	return selected
}
