package replay

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/samuelfneumann/gomarl/utils/intutils"
)

// Config implements a specific configuration of a replay Table
type Config struct {
	RemoveMethod SelectorType
	SampleMethod SelectorType
	RemoveSize   int
	SampleSize   int
	MaxCapacity  int
	MinCapacity  int
}

// Create creates and returns the replay Table with the specified
// Config, storing items with the blocks of layout.
func (c Config) Create(layout Layout, seed int64) (*Table, error) {
	remover, err := CreateSelector(c.RemoveMethod, c.RemoveSize, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	sampler, err := CreateSelector(c.SampleMethod, c.SampleSize, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}

	return New(layout, remover, sampler, c.MinCapacity, c.MaxCapacity)
}

// Table is a replay table storing items of experience with the blocks
// of a fixed Layout. Each block is stored in a flat cache of
// maxCapacity item slots; a free list and an insertion-order list
// track which slots hold data. The remover selects the slots freed
// when the table is full, and the sampler selects the slots returned
// by Sample.
//
// A Table may be used concurrently: executors add items while the
// trainer samples.
type Table struct {
	mu sync.Mutex

	layout Layout
	caches map[string][]float64

	// The indices of the caches that are empty and have no data
	emptyIndices []int

	// The indices of the caches that have data
	inUseIndices []int

	// orderOfInsert outlines the chronological order of inserts. For
	// i > j, the data at index orderOfInsert[i] was inserted into the
	// table after the data at index orderOfInsert[j]
	orderOfInsert *list.List

	// Outlines how data is removed and sampled
	remover Selector
	sampler Selector

	minCapacity int
	maxCapacity int
}

// New creates and returns a new replay Table. The remover and sampler
// parameters are Selectors which determine how data is removed and
// sampled. The layout parameter defines the blocks stored per item.
func New(layout Layout, remover, sampler Selector, minCapacity,
	maxCapacity int) (*Table, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < sampler.BatchSize() {
		return nil, fmt.Errorf("new: cannot have batch size(%v) > max "+
			"table capacity (%v)", sampler.BatchSize(), maxCapacity)
	}

	caches := make(map[string][]float64, len(layout))
	for _, block := range layout {
		caches[block.Name] = make([]float64, maxCapacity*block.Size)
	}

	remover.registerAsRemover()

	emptyIndices := make([]int, maxCapacity)
	for i := 0; i < maxCapacity; i++ {
		emptyIndices[i] = i
	}

	return &Table{
		layout:        layout,
		caches:        caches,
		emptyIndices:  emptyIndices,
		inUseIndices:  make([]int, 0, maxCapacity),
		orderOfInsert: list.New(),
		remover:       remover,
		sampler:       sampler,
		minCapacity:   minCapacity,
		maxCapacity:   maxCapacity,
	}, nil
}

// Layout returns the schema of items stored in the table.
func (t *Table) Layout() Layout {
	return t.layout
}

// capacity returns the current number of elements in the table that
// are available for sampling. Callers must hold t.mu.
func (t *Table) capacity() int {
	return len(t.inUseIndices)
}

// insertOrder returns a slice of at most n indices which describes
// the order that the first n data were inserted into the table.
// The length of the returned slice is the minimum between n and the
// number of elements currently in the table. Callers must hold t.mu.
//
// For example, if this function returns []int{9, 15, 1}, this means
// that the first data was inserted into the table at position 9, the
// next at position 15, and the last at position 1
func (t *Table) insertOrder(n int) []int {
	size := intutils.Min(n, t.capacity())
	insertOrder := make([]int, size)
	element := t.orderOfInsert.Front()

	for i := 0; i < size; i++ {
		insertOrder[i] = element.Value.(int)
		element = element.Next()
		if element == nil {
			break
		}
	}
	return insertOrder
}

// removeFront removes the earliest tracked index at which data was
// inserted. Callers must hold t.mu.
func (t *Table) removeFront() {
	t.orderOfInsert.Remove(t.orderOfInsert.Front())
}

// remove removes elements from the table using indices selected by the
// table's remover. Callers must hold t.mu.
func (t *Table) remove() error {
	if t.capacity() <= t.minCapacity {
		return fmt.Errorf("remove: cannot remove, table at min capacity")
	}

	indices := t.remover.choose(t)
	for _, index := range indices {
		for i := range t.inUseIndices {
			if t.inUseIndices[i] == index {
				t.inUseIndices[i] = t.inUseIndices[len(t.inUseIndices)-1]
				t.inUseIndices = t.inUseIndices[:len(t.inUseIndices)-1]
				break
			}
		}
		t.emptyIndices = append(t.emptyIndices, index)
	}
	return nil
}

// Add adds an item to the table. The item must carry every block of
// the table's layout with the layout's sizes. If the table is full,
// the remover first frees slots.
func (t *Table) Add(item Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, block := range t.layout {
		data, ok := item[block.Name]
		if !ok {
			return fmt.Errorf("add: item missing block %v", block.Name)
		}
		if len(data) != block.Size {
			return fmt.Errorf("add: invalid size for block %v "+
				"\n\twant(%v)\n\thave(%v)", block.Name, block.Size,
				len(data))
		}
	}

	if t.capacity() >= t.maxCapacity {
		err := t.remove()
		if err != nil {
			return fmt.Errorf("add: cannot add to table: %v", err)
		}
	}

	emptyIndicesLength := len(t.emptyIndices)
	index := t.emptyIndices[emptyIndicesLength-1]
	t.emptyIndices = t.emptyIndices[:emptyIndicesLength-1]
	t.orderOfInsert.PushBack(index)
	t.inUseIndices = append(t.inUseIndices, index)

	for _, block := range t.layout {
		cache := t.caches[block.Name]
		start := index * block.Size
		copy(cache[start:start+block.Size], item[block.Name])
	}

	return nil
}

// Sample samples and returns a batch of items from the table. Each
// block of the returned Batch holds BatchSize() item vectors back to
// back, in the same item order across blocks.
func (t *Table) Sample() (Batch, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.capacity() == 0 {
		return nil, &ReplayError{
			Op:  "sample",
			Err: errEmptyTable,
		}
	}
	if t.capacity() < t.minCapacity {
		return nil, &ReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := t.sampler.choose(t)

	batch := make(Batch, len(t.layout))
	for _, block := range t.layout {
		cache := t.caches[block.Name]
		data := make([]float64, len(indices)*block.Size)
		for i, index := range indices {
			batchStart := i * block.Size
			cacheStart := index * block.Size
			copy(data[batchStart:batchStart+block.Size],
				cache[cacheStart:cacheStart+block.Size])
		}
		batch[block.Name] = data
	}

	return batch, nil
}

// Capacity returns the current number of elements in the table that
// are available for sampling
func (t *Table) Capacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity()
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the table
func (t *Table) MaxCapacity() int {
	return t.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// table before sampling is allowed
func (t *Table) MinCapacity() int {
	return t.minCapacity
}

// BatchSize returns the number of samples returned by Sample()
func (t *Table) BatchSize() int {
	return t.sampler.BatchSize()
}

// String returns the string representation of the table
func (t *Table) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("replay table: %v blocks, %v/%v items",
		len(t.layout), t.capacity(), t.maxCapacity)
}
