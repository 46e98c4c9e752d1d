package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/samuelfneumann/gomarl/replay"
)

// Memory streams experience items through a buffered channel. It is
// the default backend for single-process systems and for tests.
type Memory struct {
	ch     chan replay.Item
	mu     sync.Mutex
	closed bool
}

// NewMemory returns a memory stream buffering up to size items. A
// non-positive size falls back to a default buffer of 64.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 64
	}
	return &Memory{ch: make(chan replay.Item, size)}
}

// Publish places item on the stream, blocking while the buffer is full
func (m *Memory) Publish(ctx context.Context, item replay.Item) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return errors.New("publish: stream closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()

	case m.ch <- item:
		return nil
	}
}

// Consume feeds buffered items to fn from workers goroutines until ctx
// is cancelled or the stream is closed and drained.
func (m *Memory) Consume(ctx context.Context, workers int, fn Handler) error {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return

				case item, ok := <-m.ch:
					if !ok {
						return
					}
					_ = fn(ctx, item)
				}
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}

// Close closes the stream. Buffered items may still be consumed.
func (m *Memory) Close() error {
	m.mu.Lock()
	if !m.closed {
		close(m.ch)
		m.closed = true
	}
	m.mu.Unlock()
	return nil
}
