// Package stream implements transports for moving experience items
// between executor and replay server processes. Executors publish the
// items their adders produce, and the replay server consumes them into
// its table. Three backends are provided: an in-memory channel for
// single-process runs and tests, Redis lists, and RabbitMQ queues.
package stream

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/gomarl/replay"
)

// Handler consumes a single experience item taken off a stream. A
// non-nil error tells the backend the item was not stored; backends
// requeue such items.
type Handler func(ctx context.Context, item replay.Item) error

// Stream transports experience items between processes. Publish places
// an item on the stream. Consume runs workers goroutines, each feeding
// items to fn until ctx is cancelled, and returns ctx.Err() once all
// workers have drained. Close releases the backend's resources.
type Stream interface {
	Publish(ctx context.Context, item replay.Item) error
	Consume(ctx context.Context, workers int, fn Handler) error
	Close() error
}

// Type selects a stream backend in configuration files.
type Type string

const (
	// MemoryType streams items through an in-process channel
	MemoryType Type = "memory"

	// RedisType streams items through a Redis list
	RedisType Type = "redis"

	// RabbitMQType streams items through a RabbitMQ queue
	RabbitMQType Type = "rabbitmq"
)

// Config describes a stream backend and its connection parameters.
// Only the fields relevant to the chosen Type are read.
type Config struct {
	Type Type `yaml:"type"`

	// Maximum number of buffered items for memory streams
	Size int `yaml:"size"`

	// Redis connection parameters
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`

	// RabbitMQ connection parameters
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// Create returns the stream backend that the configuration describes.
func (c Config) Create() (Stream, error) {
	switch c.Type {
	case MemoryType, "":
		return NewMemory(c.Size), nil

	case RedisType:
		return NewRedis(c)

	case RabbitMQType:
		return NewRabbitMQ(c)

	default:
		return nil, fmt.Errorf("create: no such stream type %v", c.Type)
	}
}

// Writer adapts the publishing side of a Stream to the replay.Writer
// interface so adders can feed a stream in place of a local table.
type Writer struct {
	stream Stream
	ctx    context.Context
}

// NewWriter returns a Writer that publishes added items on s. The
// context bounds every publish made through the writer.
func NewWriter(ctx context.Context, s Stream) *Writer {
	return &Writer{stream: s, ctx: ctx}
}

// Add publishes item on the underlying stream
func (w *Writer) Add(item replay.Item) error {
	return w.stream.Publish(w.ctx, item)
}

// TableHandler returns a Handler that inserts each consumed item into
// table. The replay server runs this handler under Consume.
func TableHandler(table *replay.Table) Handler {
	return func(_ context.Context, item replay.Item) error {
		return table.Add(item)
	}
}
