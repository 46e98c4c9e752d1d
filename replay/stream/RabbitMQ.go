package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samuelfneumann/gomarl/replay"
)

// RabbitMQ streams experience items through a durable RabbitMQ queue.
// Items are JSON-encoded and acknowledged manually: an item is acked
// only once its handler stored it, and nacked back onto the queue
// otherwise.
type RabbitMQ struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQ connects to the broker that the configuration describes
// and declares the stream's queue.
func NewRabbitMQ(cfg Config) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, errors.New("newRabbitMQ: no broker URL given")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "gomarl.experience"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("newRabbitMQ: could not connect: %v", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("newRabbitMQ: could not open channel: %v",
			err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("newRabbitMQ: could not set "+
				"prefetch: %v", err)
		}
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false,
		nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("newRabbitMQ: could not declare "+
			"queue: %v", err)
	}

	return &RabbitMQ{conn: conn, ch: ch, queue: queue}, nil
}

// Publish JSON-encodes item and delivers it to the queue
func (r *RabbitMQ) Publish(ctx context.Context, item replay.Item) error {
	if r == nil || r.ch == nil {
		return errors.New("publish: stream not connected")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("publish: could not encode item: %v", err)
	}

	return r.ch.PublishWithContext(ctx, "", r.queue, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
		})
}

// Consume subscribes to the queue and feeds deliveries to fn from
// workers goroutines until ctx is cancelled. Deliveries whose handler
// fails are nacked back onto the queue.
func (r *RabbitMQ) Consume(ctx context.Context, workers int,
	fn Handler) error {
	if r == nil || r.ch == nil {
		return errors.New("consume: stream not connected")
	}
	if workers <= 0 {
		workers = 1
	}

	msgs, err := r.ch.Consume(r.queue, "", false, false, false, false,
		nil)
	if err != nil {
		return fmt.Errorf("consume: could not subscribe: %v", err)
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

				case msg, ok := <-msgs:
					if !ok {
						return
					}

					var item replay.Item
					if err := json.Unmarshal(msg.Body, &item); err != nil {
						// Undecodable items are dropped, not requeued
						_ = msg.Ack(false)
						continue
					}
					if err := fn(ctx, item); err != nil {
						_ = msg.Nack(false, true)
						continue
					}
					_ = msg.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close closes the channel and connection to the broker
func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
