package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samuelfneumann/gomarl/replay"
)

// redisBlockWait bounds each BRPOP call so workers can notice context
// cancellation between polls.
const redisBlockWait time.Duration = 5 * time.Second

// Redis streams experience items through a Redis list. Items are
// JSON-encoded, pushed with LPUSH, and popped with BRPOP so the list
// behaves as a FIFO queue shared by any number of publishers and
// consumers.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to the Redis server that the configuration
// describes and returns a stream over the list at cfg.Key.
func NewRedis(cfg Config) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("newRedis: no address given")
	}
	key := cfg.Key
	if key == "" {
		key = "gomarl:experience"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("newRedis: could not connect: %v", err)
	}

	return &Redis{client: client, key: key}, nil
}

// Publish JSON-encodes item and pushes it onto the list
func (r *Redis) Publish(ctx context.Context, item replay.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("publish: could not encode item: %v", err)
	}
	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("publish: %v", err)
	}
	return nil
}

// Consume pops items off the list from workers goroutines, feeding
// each to fn. An item whose handler fails is pushed back onto the
// list. Consume returns on context cancellation or on the first
// worker error.
func (r *Redis) Consume(ctx context.Context, workers int, fn Handler) error {
	if workers <= 0 {
		workers = 1
	}

	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}

				values, err := r.client.BRPop(ctx, redisBlockWait,
					r.key).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) ||
						errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if err == redis.Nil {
						// Poll timed out with an empty list
						continue
					}
					errCh <- fmt.Errorf("consume: %v", err)
					return
				}
				if len(values) != 2 {
					continue
				}

				var item replay.Item
				if err := json.Unmarshal([]byte(values[1]),
					&item); err != nil {
					errCh <- fmt.Errorf("consume: could not decode "+
						"item: %v", err)
					return
				}

				if err := fn(ctx, item); err != nil {
					// Requeue items the handler could not store
					_ = r.client.RPush(ctx, r.key, values[1]).Err()
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()

	case err := <-errCh:
		return err
	}
}

// Close closes the connection to the Redis server
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
