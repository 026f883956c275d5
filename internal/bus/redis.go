package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/emendhq/emend/pkg/docket"
)

// Redis is the Pub/Sub Bus transport. Topics map to channels under the
// instance namespace; each subscription owns a goroutine reading its
// pub/sub channel, so per-topic delivery order follows publish order.
type Redis struct {
	rdb          *redis.Client
	instanceName string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	wg sync.WaitGroup
}

// NewRedis creates a Redis bus for the specified instance on an existing
// Redis client. The client stays owned by the caller.
func NewRedis(rdb *redis.Client, instanceName string) (*Redis, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Redis{
		rdb:          rdb,
		instanceName: instanceName,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Publish emits the event on the topic's instance-scoped channel.
// Returns once Redis has accepted the PUBLISH; subscribers that are slow
// or absent never block the caller.
func (r *Redis) Publish(ctx context.Context, topic string, payload any) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return fmt.Errorf("bus is closed")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	channel := docket.EventsChannel(r.instanceName, topic)
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	return nil
}

// Subscribe starts a pub/sub reader for the topic and invokes the handler
// for every message. Returns once the subscription is confirmed active, so
// events published after Subscribe returns are delivered.
func (r *Redis) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	r.mu.Unlock()

	channel := docket.EventsChannel(r.instanceName, topic)
	pubsub := r.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so no event published after
	// this call returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				if err := handler(r.ctx, []byte(msg.Payload)); err != nil {
					log.Printf("[Bus] handler error on topic %q: %v", topic, err)
				}
			}
		}
	}()

	return nil
}

// Close stops all subscription readers and waits for them to exit.
// Safe to call multiple times.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}
