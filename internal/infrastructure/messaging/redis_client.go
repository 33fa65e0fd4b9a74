package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts a go-redis client to RedisClient.
type GoRedisClient struct {
	client *redis.Client

	mu      sync.Mutex
	pubsubs []*redis.PubSub
}

var _ RedisClient = (*GoRedisClient)(nil)

// NewGoRedisClient wraps client. Close closes the client as well.
func NewGoRedisClient(client *redis.Client) *GoRedisClient {
	return &GoRedisClient{client: client}
}

// Publish publishes message on channel.
func (c *GoRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to channels and forwards messages until ctx is done
// or the subscription is closed.
func (c *GoRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	pubsub := c.client.Subscribe(ctx, channels...)

	// Wait for the subscription confirmation so publish-after-return is seen.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	c.mu.Lock()
	c.pubsubs = append(c.pubsubs, pubsub)
	c.mu.Unlock()

	out := make(chan RedisMessage, 64)
	go func() {
		defer close(out)
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes every subscription and the underlying client.
func (c *GoRedisClient) Close() error {
	c.mu.Lock()
	pubsubs := c.pubsubs
	c.pubsubs = nil
	c.mu.Unlock()

	for _, ps := range pubsubs {
		_ = ps.Close()
	}
	return c.client.Close()
}
