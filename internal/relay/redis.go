package relay

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/crowdpulse/crowdfeed/internal/config"
)

// RedisPublisher implements Publisher on a go-redis client.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to the configured Redis and pings it.
func NewRedisPublisher(ctx context.Context, cfg config.RelayConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Subscribe waits for the subscription confirmation, then pumps messages
// until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := p.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close() //nolint:errcheck
		return nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Close() //nolint:errcheck

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
