package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes through Redis Pub/Sub so that every server replica
// sees garden changes and session transitions made by the others.
type RedisBroker struct {
	client *redis.Client
	prefix string
	buffer int
	logger *slog.Logger
}

// NewRedisBroker wraps an already connected client. The broker owns the client
// and closes it in Close. prefix namespaces channel names (e.g. "garden:").
func NewRedisBroker(client *redis.Client, prefix string, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		prefix: prefix,
		buffer: DefaultBufferSize,
		logger: logger,
	}
}

var _ Broker = (*RedisBroker)(nil)

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("events/redis: publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe blocks until Redis confirms the subscription, so a Publish issued
// after Subscribe returns is guaranteed to be delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.prefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("events/redis: subscribing to %s: %w", topic, err)
	}

	out := make(chan []byte, b.buffer)
	stop := make(chan struct{})

	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.Debug("event dropped: subscriber buffer full", slog.String("topic", topic))
				}
			}
		}
	}()

	return newSubscription(out, func() { close(stop) }), nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
