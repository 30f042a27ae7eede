// Package events provides topic-based publish/subscribe used for garden change
// notifications and authentication state transitions.
//
// Two implementations exist: MemoryBroker for a single process and
// RedisBroker when several server replicas must see each other's events.
// Consumers depend on the Broker interface only.
package events

import (
	"context"
	"sync"
)

// Topic names shared between publishers and subscribers.
const (
	TopicSession = "session"
)

// GardenTopic is the topic notified whenever any garden row of userID changes.
func GardenTopic(userID string) string {
	return "garden." + userID
}

// Broker publishes payloads to topics and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription delivers payloads for one topic until it is closed or the
// context passed to Subscribe is cancelled. C is closed afterwards.
type Subscription struct {
	C <-chan []byte

	once    sync.Once
	release func()
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.release)
}

func newSubscription(c <-chan []byte, release func()) *Subscription {
	return &Subscription{C: c, release: release}
}
