package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrClosed is returned by a broker that has been shut down.
var ErrClosed = errors.New("events: broker closed")

// DefaultBufferSize is the per-subscriber queue length used when the caller
// passes a non-positive size.
const DefaultBufferSize = 16

// MemoryBroker fans payloads out to in-process subscribers.
//
// Delivery never blocks the publisher. When a subscriber's buffer is full the
// payload is dropped for that subscriber and counted; garden notifications
// only say "something changed", so a dropped duplicate loses nothing.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool

	buffer  int
	logger  *slog.Logger
	dropped prometheus.Counter
}

type memorySub struct {
	ch chan []byte
}

// NewMemoryBroker creates an in-process broker. reg may be nil, in which case
// the drop counter is not registered anywhere.
func NewMemoryBroker(bufferSize int, logger *slog.Logger, reg prometheus.Registerer) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryBroker{
		subs:   make(map[string]map[*memorySub]struct{}),
		buffer: bufferSize,
		logger: logger,
		dropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "garden",
			Name:      "events_dropped_total",
			Help:      "Event deliveries dropped because a subscriber buffer was full.",
		}),
	}
}

var _ Broker = (*MemoryBroker)(nil)

// Publish delivers payload to every current subscriber of topic.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := make([]byte, len(payload))
	copy(msg, payload)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		default:
			b.dropped.Inc()
			b.logger.Debug("event dropped: subscriber buffer full", slog.String("topic", topic))
		}
	}
	return nil
}

// Subscribe registers a new subscriber for topic.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	s := &memorySub{ch: make(chan []byte, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*memorySub]struct{})
		b.subs[topic] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	stop := make(chan struct{})
	sub := newSubscription(s.ch, func() {
		close(stop)
		b.remove(topic, s)
	})

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-stop:
		}
	}()

	return sub, nil
}

// remove unregisters s and closes its channel, unless Close already did.
func (b *MemoryBroker) remove(topic string, s *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[topic]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(b.subs, topic)
	}
}

// Close shuts the broker down and closes every subscriber channel.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for topic, set := range b.subs {
		for s := range set {
			close(s.ch)
		}
		delete(b.subs, topic)
	}
	return nil
}

// subscriberCount is used by tests to observe subscription release.
func (b *MemoryBroker) subscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
