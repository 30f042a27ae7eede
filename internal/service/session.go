package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/garden-companion/internal/events"
	"github.com/sakif/garden-companion/internal/repository"
)

// SessionEventKind names an authentication state transition.
type SessionEventKind string

const (
	SessionSignedUp  SessionEventKind = "signed_up"
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
)

// Sign-in methods carried on SessionEvent.
const (
	MethodPassword = "password"
	MethodGitHub   = "github"
)

// SessionEvent is published on events.TopicSession for every transition.
type SessionEvent struct {
	Kind   SessionEventKind `json:"kind"`
	UserID string           `json:"userId"`
	Method string           `json:"method,omitempty"`
	At     time.Time        `json:"at"`
}

// SessionPublisher encodes SessionEvents onto the broker.
//
// Publishing is best effort: the sign-in has already succeeded by the time
// the event goes out, so a broker failure is logged and not returned.
type SessionPublisher struct {
	broker events.Broker
	now    Clock
	logger *slog.Logger
}

func NewSessionPublisher(broker events.Broker, now Clock, logger *slog.Logger) *SessionPublisher {
	return &SessionPublisher{broker: broker, now: orNow(now), logger: orDiscard(logger)}
}

func (p *SessionPublisher) Publish(ctx context.Context, kind SessionEventKind, userID, method string) {
	if p == nil || p.broker == nil {
		return
	}
	payload, err := json.Marshal(SessionEvent{Kind: kind, UserID: userID, Method: method, At: p.now().UTC()})
	if err != nil {
		p.logger.Error("failed to encode session event", slog.String("error", err.Error()))
		return
	}
	if err := p.broker.Publish(ctx, events.TopicSession, payload); err != nil {
		p.logger.Error("failed to publish session event",
			slog.String("kind", string(kind)),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}
}

// SessionTracker reacts to session events. It records sign-ups and sign-ins
// as account activity (users.last_active_at).
type SessionTracker struct {
	broker events.Broker
	users  repository.UserRepository
	logger *slog.Logger
}

func NewSessionTracker(broker events.Broker, users repository.UserRepository, logger *slog.Logger) *SessionTracker {
	return &SessionTracker{broker: broker, users: users, logger: orDiscard(logger)}
}

// Run consumes session events until ctx is cancelled or the broker closes
// the subscription. It returns nil in both cases.
//
// The subscription is open by the time ready is closed, so callers that
// publish right after starting Run do not lose events. ready may be nil.
func (t *SessionTracker) Run(ctx context.Context, ready chan<- struct{}) error {
	sub, err := t.broker.Subscribe(ctx, events.TopicSession)
	if err != nil {
		return fmt.Errorf("subscribing to session events: %w", err)
	}
	defer sub.Close()
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C:
			if !ok {
				return nil
			}
			t.handle(ctx, payload)
		}
	}
}

func (t *SessionTracker) handle(ctx context.Context, payload []byte) {
	var ev SessionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.logger.Warn("ignoring malformed session event", slog.String("error", err.Error()))
		return
	}

	switch ev.Kind {
	case SessionSignedUp, SessionSignedIn:
		if err := t.users.TouchLastActive(ctx, ev.UserID, ev.At); err != nil {
			t.logger.Error("failed to record activity",
				slog.String("userID", ev.UserID),
				slog.String("error", err.Error()),
			)
		}
	case SessionSignedOut:
		t.logger.Debug("session ended", slog.String("userID", ev.UserID))
	}
}
