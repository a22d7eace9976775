// Package notify fans agreement decisions out to subscribers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

// EventKind names a decision event.
type EventKind string

const (
	EventAccepted EventKind = "user_agreement.accepted"
	EventRejected EventKind = "user_agreement.rejected"
)

// KindFor maps a decision to its event kind.
func KindFor(d domain.Decision) EventKind {
	if d == domain.DecisionRejected {
		return EventRejected
	}
	return EventAccepted
}

// Event carries the submission together with the account that made it.
type Event struct {
	Kind       EventKind
	Agreement  *domain.Agreement
	Submission *domain.Submission
	Account    *domain.Account // nil when the account is unknown
	OccurredAt time.Time
}

// Subscriber reacts to events.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Bus delivers every event to all subscribers in registration order.
type Bus struct {
	subs []Subscriber
	log  *zap.Logger
}

func NewBus(log *zap.Logger, subs ...Subscriber) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: subs, log: log}
}

// Subscribe appends s.
func (b *Bus) Subscribe(s Subscriber) {
	b.subs = append(b.subs, s)
}

// Dispatch runs all subscribers even when one fails and joins their errors.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	if ev.Agreement == nil || ev.Submission == nil {
		return fmt.Errorf("%w: event without agreement or submission", domain.ErrInvalidInput)
	}

	var errs []error
	for _, s := range b.subs {
		if err := s.Handle(ctx, ev); err != nil {
			b.log.Error("subscriber failed",
				zap.String("subscriber", s.Name()),
				zap.String("event", string(ev.Kind)),
				zap.Int64("agreement_id", ev.Agreement.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
