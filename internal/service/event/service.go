// Package event publishes portal domain events (appointment booked,
// consultation completed, history generated) to the message broker.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/messaging"
)

// Channel carries every portal event.
const Channel = "portal.events"

const (
	maxRetries = 3
	retryDelay = 100 * time.Millisecond
	// publishTimeout bounds one event's delivery, retries included.
	publishTimeout = 5 * time.Second
)

type Service struct {
	broker messaging.Broker
	log    *logger.Logger
	now    func() time.Time

	inflight sync.WaitGroup
}

func NewService(broker messaging.Broker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{broker: broker, log: log, now: time.Now}
}

// Emit publishes one event in the background and returns at once. Delivery
// is best effort: a broker failure is retried a few times and then logged,
// never returned to the workflow that produced the event. Delivery outlives
// ctx's cancellation but not publishTimeout.
func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) {
	if s == nil || s.broker == nil {
		return
	}
	msg := messaging.Message{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		s.publish(pctx, msg)
	}()
}

func (s *Service) publish(ctx context.Context, msg messaging.Message) {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = s.broker.Publish(ctx, Channel, msg); err == nil {
			s.log.WithContext(ctx).Debug("event published", "type", msg.Type, "id", msg.ID)
			return
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = maxRetries
		case <-time.After(retryDelay * time.Duration(attempt)):
		}
	}
	s.log.WithContext(ctx).Error(err, "failed to publish event", "type", msg.Type, "id", msg.ID)
}

// Wait blocks until every emitted event was delivered or given up on.
// Call it before closing the broker.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	s.inflight.Wait()
}

// Received is a decoded event; Payload stays raw for the consumer.
type Received struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Listen calls fn for every event until ctx is done or the broker closes
// the subscription. Undecodable messages are logged and skipped.
func (s *Service) Listen(ctx context.Context, fn func(Received)) error {
	ch, err := s.broker.Subscribe(ctx, Channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Received
			if err := json.Unmarshal(raw, &ev); err != nil {
				s.log.Warn("skipping malformed event", "error", err.Error())
				continue
			}
			fn(ev)
		}
	}
}
