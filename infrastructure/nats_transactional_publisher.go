package infrastructure

import (
	"context"

	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// NATSTransactionalPublisher holds events until flush, then publishes to NATS.
// Each unit of work owns one instance, so events from a rolled-back
// transaction are never seen by subscribers.
type NATSTransactionalPublisher struct {
	realPublisher interfaces.EventPublisher
	pending       []events.Event
}

// NewNATSTransactionalPublisher creates a new transactional publisher
func NewNATSTransactionalPublisher(realPublisher interfaces.EventPublisher) interfaces.TransactionalEventPublisher {
	return &NATSTransactionalPublisher{
		realPublisher: realPublisher,
		pending:       make([]events.Event, 0),
	}
}

// Publish stores an event in the pending queue without immediately publishing
func (p *NATSTransactionalPublisher) Publish(event events.Event) error {
	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"pendingCount": len(p.pending),
	}).Debug("Buffering event until transaction commit")

	p.pending = append(p.pending, event)
	return nil
}

// Flush publishes all pending events to NATS. This should be called after a
// successful database transaction commit.
func (p *NATSTransactionalPublisher) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(p.pending),
	}).Debug("Flushing pending events")

	for _, event := range p.pending {
		if err := p.realPublisher.Publish(event); err != nil {
			// Log and continue so one failed subject does not block the rest
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to publish event during flush")
		}
	}

	p.pending = p.pending[:0]
	return nil
}

// Discard drops all pending events without publishing
func (p *NATSTransactionalPublisher) Discard() {
	if len(p.pending) > 0 {
		log.WithField("discardedCount", len(p.pending)).Debug("Discarding pending events after rollback")
	}
	p.pending = p.pending[:0]
}
