package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"casebattle/domain/events"

	log "github.com/sirupsen/logrus"
)

// NATSEventSubscriber subscribes to NATS subjects and deserializes events for
// application handlers
type NATSEventSubscriber struct {
	natsClient    *NATSClient
	subjectMapper *EventSubjectMapper
	handlers      map[string]func(context.Context, events.Event) error
}

// NewNATSEventSubscriber creates a new NATS event subscriber
func NewNATSEventSubscriber(natsClient *NATSClient, subjectMapper *EventSubjectMapper) *NATSEventSubscriber {
	return &NATSEventSubscriber{
		natsClient:    natsClient,
		subjectMapper: subjectMapper,
		handlers:      make(map[string]func(context.Context, events.Event) error),
	}
}

// Subscribe registers a handler for a specific event type
func (s *NATSEventSubscriber) Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error {
	subject := s.subjectForEventType(eventType)
	s.handlers[subject] = handler

	log.WithFields(log.Fields{
		"eventType": eventType,
		"subject":   subject,
	}).Info("Registering event handler for subject")

	return s.natsClient.Subscribe(subject, func(data []byte) error {
		return s.handleMessage(subject, data)
	})
}

// handleMessage deserializes a NATS message and routes it to the handler
func (s *NATSEventSubscriber) handleMessage(subject string, data []byte) error {
	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to unmarshal event envelope")
		return fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	eventType := events.EventType(envelope.EventType)

	event, err := s.deserializeEvent(eventType, envelope.Payload)
	if err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Failed to deserialize event payload")
		return fmt.Errorf("failed to deserialize event payload: %w", err)
	}

	handler, exists := s.handlers[subject]
	if !exists {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
		}).Warn("No handler registered for subject")
		return fmt.Errorf("no handler registered for subject %s", subject)
	}

	ctx := context.Background()
	if err := handler(ctx, event); err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Event handler failed")
		return err
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"eventType": eventType,
		"eventId":   envelope.EventID,
	}).Debug("Successfully processed NATS event")

	return nil
}

// deserializeEvent deserializes the event payload based on event type
func (s *NATSEventSubscriber) deserializeEvent(eventType events.EventType, payload []byte) (events.Event, error) {
	var event events.Event

	switch eventType {
	case events.EventTypeBattleCreated:
		event = &events.BattleCreatedEvent{}
	case events.EventTypeParticipantJoined:
		event = &events.ParticipantJoinedEvent{}
	case events.EventTypeRosterFilled:
		event = &events.RosterFilledEvent{}
	case events.EventTypeBattleStateChange:
		event = &events.BattleStateChangeEvent{}
	case events.EventTypeBoxRevealed:
		event = &events.BoxRevealedEvent{}
	case events.EventTypeBattleSettled:
		event = &events.BattleSettledEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, err
	}

	return event, nil
}

// subjectForEventType maps an event type to its NATS subject
func (s *NATSEventSubscriber) subjectForEventType(eventType events.EventType) string {
	var event events.Event
	switch eventType {
	case events.EventTypeBattleCreated:
		event = events.BattleCreatedEvent{}
	case events.EventTypeParticipantJoined:
		event = events.ParticipantJoinedEvent{}
	case events.EventTypeRosterFilled:
		event = events.RosterFilledEvent{}
	case events.EventTypeBattleStateChange:
		event = events.BattleStateChangeEvent{}
	case events.EventTypeBoxRevealed:
		event = events.BoxRevealedEvent{}
	case events.EventTypeBattleSettled:
		event = events.BattleSettledEvent{}
	default:
		return fmt.Sprintf("battles.unknown.%s", eventType)
	}
	return s.subjectMapper.MapEventToSubject(event)
}
