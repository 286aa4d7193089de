package infrastructure

import (
	"fmt"

	"casebattle/domain/events"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeBattleCreated:
		return "battles.created"
	case events.EventTypeParticipantJoined:
		return "battles.roster.joined"
	case events.EventTypeRosterFilled:
		return "battles.roster.filled"
	case events.EventTypeBattleStateChange:
		return "battles.state_changed"
	case events.EventTypeBoxRevealed:
		return "battles.box_revealed"
	case events.EventTypeBattleSettled:
		return "battles.settled"
	default:
		return fmt.Sprintf("battles.unknown.%s", event.Type())
	}
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case "battles.created":
		return events.EventTypeBattleCreated
	case "battles.roster.joined":
		return events.EventTypeParticipantJoined
	case "battles.roster.filled":
		return events.EventTypeRosterFilled
	case "battles.state_changed":
		return events.EventTypeBattleStateChange
	case "battles.box_revealed":
		return events.EventTypeBoxRevealed
	case "battles.settled":
		return events.EventTypeBattleSettled
	default:
		return events.EventType(subject)
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"battles.created",
		"battles.roster.joined",
		"battles.roster.filled",
		"battles.state_changed",
		"battles.box_revealed",
		"battles.settled",
	}
}
