package events

import "github.com/google/uuid"

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBattleCreated     EventType = "battle_created"
	EventTypeParticipantJoined EventType = "participant_joined"
	EventTypeRosterFilled      EventType = "roster_filled"
	EventTypeBattleStateChange EventType = "battle_state_change"
	EventTypeBoxRevealed       EventType = "box_revealed"
	EventTypeBattleSettled     EventType = "battle_settled"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Battle() uuid.UUID
}

// BattleCreatedEvent represents a newly created battle waiting for players
type BattleCreatedEvent struct {
	BattleID   uuid.UUID
	CreatorID  int64
	MaxPlayers int
	EntryCost  int64
}

func (e BattleCreatedEvent) Type() EventType   { return EventTypeBattleCreated }
func (e BattleCreatedEvent) Battle() uuid.UUID { return e.BattleID }

// ParticipantJoinedEvent represents a seat being taken by a human or bot
type ParticipantJoinedEvent struct {
	BattleID      uuid.UUID
	ParticipantID int64
	Position      int
	IsBot         bool
	DisplayName   string
}

func (e ParticipantJoinedEvent) Type() EventType   { return EventTypeParticipantJoined }
func (e ParticipantJoinedEvent) Battle() uuid.UUID { return e.BattleID }

// RosterFilledEvent signals that every seat is taken. Delivery may be
// duplicated; consumers must treat it as a reconcile trigger, not a command.
type RosterFilledEvent struct {
	BattleID uuid.UUID
	Seats    int
}

func (e RosterFilledEvent) Type() EventType   { return EventTypeRosterFilled }
func (e RosterFilledEvent) Battle() uuid.UUID { return e.BattleID }

// BattleStateChangeEvent represents a battle lifecycle transition
type BattleStateChangeEvent struct {
	BattleID uuid.UUID
	OldState string
	NewState string
}

func (e BattleStateChangeEvent) Type() EventType   { return EventTypeBattleStateChange }
func (e BattleStateChangeEvent) Battle() uuid.UUID { return e.BattleID }

// BoxRevealedEvent represents one reveal round completing on every lane
type BoxRevealedEvent struct {
	BattleID uuid.UUID
	Round    int
	Totals   map[int64]int64 // participant ID -> value gained this round
}

func (e BoxRevealedEvent) Type() EventType   { return EventTypeBoxRevealed }
func (e BoxRevealedEvent) Battle() uuid.UUID { return e.BattleID }

// BattleSettledEvent represents the one-time settlement of a finished battle
type BattleSettledEvent struct {
	BattleID            uuid.UUID
	WinnerParticipantID int64
	WinningValue        int64
	PotValue            int64
}

func (e BattleSettledEvent) Type() EventType   { return EventTypeBattleSettled }
func (e BattleSettledEvent) Battle() uuid.UUID { return e.BattleID }
