package entities

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the generated result of one participant opening one box round.
// Outcomes are created in a single batch covering every (participant, round)
// pair and are immutable thereafter.
type Outcome struct {
	ID            int64     `db:"id"`
	BattleID      uuid.UUID `db:"battle_id"`
	ParticipantID int64     `db:"participant_id"`
	BoxID         int64     `db:"box_id"`
	Round         int       `db:"round"`
	ItemID        int64     `db:"item_id"`
	ItemName      string    `db:"item_name"`
	ItemValue     int64     `db:"item_value"`
	Seed          string    `db:"seed"`
	Proof         string    `db:"proof"`
	CreatedAt     time.Time `db:"created_at"`
}

// Item is a reference to a loot item with its market value
type Item struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Value int64  `db:"value"`
}

// OutcomesByRound groups a battle's outcomes by reveal round
func OutcomesByRound(outcomes []*Outcome) map[int][]*Outcome {
	byRound := make(map[int][]*Outcome)
	for _, o := range outcomes {
		byRound[o.Round] = append(byRound[o.Round], o)
	}
	return byRound
}

// OutcomeForRound finds the outcome for a given participant and round
func OutcomeForRound(outcomes []*Outcome, participantID int64, round int) *Outcome {
	for _, o := range outcomes {
		if o.ParticipantID == participantID && o.Round == round {
			return o
		}
	}
	return nil
}
