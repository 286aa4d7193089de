package entities

import (
	"time"

	"github.com/google/uuid"
)

// BattleStatus represents the lifecycle state of a battle
type BattleStatus string

const (
	BattleStatusWaiting   BattleStatus = "waiting"
	BattleStatusCountdown BattleStatus = "countdown"
	BattleStatusActive    BattleStatus = "active"
	BattleStatusFinished  BattleStatus = "finished"
)

// statusRank orders statuses so transitions can be validated as forward-only
var statusRank = map[BattleStatus]int{
	BattleStatusWaiting:   0,
	BattleStatusCountdown: 1,
	BattleStatusActive:    2,
	BattleStatusFinished:  3,
}

// Rank returns the position of the status in the lifecycle order
func (s BattleStatus) Rank() int {
	return statusRank[s]
}

// Next returns the status that follows s in the lifecycle, or s itself if terminal
func (s BattleStatus) Next() BattleStatus {
	switch s {
	case BattleStatusWaiting:
		return BattleStatusCountdown
	case BattleStatusCountdown:
		return BattleStatusActive
	case BattleStatusActive:
		return BattleStatusFinished
	default:
		return s
	}
}

// BattleMode represents the roster shape of a battle
type BattleMode string

const (
	BattleModeDuel  BattleMode = "duel"
	BattleModeGroup BattleMode = "group"
)

// Battle represents a multiplayer loot-box opening contest
type Battle struct {
	ID         uuid.UUID    `db:"id"`
	CreatorID  int64        `db:"creator_id"`
	Mode       BattleMode   `db:"mode"`
	Status     BattleStatus `db:"status"`
	MaxPlayers int          `db:"max_players"`
	EntryCost  int64        `db:"entry_cost"`
	TotalPrize int64        `db:"total_prize"`
	AllowsBots bool         `db:"allows_bots"`
	// RevealedRounds is the number of box rounds whose reveal barrier has
	// released. Persisted so late-joining observers can catch up without
	// replaying the live animation.
	RevealedRounds int       `db:"revealed_rounds"`
	CreatedAt      time.Time  `db:"created_at"`
	StartedAt      *time.Time `db:"started_at"`
	FinishedAt     *time.Time `db:"finished_at"`
}

// IsWaiting checks if the battle is still filling its roster
func (b *Battle) IsWaiting() bool {
	return b.Status == BattleStatusWaiting
}

// IsActive checks if the battle is in its reveal phase
func (b *Battle) IsActive() bool {
	return b.Status == BattleStatusActive
}

// IsFinished checks if the battle has been settled
func (b *Battle) IsFinished() bool {
	return b.Status == BattleStatusFinished
}

// IsJoinable checks if the battle can still accept participants
func (b *Battle) IsJoinable(participantCount int) bool {
	return b.Status == BattleStatusWaiting && participantCount < b.MaxPlayers
}

// IsFull checks if the roster holds exactly the configured number of players
func (b *Battle) IsFull(participantCount int) bool {
	return participantCount >= b.MaxPlayers
}

// CanTransitionTo checks that next is the single forward step from the current status
func (b *Battle) CanTransitionTo(next BattleStatus) bool {
	return b.Status != BattleStatusFinished && b.Status.Next() == next
}

// Advance moves the battle to the next status if the transition is legal.
// Returns false when the requested transition would skip or regress.
func (b *Battle) Advance(next BattleStatus) bool {
	if !b.CanTransitionTo(next) {
		return false
	}
	b.Status = next
	now := time.Now()
	switch next {
	case BattleStatusActive:
		b.StartedAt = &now
	case BattleStatusFinished:
		b.FinishedAt = &now
	}
	return true
}

// BattleDetail combines a battle with its box sequence and participants
type BattleDetail struct {
	Battle       *Battle
	Boxes        []*BattleBox
	Participants []*Participant
}

// IsRosterFull checks whether every seat is taken
func (d *BattleDetail) IsRosterFull() bool {
	return d.Battle.IsFull(len(d.Participants))
}

// SeatsRemaining returns the number of unfilled seats
func (d *BattleDetail) SeatsRemaining() int {
	remaining := d.Battle.MaxPlayers - len(d.Participants)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ParticipantByID finds a participant by its row ID
func (d *BattleDetail) ParticipantByID(id int64) *Participant {
	for _, p := range d.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// HasUser checks if a user already occupies a seat in the battle
func (d *BattleDetail) HasUser(userID int64) bool {
	for _, p := range d.Participants {
		if !p.IsBot && p.UserID != nil && *p.UserID == userID {
			return true
		}
	}
	return false
}

// NextPosition returns the lowest unoccupied seat position (1-based)
func (d *BattleDetail) NextPosition() int {
	taken := make(map[int]bool, len(d.Participants))
	for _, p := range d.Participants {
		taken[p.Position] = true
	}
	for pos := 1; pos <= d.Battle.MaxPlayers; pos++ {
		if !taken[pos] {
			return pos
		}
	}
	return len(d.Participants) + 1
}

// TotalRounds returns the number of reveal rounds (box quantities expanded)
func (d *BattleDetail) TotalRounds() int {
	return TotalRounds(d.Boxes)
}

// ExpectedOutcomeCount returns the outcome cardinality for a complete battle
func (d *BattleDetail) ExpectedOutcomeCount() int {
	return len(d.Participants) * d.TotalRounds()
}

// Leaders returns every participant tied at the maximum total value
func (d *BattleDetail) Leaders() []*Participant {
	var leaders []*Participant
	var max int64
	for _, p := range d.Participants {
		switch {
		case len(leaders) == 0 || p.TotalValue > max:
			leaders = []*Participant{p}
			max = p.TotalValue
		case p.TotalValue == max:
			leaders = append(leaders, p)
		}
	}
	return leaders
}
