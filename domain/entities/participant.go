package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Participant represents one seat in a battle, occupied by a human or a bot
type Participant struct {
	ID         int64     `db:"id"`
	BattleID   uuid.UUID `db:"battle_id"`
	UserID     *int64    `db:"user_id"`
	IsBot      bool      `db:"is_bot"`
	BotName    string    `db:"bot_name"`
	Position   int       `db:"position"`
	TotalValue int64     `db:"total_value"`
	IsWinner   bool      `db:"is_winner"`
	CreatedAt  time.Time `db:"created_at"`
}

// DisplayName returns the name shown in battle views
func (p *Participant) DisplayName() string {
	if p.IsBot {
		return p.BotName
	}
	if p.UserID != nil {
		return fmt.Sprintf("player-%d", *p.UserID)
	}
	return "unknown"
}

// IsHuman checks if the seat is occupied by a real user
func (p *Participant) IsHuman() bool {
	return !p.IsBot && p.UserID != nil
}
