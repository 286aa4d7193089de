package entities

import (
	"time"

	"github.com/google/uuid"
)

// SettlementRecord is the one-time result of resolving a battle. At most one
// record exists per battle; creating it is the single action gating the prize
// transfer.
type SettlementRecord struct {
	ID                  int64     `db:"id"`
	BattleID            uuid.UUID `db:"battle_id"`
	WinnerParticipantID int64     `db:"winner_participant_id"`
	WinningValue        int64     `db:"winning_value"`
	PotValue            int64     `db:"pot_value"`
	ItemCount           int       `db:"item_count"`
	TieBroken           bool      `db:"tie_broken"`
	CreatedAt           time.Time `db:"created_at"`
}
