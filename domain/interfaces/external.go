package interfaces

import (
	"context"

	"casebattle/domain/entities"
)

// OutcomeGenerator produces one outcome per (participant, round) pair for a
// battle, deterministically given seed material bound to the battle. It must
// return exactly len(participants) x TotalRounds(boxes) results or fail
// entirely; a partial result set is never returned as success.
type OutcomeGenerator interface {
	GenerateOutcomes(ctx context.Context, battle *entities.Battle, participants []*entities.Participant, boxes []*entities.BattleBox) ([]*entities.Outcome, error)
}

// MetricsRecorder counts battle progress for the operational dashboard.
// Implementations must be safe for concurrent use; a nil recorder disables
// recording.
type MetricsRecorder interface {
	// OutcomeBatchGenerated counts a persisted outcome batch
	OutcomeBatchGenerated()

	// RoundRevealed counts a released reveal round, flagging rounds that were
	// advanced by the barrier timeout instead of lane reports
	RoundRevealed(forced bool)

	// BattleSettled counts a completed settlement, flagging tie-breaks
	BattleSettled(tieBroken bool)
}

// Ledger is the external currency and inventory boundary. Both operations are
// assumed atomic at the ledger; the core never calls either twice for the
// same logical event.
type Ledger interface {
	// DebitBalance removes amount from the user's balance, failing with
	// entities.ErrInsufficientBalance when the balance does not cover it
	DebitBalance(ctx context.Context, userID int64, amount int64) error

	// CreditItems transfers the given items into the user's inventory
	CreditItems(ctx context.Context, userID int64, items []*entities.Item) error
}
