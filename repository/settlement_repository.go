package repository

import (
	"context"
	"errors"
	"fmt"

	"casebattle/database"
	"casebattle/domain/entities"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type settlementRepository struct {
	q Queryable
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *database.DB) interfaces.SettlementRepository {
	return &settlementRepository{q: db.Pool}
}

// newSettlementRepositoryWithTx creates a new settlement repository with a transaction
func newSettlementRepositoryWithTx(tx Queryable) interfaces.SettlementRepository {
	return &settlementRepository{q: tx}
}

// Create persists the settlement record. The unique constraint on battle_id
// makes this the cross-process arbiter for who settles the battle: the second
// writer fails here and its transaction rolls back.
func (r *settlementRepository) Create(ctx context.Context, record *entities.SettlementRecord) error {
	query := `
		INSERT INTO settlements (battle_id, winner_participant_id, winning_value, pot_value, item_count, tie_broken)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		record.BattleID,
		record.WinnerParticipantID,
		record.WinningValue,
		record.PotValue,
		record.ItemCount,
		record.TieBroken,
	).Scan(&record.ID, &record.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return entities.NewInvariantViolation(record.BattleID, "battle already settled")
	}
	if err != nil {
		return fmt.Errorf("failed to create settlement for battle %s: %w", record.BattleID, err)
	}

	return nil
}

// GetByBattle returns the settlement record for a battle, or nil
func (r *settlementRepository) GetByBattle(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error) {
	query := `
		SELECT id, battle_id, winner_participant_id, winning_value, pot_value, item_count, tie_broken, created_at
		FROM settlements
		WHERE battle_id = $1
	`

	var record entities.SettlementRecord
	err := r.q.QueryRow(ctx, query, battleID).Scan(
		&record.ID,
		&record.BattleID,
		&record.WinnerParticipantID,
		&record.WinningValue,
		&record.PotValue,
		&record.ItemCount,
		&record.TieBroken,
		&record.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement for battle %s: %w", battleID, err)
	}

	return &record, nil
}
