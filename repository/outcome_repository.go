package repository

import (
	"context"
	"errors"
	"fmt"

	"casebattle/database"
	"casebattle/domain/entities"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type outcomeRepository struct {
	q Queryable
}

// NewOutcomeRepository creates a new outcome repository
func NewOutcomeRepository(db *database.DB) interfaces.OutcomeRepository {
	return &outcomeRepository{q: db.Pool}
}

// newOutcomeRepositoryWithTx creates a new outcome repository with a transaction
func newOutcomeRepositoryWithTx(tx Queryable) interfaces.OutcomeRepository {
	return &outcomeRepository{q: tx}
}

// CreateBatch persists a full outcome batch. Callers run this inside a unit of
// work, so a failure on any row rolls back the whole batch and partial results
// never become visible. The unique (battle, participant, round) index rejects
// a second batch for the same battle.
func (r *outcomeRepository) CreateBatch(ctx context.Context, outcomes []*entities.Outcome) error {
	query := `
		INSERT INTO outcomes (battle_id, participant_id, box_id, round, item_id, item_name, item_value, seed, proof)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	for _, o := range outcomes {
		err := r.q.QueryRow(ctx, query,
			o.BattleID,
			o.ParticipantID,
			o.BoxID,
			o.Round,
			o.ItemID,
			o.ItemName,
			o.ItemValue,
			o.Seed,
			o.Proof,
		).Scan(&o.ID, &o.CreatedAt)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return entities.NewInvariantViolation(o.BattleID,
				"outcome already exists for participant %d round %d", o.ParticipantID, o.Round)
		}
		if err != nil {
			return fmt.Errorf("failed to create outcome for battle %s: %w", o.BattleID, err)
		}
	}

	return nil
}

// GetByBattle returns all outcomes for a battle ordered by round then lane
func (r *outcomeRepository) GetByBattle(ctx context.Context, battleID uuid.UUID) ([]*entities.Outcome, error) {
	query := `
		SELECT id, battle_id, participant_id, box_id, round, item_id, item_name, item_value, seed, proof, created_at
		FROM outcomes
		WHERE battle_id = $1
		ORDER BY round, participant_id
	`

	rows, err := r.q.Query(ctx, query, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcomes for battle %s: %w", battleID, err)
	}
	defer rows.Close()

	var outcomes []*entities.Outcome
	for rows.Next() {
		var o entities.Outcome
		err := rows.Scan(
			&o.ID,
			&o.BattleID,
			&o.ParticipantID,
			&o.BoxID,
			&o.Round,
			&o.ItemID,
			&o.ItemName,
			&o.ItemValue,
			&o.Seed,
			&o.Proof,
			&o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}

	return outcomes, nil
}

// CountByBattle returns the number of persisted outcomes for a battle
func (r *outcomeRepository) CountByBattle(ctx context.Context, battleID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM outcomes WHERE battle_id = $1`

	var count int
	if err := r.q.QueryRow(ctx, query, battleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outcomes for battle %s: %w", battleID, err)
	}

	return count, nil
}
