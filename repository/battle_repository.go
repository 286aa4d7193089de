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

type battleRepository struct {
	q Queryable
}

// NewBattleRepository creates a new battle repository
func NewBattleRepository(db *database.DB) interfaces.BattleRepository {
	return &battleRepository{q: db.Pool}
}

// newBattleRepositoryWithTx creates a new battle repository with a transaction
func newBattleRepositoryWithTx(tx Queryable) interfaces.BattleRepository {
	return &battleRepository{q: tx}
}

const battleColumns = `id, creator_id, mode, status, max_players, entry_cost, total_prize,
		allows_bots, revealed_rounds, created_at, started_at, finished_at`

func scanBattle(row pgx.Row) (*entities.Battle, error) {
	var b entities.Battle
	err := row.Scan(
		&b.ID,
		&b.CreatorID,
		&b.Mode,
		&b.Status,
		&b.MaxPlayers,
		&b.EntryCost,
		&b.TotalPrize,
		&b.AllowsBots,
		&b.RevealedRounds,
		&b.CreatedAt,
		&b.StartedAt,
		&b.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateWithBoxes creates a battle and its box sequence in one shot
func (r *battleRepository) CreateWithBoxes(ctx context.Context, battle *entities.Battle, boxes []*entities.BattleBox) error {
	query := `
		INSERT INTO battles (id, creator_id, mode, status, max_players, entry_cost, allows_bots)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		battle.ID,
		battle.CreatorID,
		battle.Mode,
		battle.Status,
		battle.MaxPlayers,
		battle.EntryCost,
		battle.AllowsBots,
	).Scan(&battle.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create battle %s: %w", battle.ID, err)
	}

	boxQuery := `
		INSERT INTO battle_boxes (battle_id, box_id, box_name, box_price, quantity, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	for _, box := range boxes {
		box.BattleID = battle.ID
		err := r.q.QueryRow(ctx, boxQuery,
			box.BattleID,
			box.BoxID,
			box.BoxName,
			box.BoxPrice,
			box.Quantity,
			box.Position,
		).Scan(&box.ID, &box.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create box at position %d for battle %s: %w", box.Position, battle.ID, err)
		}
	}

	return nil
}

// GetByID retrieves a battle by its ID
func (r *battleRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Battle, error) {
	query := `SELECT ` + battleColumns + ` FROM battles WHERE id = $1`

	battle, err := scanBattle(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get battle %s: %w", id, err)
	}

	return battle, nil
}

// GetDetailByID retrieves a battle with its boxes and participants
func (r *battleRepository) GetDetailByID(ctx context.Context, id uuid.UUID) (*entities.BattleDetail, error) {
	battle, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, nil
	}

	detail := &entities.BattleDetail{Battle: battle}

	boxQuery := `
		SELECT id, battle_id, box_id, box_name, box_price, quantity, position, created_at
		FROM battle_boxes
		WHERE battle_id = $1
		ORDER BY position
	`
	rows, err := r.q.Query(ctx, boxQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get boxes for battle %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var box entities.BattleBox
		err := rows.Scan(
			&box.ID,
			&box.BattleID,
			&box.BoxID,
			&box.BoxName,
			&box.BoxPrice,
			&box.Quantity,
			&box.Position,
			&box.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan box: %w", err)
		}
		detail.Boxes = append(detail.Boxes, &box)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate boxes: %w", err)
	}

	participantQuery := `
		SELECT id, battle_id, user_id, is_bot, bot_name, position, total_value, is_winner, created_at
		FROM participants
		WHERE battle_id = $1
		ORDER BY position
	`
	prows, err := r.q.Query(ctx, participantQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants for battle %s: %w", id, err)
	}
	defer prows.Close()

	for prows.Next() {
		var p entities.Participant
		err := prows.Scan(
			&p.ID,
			&p.BattleID,
			&p.UserID,
			&p.IsBot,
			&p.BotName,
			&p.Position,
			&p.TotalValue,
			&p.IsWinner,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		detail.Participants = append(detail.Participants, &p)
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return detail, nil
}

// UpdateStatus advances the battle status with a compare-and-set on the
// expected current status. Timestamps for activation and finish are stamped
// in the same statement so the transition and its timestamp stay atomic.
func (r *battleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.BattleStatus) (bool, error) {
	query := `
		UPDATE battles
		SET status = $1,
		    started_at = CASE WHEN $1 = 'active' THEN NOW() ELSE started_at END,
		    finished_at = CASE WHEN $1 = 'finished' THEN NOW() ELSE finished_at END
		WHERE id = $2 AND status = $3
	`

	result, err := r.q.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update status for battle %s: %w", id, err)
	}

	return result.RowsAffected() > 0, nil
}

// SetTotalPrize records the value of the full generated prize pool
func (r *battleRepository) SetTotalPrize(ctx context.Context, id uuid.UUID, totalPrize int64) error {
	query := `UPDATE battles SET total_prize = $1 WHERE id = $2`

	result, err := r.q.Exec(ctx, query, totalPrize, id)
	if err != nil {
		return fmt.Errorf("failed to set total prize for battle %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("battle %s not found", id)
	}

	return nil
}

// SetRevealedRounds persists reveal progress after a barrier release. The
// watermark only moves forward; a stale writer racing a fresher one loses.
func (r *battleRepository) SetRevealedRounds(ctx context.Context, id uuid.UUID, rounds int) error {
	query := `UPDATE battles SET revealed_rounds = $1 WHERE id = $2 AND revealed_rounds < $1`

	if _, err := r.q.Exec(ctx, query, rounds, id); err != nil {
		return fmt.Errorf("failed to set revealed rounds for battle %s: %w", id, err)
	}

	return nil
}

// AddParticipant inserts a participant only while a seat remains, re-checking
// capacity inside the insert itself so a concurrent join storm cannot overfill
// the roster no matter how the service-level checks interleave.
func (r *battleRepository) AddParticipant(ctx context.Context, participant *entities.Participant, maxPlayers int) error {
	query := `
		INSERT INTO participants (battle_id, user_id, is_bot, bot_name, position)
		SELECT $1, $2, $3, $4, $5
		WHERE (SELECT COUNT(*) FROM participants WHERE battle_id = $1) < $6
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		participant.BattleID,
		participant.UserID,
		participant.IsBot,
		participant.BotName,
		participant.Position,
		maxPlayers,
	).Scan(&participant.ID, &participant.CreatedAt)

	if err == pgx.ErrNoRows {
		return entities.ErrBattleNotJoinable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// Unique violation: either the seat position or the (battle, user)
		// pair is already taken.
		if pgErr.ConstraintName == "idx_participants_battle_user" {
			return entities.ErrAlreadyJoined
		}
		return entities.ErrBattleNotJoinable
	}
	if err != nil {
		return fmt.Errorf("failed to add participant to battle %s: %w", participant.BattleID, err)
	}

	return nil
}

// CountParticipants returns the current roster size
func (r *battleRepository) CountParticipants(ctx context.Context, battleID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM participants WHERE battle_id = $1`

	var count int
	if err := r.q.QueryRow(ctx, query, battleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants for battle %s: %w", battleID, err)
	}

	return count, nil
}

// AddParticipantValue accumulates a revealed item's value onto the
// participant's running total
func (r *battleRepository) AddParticipantValue(ctx context.Context, participantID int64, delta int64) error {
	query := `UPDATE participants SET total_value = total_value + $1 WHERE id = $2`

	result, err := r.q.Exec(ctx, query, delta, participantID)
	if err != nil {
		return fmt.Errorf("failed to add value for participant %d: %w", participantID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("participant %d not found", participantID)
	}

	return nil
}

// MarkWinner flags the winning participant at settlement
func (r *battleRepository) MarkWinner(ctx context.Context, participantID int64) error {
	query := `UPDATE participants SET is_winner = TRUE WHERE id = $1`

	result, err := r.q.Exec(ctx, query, participantID)
	if err != nil {
		return fmt.Errorf("failed to mark winner %d: %w", participantID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("participant %d not found", participantID)
	}

	return nil
}

// GetUnfinished returns battles that have not reached the terminal state
func (r *battleRepository) GetUnfinished(ctx context.Context) ([]*entities.Battle, error) {
	query := `SELECT ` + battleColumns + ` FROM battles WHERE status != 'finished' ORDER BY created_at`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get unfinished battles: %w", err)
	}
	defer rows.Close()

	var battles []*entities.Battle
	for rows.Next() {
		battle, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan battle: %w", err)
		}
		battles = append(battles, battle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate battles: %w", err)
	}

	return battles, nil
}
