package repository

import (
	"context"
	"fmt"

	"casebattle/database"
	"casebattle/domain/entities"
	"casebattle/domain/interfaces"
)

type ledgerRepository struct {
	q Queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) interfaces.Ledger {
	return &ledgerRepository{q: db.Pool}
}

// newLedgerRepositoryWithTx creates a new ledger repository with a transaction
func newLedgerRepositoryWithTx(tx Queryable) interfaces.Ledger {
	return &ledgerRepository{q: tx}
}

// DebitBalance removes amount from the user's balance. The balance check is
// part of the update predicate, so two concurrent debits can never drive the
// balance negative.
func (r *ledgerRepository) DebitBalance(ctx context.Context, userID int64, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must not be negative")
	}

	query := `
		UPDATE users
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
	`

	result, err := r.q.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("failed to debit balance for user %d: %w", userID, err)
	}

	if result.RowsAffected() == 0 {
		// Either the user is missing or the balance does not cover the debit
		var exists bool
		checkQuery := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
		if err := r.q.QueryRow(ctx, checkQuery, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check user %d: %w", userID, err)
		}
		if !exists {
			return entities.ErrUserNotFound
		}
		return entities.ErrInsufficientBalance
	}

	return nil
}

// CreditItems transfers the given items into the user's inventory
func (r *ledgerRepository) CreditItems(ctx context.Context, userID int64, items []*entities.Item) error {
	query := `
		INSERT INTO user_items (user_id, item_id, item_name, item_value)
		VALUES ($1, $2, $3, $4)
	`

	for _, item := range items {
		if _, err := r.q.Exec(ctx, query, userID, item.ID, item.Name, item.Value); err != nil {
			return fmt.Errorf("failed to credit item %d to user %d: %w", item.ID, userID, err)
		}
	}

	return nil
}
