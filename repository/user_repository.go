package repository

import (
	"context"
	"fmt"

	"casebattle/database"
	"casebattle/domain/entities"
	"casebattle/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

type userRepository struct {
	q Queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) interfaces.UserRepository {
	return &userRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx Queryable) interfaces.UserRepository {
	return &userRepository{q: tx}
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	query := `
		SELECT id, username, balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user entities.User
	err := r.q.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}

	return &user, nil
}

// Create creates a new user with the initial balance
func (r *userRepository) Create(ctx context.Context, id int64, username string, initialBalance int64) (*entities.User, error) {
	query := `
		INSERT INTO users (id, username, balance)
		VALUES ($1, $2, $3)
		RETURNING id, username, balance, created_at, updated_at
	`

	var user entities.User
	err := r.q.QueryRow(ctx, query, id, username, initialBalance).Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", id, err)
	}

	return &user, nil
}
