package entities

import "time"

// User represents a player account with its currency balance
type User struct {
	ID        int64     `db:"id"`
	Username  string    `db:"username"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CanAfford checks if the user has sufficient balance for an amount
func (u *User) CanAfford(amount int64) bool {
	return u.Balance >= amount
}
