package interfaces

import (
	"context"

	"casebattle/domain/entities"
	"casebattle/domain/events"

	"github.com/google/uuid"
)

// BattleRepository defines the interface for battle aggregate data access
type BattleRepository interface {
	// CreateWithBoxes creates a battle and its ordered box sequence atomically
	CreateWithBoxes(ctx context.Context, battle *entities.Battle, boxes []*entities.BattleBox) error

	// GetByID retrieves a battle by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Battle, error)

	// GetDetailByID retrieves a battle with its boxes and participants
	GetDetailByID(ctx context.Context, id uuid.UUID) (*entities.BattleDetail, error)

	// UpdateStatus advances a battle's status with a compare-and-set on the
	// expected current status. Returns false without error when the battle was
	// not in the expected status, so racing observers collapse to one winner.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.BattleStatus) (bool, error)

	// SetTotalPrize records the value of the full generated prize pool
	SetTotalPrize(ctx context.Context, id uuid.UUID, totalPrize int64) error

	// SetRevealedRounds persists reveal progress after a barrier release
	SetRevealedRounds(ctx context.Context, id uuid.UUID, rounds int) error

	// AddParticipant inserts a participant, re-checking capacity inside the
	// same statement so a concurrent join storm can never overfill the roster
	AddParticipant(ctx context.Context, participant *entities.Participant, maxPlayers int) error

	// CountParticipants returns the current roster size
	CountParticipants(ctx context.Context, battleID uuid.UUID) (int, error)

	// AddParticipantValue accumulates a revealed item's value onto a
	// participant's running total
	AddParticipantValue(ctx context.Context, participantID int64, delta int64) error

	// MarkWinner flags the winning participant at settlement
	MarkWinner(ctx context.Context, participantID int64) error

	// GetUnfinished returns battles that have not reached the terminal state,
	// for the background reconciler sweep
	GetUnfinished(ctx context.Context) ([]*entities.Battle, error)
}

// OutcomeRepository defines the interface for outcome batch data access
type OutcomeRepository interface {
	// CreateBatch persists a full outcome batch atomically. Partial batches
	// must never become visible to readers.
	CreateBatch(ctx context.Context, outcomes []*entities.Outcome) error

	// GetByBattle returns all outcomes for a battle ordered by round
	GetByBattle(ctx context.Context, battleID uuid.UUID) ([]*entities.Outcome, error)

	// CountByBattle returns the number of persisted outcomes for a battle
	CountByBattle(ctx context.Context, battleID uuid.UUID) (int, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id int64) (*entities.User, error)

	// Create creates a new user with the initial balance
	Create(ctx context.Context, id int64, username string, initialBalance int64) (*entities.User, error)
}

// SettlementRepository defines the interface for settlement record data access
type SettlementRepository interface {
	// Create persists the settlement record. The battle ID carries a unique
	// constraint; a second insert for the same battle must fail.
	Create(ctx context.Context, record *entities.SettlementRecord) error

	// GetByBattle returns the settlement record for a battle, or nil
	GetByBattle(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher buffers events until the enclosing unit of work
// commits, so observers never see notifications for rolled-back state
type TransactionalEventPublisher interface {
	EventPublisher

	// Flush publishes all buffered events after a successful commit
	Flush(ctx context.Context) error

	// Discard drops buffered events on rollback
	Discard()
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes buffered events
	Commit() error

	// Rollback rolls back the transaction and discards buffered events
	Rollback() error

	// Repository getters
	BattleRepository() BattleRepository
	OutcomeRepository() OutcomeRepository
	UserRepository() UserRepository
	SettlementRepository() SettlementRepository
	Ledger() Ledger

	// EventBus returns the transactional event publisher
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
