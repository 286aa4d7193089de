package repository

import (
	"context"
	"fmt"

	"casebattle/database"
	"casebattle/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                     *database.DB
	tx                     pgx.Tx
	ctx                    context.Context
	transactionalPublisher interfaces.TransactionalEventPublisher
	battleRepo             interfaces.BattleRepository
	outcomeRepo            interfaces.OutcomeRepository
	userRepo               interfaces.UserRepository
	settlementRepo         interfaces.SettlementRepository
	ledger                 interfaces.Ledger
}

type unitOfWorkFactory struct {
	db               *database.DB
	publisherFactory func() interfaces.TransactionalEventPublisher
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory. Each unit of work
// gets its own transactional publisher so buffered events from concurrent
// transactions never interleave.
func NewUnitOfWorkFactory(db *database.DB, publisherFactory func() interfaces.TransactionalEventPublisher) interfaces.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:               db,
		publisherFactory: publisherFactory,
	}
}

func (f *unitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &unitOfWork{
		db:                     f.db,
		transactionalPublisher: f.publisherFactory(),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories with the transaction
	u.battleRepo = newBattleRepositoryWithTx(tx)
	u.outcomeRepo = newOutcomeRepositoryWithTx(tx)
	u.userRepo = newUserRepositoryWithTx(tx)
	u.settlementRepo = newSettlementRepositoryWithTx(tx)
	u.ledger = newLedgerRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and flushes buffered events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events only after the commit succeeded
	if u.transactionalPublisher != nil {
		if err := u.transactionalPublisher.Flush(u.ctx); err != nil {
			return fmt.Errorf("failed to flush events after commit: %w", err)
		}
	}

	return nil
}

// Rollback rolls back the transaction and discards buffered events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}

	return nil
}

// BattleRepository returns the battle repository for this unit of work
func (u *unitOfWork) BattleRepository() interfaces.BattleRepository {
	if u.battleRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.battleRepo
}

// OutcomeRepository returns the outcome repository for this unit of work
func (u *unitOfWork) OutcomeRepository() interfaces.OutcomeRepository {
	if u.outcomeRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.outcomeRepo
}

// UserRepository returns the user repository for this unit of work
func (u *unitOfWork) UserRepository() interfaces.UserRepository {
	if u.userRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.userRepo
}

// SettlementRepository returns the settlement repository for this unit of work
func (u *unitOfWork) SettlementRepository() interfaces.SettlementRepository {
	if u.settlementRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.settlementRepo
}

// Ledger returns the ledger for this unit of work
func (u *unitOfWork) Ledger() interfaces.Ledger {
	if u.ledger == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.ledger
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalPublisher == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalPublisher
}
