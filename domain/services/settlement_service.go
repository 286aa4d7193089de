package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"casebattle/domain/entities"
	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type settlementService struct {
	uowFactory interfaces.UnitOfWorkFactory
	latches    *LatchRegistry
	metrics    interfaces.MetricsRecorder
}

// NewSettlementService creates a new settlement service. A nil metrics
// recorder disables counting.
func NewSettlementService(uowFactory interfaces.UnitOfWorkFactory, latches *LatchRegistry, metrics interfaces.MetricsRecorder) interfaces.SettlementService {
	return &settlementService{uowFactory: uowFactory, latches: latches, metrics: metrics}
}

// ResolveWinner picks the participant with the strictly greatest total value.
// Ties at the maximum are broken by a uniform random choice among all tied
// leaders; with exactly two tied leaders that degenerates to a coin flip.
// The second return reports whether a tie-break was needed.
func ResolveWinner(detail *entities.BattleDetail) (*entities.Participant, bool) {
	leaders := detail.Leaders()
	if len(leaders) == 0 {
		return nil, false
	}
	if len(leaders) == 1 {
		return leaders[0], false
	}
	return leaders[rand.Intn(len(leaders))], true
}

// Finalize settles the battle at most once. The winner is marked, the
// settlement record created, and every opened item credited to the winner in
// one transaction gated by the idempotency latch; if any step fails the latch
// resets and nothing of the attempt is observable. Once settled, repeat calls
// return the existing record and transfer nothing. A nil, nil return means
// another caller currently holds the latch.
func (s *settlementService) Finalize(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error) {
	latch := s.latches.For(battleID, OperationSettle)
	if !latch.TryAcquire() {
		if latch.IsDone() {
			return s.existingRecord(ctx, battleID)
		}
		return nil, nil
	}

	completed := false
	defer func() {
		if !completed {
			latch.Release()
		}
	}()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("finalize", err)
	}

	detail, err := uow.BattleRepository().GetDetailByID(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get battle detail: %w", err)
	}
	if detail == nil {
		uow.Rollback()
		return nil, entities.ErrBattleNotFound
	}

	battle := detail.Battle
	if battle.IsFinished() {
		// in-memory latch was fresh (e.g. process restart) but the battle is
		// already settled; surface the existing record without transferring
		uow.Rollback()
		completed = true
		latch.MarkDone()
		return s.existingRecord(ctx, battleID)
	}
	if !battle.IsActive() || battle.RevealedRounds < detail.TotalRounds() {
		uow.Rollback()
		return nil, entities.NewInvariantViolation(battleID,
			"finalize requested in status %s with %d/%d rounds revealed",
			battle.Status, battle.RevealedRounds, detail.TotalRounds())
	}

	outcomes, err := uow.OutcomeRepository().GetByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get outcomes: %w", err)
	}
	if len(outcomes) != detail.ExpectedOutcomeCount() {
		uow.Rollback()
		return nil, entities.NewInvariantViolation(battleID,
			"settlement found %d outcomes, expected %d", len(outcomes), detail.ExpectedOutcomeCount())
	}

	existing, err := uow.SettlementRepository().GetByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to check settlement: %w", err)
	}
	if existing != nil {
		uow.Rollback()
		return nil, entities.NewInvariantViolation(battleID,
			"settlement record exists while battle is still %s", battle.Status)
	}

	winner, tieBroken := ResolveWinner(detail)
	if winner == nil {
		uow.Rollback()
		return nil, entities.NewInvariantViolation(battleID, "no participants to resolve")
	}

	if err := uow.BattleRepository().MarkWinner(ctx, winner.ID); err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to mark winner: %w", err)
	}

	// the winner takes the entire pool of opened items, from every lane
	items := make([]*entities.Item, 0, len(outcomes))
	var potValue int64
	for _, o := range outcomes {
		items = append(items, &entities.Item{ID: o.ItemID, Name: o.ItemName, Value: o.ItemValue})
		potValue += o.ItemValue
	}
	if winner.IsHuman() {
		if err := uow.Ledger().CreditItems(ctx, *winner.UserID, items); err != nil {
			uow.Rollback()
			return nil, entities.NewTransientError("credit items", err)
		}
	}

	record := &entities.SettlementRecord{
		BattleID:            battleID,
		WinnerParticipantID: winner.ID,
		WinningValue:        winner.TotalValue,
		PotValue:            potValue,
		ItemCount:           len(items),
		TieBroken:           tieBroken,
		CreatedAt:           time.Now(),
	}
	if err := uow.SettlementRepository().Create(ctx, record); err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to create settlement record: %w", err)
	}

	if err := uow.EventBus().Publish(events.BattleSettledEvent{
		BattleID:            battleID,
		WinnerParticipantID: winner.ID,
		WinningValue:        winner.TotalValue,
		PotValue:            potValue,
	}); err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to publish settled event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("finalize", err)
	}

	completed = true
	latch.MarkDone()
	if s.metrics != nil {
		s.metrics.BattleSettled(tieBroken)
	}

	log.WithFields(log.Fields{
		"battleID":  battleID,
		"winner":    winner.DisplayName(),
		"potValue":  potValue,
		"tieBroken": tieBroken,
	}).Info("battle settled")

	return record, nil
}

// existingRecord fetches the already-created settlement record
func (s *settlementService) existingRecord(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("finalize", err)
	}
	record, err := uow.SettlementRepository().GetByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get settlement record: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("finalize", err)
	}
	return record, nil
}
