package services

import (
	"context"
	"fmt"

	"casebattle/domain/entities"
	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type lifecycleService struct {
	uowFactory interfaces.UnitOfWorkFactory
	generator  interfaces.OutcomeGenerator
	roster     interfaces.RosterService
	reveal     interfaces.RevealCoordinator
	settlement interfaces.SettlementService
	latches    *LatchRegistry
	metrics    interfaces.MetricsRecorder
}

// NewLifecycleService creates the battle state machine service. A nil metrics
// recorder disables counting.
func NewLifecycleService(
	uowFactory interfaces.UnitOfWorkFactory,
	generator interfaces.OutcomeGenerator,
	roster interfaces.RosterService,
	reveal interfaces.RevealCoordinator,
	settlement interfaces.SettlementService,
	latches *LatchRegistry,
	metrics interfaces.MetricsRecorder,
) interfaces.LifecycleService {
	return &lifecycleService{
		uowFactory: uowFactory,
		generator:  generator,
		roster:     roster,
		reveal:     reveal,
		settlement: settlement,
		latches:    latches,
		metrics:    metrics,
	}
}

// DecideNextAction is the pure reconciliation decision: given the persisted
// state of a battle it names the single next step, without performing it.
// Any observer may evaluate it at any time and reach the same answer.
func DecideNextAction(detail *entities.BattleDetail, outcomeCount int, settled bool) interfaces.Action {
	battle := detail.Battle
	switch battle.Status {
	case entities.BattleStatusWaiting:
		if detail.IsRosterFull() {
			return interfaces.ActionCountdown
		}
		if battle.AllowsBots {
			return interfaces.ActionFillBots
		}
		return interfaces.ActionNone

	case entities.BattleStatusCountdown:
		if outcomeCount >= detail.ExpectedOutcomeCount() {
			return interfaces.ActionActivate
		}
		return interfaces.ActionGenerate

	case entities.BattleStatusActive:
		if battle.RevealedRounds >= detail.TotalRounds() {
			// covers both fresh settlement and a settled battle whose
			// terminal transition has not landed yet
			return interfaces.ActionSettle
		}
		return interfaces.ActionReveal

	default:
		return interfaces.ActionNone
	}
}

// Reconcile inspects the battle and performs at most one lifecycle step. It
// is safe to invoke redundantly from any observer: transition guards are
// compare-and-set at the storage layer and the once-only operations sit
// behind latches, so duplicate or out-of-order triggers converge to the same
// terminal sequence of side effects exactly once each.
func (s *lifecycleService) Reconcile(ctx context.Context, battleID uuid.UUID) (interfaces.Action, error) {
	detail, outcomeCount, settlement, err := s.snapshot(ctx, battleID)
	if err != nil {
		return interfaces.ActionNone, err
	}

	action := DecideNextAction(detail, outcomeCount, settlement != nil)
	logger := log.WithFields(log.Fields{
		"battleID": battleID,
		"status":   detail.Battle.Status,
		"action":   action,
	})

	switch action {
	case interfaces.ActionFillBots:
		if err := s.roster.AutoFillBots(ctx, battleID); err != nil {
			return action, err
		}
		// the fill signal re-enters reconcile; also advance eagerly so a
		// single trigger carries a bot battle into countdown
		if _, err := s.Reconcile(ctx, battleID); err != nil {
			return action, err
		}

	case interfaces.ActionCountdown:
		if err := s.beginCountdown(ctx, detail.Battle); err != nil {
			return action, err
		}

	case interfaces.ActionGenerate:
		if err := s.generateOutcomes(ctx, detail); err != nil {
			return action, err
		}

	case interfaces.ActionActivate:
		if err := s.activate(ctx, detail.Battle); err != nil {
			return action, err
		}

	case interfaces.ActionReveal:
		if err := s.reveal.EnsureSession(ctx, battleID); err != nil {
			return action, err
		}

	case interfaces.ActionSettle:
		if err := s.settle(ctx, detail.Battle); err != nil {
			return action, err
		}
	}

	if action != interfaces.ActionNone {
		logger.Info("reconciled battle")
	}
	return action, nil
}

// snapshot loads everything the decision needs in one transaction
func (s *lifecycleService) snapshot(ctx context.Context, battleID uuid.UUID) (*entities.BattleDetail, int, *entities.SettlementRecord, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, 0, nil, entities.NewTransientError("reconcile", err)
	}

	detail, err := uow.BattleRepository().GetDetailByID(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, 0, nil, fmt.Errorf("failed to get battle detail: %w", err)
	}
	if detail == nil {
		uow.Rollback()
		return nil, 0, nil, entities.ErrBattleNotFound
	}

	outcomeCount, err := uow.OutcomeRepository().CountByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, 0, nil, fmt.Errorf("failed to count outcomes: %w", err)
	}

	settlement, err := uow.SettlementRepository().GetByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, 0, nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, 0, nil, entities.NewTransientError("reconcile", err)
	}
	return detail, outcomeCount, settlement, nil
}

// beginCountdown attempts waiting -> countdown. Losing the compare-and-set
// race is a silent no-op; some other observer already advanced the battle.
func (s *lifecycleService) beginCountdown(ctx context.Context, battle *entities.Battle) error {
	advanced, err := s.transition(ctx, battle.ID, entities.BattleStatusWaiting, entities.BattleStatusCountdown)
	if err != nil || !advanced {
		return err
	}
	battle.Status = entities.BattleStatusCountdown

	// the roster is locked in; generate immediately rather than waiting for
	// the next notification
	detail, outcomeCount, _, err := s.snapshot(ctx, battle.ID)
	if err != nil {
		return err
	}
	if outcomeCount < detail.ExpectedOutcomeCount() {
		return s.generateOutcomes(ctx, detail)
	}
	return nil
}

// generateOutcomes runs the external generator exactly once per battle under
// the idempotency latch and persists the full batch atomically. A failed
// attempt releases the latch so any observer may retry; the battle stays in
// countdown until a batch lands.
func (s *lifecycleService) generateOutcomes(ctx context.Context, detail *entities.BattleDetail) error {
	battle := detail.Battle
	latch := s.latches.For(battle.ID, OperationGenerate)
	if !latch.TryAcquire() {
		// someone else is generating, or generation already completed
		return nil
	}

	completed := false
	defer func() {
		if !completed {
			latch.Release()
		}
	}()

	outcomes, err := s.generator.GenerateOutcomes(ctx, battle, detail.Participants, detail.Boxes)
	if err != nil {
		return entities.NewTransientError("generate outcomes", err)
	}
	if len(outcomes) != detail.ExpectedOutcomeCount() {
		return entities.NewInvariantViolation(battle.ID,
			"generator returned %d outcomes, expected %d", len(outcomes), detail.ExpectedOutcomeCount())
	}

	var totalPrize int64
	for _, o := range outcomes {
		totalPrize += o.ItemValue
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return entities.NewTransientError("generate outcomes", err)
	}
	if err := uow.OutcomeRepository().CreateBatch(ctx, outcomes); err != nil {
		uow.Rollback()
		return entities.NewTransientError("persist outcomes", err)
	}
	if err := uow.BattleRepository().SetTotalPrize(ctx, battle.ID, totalPrize); err != nil {
		uow.Rollback()
		return entities.NewTransientError("persist outcomes", err)
	}
	if err := uow.Commit(); err != nil {
		return entities.NewTransientError("persist outcomes", err)
	}

	completed = true
	latch.MarkDone()
	if s.metrics != nil {
		s.metrics.OutcomeBatchGenerated()
	}

	log.WithFields(log.Fields{
		"battleID":   battle.ID,
		"outcomes":   len(outcomes),
		"totalPrize": totalPrize,
	}).Info("generated battle outcomes")

	// outcomes exist; the countdown -> active guard is satisfied
	return s.activate(ctx, battle)
}

// activate attempts countdown -> active and starts the reveal session
func (s *lifecycleService) activate(ctx context.Context, battle *entities.Battle) error {
	advanced, err := s.transition(ctx, battle.ID, entities.BattleStatusCountdown, entities.BattleStatusActive)
	if err != nil {
		return err
	}
	if advanced {
		battle.Status = entities.BattleStatusActive
	}
	return s.reveal.EnsureSession(ctx, battle.ID)
}

// settle finalizes under the settlement latch, then lands the terminal
// transition once a settlement record exists
func (s *lifecycleService) settle(ctx context.Context, battle *entities.Battle) error {
	record, err := s.settlement.Finalize(ctx, battle.ID)
	if err != nil {
		return err
	}
	if record == nil {
		// another observer holds the settlement latch; let it finish
		return nil
	}

	advanced, err := s.transition(ctx, battle.ID, entities.BattleStatusActive, entities.BattleStatusFinished)
	if err != nil {
		return err
	}
	if advanced {
		s.latches.Forget(battle.ID)
	}
	return nil
}

// transition performs one compare-and-set status advance and publishes the
// state change when this caller won the race
func (s *lifecycleService) transition(ctx context.Context, battleID uuid.UUID, from, to entities.BattleStatus) (bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, entities.NewTransientError("transition", err)
	}

	advanced, err := uow.BattleRepository().UpdateStatus(ctx, battleID, from, to)
	if err != nil {
		uow.Rollback()
		return false, fmt.Errorf("failed to update status: %w", err)
	}
	if !advanced {
		uow.Rollback()
		return false, nil
	}

	if err := uow.EventBus().Publish(events.BattleStateChangeEvent{
		BattleID: battleID,
		OldState: string(from),
		NewState: string(to),
	}); err != nil {
		uow.Rollback()
		return false, fmt.Errorf("failed to publish state change: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return false, entities.NewTransientError("transition", err)
	}

	log.WithFields(log.Fields{
		"battleID": battleID,
		"from":     from,
		"to":       to,
	}).Info("battle advanced")
	return true, nil
}
