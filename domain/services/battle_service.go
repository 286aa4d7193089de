package services

import (
	"context"
	"fmt"
	"time"

	"casebattle/domain/entities"
	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
)

type battleService struct {
	uowFactory interfaces.UnitOfWorkFactory
}

// NewBattleService creates a new battle service
func NewBattleService(uowFactory interfaces.UnitOfWorkFactory) interfaces.BattleService {
	return &battleService{uowFactory: uowFactory}
}

// CreateBattle creates a battle in the waiting state, debits the creator's
// entry cost, and seats the creator at position 1. The debit and the inserts
// share one transaction; none of them is observable unless all succeed.
func (s *battleService) CreateBattle(ctx context.Context, params interfaces.CreateBattleParams) (*entities.BattleDetail, error) {
	if params.MaxPlayers < 2 {
		return nil, entities.NewValidationError("battle requires at least 2 players")
	}
	if params.Mode == entities.BattleModeDuel && params.MaxPlayers != 2 {
		return nil, entities.NewValidationError("duel battles hold exactly 2 players")
	}
	if params.Mode != entities.BattleModeDuel && params.Mode != entities.BattleModeGroup {
		return nil, entities.NewValidationError(fmt.Sprintf("invalid battle mode: %s", params.Mode))
	}
	if len(params.Boxes) == 0 {
		return nil, entities.NewValidationError("battle requires at least one box")
	}

	battle := &entities.Battle{
		ID:         uuid.New(),
		CreatorID:  params.CreatorID,
		Mode:       params.Mode,
		Status:     entities.BattleStatusWaiting,
		MaxPlayers: params.MaxPlayers,
		AllowsBots: params.AllowsBots,
		CreatedAt:  time.Now(),
	}

	boxes := make([]*entities.BattleBox, 0, len(params.Boxes))
	var entryCost int64
	for i, bp := range params.Boxes {
		boxes = append(boxes, &entities.BattleBox{
			BattleID: battle.ID,
			BoxID:    bp.BoxID,
			BoxName:  bp.BoxName,
			BoxPrice: bp.BoxPrice,
			Quantity: bp.Quantity,
			Position: i + 1,
		})
		entryCost += bp.BoxPrice * int64(bp.Quantity)
	}
	if err := entities.ValidateBoxSequence(boxes); err != nil {
		return nil, err
	}
	battle.EntryCost = entryCost

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("create battle", err)
	}

	creator, err := uow.UserRepository().GetByID(ctx, params.CreatorID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get creator: %w", err)
	}
	if creator == nil {
		uow.Rollback()
		return nil, entities.ErrUserNotFound
	}
	if !creator.CanAfford(entryCost) {
		uow.Rollback()
		return nil, entities.ErrInsufficientBalance
	}

	if err := uow.BattleRepository().CreateWithBoxes(ctx, battle, boxes); err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to create battle: %w", err)
	}

	if entryCost > 0 {
		if err := uow.Ledger().DebitBalance(ctx, params.CreatorID, entryCost); err != nil {
			uow.Rollback()
			return nil, err
		}
	}

	seat := &entities.Participant{
		BattleID: battle.ID,
		UserID:   &params.CreatorID,
		Position: 1,
	}
	if err := uow.BattleRepository().AddParticipant(ctx, seat, battle.MaxPlayers); err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to seat creator: %w", err)
	}

	if err := uow.EventBus().Publish(events.BattleCreatedEvent{
		BattleID:   battle.ID,
		CreatorID:  params.CreatorID,
		MaxPlayers: battle.MaxPlayers,
		EntryCost:  battle.EntryCost,
	}); err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to publish battle created event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("create battle", err)
	}

	return &entities.BattleDetail{
		Battle:       battle,
		Boxes:        boxes,
		Participants: []*entities.Participant{seat},
	}, nil
}

// GetBattleView returns a read-only snapshot with every outcome whose reveal
// round has completed, plus the settlement record once the battle finishes
func (s *battleService) GetBattleView(ctx context.Context, battleID uuid.UUID) (*entities.BattleView, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("get battle view", err)
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

	outcomes, err := uow.OutcomeRepository().GetByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get outcomes: %w", err)
	}

	settlement, err := uow.SettlementRepository().GetByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("get battle view", err)
	}

	revealed := make([]*entities.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Round <= detail.Battle.RevealedRounds {
			revealed = append(revealed, o)
		}
	}

	return &entities.BattleView{
		Battle:           detail.Battle,
		Boxes:            detail.Boxes,
		Participants:     detail.Participants,
		RevealedOutcomes: revealed,
		Settlement:       settlement,
	}, nil
}
