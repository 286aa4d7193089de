package services

import (
	"context"
	"fmt"
	"math/rand"

	"casebattle/domain/entities"
	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// botNames is the pool of synthesized bot display identities
var botNames = []string{
	"Rusty", "Vandal", "Karambit", "Bayonet", "Talon",
	"Fade", "Doppler", "Slate", "Gamma", "Sapphire",
	"Marble", "Tiger", "Emerald", "Lore", "Ultraviolet",
}

type rosterService struct {
	uowFactory interfaces.UnitOfWorkFactory
}

// NewRosterService creates a new roster service
func NewRosterService(uowFactory interfaces.UnitOfWorkFactory) interfaces.RosterService {
	return &rosterService{uowFactory: uowFactory}
}

// Join admits a user into a waiting battle. The entry-cost debit and the
// participant insert commit as one unit; if either fails the other is never
// observable. When the seat fills the roster, a RosterFilled event is
// published so observers attempt the waiting -> countdown transition. That
// signal may fire more than once; the state machine only acts on the first.
func (s *rosterService) Join(ctx context.Context, battleID uuid.UUID, userID int64) (*entities.Participant, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("join", err)
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
	if !battle.IsJoinable(len(detail.Participants)) {
		uow.Rollback()
		return nil, entities.ErrBattleNotJoinable
	}
	if detail.HasUser(userID) {
		uow.Rollback()
		return nil, entities.ErrAlreadyJoined
	}

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		uow.Rollback()
		return nil, entities.ErrUserNotFound
	}
	if !user.CanAfford(battle.EntryCost) {
		uow.Rollback()
		return nil, entities.ErrInsufficientBalance
	}

	if battle.EntryCost > 0 {
		if err := uow.Ledger().DebitBalance(ctx, userID, battle.EntryCost); err != nil {
			uow.Rollback()
			return nil, err
		}
	}

	participant := &entities.Participant{
		BattleID: battleID,
		UserID:   &userID,
		Position: detail.NextPosition(),
	}
	if err := uow.BattleRepository().AddParticipant(ctx, participant, battle.MaxPlayers); err != nil {
		uow.Rollback()
		return nil, err
	}

	if err := s.publishSeatEvents(uow, battle, participant, len(detail.Participants)+1); err != nil {
		uow.Rollback()
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("join", err)
	}

	log.WithFields(log.Fields{
		"battleID": battleID,
		"userID":   userID,
		"position": participant.Position,
	}).Info("participant joined battle")

	return participant, nil
}

// AddBot inserts a single bot on behalf of the battle creator
func (s *rosterService) AddBot(ctx context.Context, battleID uuid.UUID, requesterID int64) (*entities.Participant, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("add bot", err)
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
	if detail.Battle.CreatorID != requesterID {
		uow.Rollback()
		return nil, entities.ErrNotCreator
	}

	bot, err := s.insertBot(ctx, uow, detail)
	if err != nil {
		uow.Rollback()
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("add bot", err)
	}
	return bot, nil
}

// AutoFillBots fills every remaining seat with bots. Capacity is re-checked
// before each insert, so concurrent invocations can never over-fill.
func (s *rosterService) AutoFillBots(ctx context.Context, battleID uuid.UUID) error {
	for {
		uow := s.uowFactory.Create()
		if err := uow.Begin(ctx); err != nil {
			return entities.NewTransientError("auto-fill bots", err)
		}

		detail, err := uow.BattleRepository().GetDetailByID(ctx, battleID)
		if err != nil {
			uow.Rollback()
			return fmt.Errorf("failed to get battle detail: %w", err)
		}
		if detail == nil {
			uow.Rollback()
			return entities.ErrBattleNotFound
		}
		if detail.SeatsRemaining() == 0 || !detail.Battle.IsWaiting() {
			uow.Rollback()
			return nil
		}

		if _, err := s.insertBot(ctx, uow, detail); err != nil {
			uow.Rollback()
			return err
		}
		if err := uow.Commit(); err != nil {
			return entities.NewTransientError("auto-fill bots", err)
		}
	}
}

// insertBot seats one synthesized bot inside the caller's transaction
func (s *rosterService) insertBot(ctx context.Context, uow interfaces.UnitOfWork, detail *entities.BattleDetail) (*entities.Participant, error) {
	battle := detail.Battle
	if !battle.IsWaiting() || detail.SeatsRemaining() == 0 {
		return nil, entities.ErrBattleNotJoinable
	}
	if !battle.AllowsBots {
		return nil, entities.ErrBotsNotAllowed
	}

	position := detail.NextPosition()
	bot := &entities.Participant{
		BattleID: battle.ID,
		IsBot:    true,
		BotName:  fmt.Sprintf("BOT %s #%d", botNames[rand.Intn(len(botNames))], position),
		Position: position,
	}
	if err := uow.BattleRepository().AddParticipant(ctx, bot, battle.MaxPlayers); err != nil {
		return nil, err
	}
	detail.Participants = append(detail.Participants, bot)

	if err := s.publishSeatEvents(uow, battle, bot, len(detail.Participants)); err != nil {
		return nil, err
	}
	return bot, nil
}

// publishSeatEvents emits the joined event, plus the filled signal when this
// seat completed the roster
func (s *rosterService) publishSeatEvents(uow interfaces.UnitOfWork, battle *entities.Battle, p *entities.Participant, rosterCount int) error {
	if err := uow.EventBus().Publish(events.ParticipantJoinedEvent{
		BattleID:      battle.ID,
		ParticipantID: p.ID,
		Position:      p.Position,
		IsBot:         p.IsBot,
		DisplayName:   p.DisplayName(),
	}); err != nil {
		return fmt.Errorf("failed to publish joined event: %w", err)
	}

	if battle.IsFull(rosterCount) {
		if err := uow.EventBus().Publish(events.RosterFilledEvent{
			BattleID: battle.ID,
			Seats:    rosterCount,
		}); err != nil {
			return fmt.Errorf("failed to publish roster filled event: %w", err)
		}
	}
	return nil
}
