package testhelpers

import (
	"context"

	"casebattle/domain/entities"
	"casebattle/domain/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockBattleRepository is a mock implementation of BattleRepository
type MockBattleRepository struct {
	mock.Mock
}

func (m *MockBattleRepository) CreateWithBoxes(ctx context.Context, battle *entities.Battle, boxes []*entities.BattleBox) error {
	args := m.Called(ctx, battle, boxes)
	return args.Error(0)
}

func (m *MockBattleRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Battle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Battle), args.Error(1)
}

func (m *MockBattleRepository) GetDetailByID(ctx context.Context, id uuid.UUID) (*entities.BattleDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.BattleDetail), args.Error(1)
}

func (m *MockBattleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.BattleStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockBattleRepository) SetTotalPrize(ctx context.Context, id uuid.UUID, totalPrize int64) error {
	args := m.Called(ctx, id, totalPrize)
	return args.Error(0)
}

func (m *MockBattleRepository) SetRevealedRounds(ctx context.Context, id uuid.UUID, rounds int) error {
	args := m.Called(ctx, id, rounds)
	return args.Error(0)
}

func (m *MockBattleRepository) AddParticipant(ctx context.Context, participant *entities.Participant, maxPlayers int) error {
	args := m.Called(ctx, participant, maxPlayers)
	return args.Error(0)
}

func (m *MockBattleRepository) CountParticipants(ctx context.Context, battleID uuid.UUID) (int, error) {
	args := m.Called(ctx, battleID)
	return args.Int(0), args.Error(1)
}

func (m *MockBattleRepository) AddParticipantValue(ctx context.Context, participantID int64, delta int64) error {
	args := m.Called(ctx, participantID, delta)
	return args.Error(0)
}

func (m *MockBattleRepository) MarkWinner(ctx context.Context, participantID int64) error {
	args := m.Called(ctx, participantID)
	return args.Error(0)
}

func (m *MockBattleRepository) GetUnfinished(ctx context.Context) ([]*entities.Battle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Battle), args.Error(1)
}

// MockOutcomeRepository is a mock implementation of OutcomeRepository
type MockOutcomeRepository struct {
	mock.Mock
}

func (m *MockOutcomeRepository) CreateBatch(ctx context.Context, outcomes []*entities.Outcome) error {
	args := m.Called(ctx, outcomes)
	return args.Error(0)
}

func (m *MockOutcomeRepository) GetByBattle(ctx context.Context, battleID uuid.UUID) ([]*entities.Outcome, error) {
	args := m.Called(ctx, battleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Outcome), args.Error(1)
}

func (m *MockOutcomeRepository) CountByBattle(ctx context.Context, battleID uuid.UUID) (int, error) {
	args := m.Called(ctx, battleID)
	return args.Int(0), args.Error(1)
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, id int64, username string, initialBalance int64) (*entities.User, error) {
	args := m.Called(ctx, id, username, initialBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

// MockSettlementRepository is a mock implementation of SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) Create(ctx context.Context, record *entities.SettlementRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockSettlementRepository) GetByBattle(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error) {
	args := m.Called(ctx, battleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SettlementRecord), args.Error(1)
}

// MockLedger is a mock implementation of the external Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) DebitBalance(ctx context.Context, userID int64, amount int64) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockLedger) CreditItems(ctx context.Context, userID int64, items []*entities.Item) error {
	args := m.Called(ctx, userID, items)
	return args.Error(0)
}

// MockOutcomeGenerator is a mock implementation of the external OutcomeGenerator
type MockOutcomeGenerator struct {
	mock.Mock
}

func (m *MockOutcomeGenerator) GenerateOutcomes(ctx context.Context, battle *entities.Battle, participants []*entities.Participant, boxes []*entities.BattleBox) ([]*entities.Outcome, error) {
	args := m.Called(ctx, battle, participants, boxes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Outcome), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
