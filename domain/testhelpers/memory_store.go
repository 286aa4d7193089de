package testhelpers

import (
	"context"
	"sync"
	"time"

	"casebattle/domain/entities"
	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of every repository interface
// plus the external ledger, for service tests that need real state under
// concurrent access. Mutations apply immediately; there is no rollback
// isolation, which the service tests here do not depend on.
type MemoryStore struct {
	mu           sync.Mutex
	battles      map[uuid.UUID]*entities.Battle
	boxes        map[uuid.UUID][]*entities.BattleBox
	participants map[uuid.UUID][]*entities.Participant
	outcomes     map[uuid.UUID][]*entities.Outcome
	settlements  map[uuid.UUID]*entities.SettlementRecord
	users        map[int64]*entities.User
	inventories  map[int64][]*entities.Item
	published    []events.Event
	nextID       int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		battles:      make(map[uuid.UUID]*entities.Battle),
		boxes:        make(map[uuid.UUID][]*entities.BattleBox),
		participants: make(map[uuid.UUID][]*entities.Participant),
		outcomes:     make(map[uuid.UUID][]*entities.Outcome),
		settlements:  make(map[uuid.UUID]*entities.SettlementRecord),
		users:        make(map[int64]*entities.User),
		inventories:  make(map[int64][]*entities.Item),
	}
}

func (s *MemoryStore) allocID() int64 {
	s.nextID++
	return s.nextID
}

// SeedUser inserts a user with the given balance
func (s *MemoryStore) SeedUser(id int64, username string, balance int64) *entities.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &entities.User{ID: id, Username: username, Balance: balance, CreatedAt: time.Now()}
	s.users[id] = u
	return u
}

// Balance returns a user's current balance
func (s *MemoryStore) Balance(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u.Balance
	}
	return 0
}

// Inventory returns the items credited to a user
func (s *MemoryStore) Inventory(userID int64) []*entities.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entities.Item(nil), s.inventories[userID]...)
}

// Published returns every event flushed by committed units of work
func (s *MemoryStore) Published() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.published...)
}

// PublishedOfType filters committed events by type
func (s *MemoryStore) PublishedOfType(t events.EventType) []events.Event {
	var out []events.Event
	for _, e := range s.Published() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// BattleRepository implementation

func (s *MemoryStore) CreateWithBoxes(ctx context.Context, battle *entities.Battle, boxes []*entities.BattleBox) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *battle
	s.battles[battle.ID] = &copied
	for _, b := range boxes {
		b.ID = s.allocID()
		bc := *b
		s.boxes[battle.ID] = append(s.boxes[battle.ID], &bc)
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*entities.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (s *MemoryStore) GetDetailByID(ctx context.Context, id uuid.UUID) (*entities.BattleDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	detail := &entities.BattleDetail{Battle: &copied}
	for _, box := range s.boxes[id] {
		bc := *box
		detail.Boxes = append(detail.Boxes, &bc)
	}
	for _, p := range s.participants[id] {
		pc := *p
		detail.Participants = append(detail.Participants, &pc)
	}
	return detail, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.BattleStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	now := time.Now()
	switch to {
	case entities.BattleStatusActive:
		b.StartedAt = &now
	case entities.BattleStatusFinished:
		b.FinishedAt = &now
	}
	return true, nil
}

func (s *MemoryStore) SetTotalPrize(ctx context.Context, id uuid.UUID, totalPrize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.battles[id]; ok {
		b.TotalPrize = totalPrize
	}
	return nil
}

func (s *MemoryStore) SetRevealedRounds(ctx context.Context, id uuid.UUID, rounds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.battles[id]; ok {
		b.RevealedRounds = rounds
	}
	return nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, participant *entities.Participant, maxPlayers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.participants[participant.BattleID]
	if len(existing) >= maxPlayers {
		return entities.ErrBattleNotJoinable
	}
	for _, p := range existing {
		if !participant.IsBot && p.UserID != nil && participant.UserID != nil && *p.UserID == *participant.UserID {
			return entities.ErrAlreadyJoined
		}
	}
	participant.ID = s.allocID()
	participant.CreatedAt = time.Now()
	copied := *participant
	s.participants[participant.BattleID] = append(existing, &copied)
	return nil
}

func (s *MemoryStore) CountParticipants(ctx context.Context, battleID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants[battleID]), nil
}

func (s *MemoryStore) AddParticipantValue(ctx context.Context, participantID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ps := range s.participants {
		for _, p := range ps {
			if p.ID == participantID {
				p.TotalValue += delta
				return nil
			}
		}
	}
	return nil
}

func (s *MemoryStore) MarkWinner(ctx context.Context, participantID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ps := range s.participants {
		for _, p := range ps {
			if p.ID == participantID {
				p.IsWinner = true
				return nil
			}
		}
	}
	return nil
}

func (s *MemoryStore) GetUnfinished(ctx context.Context) ([]*entities.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Battle
	for _, b := range s.battles {
		if !b.IsFinished() {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

// OutcomeRepository implementation

func (s *MemoryStore) CreateBatch(ctx context.Context, outcomes []*entities.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range outcomes {
		o.ID = s.allocID()
		oc := *o
		s.outcomes[o.BattleID] = append(s.outcomes[o.BattleID], &oc)
	}
	return nil
}

func (s *MemoryStore) GetByBattle(ctx context.Context, battleID uuid.UUID) ([]*entities.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Outcome
	for _, o := range s.outcomes[battleID] {
		oc := *o
		out = append(out, &oc)
	}
	return out, nil
}

func (s *MemoryStore) CountByBattle(ctx context.Context, battleID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes[battleID]), nil
}

// UserRepository implementation

func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, id int64, username string, initialBalance int64) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &entities.User{ID: id, Username: username, Balance: initialBalance, CreatedAt: time.Now()}
	s.users[id] = u
	copied := *u
	return &copied, nil
}

// SettlementRepository implementation

func (s *MemoryStore) CreateSettlement(ctx context.Context, record *entities.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.settlements[record.BattleID]; exists {
		return entities.NewInvariantViolation(record.BattleID, "duplicate settlement record")
	}
	record.ID = s.allocID()
	copied := *record
	s.settlements[record.BattleID] = &copied
	return nil
}

func (s *MemoryStore) GetSettlementByBattle(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.settlements[battleID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

// Ledger implementation

func (s *MemoryStore) DebitBalance(ctx context.Context, userID int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return entities.ErrUserNotFound
	}
	if u.Balance < amount {
		return entities.ErrInsufficientBalance
	}
	u.Balance -= amount
	return nil
}

func (s *MemoryStore) CreditItems(ctx context.Context, userID int64, items []*entities.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventories[userID] = append(s.inventories[userID], items...)
	return nil
}

func (s *MemoryStore) flush(buffered []events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, buffered...)
}

// adapter types so MemoryStore satisfies the narrower repository interfaces
// without method name clashes

type memoryUserRepo struct{ store *MemoryStore }

func (r memoryUserRepo) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	return r.store.GetUserByID(ctx, id)
}

func (r memoryUserRepo) Create(ctx context.Context, id int64, username string, initialBalance int64) (*entities.User, error) {
	return r.store.CreateUser(ctx, id, username, initialBalance)
}

type memorySettlementRepo struct{ store *MemoryStore }

func (r memorySettlementRepo) Create(ctx context.Context, record *entities.SettlementRecord) error {
	return r.store.CreateSettlement(ctx, record)
}

func (r memorySettlementRepo) GetByBattle(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error) {
	return r.store.GetSettlementByBattle(ctx, battleID)
}

// MemoryUnitOfWork is a pass-through unit of work over a MemoryStore. Events
// are buffered and flushed to the store on commit, mirroring the production
// transactional publisher.
type MemoryUnitOfWork struct {
	store    *MemoryStore
	mu       sync.Mutex
	buffered []events.Event
}

func (u *MemoryUnitOfWork) Begin(ctx context.Context) error { return nil }

func (u *MemoryUnitOfWork) Commit() error {
	u.mu.Lock()
	buffered := u.buffered
	u.buffered = nil
	u.mu.Unlock()
	u.store.flush(buffered)
	return nil
}

func (u *MemoryUnitOfWork) Rollback() error {
	u.mu.Lock()
	u.buffered = nil
	u.mu.Unlock()
	return nil
}

func (u *MemoryUnitOfWork) BattleRepository() interfaces.BattleRepository { return u.store }

func (u *MemoryUnitOfWork) OutcomeRepository() interfaces.OutcomeRepository { return u.store }

func (u *MemoryUnitOfWork) UserRepository() interfaces.UserRepository {
	return memoryUserRepo{store: u.store}
}

func (u *MemoryUnitOfWork) SettlementRepository() interfaces.SettlementRepository {
	return memorySettlementRepo{store: u.store}
}

func (u *MemoryUnitOfWork) Ledger() interfaces.Ledger { return u.store }

func (u *MemoryUnitOfWork) EventBus() interfaces.EventPublisher {
	return memoryPublisher{uow: u}
}

type memoryPublisher struct{ uow *MemoryUnitOfWork }

func (p memoryPublisher) Publish(event events.Event) error {
	p.uow.mu.Lock()
	defer p.uow.mu.Unlock()
	p.uow.buffered = append(p.uow.buffered, event)
	return nil
}

// MemoryUnitOfWorkFactory creates units of work over one shared MemoryStore
type MemoryUnitOfWorkFactory struct {
	Store *MemoryStore
}

func (f *MemoryUnitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &MemoryUnitOfWork{store: f.Store}
}
