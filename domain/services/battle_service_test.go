package services

import (
	"context"
	"testing"

	"casebattle/domain/entities"
	"casebattle/domain/events"
	"casebattle/domain/interfaces"
	"casebattle/domain/testhelpers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBattleService(store *testhelpers.MemoryStore) interfaces.BattleService {
	return NewBattleService(&testhelpers.MemoryUnitOfWorkFactory{Store: store})
}

func validCreateParams(creatorID int64) interfaces.CreateBattleParams {
	return interfaces.CreateBattleParams{
		CreatorID:  creatorID,
		Mode:       entities.BattleModeDuel,
		MaxPlayers: 2,
		Boxes: []interfaces.BoxParams{
			{BoxID: 11, BoxName: "Chroma", BoxPrice: 1000, Quantity: 1},
			{BoxID: 12, BoxName: "Spectrum", BoxPrice: 250, Quantity: 2},
		},
	}
}

func TestCreateBattle_Validation(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	store.SeedUser(100, "alice", 10000)
	service := newBattleService(store)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*interfaces.CreateBattleParams)
	}{
		{"too few players", func(p *interfaces.CreateBattleParams) { p.MaxPlayers = 1 }},
		{"duel with wrong capacity", func(p *interfaces.CreateBattleParams) { p.MaxPlayers = 4 }},
		{"unknown mode", func(p *interfaces.CreateBattleParams) { p.Mode = "royale" }},
		{"no boxes", func(p *interfaces.CreateBattleParams) { p.Boxes = nil }},
		{"zero quantity box", func(p *interfaces.CreateBattleParams) { p.Boxes[0].Quantity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validCreateParams(100)
			tt.mutate(&params)

			detail, err := service.CreateBattle(ctx, params)

			assert.Error(t, err)
			assert.True(t, entities.IsRejected(err), "validation failures must be rejections, got %v", err)
			assert.Nil(t, detail)
		})
	}
}

func TestCreateBattle_DebitsCreatorAndSeatsThem(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	store.SeedUser(100, "alice", 10000)
	service := newBattleService(store)

	detail, err := service.CreateBattle(context.Background(), validCreateParams(100))
	require.NoError(t, err)

	// entry cost is 1000*1 + 250*2
	assert.Equal(t, int64(1500), detail.Battle.EntryCost)
	assert.Equal(t, int64(8500), store.Balance(100))
	assert.Equal(t, entities.BattleStatusWaiting, detail.Battle.Status)

	require.Len(t, detail.Participants, 1)
	assert.Equal(t, 1, detail.Participants[0].Position)
	require.NotNil(t, detail.Participants[0].UserID)
	assert.Equal(t, int64(100), *detail.Participants[0].UserID)

	require.Len(t, detail.Boxes, 2)
	assert.Equal(t, 3, detail.TotalRounds())

	created := store.PublishedOfType(events.EventTypeBattleCreated)
	require.Len(t, created, 1)
	assert.Equal(t, detail.Battle.ID, created[0].Battle())

	persisted, err := store.GetDetailByID(context.Background(), detail.Battle.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Len(t, persisted.Participants, 1)
}

func TestCreateBattle_InsufficientBalance(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	store.SeedUser(100, "alice", 500)
	service := newBattleService(store)

	detail, err := service.CreateBattle(context.Background(), validCreateParams(100))

	assert.ErrorIs(t, err, entities.ErrInsufficientBalance)
	assert.Nil(t, detail)
	assert.Equal(t, int64(500), store.Balance(100), "failed creation must not debit")
	assert.Empty(t, store.Published())
}

func TestCreateBattle_UnknownCreator(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	service := newBattleService(store)

	_, err := service.CreateBattle(context.Background(), validCreateParams(999))

	assert.ErrorIs(t, err, entities.ErrUserNotFound)
}

func TestGetBattleView_FiltersUnrevealedOutcomes(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	service := newBattleService(store)
	ctx := context.Background()

	battle := seedBattle(t, store, entities.BattleStatusActive, 2, false)
	seatUser(t, store, battle, 100)
	seatUser(t, store, battle, 200)
	seedOutcomes(t, store, battle, func(p *entities.Participant, round int) int64 {
		return int64(round * 100)
	})
	require.NoError(t, store.SetRevealedRounds(ctx, battle.ID, 1))

	view, err := service.GetBattleView(ctx, battle.ID)
	require.NoError(t, err)

	// 2 participants x 3 rounds generated, only round 1 revealed
	require.Len(t, view.RevealedOutcomes, 2)
	for _, o := range view.RevealedOutcomes {
		assert.Equal(t, 1, o.Round)
	}
	assert.Nil(t, view.Settlement)
	assert.Len(t, view.Participants, 2)
}

func TestGetBattleView_NotFound(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	service := newBattleService(store)

	view, err := service.GetBattleView(context.Background(), uuid.New())

	assert.ErrorIs(t, err, entities.ErrBattleNotFound)
	assert.Nil(t, view)
}
