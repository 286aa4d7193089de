package repository

import (
	"context"
	"testing"

	"casebattle/domain/entities"
	"casebattle/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBattleFixture(t *testing.T, testDB *testutil.TestDatabase, creatorID int64) *entities.Battle {
	t.Helper()
	ctx := context.Background()

	userRepo := NewUserRepository(testDB.DB)
	_, err := userRepo.Create(ctx, creatorID, "creator", 100000)
	require.NoError(t, err)

	battle := testutil.CreateTestBattle(creatorID)
	boxes := testutil.CreateTestBoxes(1000, 2)
	battleRepo := NewBattleRepository(testDB.DB)
	require.NoError(t, battleRepo.CreateWithBoxes(ctx, battle, boxes))

	return battle
}

func TestBattleRepository_CreateAndGetDetail(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBattleRepository(testDB.DB)
	ctx := context.Background()

	battle := createBattleFixture(t, testDB, 100)

	t.Run("detail includes boxes", func(t *testing.T) {
		detail, err := repo.GetDetailByID(ctx, battle.ID)
		require.NoError(t, err)
		require.NotNil(t, detail)

		assert.Equal(t, battle.ID, detail.Battle.ID)
		assert.Equal(t, entities.BattleStatusWaiting, detail.Battle.Status)
		require.Len(t, detail.Boxes, 1)
		assert.Equal(t, 2, detail.Boxes[0].Quantity)
		assert.Equal(t, 2, detail.TotalRounds())
		assert.Empty(t, detail.Participants)
	})

	t.Run("missing battle returns nil", func(t *testing.T) {
		missing, err := repo.GetByID(ctx, testutil.CreateTestBattle(100).ID)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestBattleRepository_UpdateStatus(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBattleRepository(testDB.DB)
	ctx := context.Background()

	battle := createBattleFixture(t, testDB, 200)

	t.Run("compare and set succeeds once", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, battle.ID, entities.BattleStatusWaiting, entities.BattleStatusCountdown)
		require.NoError(t, err)
		assert.True(t, ok)

		// Second attempt from the same expected status loses
		ok, err = repo.UpdateStatus(ctx, battle.ID, entities.BattleStatusWaiting, entities.BattleStatusCountdown)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("activation stamps started_at", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, battle.ID, entities.BattleStatusCountdown, entities.BattleStatusActive)
		require.NoError(t, err)
		require.True(t, ok)

		updated, err := repo.GetByID(ctx, battle.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.StartedAt)
		assert.Nil(t, updated.FinishedAt)
	})
}

func TestBattleRepository_AddParticipant(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	battleRepo := NewBattleRepository(testDB.DB)
	userRepo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	battle := createBattleFixture(t, testDB, 300)
	_, err := userRepo.Create(ctx, 301, "opponent", 100000)
	require.NoError(t, err)

	t.Run("fills up to max players", func(t *testing.T) {
		p1 := testutil.CreateTestParticipant(battle.ID, 300, 1)
		require.NoError(t, battleRepo.AddParticipant(ctx, p1, battle.MaxPlayers))
		assert.NotZero(t, p1.ID)

		p2 := testutil.CreateTestParticipant(battle.ID, 301, 2)
		require.NoError(t, battleRepo.AddParticipant(ctx, p2, battle.MaxPlayers))

		count, err := battleRepo.CountParticipants(ctx, battle.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("rejects overfill", func(t *testing.T) {
		bot := testutil.CreateTestBotParticipant(battle.ID, "BOT Crate Jockey #1", 3)
		err := battleRepo.AddParticipant(ctx, bot, battle.MaxPlayers)
		assert.ErrorIs(t, err, entities.ErrBattleNotJoinable)
	})

	t.Run("rejects duplicate user", func(t *testing.T) {
		dup := testutil.CreateTestParticipant(battle.ID, 300, 3)
		err := battleRepo.AddParticipant(ctx, dup, battle.MaxPlayers+10)
		assert.ErrorIs(t, err, entities.ErrAlreadyJoined)
	})
}

func TestOutcomeRepository_CreateBatch(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	battleRepo := NewBattleRepository(testDB.DB)
	outcomeRepo := NewOutcomeRepository(testDB.DB)
	ctx := context.Background()

	battle := createBattleFixture(t, testDB, 400)
	p := testutil.CreateTestParticipant(battle.ID, 400, 1)
	require.NoError(t, battleRepo.AddParticipant(ctx, p, battle.MaxPlayers))

	outcomes := []*entities.Outcome{
		{BattleID: battle.ID, ParticipantID: p.ID, BoxID: 1, Round: 1, ItemID: 10, ItemName: "Rusty Knife", ItemValue: 120, Seed: "seed-1", Proof: "proof-1"},
		{BattleID: battle.ID, ParticipantID: p.ID, BoxID: 1, Round: 2, ItemID: 11, ItemName: "Gold Coin", ItemValue: 730, Seed: "seed-2", Proof: "proof-2"},
	}

	t.Run("persists batch", func(t *testing.T) {
		require.NoError(t, outcomeRepo.CreateBatch(ctx, outcomes))

		count, err := outcomeRepo.CountByBattle(ctx, battle.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		stored, err := outcomeRepo.GetByBattle(ctx, battle.ID)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, 1, stored[0].Round)
		assert.Equal(t, "Rusty Knife", stored[0].ItemName)
	})

	t.Run("rejects second batch for same rounds", func(t *testing.T) {
		err := outcomeRepo.CreateBatch(ctx, outcomes)
		assert.True(t, entities.IsInvariantViolation(err))
	})
}

func TestSettlementRepository_Create(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	battleRepo := NewBattleRepository(testDB.DB)
	settlementRepo := NewSettlementRepository(testDB.DB)
	ctx := context.Background()

	battle := createBattleFixture(t, testDB, 500)
	p := testutil.CreateTestParticipant(battle.ID, 500, 1)
	require.NoError(t, battleRepo.AddParticipant(ctx, p, battle.MaxPlayers))

	record := &entities.SettlementRecord{
		BattleID:            battle.ID,
		WinnerParticipantID: p.ID,
		WinningValue:        850,
		PotValue:            850,
		ItemCount:           2,
	}

	t.Run("creates once", func(t *testing.T) {
		require.NoError(t, settlementRepo.Create(ctx, record))
		assert.NotZero(t, record.ID)

		stored, err := settlementRepo.GetByBattle(ctx, battle.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, p.ID, stored.WinnerParticipantID)
	})

	t.Run("rejects duplicate settlement", func(t *testing.T) {
		err := settlementRepo.Create(ctx, &entities.SettlementRecord{
			BattleID:            battle.ID,
			WinnerParticipantID: p.ID,
		})
		assert.True(t, entities.IsInvariantViolation(err))
	})
}

func TestLedgerRepository_DebitBalance(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	ledger := NewLedgerRepository(testDB.DB)
	userRepo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 600, "debtor", 500)
	require.NoError(t, err)

	t.Run("debits within balance", func(t *testing.T) {
		require.NoError(t, ledger.DebitBalance(ctx, 600, 300))

		user, err := userRepo.GetByID(ctx, 600)
		require.NoError(t, err)
		assert.Equal(t, int64(200), user.Balance)
	})

	t.Run("rejects insufficient balance", func(t *testing.T) {
		err := ledger.DebitBalance(ctx, 600, 300)
		assert.ErrorIs(t, err, entities.ErrInsufficientBalance)
	})

	t.Run("rejects unknown user", func(t *testing.T) {
		err := ledger.DebitBalance(ctx, 999, 100)
		assert.ErrorIs(t, err, entities.ErrUserNotFound)
	})

	t.Run("credits items", func(t *testing.T) {
		items := []*entities.Item{
			{ID: 10, Name: "Rusty Knife", Value: 120},
			{ID: 11, Name: "Gold Coin", Value: 730},
		}
		require.NoError(t, ledger.CreditItems(ctx, 600, items))
	})
}
