package testutil

import (
	"time"

	"casebattle/domain/entities"

	"github.com/google/uuid"
)

// CreateTestUser creates a test user with default values
func CreateTestUser(id int64, username string) *entities.User {
	now := time.Now()
	return &entities.User{
		ID:        id,
		Username:  username,
		Balance:   100000,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTestUserWithBalance creates a test user with a specific balance
func CreateTestUserWithBalance(id int64, username string, balance int64) *entities.User {
	user := CreateTestUser(id, username)
	user.Balance = balance
	return user
}

// CreateTestBattle creates a duel battle in the waiting state
func CreateTestBattle(creatorID int64) *entities.Battle {
	return &entities.Battle{
		ID:         uuid.New(),
		CreatorID:  creatorID,
		Mode:       entities.BattleModeDuel,
		Status:     entities.BattleStatusWaiting,
		MaxPlayers: 2,
		EntryCost:  1000,
	}
}

// CreateTestBoxes creates a single-box sequence worth entryCost in total
func CreateTestBoxes(entryCost int64, quantity int) []*entities.BattleBox {
	return []*entities.BattleBox{
		{
			BoxID:    1,
			BoxName:  "Test Box",
			BoxPrice: entryCost / int64(quantity),
			Quantity: quantity,
			Position: 1,
		},
	}
}

// CreateTestParticipant creates a human participant for a battle
func CreateTestParticipant(battleID uuid.UUID, userID int64, position int) *entities.Participant {
	return &entities.Participant{
		BattleID: battleID,
		UserID:   &userID,
		Position: position,
	}
}

// CreateTestBotParticipant creates a bot participant for a battle
func CreateTestBotParticipant(battleID uuid.UUID, name string, position int) *entities.Participant {
	return &entities.Participant{
		BattleID: battleID,
		IsBot:    true,
		BotName:  name,
		Position: position,
	}
}
