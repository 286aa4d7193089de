package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"casebattle/domain/entities"
	"casebattle/domain/interfaces"
	"casebattle/domain/testhelpers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fixtureBoxes is a two-entry sequence expanding to three reveal rounds with
// an entry cost of 1500
func fixtureBoxes(battleID uuid.UUID) []*entities.BattleBox {
	return []*entities.BattleBox{
		{BattleID: battleID, BoxID: 11, BoxName: "Chroma", BoxPrice: 1000, Quantity: 1, Position: 1},
		{BattleID: battleID, BoxID: 12, BoxName: "Spectrum", BoxPrice: 250, Quantity: 2, Position: 2},
	}
}

const fixtureEntryCost = 1500

func seedBattle(t *testing.T, store *testhelpers.MemoryStore, status entities.BattleStatus, maxPlayers int, allowsBots bool) *entities.Battle {
	t.Helper()
	mode := entities.BattleModeGroup
	if maxPlayers == 2 {
		mode = entities.BattleModeDuel
	}
	battle := &entities.Battle{
		ID:         uuid.New(),
		CreatorID:  100,
		Mode:       mode,
		Status:     status,
		MaxPlayers: maxPlayers,
		EntryCost:  fixtureEntryCost,
		AllowsBots: allowsBots,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.CreateWithBoxes(context.Background(), battle, fixtureBoxes(battle.ID)))
	return battle
}

func seatUser(t *testing.T, store *testhelpers.MemoryStore, battle *entities.Battle, userID int64) *entities.Participant {
	t.Helper()
	ctx := context.Background()
	count, err := store.CountParticipants(ctx, battle.ID)
	require.NoError(t, err)
	uid := userID
	p := &entities.Participant{BattleID: battle.ID, UserID: &uid, Position: count + 1}
	require.NoError(t, store.AddParticipant(ctx, p, battle.MaxPlayers))
	return p
}

func seatBot(t *testing.T, store *testhelpers.MemoryStore, battle *entities.Battle, name string) *entities.Participant {
	t.Helper()
	ctx := context.Background()
	count, err := store.CountParticipants(ctx, battle.ID)
	require.NoError(t, err)
	p := &entities.Participant{BattleID: battle.ID, IsBot: true, BotName: name, Position: count + 1}
	require.NoError(t, store.AddParticipant(ctx, p, battle.MaxPlayers))
	return p
}

// seedOutcomes inserts the full cross product of (participant, round) outcomes
// with values from valueFor
func seedOutcomes(t *testing.T, store *testhelpers.MemoryStore, battle *entities.Battle, valueFor func(p *entities.Participant, round int) int64) []*entities.Outcome {
	t.Helper()
	ctx := context.Background()
	detail, err := store.GetDetailByID(ctx, battle.ID)
	require.NoError(t, err)
	require.NotNil(t, detail)

	var outcomes []*entities.Outcome
	for _, p := range detail.Participants {
		for round := 1; round <= detail.TotalRounds(); round++ {
			box := entities.RoundBox(detail.Boxes, round)
			outcomes = append(outcomes, &entities.Outcome{
				BattleID:      battle.ID,
				ParticipantID: p.ID,
				BoxID:         box.BoxID,
				Round:         round,
				ItemID:        box.BoxID*1000 + int64(round),
				ItemName:      fmt.Sprintf("%s item %d", box.BoxName, round),
				ItemValue:     valueFor(p, round),
				Seed:          "seed",
				Proof:         "proof",
			})
		}
	}
	require.NoError(t, store.CreateBatch(ctx, outcomes))
	return outcomes
}

// waitForStatus polls the store until the battle reaches the wanted status or
// the deadline passes
func waitForStatus(t *testing.T, store *testhelpers.MemoryStore, battleID uuid.UUID, want entities.BattleStatus, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		battle, err := store.GetByID(context.Background(), battleID)
		require.NoError(t, err)
		if battle != nil && battle.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("battle %s did not reach status %s within %s", battleID, want, timeout)
}

// fakeGenerator builds a deterministic outcome batch from whatever roster the
// battle holds at generation time. Lower seat positions receive higher values,
// so position 1 always wins. Calls are counted for exactly-once assertions.
type fakeGenerator struct {
	calls atomic.Int32
	fail  bool
}

func (g *fakeGenerator) GenerateOutcomes(ctx context.Context, battle *entities.Battle, participants []*entities.Participant, boxes []*entities.BattleBox) ([]*entities.Outcome, error) {
	g.calls.Add(1)
	if g.fail {
		return nil, fmt.Errorf("generator unavailable")
	}
	var outcomes []*entities.Outcome
	for _, p := range participants {
		for round := 1; round <= entities.TotalRounds(boxes); round++ {
			box := entities.RoundBox(boxes, round)
			outcomes = append(outcomes, &entities.Outcome{
				BattleID:      battle.ID,
				ParticipantID: p.ID,
				BoxID:         box.BoxID,
				Round:         round,
				ItemID:        box.BoxID*1000 + int64(round),
				ItemName:      fmt.Sprintf("%s item %d", box.BoxName, round),
				ItemValue:     int64(1000 - p.Position*100 + round),
				Seed:          "seed",
				Proof:         "proof",
			})
		}
	}
	return outcomes, nil
}

// fakeMetrics counts recorder calls for exactly-once assertions
type fakeMetrics struct {
	outcomeBatches atomic.Int32
	roundsRevealed atomic.Int32
	roundsForced   atomic.Int32
	battlesSettled atomic.Int32
	tiesBroken     atomic.Int32
}

func (m *fakeMetrics) OutcomeBatchGenerated() {
	m.outcomeBatches.Add(1)
}

func (m *fakeMetrics) RoundRevealed(forced bool) {
	m.roundsRevealed.Add(1)
	if forced {
		m.roundsForced.Add(1)
	}
}

func (m *fakeMetrics) BattleSettled(tieBroken bool) {
	m.battlesSettled.Add(1)
	if tieBroken {
		m.tiesBroken.Add(1)
	}
}

// stubReveal satisfies the coordinator interface for lifecycle tests that do
// not exercise the reveal loop
type stubReveal struct {
	ensured atomic.Int32
}

func (s *stubReveal) EnsureSession(ctx context.Context, battleID uuid.UUID) error {
	s.ensured.Add(1)
	return nil
}

func (s *stubReveal) ReportRevealComplete(battleID uuid.UUID, participantID int64, round int) error {
	return nil
}

func (s *stubReveal) Shutdown() {}

var _ interfaces.RevealCoordinator = (*stubReveal)(nil)
var _ interfaces.OutcomeGenerator = (*fakeGenerator)(nil)
var _ interfaces.MetricsRecorder = (*fakeMetrics)(nil)
