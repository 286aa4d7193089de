package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"casebattle/domain/entities"
	"casebattle/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// lootTier is one weighted band of a box's loot table
type lootTier struct {
	name       string
	weight     float64 // Cumulative upper bound in [0, 1)
	multiplier float64 // Item value as a fraction of box price
}

// Tier bounds are cumulative; a roll below the bound lands in that tier.
var lootTiers = []lootTier{
	{name: "Common", weight: 0.60, multiplier: 0.20},
	{name: "Uncommon", weight: 0.85, multiplier: 0.80},
	{name: "Rare", weight: 0.95, multiplier: 2.00},
	{name: "Jackpot", weight: 1.00, multiplier: 5.00},
}

// SeededGenerator produces battle outcomes from an HMAC-SHA256 stream keyed
// by a per-battle server seed. Every roll is derived from
// (seed, participant, round), so the full batch is reproducible from the seed
// and each outcome carries a proof digest for later verification.
type SeededGenerator struct{}

// NewSeededGenerator creates a new seeded outcome generator
func NewSeededGenerator() interfaces.OutcomeGenerator {
	return &SeededGenerator{}
}

// GenerateOutcomes returns exactly one outcome per (participant, round) pair
func (g *SeededGenerator) GenerateOutcomes(ctx context.Context, battle *entities.Battle, participants []*entities.Participant, boxes []*entities.BattleBox) ([]*entities.Outcome, error) {
	serverSeed, err := newServerSeed()
	if err != nil {
		return nil, fmt.Errorf("failed to generate server seed: %w", err)
	}

	totalRounds := entities.TotalRounds(boxes)
	outcomes := make([]*entities.Outcome, 0, len(participants)*totalRounds)

	for _, p := range participants {
		for round := 1; round <= totalRounds; round++ {
			box := entities.RoundBox(boxes, round)
			if box == nil {
				return nil, fmt.Errorf("no box resolves round %d of battle %s", round, battle.ID)
			}

			roll, proof := rollRound(serverSeed, battle, p, round)
			tierIdx, tier := pickTier(roll)

			outcomes = append(outcomes, &entities.Outcome{
				BattleID:      battle.ID,
				ParticipantID: p.ID,
				BoxID:         box.BoxID,
				Round:         round,
				ItemID:        box.BoxID*1000 + int64(tierIdx),
				ItemName:      fmt.Sprintf("%s %s", tier.name, box.BoxName),
				ItemValue:     int64(float64(box.BoxPrice) * tier.multiplier),
				Seed:          serverSeed,
				Proof:         proof,
			})
		}
	}

	log.WithFields(log.Fields{
		"battleID":     battle.ID,
		"participants": len(participants),
		"rounds":       totalRounds,
		"outcomes":     len(outcomes),
	}).Info("Generated outcome batch")

	return outcomes, nil
}

// rollRound derives a uniform roll in [0, 1) and its proof digest for one
// (participant, round) pair
func rollRound(serverSeed string, battle *entities.Battle, p *entities.Participant, round int) (float64, string) {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(mac, "%s:%d:%d", battle.ID, p.ID, round)
	digest := mac.Sum(nil)

	roll := float64(binary.BigEndian.Uint64(digest[:8])>>11) / float64(1<<53)
	return roll, hex.EncodeToString(digest)
}

// pickTier maps a roll onto the cumulative loot table
func pickTier(roll float64) (int, lootTier) {
	for i, tier := range lootTiers {
		if roll < tier.weight {
			return i, tier
		}
	}
	last := len(lootTiers) - 1
	return last, lootTiers[last]
}

// newServerSeed returns a fresh 32-byte hex seed
func newServerSeed() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
