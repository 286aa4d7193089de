package entities

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// BattleBox is one entry in a battle's ordered box sequence.
// Position is contiguous starting at 1 and defines reveal order; a quantity
// above 1 expands into that many consecutive reveal rounds of the same box.
type BattleBox struct {
	ID        int64     `db:"id"`
	BattleID  uuid.UUID `db:"battle_id"`
	BoxID     int64     `db:"box_id"`
	BoxName   string    `db:"box_name"`
	BoxPrice  int64     `db:"box_price"`
	Quantity  int       `db:"quantity"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
}

// TotalRounds returns the number of reveal rounds the sequence expands to
func TotalRounds(boxes []*BattleBox) int {
	total := 0
	for _, b := range boxes {
		total += b.Quantity
	}
	return total
}

// RoundBox resolves a 1-based reveal round to the box opened in that round
func RoundBox(boxes []*BattleBox, round int) *BattleBox {
	ordered := make([]*BattleBox, len(boxes))
	copy(ordered, boxes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	r := round
	for _, b := range ordered {
		if r <= b.Quantity {
			return b
		}
		r -= b.Quantity
	}
	return nil
}

// ValidateBoxSequence checks that positions are contiguous starting at 1 and
// every quantity is positive
func ValidateBoxSequence(boxes []*BattleBox) error {
	if len(boxes) == 0 {
		return NewValidationError("battle requires at least one box")
	}
	seen := make(map[int]bool, len(boxes))
	for _, b := range boxes {
		if b.Quantity < 1 {
			return NewValidationError("box quantity must be at least 1")
		}
		if b.Position < 1 || b.Position > len(boxes) {
			return NewValidationError("box positions must be contiguous starting at 1")
		}
		if seen[b.Position] {
			return NewValidationError("duplicate box position")
		}
		seen[b.Position] = true
	}
	return nil
}
