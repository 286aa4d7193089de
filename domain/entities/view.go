package entities

// BattleView is a read-only snapshot of a battle for spectators and late
// joiners. Only outcomes whose reveal round has completed are included, so a
// client can reconstruct the board without replaying the live animation.
type BattleView struct {
	Battle           *Battle
	Boxes            []*BattleBox
	Participants     []*Participant
	RevealedOutcomes []*Outcome
	Settlement       *SettlementRecord
}
