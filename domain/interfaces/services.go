package interfaces

import (
	"context"

	"casebattle/domain/entities"

	"github.com/google/uuid"
)

// BoxParams describes one entry of a battle's box sequence at creation time.
// The box catalog itself is managed elsewhere; callers pass the reference
// along with the display name and price the battle was created against.
type BoxParams struct {
	BoxID    int64
	BoxName  string
	BoxPrice int64
	Quantity int
}

// CreateBattleParams carries the configuration for a new battle
type CreateBattleParams struct {
	CreatorID  int64
	Mode       entities.BattleMode
	MaxPlayers int
	AllowsBots bool
	Boxes      []BoxParams
}

// UserService manages player accounts and their starting balance
type UserService interface {
	// GetOrCreateUser retrieves an existing user or creates one with the
	// configured starting balance
	GetOrCreateUser(ctx context.Context, id int64, username string) (*entities.User, error)

	// GetUser retrieves a user, failing with entities.ErrUserNotFound when
	// the account does not exist
	GetUser(ctx context.Context, id int64) (*entities.User, error)
}

// BattleService creates battles and serves read-only snapshots
type BattleService interface {
	// CreateBattle creates a battle in the waiting state and joins the
	// creator as its first participant
	CreateBattle(ctx context.Context, params CreateBattleParams) (*entities.BattleDetail, error)

	// GetBattleView returns a snapshot including outcomes revealed so far
	GetBattleView(ctx context.Context, battleID uuid.UUID) (*entities.BattleView, error)
}

// RosterService admits participants and auto-fills bots
type RosterService interface {
	// Join admits a user into a waiting battle, debiting the entry cost and
	// inserting the participant as one atomic unit
	Join(ctx context.Context, battleID uuid.UUID, userID int64) (*entities.Participant, error)

	// AddBot inserts a single bot on behalf of the battle creator
	AddBot(ctx context.Context, battleID uuid.UUID, requesterID int64) (*entities.Participant, error)

	// AutoFillBots fills every remaining seat with bots. Safe to call
	// repeatedly; capacity is re-checked before each insert.
	AutoFillBots(ctx context.Context, battleID uuid.UUID) error
}

// Action is the next step the lifecycle reconciler decided on
type Action string

const (
	ActionNone      Action = "none"
	ActionFillBots  Action = "fill_bots"
	ActionCountdown Action = "begin_countdown"
	ActionGenerate  Action = "generate_outcomes"
	ActionActivate  Action = "activate"
	ActionReveal    Action = "reveal"
	ActionSettle    Action = "settle"
)

// LifecycleService owns the battle state machine. Reconcile may be invoked by
// any observer, any number of times, and always converges to the same terminal
// sequence of side effects exactly once each.
type LifecycleService interface {
	// Reconcile inspects persisted state, performs at most one transition
	// step, and reports the action it took
	Reconcile(ctx context.Context, battleID uuid.UUID) (Action, error)
}

// RevealCoordinator drives the box-by-box reveal with a per-round barrier
// across all participant lanes
type RevealCoordinator interface {
	// EnsureSession starts the reveal loop for an active battle if one is not
	// already running. Redundant calls are no-ops.
	EnsureSession(ctx context.Context, battleID uuid.UUID) error

	// ReportRevealComplete records that a lane finished animating the given
	// round. The barrier releases once every lane has reported.
	ReportRevealComplete(battleID uuid.UUID, participantID int64, round int) error

	// Shutdown cancels all in-flight reveal sessions
	Shutdown()
}

// SettlementService resolves the winner and performs the one-time prize
// transfer
type SettlementService interface {
	// Finalize settles the battle under the idempotency guard. After a
	// successful settlement, repeat calls return the existing record and
	// perform no transfer.
	Finalize(ctx context.Context, battleID uuid.UUID) (*entities.SettlementRecord, error)
}
