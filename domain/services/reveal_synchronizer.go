package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"casebattle/domain/entities"
	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RevealConfig tunes the reveal pacing
type RevealConfig struct {
	// BarrierTimeout bounds the wait for the slowest lane per round. A
	// stalled or disconnected presentation agent forces an advance instead
	// of wedging the battle; reveal pacing is a presentation concern, not a
	// financial one.
	BarrierTimeout time.Duration

	// SettleDelay is the fixed pause between rounds so spectators perceive
	// synchronized play
	SettleDelay time.Duration

	// Metrics counts revealed and forced rounds; nil disables counting
	Metrics interfaces.MetricsRecorder
}

// RevealCoordinator drives box-by-box reveals. For every round it dispatches
// the reveal to all lanes, blocks on an N-of-N barrier until every lane
// reports completion (or the timeout forces an advance), accumulates values,
// and persists progress before starting the next round.
type RevealCoordinator struct {
	uowFactory interfaces.UnitOfWorkFactory
	cfg        RevealConfig

	mu       sync.Mutex
	sessions map[uuid.UUID]*revealSession

	// onComplete, when set, is invoked after a session reveals its final
	// round, so the lifecycle can settle without waiting for a notification
	onComplete func(context.Context, uuid.UUID)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRevealCoordinator creates a reveal coordinator with its own session root
// context; Shutdown cancels every in-flight session.
func NewRevealCoordinator(uowFactory interfaces.UnitOfWorkFactory, cfg RevealConfig) *RevealCoordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &RevealCoordinator{
		uowFactory: uowFactory,
		cfg:        cfg,
		sessions:   make(map[uuid.UUID]*revealSession),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetCompletionHandler registers the callback fired when a battle's final
// round has been revealed. Must be called before the first session starts.
func (c *RevealCoordinator) SetCompletionHandler(fn func(context.Context, uuid.UUID)) {
	c.onComplete = fn
}

// EnsureSession starts the reveal loop for an active battle if one is not
// already running. Redundant calls, including calls racing from multiple
// observers, collapse to a single session per battle.
func (c *RevealCoordinator) EnsureSession(ctx context.Context, battleID uuid.UUID) error {
	c.mu.Lock()
	if _, running := c.sessions[battleID]; running {
		c.mu.Unlock()
		return nil
	}
	// reserve the slot before loading so a racing caller sees it
	placeholder := &revealSession{battleID: battleID}
	c.sessions[battleID] = placeholder
	c.mu.Unlock()

	sess, err := c.loadSession(ctx, battleID)
	if err != nil {
		c.dropSession(battleID)
		return err
	}
	if sess == nil {
		// nothing left to reveal
		c.dropSession(battleID)
		return nil
	}

	c.mu.Lock()
	c.sessions[battleID] = sess
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.dropSession(battleID)
		finished := sess.run(c.ctx)
		if finished && c.onComplete != nil {
			c.onComplete(context.Background(), battleID)
		}
	}()
	return nil
}

// ReportRevealComplete records that a lane finished animating a round. Late
// or duplicate reports for rounds that already advanced are ignored; the
// synchronizer never un-releases a barrier.
func (c *RevealCoordinator) ReportRevealComplete(battleID uuid.UUID, participantID int64, round int) error {
	c.mu.Lock()
	sess := c.sessions[battleID]
	c.mu.Unlock()
	if sess == nil || sess.lanes == nil {
		return nil
	}
	sess.report(participantID, round)
	return nil
}

// Shutdown cancels all in-flight reveal sessions and waits for them to exit.
// Server-side state is untouched: revealed rounds are already persisted, so
// a restarted process resumes from the last barrier via EnsureSession.
func (c *RevealCoordinator) Shutdown() {
	c.cancel()
	c.wg.Wait()
}

func (c *RevealCoordinator) dropSession(battleID uuid.UUID) {
	c.mu.Lock()
	delete(c.sessions, battleID)
	c.mu.Unlock()
}

// loadSession builds the reveal session from persisted state. Returns nil
// when the battle is not active or every round is already revealed.
func (c *RevealCoordinator) loadSession(ctx context.Context, battleID uuid.UUID) (*revealSession, error) {
	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("load reveal session", err)
	}

	detail, err := uow.BattleRepository().GetDetailByID(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get battle detail: %w", err)
	}
	if detail == nil {
		uow.Rollback()
		return nil, entities.ErrBattleNotFound
	}
	outcomes, err := uow.OutcomeRepository().GetByBattle(ctx, battleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get outcomes: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("load reveal session", err)
	}

	battle := detail.Battle
	if !battle.IsActive() || battle.RevealedRounds >= detail.TotalRounds() {
		return nil, nil
	}
	if len(outcomes) != detail.ExpectedOutcomeCount() {
		// outcomes must fully exist before any reveal starts
		return nil, entities.NewInvariantViolation(battleID,
			"reveal requested with %d outcomes, expected %d", len(outcomes), detail.ExpectedOutcomeCount())
	}

	lanes := make(map[int64]bool, len(detail.Participants))
	for _, p := range detail.Participants {
		lanes[p.ID] = true
	}

	return &revealSession{
		battleID:    battleID,
		lanes:       lanes,
		totalRounds: detail.TotalRounds(),
		startRound:  battle.RevealedRounds + 1,
		byRound:     entities.OutcomesByRound(outcomes),
		cfg:         c.cfg,
		uowFactory:  c.uowFactory,
	}, nil
}

// revealSession is the per-battle reveal loop state
type revealSession struct {
	battleID    uuid.UUID
	lanes       map[int64]bool
	totalRounds int
	startRound  int
	byRound     map[int][]*entities.Outcome
	cfg         RevealConfig
	uowFactory  interfaces.UnitOfWorkFactory

	mu       sync.Mutex
	round    int
	reported map[int64]bool
	released chan struct{}
}

// run reveals each remaining round in order. Returns true when the final
// round's barrier released and its progress was persisted.
func (s *revealSession) run(ctx context.Context) bool {
	logger := log.WithField("battleID", s.battleID)
	for round := s.startRound; round <= s.totalRounds; round++ {
		barrier := s.beginRound(round)

		forced := false
		select {
		case <-barrier:
		case <-time.After(s.cfg.BarrierTimeout):
			forced = true
		case <-ctx.Done():
			// abandoned mid-reveal; already-released rounds stay persisted
			return false
		}

		if err := s.persistRound(ctx, round); err != nil {
			logger.WithError(err).WithField("round", round).Error("failed to persist reveal round")
			return false
		}

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RoundRevealed(forced)
		}
		if forced {
			logger.WithField("round", round).Warn("reveal barrier timed out, forcing advance")
		}

		if round < s.totalRounds {
			select {
			case <-time.After(s.cfg.SettleDelay):
			case <-ctx.Done():
				return false
			}
		}
	}
	return true
}

// beginRound arms the barrier for a round and returns the release channel
func (s *revealSession) beginRound(round int) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round = round
	s.reported = make(map[int64]bool, len(s.lanes))
	s.released = make(chan struct{})
	return s.released
}

// report marks a lane's reveal of the given round as finished. The barrier
// releases only when every lane has reported; it waits for the slowest lane,
// never the fastest.
func (s *revealSession) report(participantID int64, round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if round != s.round || s.released == nil {
		return
	}
	if !s.lanes[participantID] || s.reported[participantID] {
		return
	}
	s.reported[participantID] = true
	if len(s.reported) == len(s.lanes) {
		close(s.released)
		s.released = nil
	}
}

// persistRound accumulates each lane's outcome value onto its running total
// and records the new reveal watermark, all in one transaction
func (s *revealSession) persistRound(ctx context.Context, round int) error {
	totals := make(map[int64]int64, len(s.lanes))

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return entities.NewTransientError("persist reveal round", err)
	}

	for _, o := range s.byRound[round] {
		if err := uow.BattleRepository().AddParticipantValue(ctx, o.ParticipantID, o.ItemValue); err != nil {
			uow.Rollback()
			return fmt.Errorf("failed to accumulate participant value: %w", err)
		}
		totals[o.ParticipantID] += o.ItemValue
	}

	if err := uow.BattleRepository().SetRevealedRounds(ctx, s.battleID, round); err != nil {
		uow.Rollback()
		return fmt.Errorf("failed to persist reveal progress: %w", err)
	}

	if err := uow.EventBus().Publish(events.BoxRevealedEvent{
		BattleID: s.battleID,
		Round:    round,
		Totals:   totals,
	}); err != nil {
		uow.Rollback()
		return fmt.Errorf("failed to publish box revealed event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return entities.NewTransientError("persist reveal round", err)
	}
	return nil
}
