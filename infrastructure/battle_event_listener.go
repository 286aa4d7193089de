package infrastructure

import (
	"context"

	"casebattle/domain/events"
	"casebattle/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// BattleEventListener drives the battle state machine from NATS events. Every
// handler funnels into Reconcile, which looks at persisted state and performs
// at most one forward step, so duplicate or out-of-order deliveries are
// harmless.
type BattleEventListener struct {
	lifecycle interfaces.LifecycleService
}

// NewBattleEventListener creates a new battle event listener
func NewBattleEventListener(lifecycle interfaces.LifecycleService) *BattleEventListener {
	return &BattleEventListener{
		lifecycle: lifecycle,
	}
}

// Register subscribes the listener to every event that can unblock a battle
func (l *BattleEventListener) Register(subscriber *NATSEventSubscriber) error {
	for _, eventType := range []events.EventType{
		events.EventTypeRosterFilled,
		events.EventTypeBattleStateChange,
	} {
		if err := subscriber.Subscribe(eventType, l.handleBattleEvent); err != nil {
			return err
		}
	}
	return nil
}

// handleBattleEvent reconciles the battle the event belongs to
func (l *BattleEventListener) handleBattleEvent(ctx context.Context, event events.Event) error {
	battleID := event.Battle()

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"battleID":  battleID,
	}).Debug("Reconciling battle after event")

	if _, err := l.lifecycle.Reconcile(ctx, battleID); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"battleID":  battleID,
			"error":     err,
		}).Error("Failed to reconcile battle")
		return err
	}

	return nil
}
