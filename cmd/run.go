package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"casebattle/config"
	"casebattle/database"
	"casebattle/domain/interfaces"
	"casebattle/domain/services"
	"casebattle/httpapi"
	"casebattle/infrastructure"
	"casebattle/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting casebattle server...")

	cfg := config.Get()

	// Database
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// NATS
	log.Info("Connecting to NATS...")
	natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsClient.Close()

	if err := natsClient.EnsureBattleEventStream(); err != nil {
		return fmt.Errorf("failed to ensure battle event stream: %w", err)
	}

	subjectMapper := infrastructure.NewEventSubjectMapper()
	publisher := infrastructure.NewNATSEventPublisher(natsClient, subjectMapper)

	// Unit of work factory; every transaction buffers events until commit
	uowFactory := repository.NewUnitOfWorkFactory(db, func() interfaces.TransactionalEventPublisher {
		return infrastructure.NewNATSTransactionalPublisher(publisher)
	})

	metrics := infrastructure.NewDefaultMetrics()

	// Domain services
	latches := services.NewLatchRegistry()
	userService := services.NewUserService(uowFactory, cfg.StartingBalance)
	battleService := services.NewBattleService(uowFactory)
	rosterService := services.NewRosterService(uowFactory)
	settlementService := services.NewSettlementService(uowFactory, latches, metrics)
	revealCoordinator := services.NewRevealCoordinator(uowFactory, services.RevealConfig{
		BarrierTimeout: cfg.RevealBarrierTimeout,
		SettleDelay:    cfg.RevealSettleDelay,
		Metrics:        metrics,
	})
	generator := infrastructure.NewSeededGenerator()
	lifecycleService := services.NewLifecycleService(
		uowFactory, generator, rosterService, revealCoordinator, settlementService, latches, metrics)

	// When a battle's final round lands, settle it without waiting for an
	// external nudge
	revealCoordinator.SetCompletionHandler(func(ctx context.Context, battleID uuid.UUID) {
		if _, err := lifecycleService.Reconcile(ctx, battleID); err != nil {
			log.WithFields(log.Fields{
				"battleID": battleID,
				"error":    err,
			}).Error("Failed to reconcile after final reveal")
		}
	})
	defer revealCoordinator.Shutdown()

	// Event-driven reconciliation
	subscriber := infrastructure.NewNATSEventSubscriber(natsClient, subjectMapper)
	listener := infrastructure.NewBattleEventListener(lifecycleService)
	if err := listener.Register(subscriber); err != nil {
		return fmt.Errorf("failed to register battle event listener: %w", err)
	}

	// Sweep unfinished battles left over from a previous process
	if err := resumeUnfinished(ctx, uowFactory, lifecycleService); err != nil {
		log.WithError(err).Warn("Failed to resume unfinished battles")
	}

	// HTTP
	handlers := httpapi.NewHandlers(userService, battleService, rosterService, lifecycleService, revealCoordinator, metrics)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(handlers, metrics),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Infof("Server is running in %s mode...", cfg.Environment)

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	log.Info("Shutdown completed")
	return nil
}

// resumeUnfinished reconciles every battle that was mid-flight when the
// previous process stopped
func resumeUnfinished(ctx context.Context, uowFactory interfaces.UnitOfWorkFactory, lifecycle interfaces.LifecycleService) error {
	uow := uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	battles, err := uow.BattleRepository().GetUnfinished(ctx)
	if err != nil {
		uow.Rollback()
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	for _, battle := range battles {
		if _, err := lifecycle.Reconcile(ctx, battle.ID); err != nil {
			log.WithFields(log.Fields{
				"battleID": battle.ID,
				"error":    err,
			}).Error("Failed to resume battle")
		}
	}

	if len(battles) > 0 {
		log.WithField("count", len(battles)).Info("Resumed unfinished battles")
	}
	return nil
}
