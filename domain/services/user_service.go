package services

import (
	"context"
	"fmt"

	"casebattle/domain/entities"
	"casebattle/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

type userService struct {
	uowFactory      interfaces.UnitOfWorkFactory
	startingBalance int64
}

// NewUserService creates a new user service
func NewUserService(uowFactory interfaces.UnitOfWorkFactory, startingBalance int64) interfaces.UserService {
	return &userService{uowFactory: uowFactory, startingBalance: startingBalance}
}

// GetOrCreateUser retrieves an existing user or creates one with the starting
// balance. The primary key constraint prevents duplicate accounts when two
// registrations race.
func (s *userService) GetOrCreateUser(ctx context.Context, id int64, username string) (*entities.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("get or create user", err)
	}

	user, err := uow.UserRepository().GetByID(ctx, id)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if user != nil {
		uow.Rollback()
		return user, nil
	}

	user, err = uow.UserRepository().Create(ctx, id, username, s.startingBalance)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("get or create user", err)
	}

	log.WithFields(log.Fields{
		"userID":  id,
		"balance": s.startingBalance,
	}).Info("created user account")

	return user, nil
}

// GetUser retrieves a user by ID
func (s *userService) GetUser(ctx context.Context, id int64) (*entities.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, entities.NewTransientError("get user", err)
	}

	user, err := uow.UserRepository().GetByID(ctx, id)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, entities.NewTransientError("get user", err)
	}
	if user == nil {
		return nil, entities.ErrUserNotFound
	}
	return user, nil
}
