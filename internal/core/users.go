package core

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"gwi.com/conversation-assistant/internal/auth"
	"gwi.com/conversation-assistant/internal/store"
)

type UserStore interface {
	CreateUser(ctx context.Context, in store.UserCreate) (*store.User, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
}

type UserService struct {
	store UserStore
	log   zerolog.Logger
}

func NewUserService(db UserStore, log zerolog.Logger) *UserService {
	return &UserService{store: db, log: log.With().Str("component", "users").Logger()}
}

// Register creates an active, non-superuser account.
func (s *UserService) Register(ctx context.Context, email, password string, fullName *string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, newError(KindValidation, DetailInvalidRegistration, nil)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, newError(KindInternal, "Failed to process password", err)
	}

	user, err := s.store.CreateUser(ctx, store.UserCreate{Email: email, HashedPassword: hash, FullName: fullName})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, newError(KindConflict, DetailEmailTaken, err)
		}
		return nil, persistenceError(err)
	}
	s.log.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate checks credentials and returns the active user they belong to.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindUnauthorized, DetailIncorrectCredentials, nil)
		}
		return nil, persistenceError(err)
	}
	if !auth.CheckPasswordHash(password, user.HashedPassword) {
		return nil, newError(KindUnauthorized, DetailIncorrectCredentials, nil)
	}
	if !user.IsActive {
		return nil, newError(KindValidation, DetailInactiveUser, nil)
	}
	return user, nil
}

// UserByID resolves the identity carried by an access token.
func (s *UserService) UserByID(ctx context.Context, id int64) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, DetailUserNotFound, err)
		}
		return nil, persistenceError(err)
	}
	return user, nil
}
