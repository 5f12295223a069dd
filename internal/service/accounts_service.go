package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/product-catalog/internal/auth"
	"github.com/spec-kit/product-catalog/internal/config"
	"github.com/spec-kit/product-catalog/internal/domain"
	"github.com/spec-kit/product-catalog/internal/events"
	"github.com/spec-kit/product-catalog/internal/repository"
	apperrors "github.com/spec-kit/product-catalog/pkg/util"
)

// AccountsService coordinates registration and login flows.
type AccountsService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	throttle   LoginThrottle
	dispatcher events.Dispatcher
}

// AccountsDependencies encapsulates requirements for the accounts service.
type AccountsDependencies struct {
	UserRepo   repository.UserRepository
	Throttle   LoginThrottle
	Dispatcher events.Dispatcher
}

// NewAccountsService builds the service.
func NewAccountsService(cfg config.Config, deps AccountsDependencies) *AccountsService {
	return &AccountsService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL()),
		throttle:   deps.Throttle,
		dispatcher: deps.Dispatcher,
	}
}

// NewAccountsServiceWithTokens wires an explicit token manager, used by tests
// and the seed runner.
func NewAccountsServiceWithTokens(tokens *auth.TokenManager, deps AccountsDependencies) *AccountsService {
	return &AccountsService{
		users:      deps.UserRepo,
		tokenMgr:   tokens,
		throttle:   deps.Throttle,
		dispatcher: deps.Dispatcher,
	}
}

// Register creates a new account. Only the password hash is ever stored.
func (s *AccountsService) Register(ctx context.Context, username, email, password string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflict("username already registered", map[string]any{"username": username})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventUserRegistered,
		Actor:     events.Actor{Username: user.Username, Role: user.Role},
		Timestamp: time.Now(),
		Payload:   events.UserRegisteredPayload{Username: user.Username, Role: user.Role},
	})
	return user, nil
}

// Login authenticates a user and issues an access token. Failed attempts are
// counted per username and client IP.
func (s *AccountsService) Login(ctx context.Context, username, password, clientIP string) (*domain.User, string, time.Time, error) {
	throttleKey := fmt.Sprintf("%s|%s", username, clientIP)
	if allowed, _ := s.throttle.Allow(ctx, throttleKey); !allowed {
		return nil, "", time.Time{}, apperrors.NewRateLimited("too many failed login attempts")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = s.throttle.RecordFailure(ctx, throttleKey)
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("account inactive")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		_ = s.throttle.RecordFailure(ctx, throttleKey)
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	_ = s.throttle.Reset(ctx, throttleKey)

	token, exp, err := s.tokenMgr.Issue(user)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	return user, token, exp, nil
}

// Me returns the profile for an authenticated username.
func (s *AccountsService) Me(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"username": username})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AccountsService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", nil)
		}
		return apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperrors.MapError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AccountsService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AccountsService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
