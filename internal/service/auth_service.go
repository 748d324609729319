package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/teamspace-service/internal/auth"
	"github.com/spec-kit/teamspace-service/internal/config"
	"github.com/spec-kit/teamspace-service/internal/domain"
	"github.com/spec-kit/teamspace-service/internal/repository"
	apperrors "github.com/spec-kit/teamspace-service/pkg/util"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong
// password; callers must not disclose which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	codec      *auth.TokenCodec
	bcryptCost int
}

// NewAuthService builds the service around an explicit token codec.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository, codec *auth.TokenCodec) *AuthService {
	return &AuthService{
		users:      users,
		codec:      codec,
		bcryptCost: cfg.BcryptCost,
	}
}

// TokenCodec exposes the codec shared with the auth middleware.
func (s *AuthService) TokenCodec() *auth.TokenCodec {
	return s.codec
}

// Register creates a new account with a hashed password.
func (s *AuthService) Register(ctx context.Context, username, password, displayName string) (*domain.User, error) {
	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.NewValidationError("username already taken", map[string]any{"username": username})
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates the account and issues a signed token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.codec.Issue(user.Username, user.ID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, expiresAt, nil
}

// Logout no-ops for the stateless token approach; the client discards
// its token.
func (s *AuthService) Logout(_ context.Context, _ string) error {
	return nil
}
