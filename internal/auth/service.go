package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 12 * time.Hour

// Service wraps authentication business rules.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Login validates credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (Session, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if shared.IsCode(err, shared.CodeNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	tok := Token{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(TokenTTL),
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.repo.InsertToken(ctx, tok); err != nil {
		return Session{}, err
	}
	s.logger.Info("login", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	return Session{
		Token:     tok.Token,
		ExpiresAt: tok.ExpiresAt,
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
	}, nil
}

// Identify resolves a bearer token into an actor.
func (s *Service) Identify(ctx context.Context, token string) (shared.Actor, error) {
	tok, user, err := s.repo.ResolveToken(ctx, token)
	if err != nil {
		return shared.Actor{}, err
	}
	if time.Now().UTC().After(tok.ExpiresAt) {
		return shared.Actor{}, ErrTokenInvalid
	}
	if !user.IsActive {
		return shared.Actor{}, ErrTokenInvalid
	}
	return shared.Actor{ID: user.ID, Role: user.Role}, nil
}

// Logout revokes a token. Revoking an unknown token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteToken(ctx, token)
}

// SweepExpired removes expired tokens and reports how many were deleted.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredTokens(ctx)
}
