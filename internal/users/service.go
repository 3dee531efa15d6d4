package users

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user management rules. All mutations are admin-only.
type Service struct {
	repo   RepositoryPort
	audit  Auditor
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

func (s *Service) requireAdmin(actor shared.Actor) error {
	if actor.Role != shared.RoleAdmin {
		return shared.E(shared.CodeAccessDenied, "user management requires the admin role")
	}
	return nil
}

// List returns all users.
func (s *Service) List(ctx context.Context, actor shared.Actor) ([]User, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (User, error) {
	if err := s.requireAdmin(actor); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create registers a user with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (User, error) {
	if err := s.requireAdmin(actor); err != nil {
		return User{}, err
	}
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, shared.Wrap(err, shared.CodeInternal, "hash password")
	}
	id, err := s.repo.Insert(ctx, in, string(hash))
	if err != nil {
		return User{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "user.create",
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"email": in.Email, "role": in.Role},
		})
	}
	s.logger.Info("user created", slog.Int64("user_id", id), slog.String("role", in.Role))
	return s.repo.Get(ctx, id)
}

// Update applies account changes.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in UpdateInput) (User, error) {
	if err := s.requireAdmin(actor); err != nil {
		return User{}, err
	}
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return User{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "user.update",
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
		})
	}
	return s.repo.Get(ctx, id)
}

// SetPassword replaces a user's password.
func (s *Service) SetPassword(ctx context.Context, actor shared.Actor, id int64, password string) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if len(password) < 8 {
		return shared.E(shared.CodeValidation, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return shared.Wrap(err, shared.CodeInternal, "hash password")
	}
	if err := s.repo.SetPassword(ctx, id, string(hash)); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "user.set_password",
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
		})
	}
	return nil
}
