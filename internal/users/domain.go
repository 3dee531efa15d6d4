// Package users manages user accounts and their location assignments.
package users

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// User is a managed account. PasswordHash never leaves this package.
type User struct {
	ID          int64
	Email       string
	Name        string
	Role        string
	IsActive    bool
	LocationIDs []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrUserNotFound is returned when the referenced user does not exist.
var ErrUserNotFound = shared.E(shared.CodeNotFound, "user not found")

// ErrEmailTaken is returned when the email is already registered.
var ErrEmailTaken = shared.E(shared.CodeConflict, "email already registered")

var validRoles = map[string]bool{
	shared.RoleAdmin:      true,
	shared.RoleSupervisor: true,
	shared.RoleStorekeep:  true,
}

// CreateInput is the payload for registering a user.
type CreateInput struct {
	Email       string
	Name        string
	Role        string
	Password    string
	LocationIDs []int64
}

// Validate checks structural rules before persistence.
func (in CreateInput) Validate() error {
	if in.Email == "" {
		return shared.E(shared.CodeValidation, "email is required")
	}
	if in.Name == "" {
		return shared.E(shared.CodeValidation, "name is required")
	}
	if !validRoles[in.Role] {
		return shared.E(shared.CodeValidation, "unknown role %q", in.Role)
	}
	if len(in.Password) < 8 {
		return shared.E(shared.CodeValidation, "password must be at least 8 characters")
	}
	return nil
}

// UpdateInput carries mutable account fields. Nil fields stay unchanged.
type UpdateInput struct {
	Name        *string
	Role        *string
	IsActive    *bool
	LocationIDs []int64
}

// Validate checks the update payload.
func (in UpdateInput) Validate() error {
	if in.Name != nil && *in.Name == "" {
		return shared.E(shared.CodeValidation, "name cannot be empty")
	}
	if in.Role != nil && !validRoles[*in.Role] {
		return shared.E(shared.CodeValidation, "unknown role %q", *in.Role)
	}
	return nil
}
