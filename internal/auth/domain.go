// Package auth issues and resolves bearer tokens for the JSON API.
package auth

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// User is the credential view of an account, including the stored hash.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token is an issued bearer credential.
type Token struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	IP        string
	UserAgent string
}

// Session is returned to the client after a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	UserID    int64
	Email     string
	Name      string
	Role      string
}

// ErrInvalidCredentials covers unknown email, wrong password and
// deactivated accounts alike, so responses never reveal which failed.
var ErrInvalidCredentials = shared.E(shared.CodeAccessDenied, "invalid credentials")

// ErrTokenInvalid covers unknown and expired tokens.
var ErrTokenInvalid = shared.E(shared.CodeAccessDenied, "invalid or expired token")
