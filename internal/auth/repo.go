package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines persistence operations for the auth module.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	InsertToken(ctx context.Context, tok Token) error
	ResolveToken(ctx context.Context, token string) (Token, User, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

// Repository implements RepositoryPort on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// FindByEmail fetches a user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.E(shared.CodeNotFound, "user not found")
		}
		return User{}, shared.Wrap(err, shared.CodeInternal, "find user by email")
	}
	return u, nil
}

// InsertToken persists a freshly issued token.
func (r *Repository) InsertToken(ctx context.Context, tok Token) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_tokens (token, user_id, expires_at, created_at, ip, user_agent)
		 VALUES ($1, $2, $3, now(), $4, $5)`,
		tok.Token, tok.UserID, tok.ExpiresAt, tok.IP, tok.UserAgent)
	if err != nil {
		return shared.Wrap(err, shared.CodeInternal, "insert token")
	}
	return nil
}

// ResolveToken returns the token record and its owning user.
func (r *Repository) ResolveToken(ctx context.Context, token string) (Token, User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT t.token, t.user_id, t.expires_at, t.created_at,
		        u.id, u.email, u.name, u.role, u.password_hash, u.is_active, u.created_at, u.updated_at
		 FROM auth_tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.token = $1`, token)
	var tok Token
	var u User
	err := row.Scan(&tok.Token, &tok.UserID, &tok.ExpiresAt, &tok.CreatedAt,
		&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, User{}, ErrTokenInvalid
		}
		return Token{}, User{}, shared.Wrap(err, shared.CodeInternal, "resolve token")
	}
	return tok, u, nil
}

// DeleteToken removes a token on logout.
func (r *Repository) DeleteToken(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token = $1`, token)
	if err != nil {
		return shared.Wrap(err, shared.CodeInternal, "delete token")
	}
	return nil
}

// DeleteExpiredTokens sweeps tokens past their expiry.
func (r *Repository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, shared.Wrap(err, shared.CodeInternal, "delete expired tokens")
	}
	return tag.RowsAffected(), nil
}

var _ RepositoryPort = (*Repository)(nil)
