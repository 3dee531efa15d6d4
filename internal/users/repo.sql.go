package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access for user management.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Insert(ctx context.Context, in CreateInput, passwordHash string) (int64, error)
	Update(ctx context.Context, id int64, in UpdateInput) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	ReplaceLocations(ctx context.Context, userID int64, locationIDs []int64) error
	Locations(ctx context.Context, userID int64) ([]int64, error)
}

// Repository implements RepositoryPort on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all users ordered by id, with their location assignments.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, role, is_active, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, shared.Wrap(err, shared.CodeInternal, "list users")
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, shared.Wrap(err, shared.CodeInternal, "scan user")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Wrap(err, shared.CodeInternal, "list users")
	}
	for i := range out {
		locs, err := r.Locations(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].LocationIDs = locs
	}
	return out, nil
}

// Get fetches one user with location assignments.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, role, is_active, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, shared.Wrap(err, shared.CodeInternal, "get user")
	}
	locs, err := r.Locations(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.LocationIDs = locs
	return u, nil
}

// Insert creates a user and their location assignments.
func (r *Repository) Insert(ctx context.Context, in CreateInput, passwordHash string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, shared.Wrap(err, shared.CodeInternal, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO users (email, name, role, password_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, true, now(), now())
		 RETURNING id`,
		in.Email, in.Name, in.Role, passwordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrEmailTaken
		}
		return 0, shared.Wrap(err, shared.CodeInternal, "insert user")
	}
	for _, locID := range in.LocationIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_locations (user_id, location_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, locID); err != nil {
			return 0, shared.Wrap(err, shared.CodeInternal, "assign location")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, shared.Wrap(err, shared.CodeInternal, "commit user insert")
	}
	return id, nil
}

// Update applies non-nil fields and, when LocationIDs is non-nil, replaces
// the assignment set.
func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return shared.Wrap(err, shared.CodeInternal, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE users SET
			name = COALESCE($2, name),
			role = COALESCE($3, role),
			is_active = COALESCE($4, is_active),
			updated_at = now()
		 WHERE id = $1`,
		id, in.Name, in.Role, in.IsActive)
	if err != nil {
		return shared.Wrap(err, shared.CodeInternal, "update user")
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	if in.LocationIDs != nil {
		if err := replaceLocationsTx(ctx, tx, id, in.LocationIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return shared.Wrap(err, shared.CodeInternal, "commit user update")
	}
	return nil
}

// SetPassword replaces the stored hash.
func (r *Repository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return shared.Wrap(err, shared.CodeInternal, "set password")
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ReplaceLocations swaps the full assignment set for a user.
func (r *Repository) ReplaceLocations(ctx context.Context, userID int64, locationIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return shared.Wrap(err, shared.CodeInternal, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := replaceLocationsTx(ctx, tx, userID, locationIDs); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return shared.Wrap(err, shared.CodeInternal, "commit location assignment")
	}
	return nil
}

func replaceLocationsTx(ctx context.Context, tx pgx.Tx, userID int64, locationIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_locations WHERE user_id = $1`, userID); err != nil {
		return shared.Wrap(err, shared.CodeInternal, "clear location assignments")
	}
	for _, locID := range locationIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_locations (user_id, location_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, locID); err != nil {
			return shared.Wrap(err, shared.CodeInternal, "assign location")
		}
	}
	return nil
}

// Locations lists the location ids assigned to a user.
func (r *Repository) Locations(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT location_id FROM user_locations WHERE user_id = $1 ORDER BY location_id`, userID)
	if err != nil {
		return nil, shared.Wrap(err, shared.CodeInternal, "list user locations")
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, shared.Wrap(err, shared.CodeInternal, "scan location id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
