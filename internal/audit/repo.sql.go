package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access for the audit timeline.
type RepositoryPort interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Repository implements RepositoryPort on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Window returns a slice of the timeline, newest first.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= ", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= ", f.To)
	}
	if f.ActorID > 0 {
		add("actor_id = ", f.ActorID)
	}
	if f.Entity != "" {
		add("entity = ", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = ", f.EntityID)
	}
	if f.Action != "" {
		add("action = ", f.Action)
	}
	query := `SELECT occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY occurred_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Wrap(err, shared.CodeInternal, "query audit timeline")
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, shared.Wrap(err, shared.CodeInternal, "scan audit row")
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
