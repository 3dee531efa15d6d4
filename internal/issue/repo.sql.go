package issue

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
)

// TxRepository is the transactional surface issue posting needs.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	Insert(ctx context.Context, iss Issue) (Issue, error)
	GetPositionForUpdate(ctx context.Context, locationID, itemID int64) (ledger.Position, error)
	DeductStock(ctx context.Context, locationID, itemID int64, qty decimal.Decimal) (ledger.Position, error)
}

// RepositoryPort is what the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Issue, error)
	ListByLocation(ctx context.Context, locationID int64, limit int) ([]Issue, error)
}

// Repository is the pgx-backed implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the issue repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction. Issue posting is all-or-nothing
// across the document write and every stock deduction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) NextSequence(ctx context.Context, scope string) (int64, error) {
	return numbering.Next(ctx, t.tx, scope)
}

func (t *txRepo) Insert(ctx context.Context, iss Issue) (Issue, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO issues
(issue_no, location_id, cost_centre_id, issue_date, total_value, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING id, created_at`,
		iss.IssueNo, iss.LocationID, iss.CostCentreID, iss.IssueDate, iss.TotalValue, iss.CreatedBy).
		Scan(&iss.ID, &iss.CreatedAt)
	if err != nil {
		return Issue{}, err
	}
	for i := range iss.Lines {
		line := &iss.Lines[i]
		line.IssueID = iss.ID
		err := t.tx.QueryRow(ctx, `INSERT INTO issue_lines
(issue_id, item_id, qty, wac_at_issue, line_value)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
			line.IssueID, line.ItemID, line.Qty, line.WACAtIssue, line.LineValue).Scan(&line.ID)
		if err != nil {
			return Issue{}, err
		}
	}
	return iss, nil
}

func (t *txRepo) GetPositionForUpdate(ctx context.Context, locationID, itemID int64) (ledger.Position, error) {
	return ledger.GetForUpdate(ctx, t.tx, locationID, itemID)
}

func (t *txRepo) DeductStock(ctx context.Context, locationID, itemID int64, qty decimal.Decimal) (ledger.Position, error) {
	return ledger.Deduct(ctx, t.tx, locationID, itemID, qty)
}

const issueColumns = `id, issue_no, location_id, cost_centre_id, issue_date, total_value, created_by, created_at`

// Get loads one issue with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Issue, error) {
	var iss Issue
	err := r.pool.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=$1`, id).
		Scan(&iss.ID, &iss.IssueNo, &iss.LocationID, &iss.CostCentreID, &iss.IssueDate,
			&iss.TotalValue, &iss.CreatedBy, &iss.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issue{}, ErrIssueNotFound
		}
		return Issue{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, issue_id, item_id, qty, wac_at_issue, line_value
FROM issue_lines WHERE issue_id=$1 ORDER BY id`, id)
	if err != nil {
		return Issue{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.IssueID, &l.ItemID, &l.Qty, &l.WACAtIssue, &l.LineValue); err != nil {
			return Issue{}, err
		}
		iss.Lines = append(iss.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return Issue{}, err
	}
	return iss, nil
}

// ListByLocation returns recent issues at a location, newest first.
func (r *Repository) ListByLocation(ctx context.Context, locationID int64, limit int) ([]Issue, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+issueColumns+` FROM issues
WHERE location_id=$1 ORDER BY issue_date DESC, id DESC LIMIT $2`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Issue
	for rows.Next() {
		var iss Issue
		if err := rows.Scan(&iss.ID, &iss.IssueNo, &iss.LocationID, &iss.CostCentreID, &iss.IssueDate,
			&iss.TotalValue, &iss.CreatedBy, &iss.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IssuesTotal sums issued value at a location inside a date window. The
// reconciliation calculator reads its consumption-side figure from here.
func (r *Repository) IssuesTotal(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_value), 0) FROM issues
WHERE location_id=$1 AND issue_date >= $2 AND issue_date <= $3`, locationID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
