package transfer

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

// TxRepository is the transactional surface the workflow needs. Approval
// combines the status flip with both stock movements in one transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	Insert(ctx context.Context, tr Transfer) (Transfer, error)
	GetForUpdate(ctx context.Context, id int64) (Transfer, error)
	SetStatus(ctx context.Context, id int64, status Status, decidedBy *int64, reason string) error
	GetPositionForUpdate(ctx context.Context, locationID, itemID int64) (ledger.Position, error)
	DeductStock(ctx context.Context, locationID, itemID int64, qty decimal.Decimal) (ledger.Position, error)
	ReceiveStock(ctx context.Context, locationID, itemID int64, qty, unitPrice decimal.Decimal) (ledger.Position, error)
}

// RepositoryPort is what the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
	ListByLocation(ctx context.Context, locationID int64, limit int) ([]Transfer, error)
}

// Repository is the pgx-backed implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the transfer repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction.
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

func (t *txRepo) Insert(ctx context.Context, tr Transfer) (Transfer, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO transfers
(transfer_no, status, from_location_id, to_location_id, transfer_date, total_value, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING id, created_at`,
		tr.TransferNo, tr.Status, tr.FromLocationID, tr.ToLocationID, tr.TransferDate, tr.TotalValue, tr.CreatedBy).
		Scan(&tr.ID, &tr.CreatedAt)
	if err != nil {
		return Transfer{}, err
	}
	for i := range tr.Lines {
		line := &tr.Lines[i]
		line.TransferID = tr.ID
		err := t.tx.QueryRow(ctx, `INSERT INTO transfer_lines
(transfer_id, item_id, qty, wac_at_transfer, line_value)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
			line.TransferID, line.ItemID, line.Qty, line.WACAtTransfer, line.LineValue).Scan(&line.ID)
		if err != nil {
			return Transfer{}, err
		}
	}
	return tr, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := t.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id).
		Scan(transferFields(&tr)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	lines, err := scanLines(ctx, t.tx, id)
	if err != nil {
		return Transfer{}, err
	}
	tr.Lines = lines
	return tr, nil
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status, decidedBy *int64, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE transfers
SET status=$2,
    decided_by=COALESCE($3, decided_by),
    decided_at=CASE WHEN $3::bigint IS NULL THEN decided_at ELSE NOW() END,
    reject_reason=CASE WHEN $4='' THEN reject_reason ELSE $4 END
WHERE id=$1`, id, status, decidedBy, reason)
	return err
}

func (t *txRepo) GetPositionForUpdate(ctx context.Context, locationID, itemID int64) (ledger.Position, error) {
	return ledger.GetForUpdate(ctx, t.tx, locationID, itemID)
}

func (t *txRepo) DeductStock(ctx context.Context, locationID, itemID int64, qty decimal.Decimal) (ledger.Position, error) {
	return ledger.Deduct(ctx, t.tx, locationID, itemID, qty)
}

func (t *txRepo) ReceiveStock(ctx context.Context, locationID, itemID int64, qty, unitPrice decimal.Decimal) (ledger.Position, error) {
	return ledger.Receive(ctx, t.tx, locationID, itemID, qty, unitPrice)
}

const transferColumns = `id, transfer_no, status, from_location_id, to_location_id, transfer_date,
total_value, created_by, created_at, decided_by, decided_at, COALESCE(reject_reason, '')`

func transferFields(tr *Transfer) []any {
	return []any{&tr.ID, &tr.TransferNo, &tr.Status, &tr.FromLocationID, &tr.ToLocationID, &tr.TransferDate,
		&tr.TotalValue, &tr.CreatedBy, &tr.CreatedAt, &tr.DecidedBy, &tr.DecidedAt, &tr.RejectReason}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanLines(ctx context.Context, q querier, transferID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, item_id, qty, wac_at_transfer, line_value
FROM transfer_lines WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ItemID, &l.Qty, &l.WACAtTransfer, &l.LineValue); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one transfer with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id).
		Scan(transferFields(&tr)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	lines, err := scanLines(ctx, r.pool, id)
	if err != nil {
		return Transfer{}, err
	}
	tr.Lines = lines
	return tr, nil
}

// ListByLocation returns transfers touching a location on either side.
func (r *Repository) ListByLocation(ctx context.Context, locationID int64, limit int) ([]Transfer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
WHERE from_location_id=$1 OR to_location_id=$1
ORDER BY transfer_date DESC, id DESC LIMIT $2`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		var tr Transfer
		if err := rows.Scan(transferFields(&tr)...); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// CompletedTotals sums completed transfer value into and out of a location
// within a date window. Reconciliation reads both directions from here.
func (r *Repository) CompletedTotals(ctx context.Context, locationID int64, from, to time.Time) (in, out decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(total_value) FILTER (WHERE to_location_id=$1), 0),
COALESCE(SUM(total_value) FILTER (WHERE from_location_id=$1), 0)
FROM transfers
WHERE status='COMPLETED' AND (from_location_id=$1 OR to_location_id=$1)
AND transfer_date >= $2 AND transfer_date <= $3`, locationID, from, to).Scan(&in, &out)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return in, out, nil
}
