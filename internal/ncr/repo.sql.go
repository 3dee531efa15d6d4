package ncr

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/numbering"
)

// Repository persists NCRs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ncrColumns = `id, ncr_no, type, status, auto_generated, location_id, supplier_id,
delivery_id, delivery_line_id, item_id, value, description, resolution_type, impact, raised_by, created_at`

// Insert writes an NCR on tx, allocating its number from the per-year
// counter on the same transaction.
func Insert(ctx context.Context, tx pgx.Tx, n NCR) (NCR, error) {
	year := n.CreatedAt.Year()
	if n.CreatedAt.IsZero() {
		year = time.Now().Year()
	}
	seq, err := numbering.Next(ctx, tx, numbering.NCRScope(year))
	if err != nil {
		return NCR{}, err
	}
	n.NCRNo = numbering.FormatNCR(year, seq)
	err = tx.QueryRow(ctx, `INSERT INTO ncrs (ncr_no, type, status, auto_generated, location_id, supplier_id,
delivery_id, delivery_line_id, item_id, value, description, resolution_type, impact, raised_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW()) RETURNING id, created_at`,
		n.NCRNo, n.Type, n.Status, n.AutoGenerated, n.LocationID, n.SupplierID,
		n.DeliveryID, n.DeliveryLineID, n.ItemID, n.Value, n.Description, n.ResolutionType, n.Impact, n.RaisedBy).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return NCR{}, err
	}
	return n, nil
}

// UpdateStatus settles the workflow fields on tx.
func UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status Status, impact FinancialImpact, resolutionType string) error {
	tag, err := tx.Exec(ctx, `UPDATE ncrs SET status=$1, impact=$2, resolution_type=$3 WHERE id=$4`,
		status, impact, resolutionType, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNCRNotFound
	}
	return nil
}

// GetForUpdate locks and loads an NCR on tx.
func GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (NCR, error) {
	return scanNCR(tx.QueryRow(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id=$1 FOR UPDATE`, id))
}

// Get loads one NCR.
func (r *Repository) Get(ctx context.Context, id int64) (NCR, error) {
	return scanNCR(r.pool.QueryRow(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id=$1`, id))
}

// ListByLocation returns NCRs raised at a location, newest first.
func (r *Repository) ListByLocation(ctx context.Context, locationID int64, limit int) ([]NCR, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+ncrColumns+` FROM ncrs
WHERE location_id=$1 ORDER BY created_at DESC LIMIT $2`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ncrs []NCR
	for rows.Next() {
		n, err := scanNCRRow(rows)
		if err != nil {
			return nil, err
		}
		ncrs = append(ncrs, n)
	}
	return ncrs, rows.Err()
}

// SettledTotals sums NCR values for a location over an inclusive document
// date window, split into the credit and loss buckets reconciliation
// consumes. Delivery-raised NCRs follow the delivery's document date so a
// receipt on the period's last day keeps its NCR in the same period;
// manual NCRs fall back to the day they were raised.
func (r *Repository) SettledTotals(ctx context.Context, locationID int64, from, to time.Time) (credits, losses decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(n.value) FILTER (WHERE n.status='CREDITED' OR (n.status='RESOLVED' AND n.impact='CREDIT')), 0),
COALESCE(SUM(n.value) FILTER (WHERE n.status='REJECTED' OR (n.status='RESOLVED' AND n.impact='LOSS')), 0)
FROM ncrs n
LEFT JOIN deliveries d ON d.id = n.delivery_id
WHERE n.location_id=$1
AND COALESCE(d.delivery_date, n.created_at::date) >= $2
AND COALESCE(d.delivery_date, n.created_at::date) <= $3`, locationID, from, to).
		Scan(&credits, &losses)
	return credits, losses, err
}

// TxRepository exposes the transactional operations the service needs.
type TxRepository interface {
	Insert(ctx context.Context, n NCR) (NCR, error)
	GetForUpdate(ctx context.Context, id int64) (NCR, error)
	UpdateStatus(ctx context.Context, id int64, status Status, impact FinancialImpact, resolutionType string) error
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Insert(ctx context.Context, n NCR) (NCR, error) {
	return Insert(ctx, t.tx, n)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (NCR, error) {
	return GetForUpdate(ctx, t.tx, id)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, impact FinancialImpact, resolutionType string) error {
	return UpdateStatus(ctx, t.tx, id, status, impact, resolutionType)
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func scanNCR(row pgx.Row) (NCR, error) {
	var n NCR
	err := row.Scan(&n.ID, &n.NCRNo, &n.Type, &n.Status, &n.AutoGenerated, &n.LocationID, &n.SupplierID,
		&n.DeliveryID, &n.DeliveryLineID, &n.ItemID, &n.Value, &n.Description, &n.ResolutionType, &n.Impact, &n.RaisedBy, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NCR{}, ErrNCRNotFound
		}
		return NCR{}, err
	}
	return n, nil
}

func scanNCRRow(rows pgx.Rows) (NCR, error) {
	var n NCR
	err := rows.Scan(&n.ID, &n.NCRNo, &n.Type, &n.Status, &n.AutoGenerated, &n.LocationID, &n.SupplierID,
		&n.DeliveryID, &n.DeliveryLineID, &n.ItemID, &n.Value, &n.Description, &n.ResolutionType, &n.Impact, &n.RaisedBy, &n.CreatedAt)
	return n, err
}
