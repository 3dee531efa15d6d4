package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ncr"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository is the transactional surface delivery posting runs on.
// The pg implementation delegates stock, PO and NCR writes to their
// owning packages so the whole posting shares one transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	Insert(ctx context.Context, d Delivery) (Delivery, error)
	GetForUpdate(ctx context.Context, id int64) (Delivery, error)
	ReplaceDraft(ctx context.Context, d Delivery) (Delivery, error)
	MarkPosted(ctx context.Context, d Delivery) error
	DeleteDraft(ctx context.Context, id int64) error
	InvoiceInUse(ctx context.Context, invoiceNo string, excludeID int64) (bool, error)
	ReceiveStock(ctx context.Context, locationID, itemID int64, qty, unitPrice decimal.Decimal) (ledger.Position, error)
	GetPOForUpdate(ctx context.Context, poID int64) (procurement.PurchaseOrder, error)
	IncrementDelivered(ctx context.Context, poLineID int64, qty decimal.Decimal) error
	ClosePO(ctx context.Context, poID int64) error
	ClosePRFIfApproved(ctx context.Context, prfID int64) error
	InsertNCR(ctx context.Context, n ncr.NCR) (ncr.NCR, error)
}

// Repository persists deliveries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction. Unique-violation
// errors from the invoice index surface as DUPLICATE_INVOICE so a race
// lost to a concurrent posting reads the same as the precheck.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return mapUniqueViolation(err)
	}
	return tx.Commit(ctx)
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "deliveries_invoice_no_key" {
			return shared.Wrap(err, shared.CodeDuplicateInvoice, "invoice number already used by another delivery")
		}
		return shared.Wrap(err, shared.CodeConflict, "concurrent posting collision, retry")
	}
	return err
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) NextSequence(ctx context.Context, scope string) (int64, error) {
	return numbering.Next(ctx, t.tx, scope)
}

const deliveryColumns = `id, delivery_no, status, location_id, supplier_id, po_id, COALESCE(invoice_no, ''),
delivery_date, total_amount, has_variance, pending_approval, over_delivery_rejected, created_by, created_at, posted_at`

func (t *txRepo) Insert(ctx context.Context, d Delivery) (Delivery, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO deliveries (delivery_no, status, location_id, supplier_id, po_id,
invoice_no, delivery_date, total_amount, has_variance, pending_approval, over_delivery_rejected, created_by, created_at, posted_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12,NOW(),CASE WHEN $2::text='POSTED' THEN NOW() END)
RETURNING id, created_at`,
		d.DeliveryNo, d.Status, d.LocationID, d.SupplierID, d.POID,
		d.InvoiceNo, d.DeliveryDate, d.TotalAmount, d.HasVariance, d.PendingApproval, d.OverDeliveryRejected, d.CreatedBy).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return Delivery{}, err
	}
	if err := t.insertLines(ctx, &d); err != nil {
		return Delivery{}, err
	}
	return d, nil
}

func (t *txRepo) insertLines(ctx context.Context, d *Delivery) error {
	for i := range d.Lines {
		d.Lines[i].DeliveryID = d.ID
		l := &d.Lines[i]
		err := t.tx.QueryRow(ctx, `INSERT INTO delivery_lines (delivery_id, item_id, po_line_id, qty, unit_price,
period_price, price_variance, line_value, over_delivery, over_delivery_approved)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
			d.ID, l.ItemID, l.POLineID, l.Qty, l.UnitPrice,
			l.PeriodPrice, l.PriceVariance, l.LineValue, l.OverDelivery, l.OverDeliveryApproved).Scan(&l.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Delivery, error) {
	d, err := scanDelivery(t.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Delivery{}, err
	}
	d.Lines, err = queryLines(ctx, t.tx, id)
	return d, err
}

// ReplaceDraft rewrites a draft's header fields and lines.
func (t *txRepo) ReplaceDraft(ctx context.Context, d Delivery) (Delivery, error) {
	_, err := t.tx.Exec(ctx, `UPDATE deliveries SET supplier_id=$1, po_id=$2, invoice_no=NULLIF($3,''),
delivery_date=$4, total_amount=$5 WHERE id=$6`,
		d.SupplierID, d.POID, d.InvoiceNo, d.DeliveryDate, d.TotalAmount, d.ID)
	if err != nil {
		return Delivery{}, err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM delivery_lines WHERE delivery_id=$1`, d.ID); err != nil {
		return Delivery{}, err
	}
	if err := t.insertLines(ctx, &d); err != nil {
		return Delivery{}, err
	}
	return d, nil
}

// MarkPosted finalizes the header and rewrites lines with their computed
// costing fields.
func (t *txRepo) MarkPosted(ctx context.Context, d Delivery) error {
	_, err := t.tx.Exec(ctx, `UPDATE deliveries SET status=$1, invoice_no=NULLIF($2,''), total_amount=$3,
has_variance=$4, pending_approval=$5, over_delivery_rejected=$6, posted_at=NOW() WHERE id=$7`,
		StatusPosted, d.InvoiceNo, d.TotalAmount, d.HasVariance, d.PendingApproval, d.OverDeliveryRejected, d.ID)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM delivery_lines WHERE delivery_id=$1`, d.ID); err != nil {
		return err
	}
	return t.insertLines(ctx, &d)
}

func (t *txRepo) DeleteDraft(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM delivery_lines WHERE delivery_id=$1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM deliveries WHERE id=$1 AND status=$2`, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (t *txRepo) InvoiceInUse(ctx context.Context, invoiceNo string, excludeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT true FROM deliveries WHERE invoice_no=$1 AND id<>$2 LIMIT 1`,
		invoiceNo, excludeID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return exists, err
}

func (t *txRepo) ReceiveStock(ctx context.Context, locationID, itemID int64, qty, unitPrice decimal.Decimal) (ledger.Position, error) {
	return ledger.Receive(ctx, t.tx, locationID, itemID, qty, unitPrice)
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, poID int64) (procurement.PurchaseOrder, error) {
	return procurement.GetPOForUpdate(ctx, t.tx, poID)
}

func (t *txRepo) IncrementDelivered(ctx context.Context, poLineID int64, qty decimal.Decimal) error {
	return procurement.IncrementDelivered(ctx, t.tx, poLineID, qty)
}

func (t *txRepo) ClosePO(ctx context.Context, poID int64) error {
	return procurement.UpdatePOStatus(ctx, t.tx, poID, procurement.POStatusClosed)
}

func (t *txRepo) ClosePRFIfApproved(ctx context.Context, prfID int64) error {
	return procurement.ClosePRFIfApproved(ctx, t.tx, prfID)
}

func (t *txRepo) InsertNCR(ctx context.Context, n ncr.NCR) (ncr.NCR, error) {
	return ncr.Insert(ctx, t.tx, n)
}

// Get loads one delivery with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Delivery, error) {
	d, err := scanDelivery(r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1`, id))
	if err != nil {
		return Delivery{}, err
	}
	d.Lines, err = queryLines(ctx, r.pool, id)
	return d, err
}

// ListByLocation returns deliveries at a location, newest first.
func (r *Repository) ListByLocation(ctx context.Context, locationID int64, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM deliveries
WHERE location_id=$1 ORDER BY created_at DESC LIMIT $2`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.DeliveryNo, &d.Status, &d.LocationID, &d.SupplierID, &d.POID, &d.InvoiceNo,
			&d.DeliveryDate, &d.TotalAmount, &d.HasVariance, &d.PendingApproval, &d.OverDeliveryRejected,
			&d.CreatedBy, &d.CreatedAt, &d.PostedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// ReceiptsTotal sums posted delivery line values for a location and window.
// Reconciliation reads it as the period's receipts figure.
func (r *Repository) ReceiptsTotal(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.line_value), 0)
FROM delivery_lines l JOIN deliveries d ON d.id = l.delivery_id
WHERE d.location_id=$1 AND d.status=$2 AND d.delivery_date >= $3 AND d.delivery_date <= $4`,
		locationID, StatusPosted, from, to).Scan(&total)
	return total, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, deliveryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, delivery_id, item_id, po_line_id, qty, unit_price,
period_price, price_variance, line_value, over_delivery, over_delivery_approved
FROM delivery_lines WHERE delivery_id=$1 ORDER BY id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.ItemID, &l.POLineID, &l.Qty, &l.UnitPrice,
			&l.PeriodPrice, &l.PriceVariance, &l.LineValue, &l.OverDelivery, &l.OverDeliveryApproved); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.DeliveryNo, &d.Status, &d.LocationID, &d.SupplierID, &d.POID, &d.InvoiceNo,
		&d.DeliveryDate, &d.TotalAmount, &d.HasVariance, &d.PendingApproval, &d.OverDeliveryRejected,
		&d.CreatedBy, &d.CreatedAt, &d.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, ErrDeliveryNotFound
		}
		return Delivery{}, err
	}
	return d, nil
}
