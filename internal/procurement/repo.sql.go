package procurement

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/numbering"
)

// Repository persists PRFs and purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the service needs.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	InsertPRF(ctx context.Context, prf PRF) (PRF, error)
	UpdatePRFStatus(ctx context.Context, id int64, status PRFStatus) error
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) NextSequence(ctx context.Context, scope string) (int64, error) {
	return numbering.Next(ctx, t.tx, scope)
}

func (t *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	return InsertPO(ctx, t.tx, po)
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	return UpdatePOStatus(ctx, t.tx, id, status)
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return GetPOForUpdate(ctx, t.tx, id)
}

func (t *txRepo) InsertPRF(ctx context.Context, prf PRF) (PRF, error) {
	return InsertPRF(ctx, t.tx, prf)
}

func (t *txRepo) UpdatePRFStatus(ctx context.Context, id int64, status PRFStatus) error {
	return UpdatePRFStatus(ctx, t.tx, id, status)
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

const poColumns = `id, po_no, supplier_id, prf_id, status, order_date, created_by, created_at`

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, item_id, qty, unit_price, delivered_qty
FROM po_lines WHERE po_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.ItemID, &l.Qty, &l.UnitPrice, &l.DeliveredQty); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, l)
	}
	return po, rows.Err()
}

// ListPOs returns orders filtered by status when provided.
func (r *Repository) ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + poColumns + ` FROM purchase_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pos []PurchaseOrder
	for rows.Next() {
		var po PurchaseOrder
		if err := rows.Scan(&po.ID, &po.PONo, &po.SupplierID, &po.PRFID, &po.Status, &po.OrderDate, &po.CreatedBy, &po.CreatedAt); err != nil {
			return nil, err
		}
		pos = append(pos, po)
	}
	return pos, rows.Err()
}

// InsertPO writes the order and its lines on tx.
func InsertPO(ctx context.Context, tx pgx.Tx, po PurchaseOrder) (PurchaseOrder, error) {
	err := tx.QueryRow(ctx, `INSERT INTO purchase_orders (po_no, supplier_id, prf_id, status, order_date, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id, created_at`,
		po.PONo, po.SupplierID, po.PRFID, po.Status, po.OrderDate, po.CreatedBy).Scan(&po.ID, &po.CreatedAt)
	if err != nil {
		return PurchaseOrder{}, err
	}
	for i := range po.Lines {
		po.Lines[i].POID = po.ID
		err := tx.QueryRow(ctx, `INSERT INTO po_lines (po_id, item_id, qty, unit_price, delivered_qty)
VALUES ($1,$2,$3,$4,0) RETURNING id`,
			po.ID, po.Lines[i].ItemID, po.Lines[i].Qty, po.Lines[i].UnitPrice).Scan(&po.Lines[i].ID)
		if err != nil {
			return PurchaseOrder{}, err
		}
	}
	return po, nil
}

// UpdatePOStatus sets the order status on tx.
func UpdatePOStatus(ctx context.Context, tx pgx.Tx, id int64, status POStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE purchase_orders SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

// GetPOForUpdate locks the order header and loads its lines on tx. Used by
// delivery posting so the delivered-qty increment and auto-close decision
// see a stable view.
func GetPOForUpdate(ctx context.Context, tx pgx.Tx, id int64) (PurchaseOrder, error) {
	po, err := scanPO(tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	rows, err := tx.Query(ctx, `SELECT id, po_id, item_id, qty, unit_price, delivered_qty
FROM po_lines WHERE po_id=$1 ORDER BY id FOR UPDATE`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.ItemID, &l.Qty, &l.UnitPrice, &l.DeliveredQty); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, l)
	}
	return po, rows.Err()
}

// IncrementDelivered adds qty to a line's delivered quantity on tx.
func IncrementDelivered(ctx context.Context, tx pgx.Tx, lineID int64, qty decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `UPDATE po_lines SET delivered_qty = delivered_qty + $1 WHERE id=$2`, qty, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPOLineNotFound
	}
	return nil
}

// ClosePRFIfApproved closes the PRF on tx when it is still APPROVED.
func ClosePRFIfApproved(ctx context.Context, tx pgx.Tx, prfID int64) error {
	_, err := tx.Exec(ctx, `UPDATE prfs SET status=$1 WHERE id=$2 AND status=$3`,
		PRFStatusClosed, prfID, PRFStatusApproved)
	return err
}

// InsertPRF writes a purchase request on tx.
func InsertPRF(ctx context.Context, tx pgx.Tx, prf PRF) (PRF, error) {
	err := tx.QueryRow(ctx, `INSERT INTO prfs (prf_no, location_id, status, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id, created_at`,
		prf.PRFNo, prf.LocationID, prf.Status, prf.Notes, prf.CreatedBy).Scan(&prf.ID, &prf.CreatedAt)
	return prf, err
}

// GetPRF loads one purchase request.
func (r *Repository) GetPRF(ctx context.Context, id int64) (PRF, error) {
	var prf PRF
	err := r.pool.QueryRow(ctx, `SELECT id, prf_no, location_id, status, notes, created_by, created_at
FROM prfs WHERE id=$1`, id).Scan(&prf.ID, &prf.PRFNo, &prf.LocationID, &prf.Status, &prf.Notes, &prf.CreatedBy, &prf.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PRF{}, ErrPRFNotFound
	}
	return prf, err
}

// UpdatePRFStatus sets the request status on tx.
func UpdatePRFStatus(ctx context.Context, tx pgx.Tx, id int64, status PRFStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE prfs SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPRFNotFound
	}
	return nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.PONo, &po.SupplierID, &po.PRFID, &po.Status, &po.OrderDate, &po.CreatedBy, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}
