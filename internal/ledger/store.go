package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// The helpers below run on the caller's transaction so a posting flow can
// combine stock mutation with its document writes atomically. Locking the
// row FOR UPDATE serializes concurrent postings against the same position.

// GetForUpdate loads and locks the position row.
func GetForUpdate(ctx context.Context, tx pgx.Tx, locationID, itemID int64) (Position, error) {
	var pos Position
	err := tx.QueryRow(ctx, `SELECT location_id, item_id, on_hand, wac, updated_at
FROM stock_positions WHERE location_id=$1 AND item_id=$2 FOR UPDATE`, locationID, itemID).
		Scan(&pos.LocationID, &pos.ItemID, &pos.OnHand, &pos.WAC, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{LocationID: locationID, ItemID: itemID}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return pos, nil
}

// Upsert writes the position back, creating the row on first receipt.
func Upsert(ctx context.Context, tx pgx.Tx, pos Position) error {
	_, err := tx.Exec(ctx, `INSERT INTO stock_positions (location_id, item_id, on_hand, wac, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (location_id, item_id) DO UPDATE SET on_hand=EXCLUDED.on_hand, wac=EXCLUDED.wac, updated_at=NOW()`,
		pos.LocationID, pos.ItemID, pos.OnHand, pos.WAC)
	return err
}

// Receive locks, applies a receipt and writes back in one step.
func Receive(ctx context.Context, tx pgx.Tx, locationID, itemID int64, qty, unitPrice decimal.Decimal) (Position, error) {
	pos, err := GetForUpdate(ctx, tx, locationID, itemID)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return Position{}, err
	}
	next, err := pos.Receiving(qty, unitPrice)
	if err != nil {
		return Position{}, err
	}
	if err := Upsert(ctx, tx, next); err != nil {
		return Position{}, err
	}
	return next, nil
}

// Deduct locks, deducts and writes back. A missing row is insufficient
// stock by definition.
func Deduct(ctx context.Context, tx pgx.Tx, locationID, itemID int64, qty decimal.Decimal) (Position, error) {
	pos, err := GetForUpdate(ctx, tx, locationID, itemID)
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return Position{}, ErrNegativeStock
		}
		return Position{}, err
	}
	next, err := pos.Deducting(qty)
	if err != nil {
		return Position{}, err
	}
	if err := Upsert(ctx, tx, next); err != nil {
		return Position{}, err
	}
	return next, nil
}

// Repository provides the read side of the stock ledger.
type Repository struct {
	pool Querier
}

// Querier is the subset of pgxpool.Pool used by the read path.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepository constructs the read-side repository.
func NewRepository(pool Querier) *Repository {
	return &Repository{pool: pool}
}

// Get returns the position for (location, item).
func (r *Repository) Get(ctx context.Context, locationID, itemID int64) (Position, error) {
	var pos Position
	err := r.pool.QueryRow(ctx, `SELECT location_id, item_id, on_hand, wac, updated_at
FROM stock_positions WHERE location_id=$1 AND item_id=$2`, locationID, itemID).
		Scan(&pos.LocationID, &pos.ItemID, &pos.OnHand, &pos.WAC, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return pos, nil
}

// ListByLocation returns every position held at a location.
func (r *Repository) ListByLocation(ctx context.Context, locationID int64) ([]Position, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id, item_id, on_hand, wac, updated_at
FROM stock_positions WHERE location_id=$1 ORDER BY item_id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var positions []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.LocationID, &pos.ItemID, &pos.OnHand, &pos.WAC, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}
