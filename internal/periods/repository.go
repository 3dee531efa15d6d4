package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertPeriod(ctx context.Context, p Period) (int64, error)
	InsertPeriodLocation(ctx context.Context, pl PeriodLocation) error
	InsertPricePoint(ctx context.Context, pp PricePoint) error
	UpdatePeriodStatus(ctx context.Context, id int64, status Status) error
	UpdateLocationStatus(ctx context.Context, periodID, locationID int64, status LocationStatus) error
	CloseAllLocations(ctx context.Context, periodID int64) error
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps a callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetPeriod loads one period.
func (r *Repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT id, name, start_date, end_date, status, created_at
FROM periods WHERE id=$1`, id))
}

// OpenPeriodFor finds the OPEN period covering the given date.
func (r *Repository) OpenPeriodFor(ctx context.Context, date time.Time) (Period, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT id, name, start_date, end_date, status, created_at
FROM periods WHERE status='OPEN' AND start_date <= $1 AND end_date >= $1 LIMIT 1`, date))
	if errors.Is(err, ErrPeriodNotFound) {
		return Period{}, ErrNoOpenPeriod
	}
	return p, err
}

// ListPeriods returns periods newest first.
func (r *Repository) ListPeriods(ctx context.Context, limit int) ([]Period, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, start_date, end_date, status, created_at
FROM periods ORDER BY start_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// GetLocationStatus returns the per-location sub-status for the period.
func (r *Repository) GetLocationStatus(ctx context.Context, periodID, locationID int64) (LocationStatus, error) {
	var status LocationStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM period_locations WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPeriodNotFound
		}
		return "", err
	}
	return status, nil
}

// AllLocationsReady reports whether every location in the period is READY.
func (r *Repository) AllLocationsReady(ctx context.Context, periodID int64) (bool, error) {
	var pending int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM period_locations WHERE period_id=$1 AND status <> 'READY'`, periodID).Scan(&pending)
	if err != nil {
		return false, err
	}
	return pending == 0, nil
}

// RangeConflict reports whether a period overlapping [start, end] exists.
func (r *Repository) RangeConflict(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM periods WHERE start_date <= $2 AND end_date >= $1 LIMIT 1`, start, end).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

// LockedPrice returns the locked unit price for (item, period); found is
// false when the item has no price point in the period.
func (r *Repository) LockedPrice(ctx context.Context, itemID, periodID int64) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT price FROM price_points WHERE item_id=$1 AND period_id=$2`, itemID, periodID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, err
	}
	return price, true, nil
}

// ListPricePoints returns the locked price list of a period.
func (r *Repository) ListPricePoints(ctx context.Context, periodID int64) ([]PricePoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, period_id, price FROM price_points WHERE period_id=$1 ORDER BY item_id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []PricePoint
	for rows.Next() {
		var pp PricePoint
		if err := rows.Scan(&pp.ItemID, &pp.PeriodID, &pp.Price); err != nil {
			return nil, err
		}
		points = append(points, pp)
	}
	return points, rows.Err()
}

// ListLocationIDs returns the locations attached to a period.
func (r *Repository) ListLocationIDs(ctx context.Context, periodID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id FROM period_locations WHERE period_id=$1 ORDER BY location_id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (t *txRepo) InsertPeriod(ctx context.Context, p Period) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO periods (name, start_date, end_date, status, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`, p.Name, p.StartDate, p.EndDate, p.Status).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPeriodLocation(ctx context.Context, pl PeriodLocation) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO period_locations (period_id, location_id, status) VALUES ($1,$2,$3)`,
		pl.PeriodID, pl.LocationID, pl.Status)
	return err
}

func (t *txRepo) InsertPricePoint(ctx context.Context, pp PricePoint) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO price_points (item_id, period_id, price) VALUES ($1,$2,$3)`,
		pp.ItemID, pp.PeriodID, pp.Price)
	return err
}

func (t *txRepo) UpdatePeriodStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE periods SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (t *txRepo) UpdateLocationStatus(ctx context.Context, periodID, locationID int64, status LocationStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE period_locations SET status=$1 WHERE period_id=$2 AND location_id=$3`, status, periodID, locationID)
	return err
}

func (t *txRepo) CloseAllLocations(ctx context.Context, periodID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE period_locations SET status='CLOSED' WHERE period_id=$1`, periodID)
	return err
}

func (t *txRepo) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(t.tx.QueryRow(ctx, `SELECT id, name, start_date, end_date, status, created_at
FROM periods WHERE id=$1 FOR UPDATE`, id))
}
