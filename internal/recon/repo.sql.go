package recon

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists reconciliation statements and their adjustments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the reconciliation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const statementColumns = `period_id, location_id, opening, receipts, transfers_in, transfers_out,
issues, closing, adjustments, ncr_credits, ncr_losses, consumption, total_mandays, manday_cost,
confirmed, confirmed_by, confirmed_at, computed_at`

func statementFields(st *Statement) []any {
	return []any{&st.PeriodID, &st.LocationID, &st.Opening, &st.Receipts, &st.TransfersIn, &st.TransfersOut,
		&st.Issues, &st.Closing, &st.Adjustments, &st.NCRCredits, &st.NCRLosses, &st.Consumption,
		&st.TotalMandays, &st.MandayCost, &st.Confirmed, &st.ConfirmedBy, &st.ConfirmedAt, &st.ComputedAt}
}

// Get loads the stored statement for (period, location).
func (r *Repository) Get(ctx context.Context, periodID, locationID int64) (Statement, error) {
	var st Statement
	err := r.pool.QueryRow(ctx, `SELECT `+statementColumns+` FROM reconciliations
WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(statementFields(&st)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Statement{}, ErrStatementNotFound
		}
		return Statement{}, err
	}
	return st, nil
}

// Upsert writes a computed statement, preserving confirmation state on
// conflict only when the stored row is unconfirmed.
func (r *Repository) Upsert(ctx context.Context, st Statement) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO reconciliations
(period_id, location_id, opening, receipts, transfers_in, transfers_out, issues, closing,
 adjustments, ncr_credits, ncr_losses, consumption, total_mandays, manday_cost, computed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
ON CONFLICT (period_id, location_id) DO UPDATE SET
opening=EXCLUDED.opening, receipts=EXCLUDED.receipts, transfers_in=EXCLUDED.transfers_in,
transfers_out=EXCLUDED.transfers_out, issues=EXCLUDED.issues, closing=EXCLUDED.closing,
adjustments=EXCLUDED.adjustments, ncr_credits=EXCLUDED.ncr_credits, ncr_losses=EXCLUDED.ncr_losses,
consumption=EXCLUDED.consumption, total_mandays=EXCLUDED.total_mandays,
manday_cost=EXCLUDED.manday_cost, computed_at=NOW()
WHERE reconciliations.confirmed = false`,
		st.PeriodID, st.LocationID, st.Opening, st.Receipts, st.TransfersIn, st.TransfersOut,
		st.Issues, st.Closing, st.Adjustments, st.NCRCredits, st.NCRLosses, st.Consumption,
		st.TotalMandays, st.MandayCost)
	return err
}

// MarkConfirmed freezes the statement. Returns false when it was already
// confirmed, so confirmation is idempotent without double audit entries.
func (r *Repository) MarkConfirmed(ctx context.Context, periodID, locationID, actorID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE reconciliations
SET confirmed=true, confirmed_by=$3, confirmed_at=NOW()
WHERE period_id=$1 AND location_id=$2 AND confirmed=false`, periodID, locationID, actorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetMandays records the operator-entered manday count.
func (r *Repository) SetMandays(ctx context.Context, periodID, locationID int64, mandays decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO recon_mandays (period_id, location_id, total_mandays)
VALUES ($1, $2, $3)
ON CONFLICT (period_id, location_id) DO UPDATE SET total_mandays=EXCLUDED.total_mandays`,
		periodID, locationID, mandays)
	return err
}

// Mandays returns the recorded manday count, zero when absent.
func (r *Repository) Mandays(ctx context.Context, periodID, locationID int64) (decimal.Decimal, error) {
	var mandays decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT total_mandays FROM recon_mandays
WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(&mandays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return mandays, nil
}

// ReplaceAdjustments swaps the full adjustment set for (period, location).
func (r *Repository) ReplaceAdjustments(ctx context.Context, periodID, locationID, actorID int64, entries []AdjustmentInput) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM recon_adjustments WHERE period_id=$1 AND location_id=$2`,
		periodID, locationID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.Exec(ctx, `INSERT INTO recon_adjustments
(period_id, location_id, kind, amount, note, created_by)
VALUES ($1, $2, $3, $4, $5, $6)`,
			periodID, locationID, e.Kind, e.Amount, e.Note, actorID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Adjustments returns the stored adjustment entries.
func (r *Repository) Adjustments(ctx context.Context, periodID, locationID int64) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, period_id, location_id, kind, amount, COALESCE(note, ''), created_by
FROM recon_adjustments WHERE period_id=$1 AND location_id=$2 ORDER BY id`, periodID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.PeriodID, &a.LocationID, &a.Kind, &a.Amount, &a.Note, &a.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PriorClosing returns the confirmed closing figure of the most recent
// earlier period for the location. The first period opens at zero.
func (r *Repository) PriorClosing(ctx context.Context, periodID, locationID int64) (decimal.Decimal, bool, error) {
	var closing decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT r.closing
FROM reconciliations r
JOIN periods p ON p.id = r.period_id
JOIN periods cur ON cur.id = $1
WHERE r.location_id = $2 AND r.confirmed = true AND p.end_date < cur.start_date
ORDER BY p.end_date DESC LIMIT 1`, periodID, locationID).Scan(&closing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return closing, true, nil
}

// ListByPeriod returns every stored statement in a period.
func (r *Repository) ListByPeriod(ctx context.Context, periodID int64) ([]Statement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+statementColumns+` FROM reconciliations
WHERE period_id=$1 ORDER BY location_id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Statement
	for rows.Next() {
		var st Statement
		if err := rows.Scan(statementFields(&st)...); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
