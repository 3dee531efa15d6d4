// Package numbering allocates sequential human-readable document numbers.
// Allocation happens on the caller's transaction through a per-scope
// counter row, so concurrent postings serialize on the counter instead of
// racing a find-max-and-increment scan.
package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Sequencer hands out the next value for a scope. Implemented by Next for
// PostgreSQL and by in-memory fakes in tests.
type Sequencer interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// Next increments and returns the counter for scope on tx. The returned
// value is unique and monotonically increasing within the scope as long as
// every allocator goes through this row.
func Next(ctx context.Context, tx pgx.Tx, scope string) (int64, error) {
	var value int64
	err := tx.QueryRow(ctx, `INSERT INTO doc_counters (scope, value) VALUES ($1, 1)
ON CONFLICT (scope) DO UPDATE SET value = doc_counters.value + 1
RETURNING value`, scope).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("numbering: next %s: %w", scope, err)
	}
	return value, nil
}

// Document number scopes and formats. Deliveries, issues and transfers
// number per location and day; NCRs number per calendar year.

// DeliveryScope builds the counter scope for deliveries at a location/date.
func DeliveryScope(locationID int64, date time.Time) string {
	return fmt.Sprintf("DLV:%d:%s", locationID, date.Format("20060102"))
}

// IssueScope builds the counter scope for issues at a location/date.
func IssueScope(locationID int64, date time.Time) string {
	return fmt.Sprintf("ISS:%d:%s", locationID, date.Format("20060102"))
}

// TransferScope builds the counter scope for transfers from a location/date.
func TransferScope(locationID int64, date time.Time) string {
	return fmt.Sprintf("TRF:%d:%s", locationID, date.Format("20060102"))
}

// NCRScope builds the counter scope for NCRs in a year.
func NCRScope(year int) string {
	return fmt.Sprintf("NCR:%d", year)
}

// POScope builds the counter scope for purchase orders in a year.
func POScope(year int) string {
	return fmt.Sprintf("PO:%d", year)
}

// PRFScope builds the counter scope for purchase request forms in a year.
func PRFScope(year int) string {
	return fmt.Sprintf("PRF:%d", year)
}

// FormatDelivery renders a delivery number, e.g. DLV-3-20260115-004.
func FormatDelivery(locationID int64, date time.Time, seq int64) string {
	return fmt.Sprintf("DLV-%d-%s-%03d", locationID, date.Format("20060102"), seq)
}

// FormatIssue renders an issue number.
func FormatIssue(locationID int64, date time.Time, seq int64) string {
	return fmt.Sprintf("ISS-%d-%s-%03d", locationID, date.Format("20060102"), seq)
}

// FormatTransfer renders a transfer number.
func FormatTransfer(locationID int64, date time.Time, seq int64) string {
	return fmt.Sprintf("TRF-%d-%s-%03d", locationID, date.Format("20060102"), seq)
}

// FormatNCR renders an NCR number, e.g. NCR-2026-0017.
func FormatNCR(year int, seq int64) string {
	return fmt.Sprintf("NCR-%d-%04d", year, seq)
}

// FormatPO renders a purchase order number, e.g. PO-2026-0042.
func FormatPO(year int, seq int64) string {
	return fmt.Sprintf("PO-%d-%04d", year, seq)
}

// FormatPRF renders a purchase request number.
func FormatPRF(year int, seq int64) string {
	return fmt.Sprintf("PRF-%d-%04d", year, seq)
}
