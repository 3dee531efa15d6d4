// Package periods manages accounting periods, their per-location posting
// status and the price list locked for each period. The Gate it exposes is
// consulted by every posting flow before any mutation.
package periods

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the global period lifecycle.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusOpen         Status = "OPEN"
	StatusPendingClose Status = "PENDING_CLOSE"
	StatusApproved     Status = "APPROVED"
	StatusClosed       Status = "CLOSED"
)

// LocationStatus enumerates the per-location sub-status within a period.
type LocationStatus string

const (
	LocationOpen   LocationStatus = "OPEN"
	LocationReady  LocationStatus = "READY"
	LocationClosed LocationStatus = "CLOSED"
)

// Period is a fixed accounting window during which prices are locked.
type Period struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	CreatedAt time.Time
}

// PeriodLocation tracks a location's progress through a period.
type PeriodLocation struct {
	PeriodID   int64
	LocationID int64
	Status     LocationStatus
}

// PricePoint is the locked unit price for an item in a period. Immutable
// once the period is open; posting only reads it for variance comparison.
type PricePoint struct {
	ItemID   int64
	PeriodID int64
	Price    decimal.Decimal
}

// CreatePeriodInput captures validation rules for new periods.
type CreatePeriodInput struct {
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	LocationIDs []int64
	Prices      []PriceInput
	ActorID     int64
}

// PriceInput is one locked price entry.
type PriceInput struct {
	ItemID int64
	Price  decimal.Decimal
}

// Validate ensures the create input is coherent.
func (in CreatePeriodInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("periods: name required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.New("periods: start and end date required")
	}
	if in.StartDate.After(in.EndDate) {
		return errors.New("periods: start date cannot be after end date")
	}
	if len(in.LocationIDs) == 0 {
		return errors.New("periods: at least one location required")
	}
	for _, p := range in.Prices {
		if p.ItemID == 0 || p.Price.IsNegative() {
			return errors.New("periods: price entries need an item and a non-negative price")
		}
	}
	return nil
}

var (
	// ErrPeriodNotFound indicates a missing period row.
	ErrPeriodNotFound = errors.New("periods: period not found")
	// ErrNoOpenPeriod indicates no OPEN period covers the posting date.
	ErrNoOpenPeriod = errors.New("periods: no open period for date")
	// ErrInvalidTransition indicates a lifecycle change not allowed by policy.
	ErrInvalidTransition = errors.New("periods: invalid status transition")
	// ErrPricesLocked indicates a price mutation after the period opened.
	ErrPricesLocked = errors.New("periods: prices are locked once the period is open")
	// ErrLocationsNotReady blocks close requests while locations still post.
	ErrLocationsNotReady = errors.New("periods: all locations must be READY before close")
	// ErrPeriodOverlap indicates the requested range conflicts with an existing period.
	ErrPeriodOverlap = errors.New("periods: range overlaps existing period")
)

// CanTransition reports whether the global lifecycle permits moving from
// current to target.
func CanTransition(current, target Status) bool {
	switch current {
	case StatusDraft:
		return target == StatusOpen
	case StatusOpen:
		return target == StatusPendingClose
	case StatusPendingClose:
		return target == StatusApproved || target == StatusOpen
	case StatusApproved:
		return target == StatusClosed
	}
	return false
}
