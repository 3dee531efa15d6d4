// Package masterdata holds the reference catalog: locations, items,
// suppliers and cost centres. Posting flows read it to validate the
// entities a document refers to.
package masterdata

import (
	"context"
	"time"
)

// Location is a stock-holding site such as a store, kitchen or warehouse.
type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is a stock-keeping unit. Inactive items stay referenced by history
// but reject new postings.
type Item struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	IsActive bool   `json:"is_active"`
}

// Supplier is a vendor deliveries are received from.
type Supplier struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// CostCentre is the consumption bucket issues are charged to.
type CostCentre struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Repository is the catalog's persistence surface.
type Repository interface {
	ListLocations(ctx context.Context) ([]Location, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	ListItems(ctx context.Context, activeOnly bool) ([]Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	ListSuppliers(ctx context.Context, activeOnly bool) ([]Supplier, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListCostCentres(ctx context.Context) ([]CostCentre, error)
	GetCostCentre(ctx context.Context, id int64) (CostCentre, error)
}
