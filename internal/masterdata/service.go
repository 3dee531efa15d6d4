package masterdata

import (
	"context"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service answers catalog questions for posting flows.
type Service struct {
	repo Repository
}

// NewService constructs the catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ActiveItem returns the item, rejecting unknown and inactive ones.
func (s *Service) ActiveItem(ctx context.Context, id int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !item.IsActive {
		return Item{}, shared.E(shared.CodeItemInactive, "item %s is inactive", item.Code)
	}
	return item, nil
}

// Item returns the item by id, active or not. Drafts may keep referencing
// items deactivated after drafting; only posting insists on active ones.
func (s *Service) Item(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ActiveLocation returns the location, rejecting unknown and inactive ones.
func (s *Service) ActiveLocation(ctx context.Context, id int64) (Location, error) {
	loc, err := s.repo.GetLocation(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if !loc.IsActive {
		return Location{}, shared.E(shared.CodeValidation, "location %s is inactive", loc.Code)
	}
	return loc, nil
}

// Supplier returns the supplier by id.
func (s *Service) Supplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// CostCentre returns the cost centre, rejecting inactive ones.
func (s *Service) CostCentre(ctx context.Context, id int64) (CostCentre, error) {
	cc, err := s.repo.GetCostCentre(ctx, id)
	if err != nil {
		return CostCentre{}, err
	}
	if !cc.IsActive {
		return CostCentre{}, shared.E(shared.CodeValidation, "cost centre %s is inactive", cc.Code)
	}
	return cc, nil
}

// Locations lists all locations.
func (s *Service) Locations(ctx context.Context) ([]Location, error) {
	return s.repo.ListLocations(ctx)
}

// Items lists items, optionally active ones only.
func (s *Service) Items(ctx context.Context, activeOnly bool) ([]Item, error) {
	return s.repo.ListItems(ctx, activeOnly)
}

// Suppliers lists suppliers, optionally active ones only.
func (s *Service) Suppliers(ctx context.Context, activeOnly bool) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx, activeOnly)
}

// CostCentres lists all cost centres.
func (s *Service) CostCentres(ctx context.Context) ([]CostCentre, error) {
	return s.repo.ListCostCentres(ctx)
}
