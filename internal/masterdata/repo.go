package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates the catalog repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func (r *repo) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, is_active, created_at FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (r *repo) GetLocation(ctx context.Context, id int64) (Location, error) {
	var l Location
	err := r.db.QueryRow(ctx, `SELECT id, code, name, is_active, created_at FROM locations WHERE id = $1`, id).
		Scan(&l.ID, &l.Code, &l.Name, &l.IsActive, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, shared.E(shared.CodeNotFound, "location %d not found", id)
	}
	return l, err
}

func (r *repo) ListItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	query := `SELECT id, code, name, unit, is_active FROM items`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var i Item
		if err := rows.Scan(&i.ID, &i.Code, &i.Name, &i.Unit, &i.IsActive); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *repo) GetItem(ctx context.Context, id int64) (Item, error) {
	var i Item
	err := r.db.QueryRow(ctx, `SELECT id, code, name, unit, is_active FROM items WHERE id = $1`, id).
		Scan(&i.ID, &i.Code, &i.Name, &i.Unit, &i.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.E(shared.CodeNotFound, "item %d not found", id)
	}
	return i, err
}

func (r *repo) ListSuppliers(ctx context.Context, activeOnly bool) ([]Supplier, error) {
	query := `SELECT id, code, name, email, is_active FROM suppliers`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.IsActive); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *repo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, code, name, email, is_active FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.E(shared.CodeNotFound, "supplier %d not found", id)
	}
	return s, err
}

func (r *repo) ListCostCentres(ctx context.Context) ([]CostCentre, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, is_active FROM cost_centres ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var centres []CostCentre
	for rows.Next() {
		var c CostCentre
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.IsActive); err != nil {
			return nil, err
		}
		centres = append(centres, c)
	}
	return centres, rows.Err()
}

func (r *repo) GetCostCentre(ctx context.Context, id int64) (CostCentre, error) {
	var c CostCentre
	err := r.db.QueryRow(ctx, `SELECT id, code, name, is_active FROM cost_centres WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return CostCentre{}, shared.E(shared.CodeNotFound, "cost centre %d not found", id)
	}
	return c, err
}
