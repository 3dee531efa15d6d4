package periods

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	nextID    int64
	periods   map[int64]*Period
	locations map[int64]map[int64]LocationStatus
	prices    map[int64][]PricePoint
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:    1,
		periods:   map[int64]*Period{},
		locations: map[int64]map[int64]LocationStatus{},
		prices:    map[int64][]PricePoint{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) InsertPeriod(_ context.Context, p Period) (int64, error) {
	id := m.nextID
	m.nextID++
	p.ID = id
	m.periods[id] = &p
	return id, nil
}

func (m *memoryRepo) InsertPeriodLocation(_ context.Context, pl PeriodLocation) error {
	if m.locations[pl.PeriodID] == nil {
		m.locations[pl.PeriodID] = map[int64]LocationStatus{}
	}
	m.locations[pl.PeriodID][pl.LocationID] = pl.Status
	return nil
}

func (m *memoryRepo) InsertPricePoint(_ context.Context, pp PricePoint) error {
	m.prices[pp.PeriodID] = append(m.prices[pp.PeriodID], pp)
	return nil
}

func (m *memoryRepo) UpdatePeriodStatus(_ context.Context, id int64, status Status) error {
	m.periods[id].Status = status
	return nil
}

func (m *memoryRepo) UpdateLocationStatus(_ context.Context, periodID, locationID int64, status LocationStatus) error {
	m.locations[periodID][locationID] = status
	return nil
}

func (m *memoryRepo) CloseAllLocations(_ context.Context, periodID int64) error {
	for locID := range m.locations[periodID] {
		m.locations[periodID][locID] = LocationClosed
	}
	return nil
}

func (m *memoryRepo) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return m.GetPeriod(ctx, id)
}

func (m *memoryRepo) GetPeriod(_ context.Context, id int64) (Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return *p, nil
}

func (m *memoryRepo) OpenPeriodFor(_ context.Context, date time.Time) (Period, error) {
	for _, p := range m.periods {
		if p.Status == StatusOpen && !date.Before(p.StartDate) && !date.After(p.EndDate) {
			return *p, nil
		}
	}
	return Period{}, ErrNoOpenPeriod
}

func (m *memoryRepo) ListPeriods(_ context.Context, limit int) ([]Period, error) {
	var out []Period
	for _, p := range m.periods {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryRepo) GetLocationStatus(_ context.Context, periodID, locationID int64) (LocationStatus, error) {
	status, ok := m.locations[periodID][locationID]
	if !ok {
		return "", ErrPeriodNotFound
	}
	return status, nil
}

func (m *memoryRepo) AllLocationsReady(_ context.Context, periodID int64) (bool, error) {
	for _, status := range m.locations[periodID] {
		if status != LocationReady {
			return false, nil
		}
	}
	return true, nil
}

func (m *memoryRepo) RangeConflict(_ context.Context, start, end time.Time) (bool, error) {
	for _, p := range m.periods {
		if !start.After(p.EndDate) && !end.Before(p.StartDate) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) LockedPrice(_ context.Context, itemID, periodID int64) (decimal.Decimal, bool, error) {
	for _, pp := range m.prices[periodID] {
		if pp.ItemID == itemID {
			return pp.Price, true, nil
		}
	}
	return decimal.Decimal{}, false, nil
}

func (m *memoryRepo) ListPricePoints(_ context.Context, periodID int64) ([]PricePoint, error) {
	return m.prices[periodID], nil
}

func (m *memoryRepo) ListLocationIDs(_ context.Context, periodID int64) ([]int64, error) {
	var ids []int64
	for id := range m.locations[periodID] {
		ids = append(ids, id)
	}
	return ids, nil
}

type allowAllAuthz struct{}

func (allowAllAuthz) Allow(context.Context, shared.Actor, shared.Capability) (bool, error) {
	return true, nil
}

func (allowAllAuthz) HasLocationAccess(context.Context, shared.Actor, int64) (bool, error) {
	return true, nil
}

type denyAllAuthz struct{}

func (denyAllAuthz) Allow(context.Context, shared.Actor, shared.Capability) (bool, error) {
	return false, nil
}

func (denyAllAuthz) HasLocationAccess(context.Context, shared.Actor, int64) (bool, error) {
	return false, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, allowAllAuthz{}, nil, slog.Default())
}

var admin = shared.Actor{ID: 1, Role: shared.RoleAdmin}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func createOpenPeriod(t *testing.T, svc *Service, repo *memoryRepo) Period {
	t.Helper()
	period, err := svc.Create(context.Background(), admin, CreatePeriodInput{
		Name:        "2026-01",
		StartDate:   date("2026-01-01"),
		EndDate:     date("2026-01-31"),
		LocationIDs: []int64{10, 20},
		Prices: []PriceInput{
			{ItemID: 1, Price: decimal.RequireFromString("12.50")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Open(context.Background(), admin, period.ID))
	period, err = svc.Get(context.Background(), period.ID)
	require.NoError(t, err)
	return period
}

func TestCreatePeriodStartsDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	period, err := svc.Create(context.Background(), admin, CreatePeriodInput{
		Name:        "2026-01",
		StartDate:   date("2026-01-01"),
		EndDate:     date("2026-01-31"),
		LocationIDs: []int64{10},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, period.Status)
	require.Equal(t, LocationOpen, repo.locations[period.ID][10])
}

func TestCreatePeriodRejectsOverlap(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	createOpenPeriod(t, svc, repo)

	_, err := svc.Create(context.Background(), admin, CreatePeriodInput{
		Name:        "overlap",
		StartDate:   date("2026-01-15"),
		EndDate:     date("2026-02-15"),
		LocationIDs: []int64{10},
	})
	require.ErrorIs(t, err, ErrPeriodOverlap)
}

func TestCreatePeriodRequiresCapability(t *testing.T) {
	svc := NewService(newMemoryRepo(), denyAllAuthz{}, nil, slog.Default())

	_, err := svc.Create(context.Background(), shared.Actor{ID: 5, Role: shared.RoleStorekeep}, CreatePeriodInput{
		Name:        "x",
		StartDate:   date("2026-01-01"),
		EndDate:     date("2026-01-31"),
		LocationIDs: []int64{10},
	})
	require.True(t, shared.IsCode(err, shared.CodeAccessDenied))
}

func TestLifecycleHappyPath(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	period := createOpenPeriod(t, svc, repo)

	require.NoError(t, svc.MarkLocationReady(ctx, admin, period.ID, 10))
	require.NoError(t, svc.MarkLocationReady(ctx, admin, period.ID, 20))
	require.NoError(t, svc.RequestClose(ctx, admin, period.ID))
	require.NoError(t, svc.ApproveClose(ctx, admin, period.ID))
	require.NoError(t, svc.Close(ctx, admin, period.ID))

	got, err := svc.Get(ctx, period.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, got.Status)
	require.Equal(t, LocationClosed, repo.locations[period.ID][10])
}

func TestRequestCloseBlockedUntilLocationsReady(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	period := createOpenPeriod(t, svc, repo)

	require.NoError(t, svc.MarkLocationReady(ctx, admin, period.ID, 10))
	err := svc.RequestClose(ctx, admin, period.ID)
	require.ErrorIs(t, err, ErrLocationsNotReady)
}

func TestReopenFromPendingClose(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	period := createOpenPeriod(t, svc, repo)

	require.NoError(t, svc.MarkLocationReady(ctx, admin, period.ID, 10))
	require.NoError(t, svc.MarkLocationReady(ctx, admin, period.ID, 20))
	require.NoError(t, svc.RequestClose(ctx, admin, period.ID))
	require.NoError(t, svc.Reopen(ctx, admin, period.ID))

	got, err := svc.Get(ctx, period.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, got.Status)
}

func TestInvalidTransitionRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	period := createOpenPeriod(t, svc, repo)

	err := svc.ApproveClose(ctx, admin, period.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.True(t, shared.IsCode(err, shared.CodeConflict))
}

func TestPostingPeriodGate(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	period := createOpenPeriod(t, svc, repo)

	got, err := svc.PostingPeriod(ctx, 10, date("2026-01-15"))
	require.NoError(t, err)
	require.Equal(t, period.ID, got.ID)

	_, err = svc.PostingPeriod(ctx, 10, date("2026-02-15"))
	require.True(t, shared.IsCode(err, shared.CodePeriodClosed))

	require.NoError(t, svc.MarkLocationReady(ctx, admin, period.ID, 10))
	_, err = svc.PostingPeriod(ctx, 10, date("2026-01-15"))
	require.True(t, shared.IsCode(err, shared.CodePeriodClosed))

	_, err = svc.PostingPeriod(ctx, 20, date("2026-01-15"))
	require.NoError(t, err, "other locations keep posting")
}

func TestLockedPriceLookup(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	period := createOpenPeriod(t, svc, repo)

	price, found, err := svc.LockedPrice(ctx, 1, period.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, price.Equal(decimal.RequireFromString("12.50")))

	_, found, err = svc.LockedPrice(ctx, 99, period.ID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRollForwardCopiesPrices(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	period := createOpenPeriod(t, svc, repo)

	next, err := svc.RollForward(ctx, admin, period.ID, CreatePeriodInput{
		Name:      "2026-02",
		StartDate: date("2026-02-01"),
		EndDate:   date("2026-02-28"),
		Prices: []PriceInput{
			{ItemID: 2, Price: decimal.RequireFromString("3.00")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, next.Status)

	price, found, err := svc.LockedPrice(ctx, 1, next.ID)
	require.NoError(t, err)
	require.True(t, found, "price copied from source period")
	require.True(t, price.Equal(decimal.RequireFromString("12.50")))

	price, found, err = svc.LockedPrice(ctx, 2, next.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, price.Equal(decimal.RequireFromString("3.00")))

	locs, err := repo.ListLocationIDs(ctx, next.ID)
	require.NoError(t, err)
	require.Len(t, locs, 2, "locations carried forward")
}
