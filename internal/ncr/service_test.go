package ncr

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	nextID int64
	seq    map[int]int64
	ncrs   map[int64]*NCR
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, seq: map[int]int64{}, ncrs: map[int64]*NCR{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Insert(_ context.Context, n NCR) (NCR, error) {
	year := time.Now().Year()
	m.seq[year]++
	n.ID = m.nextID
	m.nextID++
	n.NCRNo = fmt.Sprintf("NCR-%d-%04d", year, m.seq[year])
	n.CreatedAt = time.Now()
	copied := n
	m.ncrs[n.ID] = &copied
	return n, nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, id int64) (NCR, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id int64, status Status, impact FinancialImpact, resolutionType string) error {
	n, ok := m.ncrs[id]
	if !ok {
		return ErrNCRNotFound
	}
	n.Status = status
	n.Impact = impact
	n.ResolutionType = resolutionType
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (NCR, error) {
	n, ok := m.ncrs[id]
	if !ok {
		return NCR{}, ErrNCRNotFound
	}
	return *n, nil
}

func (m *memoryRepo) ListByLocation(_ context.Context, locationID int64, limit int) ([]NCR, error) {
	var out []NCR
	for _, n := range m.ncrs {
		if n.LocationID == locationID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memoryRepo) SettledTotals(_ context.Context, locationID int64, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	credits, losses := decimal.Zero, decimal.Zero
	for _, n := range m.ncrs {
		if n.LocationID != locationID {
			continue
		}
		switch {
		case n.Status == StatusCredited, n.Status == StatusResolved && n.Impact == ImpactCredit:
			credits = credits.Add(n.Value)
		case n.Status == StatusRejected, n.Status == StatusResolved && n.Impact == ImpactLoss:
			losses = losses.Add(n.Value)
		}
	}
	return credits, losses, nil
}

var actor = shared.Actor{ID: 9, Role: shared.RoleSupervisor}

func manualInput() CreateManualInput {
	return CreateManualInput{
		LocationID:  3,
		SupplierID:  7,
		Value:       decimal.RequireFromString("25.00"),
		Description: "short delivery of 5 crates",
		ActorID:     9,
	}
}

func TestCreateManualStartsOpen(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, slog.Default())

	n, err := svc.CreateManual(context.Background(), actor, manualInput())
	require.NoError(t, err)
	require.Equal(t, StatusOpen, n.Status)
	require.Equal(t, TypeManual, n.Type)
	require.False(t, n.AutoGenerated)
	require.Equal(t, ImpactNone, n.Impact)
	require.Contains(t, n.NCRNo, fmt.Sprintf("NCR-%d-", time.Now().Year()))
}

func TestCreateManualValidates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, slog.Default())
	in := manualInput()
	in.Description = ""

	_, err := svc.CreateManual(context.Background(), actor, in)
	require.True(t, shared.IsCode(err, shared.CodeValidation))
}

func TestStatusWorkflow(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, slog.Default())
	ctx := context.Background()
	n, err := svc.CreateManual(ctx, actor, manualInput())
	require.NoError(t, err)

	sent, err := svc.UpdateStatus(ctx, actor, n.ID, StatusSent, "", "")
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)

	credited, err := svc.UpdateStatus(ctx, actor, n.ID, StatusCredited, "", "")
	require.NoError(t, err)
	require.Equal(t, ImpactCredit, credited.Impact)
}

func TestTerminalStatusIsFinal(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, slog.Default())
	ctx := context.Background()
	n, err := svc.CreateManual(ctx, actor, manualInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, actor, n.ID, StatusRejected, "", "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, actor, n.ID, StatusSent, "", "")
	require.ErrorIs(t, err, ErrTerminalStatus)
	require.True(t, shared.IsCode(err, shared.CodeConflict))
}

func TestRejectedImpliesLoss(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, slog.Default())
	ctx := context.Background()
	n, err := svc.CreateManual(ctx, actor, manualInput())
	require.NoError(t, err)

	rejected, err := svc.UpdateStatus(ctx, actor, n.ID, StatusRejected, "", "")
	require.NoError(t, err)
	require.Equal(t, ImpactLoss, rejected.Impact)
}

func TestResolvedRequiresImpact(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, slog.Default())
	ctx := context.Background()
	n, err := svc.CreateManual(ctx, actor, manualInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, actor, n.ID, StatusResolved, "", "supplier replaced goods")
	require.ErrorIs(t, err, ErrImpactRequired)

	resolved, err := svc.UpdateStatus(ctx, actor, n.ID, StatusResolved, ImpactCredit, "supplier replaced goods")
	require.NoError(t, err)
	require.Equal(t, ImpactCredit, resolved.Impact)
	require.Equal(t, "supplier replaced goods", resolved.ResolutionType)
}

func TestSettledTotalsSplitsCreditsAndLosses(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, slog.Default())
	ctx := context.Background()

	mk := func(value string) NCR {
		in := manualInput()
		in.Value = decimal.RequireFromString(value)
		n, err := svc.CreateManual(ctx, actor, in)
		require.NoError(t, err)
		return n
	}

	a, b, c, d := mk("10.00"), mk("4.00"), mk("6.50"), mk("2.00")
	_, err := svc.UpdateStatus(ctx, actor, a.ID, StatusCredited, "", "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, actor, b.ID, StatusResolved, ImpactCredit, "credit note")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, actor, c.ID, StatusRejected, "", "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, actor, d.ID, StatusResolved, ImpactLoss, "written off")
	require.NoError(t, err)

	credits, losses, err := svc.SettledTotals(ctx, 3, time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, credits.Equal(decimal.RequireFromString("14.00")), "got %s", credits)
	require.True(t, losses.Equal(decimal.RequireFromString("8.50")), "got %s", losses)
}
