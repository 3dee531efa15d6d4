package transfer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type posKey struct {
	locationID int64
	itemID     int64
}

type memoryRepo struct {
	nextID    int64
	seq       map[string]int64
	transfers map[int64]*Transfer
	positions map[posKey]ledger.Position

	failReceiveForItem int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:    1,
		seq:       map[string]int64{},
		transfers: map[int64]*Transfer{},
		positions: map[posKey]ledger.Position{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapPositions := make(map[posKey]ledger.Position, len(m.positions))
	for k, v := range m.positions {
		snapPositions[k] = v
	}
	snapTransfers := make(map[int64]*Transfer, len(m.transfers))
	for k, v := range m.transfers {
		tr := *v
		tr.Lines = append([]Line(nil), v.Lines...)
		snapTransfers[k] = &tr
	}
	if err := fn(ctx, m); err != nil {
		m.positions = snapPositions
		m.transfers = snapTransfers
		return err
	}
	return nil
}

func (m *memoryRepo) NextSequence(_ context.Context, scope string) (int64, error) {
	m.seq[scope]++
	return m.seq[scope], nil
}

func (m *memoryRepo) Insert(_ context.Context, tr Transfer) (Transfer, error) {
	tr.ID = m.nextID
	m.nextID++
	for i := range tr.Lines {
		tr.Lines[i].ID = m.nextID
		tr.Lines[i].TransferID = tr.ID
		m.nextID++
	}
	tr.CreatedAt = time.Now()
	copied := tr
	copied.Lines = append([]Line(nil), tr.Lines...)
	m.transfers[tr.ID] = &copied
	return tr, nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) SetStatus(_ context.Context, id int64, status Status, decidedBy *int64, reason string) error {
	tr, ok := m.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	tr.Status = status
	if decidedBy != nil {
		tr.DecidedBy = decidedBy
		now := time.Now()
		tr.DecidedAt = &now
	}
	if reason != "" {
		tr.RejectReason = reason
	}
	return nil
}

func (m *memoryRepo) GetPositionForUpdate(_ context.Context, locationID, itemID int64) (ledger.Position, error) {
	pos, ok := m.positions[posKey{locationID, itemID}]
	if !ok {
		return ledger.Position{LocationID: locationID, ItemID: itemID}, ledger.ErrPositionNotFound
	}
	return pos, nil
}

func (m *memoryRepo) DeductStock(_ context.Context, locationID, itemID int64, qty decimal.Decimal) (ledger.Position, error) {
	key := posKey{locationID, itemID}
	pos, ok := m.positions[key]
	if !ok {
		return ledger.Position{}, ledger.ErrNegativeStock
	}
	next, err := pos.Deducting(qty)
	if err != nil {
		return ledger.Position{}, err
	}
	m.positions[key] = next
	return next, nil
}

func (m *memoryRepo) ReceiveStock(_ context.Context, locationID, itemID int64, qty, unitPrice decimal.Decimal) (ledger.Position, error) {
	if m.failReceiveForItem != 0 && itemID == m.failReceiveForItem {
		return ledger.Position{}, errors.New("simulated storage failure")
	}
	key := posKey{locationID, itemID}
	pos := m.positions[key]
	pos.LocationID = locationID
	pos.ItemID = itemID
	next, err := pos.Receiving(qty, unitPrice)
	if err != nil {
		return ledger.Position{}, err
	}
	m.positions[key] = next
	return next, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Transfer, error) {
	tr, ok := m.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	out := *tr
	out.Lines = append([]Line(nil), tr.Lines...)
	return out, nil
}

func (m *memoryRepo) ListByLocation(_ context.Context, locationID int64, limit int) ([]Transfer, error) {
	var out []Transfer
	for _, tr := range m.transfers {
		if tr.FromLocationID == locationID || tr.ToLocationID == locationID {
			out = append(out, *tr)
		}
	}
	return out, nil
}

type fakeGate struct {
	closedLocations map[int64]bool
}

func (g *fakeGate) PostingPeriod(_ context.Context, locationID int64, _ time.Time) (periods.Period, error) {
	if g.closedLocations[locationID] {
		return periods.Period{}, shared.E(shared.CodePeriodClosed, "location %d is closed", locationID)
	}
	return periods.Period{ID: 1, Status: periods.StatusOpen}, nil
}

func (g *fakeGate) LockedPrice(_ context.Context, _, _ int64) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

type fakeCatalog struct{}

func (fakeCatalog) ActiveItem(_ context.Context, id int64) (masterdata.Item, error) {
	return masterdata.Item{ID: id, IsActive: true}, nil
}

func (fakeCatalog) ActiveLocation(_ context.Context, id int64) (masterdata.Location, error) {
	return masterdata.Location{ID: id, IsActive: true}, nil
}

type fakeAuthz struct {
	canApprove bool
	noAccess   bool
}

func (a *fakeAuthz) Allow(_ context.Context, _ shared.Actor, cap shared.Capability) (bool, error) {
	return a.canApprove && cap == shared.CapApproveTransfer, nil
}

func (a *fakeAuthz) HasLocationAccess(_ context.Context, _ shared.Actor, _ int64) (bool, error) {
	return !a.noAccess, nil
}

type fakeNotifier struct {
	submitted []SubmittedEvent
	decided   []DecidedEvent
}

func (n *fakeNotifier) TransferSubmitted(_ context.Context, evt SubmittedEvent) error {
	n.submitted = append(n.submitted, evt)
	return nil
}

func (n *fakeNotifier) TransferDecided(_ context.Context, evt DecidedEvent) error {
	n.decided = append(n.decided, evt)
	return nil
}

type fixture struct {
	repo     *memoryRepo
	gate     *fakeGate
	authz    *fakeAuthz
	notifier *fakeNotifier
	svc      *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	gate := &fakeGate{closedLocations: map[int64]bool{}}
	authz := &fakeAuthz{canApprove: true}
	notifier := &fakeNotifier{}
	svc := NewService(repo, gate, fakeCatalog{}, authz, nil, notifier, slog.Default())
	return &fixture{repo: repo, gate: gate, authz: authz, notifier: notifier, svc: svc}
}

var (
	storekeeper = shared.Actor{ID: 5, Role: shared.RoleStorekeep}
	supervisor  = shared.Actor{ID: 8, Role: shared.RoleSupervisor}
)

func input(lines ...LineInput) Input {
	return Input{
		FromLocationID: 3,
		ToLocationID:   4,
		TransferDate:   time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		Lines:          lines,
		ActorID:        storekeeper.ID,
	}
}

func seedSource(f *fixture, itemID int64, onHand, wac string) {
	f.repo.positions[posKey{3, itemID}] = ledger.Position{
		LocationID: 3, ItemID: itemID, OnHand: dec(onHand), WAC: dec(wac),
	}
}

func createPending(t *testing.T, f *fixture, lines ...LineInput) Transfer {
	t.Helper()
	tr, err := f.svc.Create(context.Background(), storekeeper, input(lines...))
	require.NoError(t, err)
	tr, err = f.svc.Submit(context.Background(), storekeeper, tr.ID)
	require.NoError(t, err)
	return tr
}

func TestCreateSnapshotsSourceWAC(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.50")

	tr, err := f.svc.Create(context.Background(), storekeeper, input(
		LineInput{ItemID: 1, Qty: dec("40")},
	))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, tr.Status)
	require.Equal(t, "TRF-3-20260120-001", tr.TransferNo)
	require.True(t, tr.Lines[0].WACAtTransfer.Equal(dec("10.50")))
	require.True(t, tr.Lines[0].LineValue.Equal(dec("420.00")))
	require.True(t, tr.TotalValue.Equal(dec("420.00")))

	pos := f.repo.positions[posKey{3, 1}]
	require.True(t, pos.OnHand.Equal(dec("100")), "creation moves nothing")
}

func TestCreateRejectsSameLocation(t *testing.T) {
	f := newFixture()
	in := input(LineInput{ItemID: 1, Qty: dec("1")})
	in.ToLocationID = in.FromLocationID

	_, err := f.svc.Create(context.Background(), storekeeper, in)
	require.True(t, shared.IsCode(err, shared.CodeValidation))
}

func TestCreateRequiresSufficientStock(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "5", "2.00")

	_, err := f.svc.Create(context.Background(), storekeeper, input(
		LineInput{ItemID: 1, Qty: dec("10")},
	))
	require.True(t, shared.IsCode(err, shared.CodeInsufficientStock))
}

func TestApproveMovesStockBothSides(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.50")
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("40")})

	approved, err := f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, approved.Status)

	src := f.repo.positions[posKey{3, 1}]
	dst := f.repo.positions[posKey{4, 1}]
	require.True(t, src.OnHand.Equal(dec("60")))
	require.True(t, src.WAC.Equal(dec("10.50")), "source WAC unchanged")
	require.True(t, dst.OnHand.Equal(dec("40")))
	require.True(t, dst.WAC.Equal(dec("10.50")), "empty destination takes snapshot WAC")

	require.Len(t, f.notifier.decided, 1)
	require.True(t, f.notifier.decided[0].Approved)
}

func TestApproveBlendsDestinationWAC(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "12.00")
	f.repo.positions[posKey{4, 1}] = ledger.Position{LocationID: 4, ItemID: 1, OnHand: dec("100"), WAC: dec("10.00")}
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("50")})

	_, err := f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.NoError(t, err)

	dst := f.repo.positions[posKey{4, 1}]
	require.True(t, dst.OnHand.Equal(dec("150")))
	// (100*10 + 50*12) / 150
	require.True(t, dst.WAC.Equal(dec("10.6667")), "got %s", dst.WAC)
}

func TestApproveUsesSnapshotNotCurrentWAC(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("40")})

	// Source WAC drifts after creation; the snapshot must still price the move.
	f.repo.positions[posKey{3, 1}] = ledger.Position{LocationID: 3, ItemID: 1, OnHand: dec("100"), WAC: dec("99.00")}

	_, err := f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.NoError(t, err)
	require.True(t, f.repo.positions[posKey{4, 1}].WAC.Equal(dec("10.00")))
}

func TestApproveRevalidatesStock(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("40")})

	// Stock issued away between submission and approval.
	f.repo.positions[posKey{3, 1}] = ledger.Position{LocationID: 3, ItemID: 1, OnHand: dec("10"), WAC: dec("10.00")}

	_, err := f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodeInsufficientStock))

	got, err := f.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, got.Status, "failed approval leaves the transfer pending")
	require.True(t, f.repo.positions[posKey{3, 1}].OnHand.Equal(dec("10")))
}

func TestApproveFailureRollsBackBothSides(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	seedSource(f, 2, "50", "4.00")
	tr := createPending(t, f,
		LineInput{ItemID: 1, Qty: dec("40")},
		LineInput{ItemID: 2, Qty: dec("20")},
	)
	f.repo.failReceiveForItem = 2

	_, err := f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.Error(t, err)

	require.True(t, f.repo.positions[posKey{3, 1}].OnHand.Equal(dec("100")), "first line's deduction rolled back")
	_, ok := f.repo.positions[posKey{4, 1}]
	require.False(t, ok, "first line's receipt rolled back")
	got, _ := f.svc.Get(context.Background(), tr.ID)
	require.Equal(t, StatusPendingApproval, got.Status)
}

func TestApproveRequiresCapability(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("40")})
	f.authz.canApprove = false

	_, err := f.svc.Approve(context.Background(), storekeeper, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodeAccessDenied))
}

func TestApproveBlockedWhenDestinationClosed(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("40")})
	f.gate.closedLocations[4] = true

	_, err := f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodePeriodClosed))
}

func TestRejectIsFinal(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("40")})

	rejected, err := f.svc.Reject(context.Background(), supervisor, tr.ID, "wrong destination")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "wrong destination", rejected.RejectReason)
	require.True(t, f.repo.positions[posKey{3, 1}].OnHand.Equal(dec("100")))

	_, err = f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodeTransferFinalized))
	_, err = f.svc.Submit(context.Background(), storekeeper, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodeTransferFinalized))
}

func TestCompletedIsFinal(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr := createPending(t, f, LineInput{ItemID: 1, Qty: dec("40")})

	_, err := f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodeTransferFinalized))
	require.True(t, f.repo.positions[posKey{3, 1}].OnHand.Equal(dec("60")), "no double movement")
}

func TestApproveRequiresSubmission(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr, err := f.svc.Create(context.Background(), storekeeper, input(
		LineInput{ItemID: 1, Qty: dec("40")},
	))
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), supervisor, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodeConflict))
}

func TestSubmitOnlyByCreator(t *testing.T) {
	f := newFixture()
	seedSource(f, 1, "100", "10.00")
	tr, err := f.svc.Create(context.Background(), storekeeper, input(
		LineInput{ItemID: 1, Qty: dec("40")},
	))
	require.NoError(t, err)

	other := shared.Actor{ID: 99, Role: shared.RoleStorekeep}
	_, err = f.svc.Submit(context.Background(), other, tr.ID)
	require.True(t, shared.IsCode(err, shared.CodeAccessDenied))

	submitted, err := f.svc.Submit(context.Background(), storekeeper, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, submitted.Status)
	require.Len(t, f.notifier.submitted, 1)
}
