package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/costing"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// The calculator pulls every figure from the subsystem that owns it.
// Each source is a one-method view of the owning package's repository.

// DeliverySource supplies the period's posted receipt value.
type DeliverySource interface {
	ReceiptsTotal(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error)
}

// IssueSource supplies the period's issued value.
type IssueSource interface {
	IssuesTotal(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error)
}

// TransferSource supplies completed transfer value in both directions.
type TransferSource interface {
	CompletedTotals(ctx context.Context, locationID int64, from, to time.Time) (in, out decimal.Decimal, err error)
}

// NCRSource supplies settled NCR credit and loss totals.
type NCRSource interface {
	SettledTotals(ctx context.Context, locationID int64, from, to time.Time) (credits, losses decimal.Decimal, err error)
}

// StockSource supplies current positions for the closing valuation.
type StockSource interface {
	ListByLocation(ctx context.Context, locationID int64) ([]ledger.Position, error)
}

// PeriodSource resolves the period window.
type PeriodSource interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// RepositoryPort is the statement store the service depends on.
type RepositoryPort interface {
	Get(ctx context.Context, periodID, locationID int64) (Statement, error)
	Upsert(ctx context.Context, st Statement) error
	MarkConfirmed(ctx context.Context, periodID, locationID, actorID int64) (bool, error)
	SetMandays(ctx context.Context, periodID, locationID int64, mandays decimal.Decimal) error
	Mandays(ctx context.Context, periodID, locationID int64) (decimal.Decimal, error)
	ReplaceAdjustments(ctx context.Context, periodID, locationID, actorID int64, entries []AdjustmentInput) error
	Adjustments(ctx context.Context, periodID, locationID int64) ([]Adjustment, error)
	PriorClosing(ctx context.Context, periodID, locationID int64) (decimal.Decimal, bool, error)
}

// Auditor records reconciliation actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service computes and freezes reconciliation statements.
type Service struct {
	repo       RepositoryPort
	periodsSrc PeriodSource
	deliveries DeliverySource
	issues     IssueSource
	transfers  TransferSource
	ncrs       NCRSource
	stock      StockSource
	authz      shared.Authorizer
	audit      Auditor
	logger     *slog.Logger
}

// NewService wires the reconciliation service.
func NewService(repo RepositoryPort, periodsSrc PeriodSource, deliveries DeliverySource,
	issues IssueSource, transfers TransferSource, ncrs NCRSource, stock StockSource,
	authz shared.Authorizer, audit Auditor, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		periodsSrc: periodsSrc,
		deliveries: deliveries,
		issues:     issues,
		transfers:  transfers,
		ncrs:       ncrs,
		stock:      stock,
		authz:      authz,
		audit:      audit,
		logger:     logger,
	}
}

// Reconcile returns the statement for (period, location). A confirmed
// statement is returned frozen as stored; otherwise every figure is
// recomputed from the owning subsystems and the result persisted.
func (s *Service) Reconcile(ctx context.Context, periodID, locationID int64) (Statement, error) {
	stored, err := s.repo.Get(ctx, periodID, locationID)
	if err == nil && stored.Confirmed {
		return stored, nil
	}
	if err != nil && err != ErrStatementNotFound {
		return Statement{}, err
	}

	period, err := s.periodsSrc.Get(ctx, periodID)
	if err != nil {
		return Statement{}, err
	}
	st, err := s.compute(ctx, period, locationID)
	if err != nil {
		return Statement{}, err
	}
	if err := s.repo.Upsert(ctx, st); err != nil {
		return Statement{}, err
	}
	return st, nil
}

// compute fans the independent source reads out and merges the results.
func (s *Service) compute(ctx context.Context, period periods.Period, locationID int64) (Statement, error) {
	st := Statement{PeriodID: period.ID, LocationID: locationID, ComputedAt: time.Now()}
	from, to := period.StartDate, period.EndDate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opening, found, err := s.repo.PriorClosing(gctx, period.ID, locationID)
		if err != nil {
			return err
		}
		if found {
			st.Opening = opening
		} else {
			st.Opening = decimal.Zero
		}
		return nil
	})
	g.Go(func() error {
		receipts, err := s.deliveries.ReceiptsTotal(gctx, locationID, from, to)
		st.Receipts = receipts
		return err
	})
	g.Go(func() error {
		issues, err := s.issues.IssuesTotal(gctx, locationID, from, to)
		st.Issues = issues
		return err
	})
	g.Go(func() error {
		in, out, err := s.transfers.CompletedTotals(gctx, locationID, from, to)
		st.TransfersIn, st.TransfersOut = in, out
		return err
	})
	g.Go(func() error {
		credits, losses, err := s.ncrs.SettledTotals(gctx, locationID, from, to)
		st.NCRCredits, st.NCRLosses = credits, losses
		return err
	})
	g.Go(func() error {
		positions, err := s.stock.ListByLocation(gctx, locationID)
		if err != nil {
			return err
		}
		closing := decimal.Zero
		for _, pos := range positions {
			closing = closing.Add(costing.LineValue(pos.OnHand, pos.WAC))
		}
		st.Closing = closing
		return nil
	})
	g.Go(func() error {
		adjustments, err := s.repo.Adjustments(gctx, period.ID, locationID)
		if err != nil {
			return err
		}
		st.Adjustments = SumAdjustments(adjustments)
		return nil
	})
	g.Go(func() error {
		mandays, err := s.repo.Mandays(gctx, period.ID, locationID)
		st.TotalMandays = mandays
		return err
	})
	if err := g.Wait(); err != nil {
		return Statement{}, err
	}

	st.Derive()
	return st, nil
}

// Confirm freezes the statement after a final recompute. Confirming an
// already confirmed statement returns the stored snapshot unchanged.
func (s *Service) Confirm(ctx context.Context, actor shared.Actor, periodID, locationID int64) (Statement, error) {
	ok, err := s.authz.Allow(ctx, actor, shared.CapConfirmReconciliation)
	if err != nil {
		return Statement{}, err
	}
	if !ok {
		return Statement{}, shared.E(shared.CodeAccessDenied, "role %s may not confirm reconciliations", actor.Role)
	}
	st, err := s.Reconcile(ctx, periodID, locationID)
	if err != nil {
		return Statement{}, err
	}
	if st.Confirmed {
		return st, nil
	}
	changed, err := s.repo.MarkConfirmed(ctx, periodID, locationID, actor.ID)
	if err != nil {
		return Statement{}, err
	}
	if changed {
		s.recordAudit(ctx, actor, "recon.confirm", periodID, locationID, st.Consumption)
	}
	return s.repo.Get(ctx, periodID, locationID)
}

// SetAdjustments replaces the operator adjustment entries. Frozen
// statements reject edits.
func (s *Service) SetAdjustments(ctx context.Context, actor shared.Actor, periodID, locationID int64, entries []AdjustmentInput) (Statement, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return Statement{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
		}
	}
	if err := s.requireUnconfirmed(ctx, periodID, locationID); err != nil {
		return Statement{}, err
	}
	if err := s.checkAccess(ctx, actor, locationID); err != nil {
		return Statement{}, err
	}
	if err := s.repo.ReplaceAdjustments(ctx, periodID, locationID, actor.ID, entries); err != nil {
		return Statement{}, err
	}
	s.recordAudit(ctx, actor, "recon.adjustments", periodID, locationID, decimal.Zero)
	return s.Reconcile(ctx, periodID, locationID)
}

// SetMandays records the manday count used for the cost-per-manday figure.
func (s *Service) SetMandays(ctx context.Context, actor shared.Actor, periodID, locationID int64, mandays decimal.Decimal) (Statement, error) {
	if mandays.IsNegative() {
		return Statement{}, shared.E(shared.CodeValidation, "mandays must be non-negative")
	}
	if err := s.requireUnconfirmed(ctx, periodID, locationID); err != nil {
		return Statement{}, err
	}
	if err := s.checkAccess(ctx, actor, locationID); err != nil {
		return Statement{}, err
	}
	if err := s.repo.SetMandays(ctx, periodID, locationID, mandays); err != nil {
		return Statement{}, err
	}
	return s.Reconcile(ctx, periodID, locationID)
}

// Adjustments lists the stored adjustment entries.
func (s *Service) Adjustments(ctx context.Context, periodID, locationID int64) ([]Adjustment, error) {
	return s.repo.Adjustments(ctx, periodID, locationID)
}

func (s *Service) requireUnconfirmed(ctx context.Context, periodID, locationID int64) error {
	stored, err := s.repo.Get(ctx, periodID, locationID)
	if err != nil {
		if err == ErrStatementNotFound {
			return nil
		}
		return err
	}
	if stored.Confirmed {
		return shared.Wrap(ErrConfirmed, shared.CodeConflict, "reconciliation for period %d location %d is frozen", periodID, locationID)
	}
	return nil
}

func (s *Service) checkAccess(ctx context.Context, actor shared.Actor, locationID int64) error {
	ok, err := s.authz.HasLocationAccess(ctx, actor, locationID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.E(shared.CodeAccessDenied, "no access to location %d", locationID)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, periodID, locationID int64, consumption decimal.Decimal) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "reconciliation",
		EntityID: fmt.Sprintf("%d:%d", periodID, locationID),
		Meta:     map[string]any{"consumption": consumption.String()},
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
