package ncr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (NCR, error)
	ListByLocation(ctx context.Context, locationID int64, limit int) ([]NCR, error)
	SettledTotals(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, decimal.Decimal, error)
}

// Auditor records NCR workflow actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the NCR workflow.
type Service struct {
	repo   RepositoryPort
	audit  Auditor
	logger *slog.Logger
}

// NewService wires the NCR service.
func NewService(repo RepositoryPort, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateManual raises an operator NCR in OPEN status.
func (s *Service) CreateManual(ctx context.Context, actor shared.Actor, in CreateManualInput) (NCR, error) {
	if err := in.Validate(); err != nil {
		return NCR{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
	}
	var created NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.Insert(ctx, NCR{
			Type:          TypeManual,
			Status:        StatusOpen,
			AutoGenerated: false,
			LocationID:    in.LocationID,
			SupplierID:    in.SupplierID,
			ItemID:        in.ItemID,
			Value:         in.Value,
			Description:   in.Description,
			Impact:        ImpactNone,
			RaisedBy:      actor.ID,
		})
		if err != nil {
			return err
		}
		created = n
		return nil
	})
	if err != nil {
		return NCR{}, err
	}
	s.recordAudit(ctx, actor, "ncr.create", created)
	return created, nil
}

// UpdateStatus moves an NCR through its workflow. Terminal states are
// final; RESOLVED carries the operator's financial impact choice.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Actor, id int64, target Status, impact FinancialImpact, resolutionType string) (NCR, error) {
	var updated NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			if err == ErrNCRNotFound {
				return shared.Wrap(err, shared.CodeNotFound, "NCR %d not found", id)
			}
			return err
		}
		if n.Status.Terminal() {
			return shared.Wrap(ErrTerminalStatus, shared.CodeConflict, "NCR %s is %s and cannot change", n.NCRNo, n.Status)
		}
		if !CanTransition(n.Status, target) {
			return shared.Wrap(ErrInvalidTransition, shared.CodeConflict, "NCR %s cannot move from %s to %s", n.NCRNo, n.Status, target)
		}
		resolved, err := ImpactFor(target, impact)
		if err != nil {
			return shared.Wrap(err, shared.CodeValidation, "resolving NCR %s requires a financial impact", n.NCRNo)
		}
		if err := tx.UpdateStatus(ctx, id, target, resolved, resolutionType); err != nil {
			return err
		}
		n.Status = target
		n.Impact = resolved
		n.ResolutionType = resolutionType
		updated = n
		return nil
	})
	if err != nil {
		return NCR{}, err
	}
	s.recordAudit(ctx, actor, "ncr.status."+string(target), updated)
	return updated, nil
}

// Get loads one NCR.
func (s *Service) Get(ctx context.Context, id int64) (NCR, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrNCRNotFound {
			return NCR{}, shared.Wrap(err, shared.CodeNotFound, "NCR %d not found", id)
		}
		return NCR{}, err
	}
	return n, nil
}

// ListByLocation returns NCRs raised at a location.
func (s *Service) ListByLocation(ctx context.Context, locationID int64, limit int) ([]NCR, error) {
	return s.repo.ListByLocation(ctx, locationID, limit)
}

// SettledTotals sums credit and loss values for reconciliation.
func (s *Service) SettledTotals(ctx context.Context, locationID int64, from, to time.Time) (credits, losses decimal.Decimal, err error) {
	return s.repo.SettledTotals(ctx, locationID, from, to)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, n NCR) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "ncr",
		EntityID: fmt.Sprintf("%d", n.ID),
		Meta:     map[string]any{"ncr_no": n.NCRNo, "status": string(n.Status)},
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
