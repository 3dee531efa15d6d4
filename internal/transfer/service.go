package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/costing"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Catalog answers master data questions during validation.
type Catalog interface {
	ActiveItem(ctx context.Context, id int64) (masterdata.Item, error)
	ActiveLocation(ctx context.Context, id int64) (masterdata.Location, error)
}

// Auditor records workflow actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the transfer approval workflow.
type Service struct {
	repo     RepositoryPort
	gate     periods.Gate
	catalog  Catalog
	authz    shared.Authorizer
	audit    Auditor
	notifier Notifier
	logger   *slog.Logger
}

// NewService wires the transfer service.
func NewService(repo RepositoryPort, gate periods.Gate, catalog Catalog, authz shared.Authorizer, audit Auditor, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, catalog: catalog, authz: authz, audit: audit, notifier: notifier, logger: logger}
}

// Create builds a DRAFT transfer. Each line snapshots the source WAC so
// the destination receipt is priced at creation-time cost regardless of
// when approval lands.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in Input) (Transfer, error) {
	if err := in.Validate(); err != nil {
		return Transfer{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
	}
	if err := s.checkAccess(ctx, actor, in.FromLocationID); err != nil {
		return Transfer{}, err
	}
	if _, err := s.catalog.ActiveLocation(ctx, in.FromLocationID); err != nil {
		return Transfer{}, err
	}
	if _, err := s.catalog.ActiveLocation(ctx, in.ToLocationID); err != nil {
		return Transfer{}, err
	}
	if _, err := s.gate.PostingPeriod(ctx, in.FromLocationID, in.TransferDate); err != nil {
		return Transfer{}, err
	}
	itemNames := make(map[int64]string, len(in.Lines))
	for _, li := range in.Lines {
		item, err := s.catalog.ActiveItem(ctx, li.ItemID)
		if err != nil {
			return Transfer{}, err
		}
		itemNames[li.ItemID] = item.Name
	}

	var created Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr := Transfer{
			Status:         StatusDraft,
			FromLocationID: in.FromLocationID,
			ToLocationID:   in.ToLocationID,
			TransferDate:   in.TransferDate,
			CreatedBy:      actor.ID,
		}
		positions, err := s.lockAndCheck(ctx, tx, in.FromLocationID, in.Lines, itemNames)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, li := range in.Lines {
			wac := positions[li.ItemID].WAC
			line := Line{
				ItemID:        li.ItemID,
				Qty:           li.Qty,
				WACAtTransfer: wac,
				LineValue:     costing.LineValue(li.Qty, wac),
			}
			total = total.Add(line.LineValue)
			tr.Lines = append(tr.Lines, line)
		}
		tr.TotalValue = total

		seq, err := tx.NextSequence(ctx, numbering.TransferScope(in.FromLocationID, in.TransferDate))
		if err != nil {
			return err
		}
		tr.TransferNo = numbering.FormatTransfer(in.FromLocationID, in.TransferDate, seq)
		created, err = tx.Insert(ctx, tr)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actor, "transfer.create", created.ID, map[string]any{"transfer_no": created.TransferNo})
	return created, nil
}

// Submit moves a draft to PENDING_APPROVAL and pages approvers.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, id int64) (Transfer, error) {
	var submitted Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if tr.Status != StatusDraft {
			return statusError(tr)
		}
		if tr.CreatedBy != actor.ID && actor.Role != shared.RoleAdmin {
			return shared.E(shared.CodeAccessDenied, "transfer %s belongs to another user", tr.TransferNo)
		}
		if err := tx.SetStatus(ctx, id, StatusPendingApproval, nil, ""); err != nil {
			return err
		}
		tr.Status = StatusPendingApproval
		submitted = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actor, "transfer.submit", id, map[string]any{"transfer_no": submitted.TransferNo})
	if s.notifier != nil {
		if err := s.notifier.TransferSubmitted(ctx, SubmittedEvent{
			TransferID:     submitted.ID,
			TransferNo:     submitted.TransferNo,
			FromLocationID: submitted.FromLocationID,
			ToLocationID:   submitted.ToLocationID,
			TotalValue:     submitted.TotalValue,
			SubmittedBy:    actor.ID,
		}); err != nil && s.logger != nil {
			s.logger.Warn("notify transfer submitted failed", "transfer_no", submitted.TransferNo, "error", err)
		}
	}
	return submitted, nil
}

// Approve executes the movement and completes the transfer. Stock is
// re-validated first; a short source leaves the transfer pending and
// nothing applied.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (Transfer, error) {
	if err := s.requireApprover(ctx, actor); err != nil {
		return Transfer{}, err
	}
	var approved Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if tr.Status != StatusPendingApproval {
			return statusError(tr)
		}
		if _, err := s.gate.PostingPeriod(ctx, tr.FromLocationID, tr.TransferDate); err != nil {
			return err
		}
		if _, err := s.gate.PostingPeriod(ctx, tr.ToLocationID, tr.TransferDate); err != nil {
			return err
		}

		var inputs []LineInput
		for _, l := range tr.Lines {
			inputs = append(inputs, LineInput{ItemID: l.ItemID, Qty: l.Qty})
		}
		if _, err := s.lockAndCheck(ctx, tx, tr.FromLocationID, inputs, nil); err != nil {
			return err
		}

		for _, l := range tr.Lines {
			if _, err := tx.DeductStock(ctx, tr.FromLocationID, l.ItemID, l.Qty); err != nil {
				return err
			}
			if _, err := tx.ReceiveStock(ctx, tr.ToLocationID, l.ItemID, l.Qty, l.WACAtTransfer); err != nil {
				return err
			}
		}
		actorID := actor.ID
		if err := tx.SetStatus(ctx, id, StatusCompleted, &actorID, ""); err != nil {
			return err
		}
		tr.Status = StatusCompleted
		tr.DecidedBy = &actorID
		approved = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actor, "transfer.approve", id, map[string]any{"transfer_no": approved.TransferNo})
	s.notifyDecided(ctx, approved, true, "", actor.ID)
	return approved, nil
}

// Reject finalizes a pending transfer without moving stock.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, reason string) (Transfer, error) {
	if err := s.requireApprover(ctx, actor); err != nil {
		return Transfer{}, err
	}
	var rejected Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if tr.Status != StatusPendingApproval {
			return statusError(tr)
		}
		actorID := actor.ID
		if err := tx.SetStatus(ctx, id, StatusRejected, &actorID, reason); err != nil {
			return err
		}
		tr.Status = StatusRejected
		tr.DecidedBy = &actorID
		tr.RejectReason = reason
		rejected = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actor, "transfer.reject", id, map[string]any{"transfer_no": rejected.TransferNo, "reason": reason})
	s.notifyDecided(ctx, rejected, false, reason, actor.ID)
	return rejected, nil
}

// Get loads one transfer.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	tr, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrTransferNotFound {
			return Transfer{}, shared.Wrap(err, shared.CodeNotFound, "transfer %d not found", id)
		}
		return Transfer{}, err
	}
	return tr, nil
}

// ListByLocation returns transfers touching a location.
func (s *Service) ListByLocation(ctx context.Context, locationID int64, limit int) ([]Transfer, error) {
	return s.repo.ListByLocation(ctx, locationID, limit)
}

// lockAndCheck locks every source position and verifies sufficiency,
// collecting all shortfalls into one error.
func (s *Service) lockAndCheck(ctx context.Context, tx TxRepository, locationID int64, lines []LineInput, itemNames map[int64]string) (map[int64]ledger.Position, error) {
	positions := make(map[int64]ledger.Position, len(lines))
	var short []string
	for _, li := range lines {
		pos, err := tx.GetPositionForUpdate(ctx, locationID, li.ItemID)
		if err != nil && err != ledger.ErrPositionNotFound {
			return nil, err
		}
		if pos.OnHand.LessThan(li.Qty) {
			label := fmt.Sprintf("item %d", li.ItemID)
			if name := itemNames[li.ItemID]; name != "" {
				label = name
			}
			short = append(short, fmt.Sprintf("%s (have %s, need %s)", label, pos.OnHand, li.Qty))
			continue
		}
		positions[li.ItemID] = pos
	}
	if len(short) > 0 {
		return nil, shared.E(shared.CodeInsufficientStock, "insufficient stock at source: %s", strings.Join(short, "; "))
	}
	return positions, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx TxRepository, id int64) (Transfer, error) {
	tr, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		if err == ErrTransferNotFound {
			return Transfer{}, shared.Wrap(err, shared.CodeNotFound, "transfer %d not found", id)
		}
		return Transfer{}, err
	}
	return tr, nil
}

func (s *Service) requireApprover(ctx context.Context, actor shared.Actor) error {
	ok, err := s.authz.Allow(ctx, actor, shared.CapApproveTransfer)
	if err != nil {
		return err
	}
	if !ok {
		return shared.E(shared.CodeAccessDenied, "role %s may not decide transfers", actor.Role)
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

func (s *Service) notifyDecided(ctx context.Context, tr Transfer, approved bool, reason string, actorID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.TransferDecided(ctx, DecidedEvent{
		TransferID:   tr.ID,
		TransferNo:   tr.TransferNo,
		Approved:     approved,
		RejectReason: reason,
		DecidedBy:    actorID,
	}); err != nil && s.logger != nil {
		s.logger.Warn("notify transfer decided failed", "transfer_no", tr.TransferNo, "error", err)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "transfer",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

func statusError(tr Transfer) error {
	if tr.Status.Terminal() {
		return shared.Wrap(ErrFinalized, shared.CodeTransferFinalized, "transfer %s is %s and final", tr.TransferNo, tr.Status)
	}
	return shared.Wrap(ErrNotPending, shared.CodeConflict, "transfer %s is %s", tr.TransferNo, tr.Status)
}
