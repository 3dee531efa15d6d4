package procurement

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error)
	GetPRF(ctx context.Context, id int64) (PRF, error)
}

// Service manages the PRF and PO lifecycle. Delivered-qty tracking lives
// in the delivery poster, which mutates PO lines on its own transaction.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService wires the procurement service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreatePRF raises a purchase request in DRAFT.
func (s *Service) CreatePRF(ctx context.Context, in CreatePRFInput) (PRF, error) {
	if in.LocationID == 0 {
		return PRF{}, shared.E(shared.CodeValidation, "location required")
	}
	var created PRF
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		year := time.Now().Year()
		seq, err := tx.NextSequence(ctx, numbering.PRFScope(year))
		if err != nil {
			return err
		}
		prf, err := tx.InsertPRF(ctx, PRF{
			PRFNo:      numbering.FormatPRF(year, seq),
			LocationID: in.LocationID,
			Status:     PRFStatusDraft,
			Notes:      in.Notes,
			CreatedBy:  in.ActorID,
		})
		if err != nil {
			return err
		}
		created = prf
		return nil
	})
	return created, err
}

// ApprovePRF moves a DRAFT request to APPROVED.
func (s *Service) ApprovePRF(ctx context.Context, id int64) error {
	prf, err := s.repo.GetPRF(ctx, id)
	if err != nil {
		if err == ErrPRFNotFound {
			return shared.Wrap(err, shared.CodeNotFound, "purchase request %d not found", id)
		}
		return err
	}
	if prf.Status != PRFStatusDraft {
		return shared.Wrap(ErrInvalidStatus, shared.CodeConflict, "purchase request %s is %s", prf.PRFNo, prf.Status)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePRFStatus(ctx, id, PRFStatusApproved)
	})
}

// CreatePO registers a purchase order in DRAFT. When raised from a PRF the
// request must be APPROVED.
func (s *Service) CreatePO(ctx context.Context, in CreatePOInput) (PurchaseOrder, error) {
	if err := in.Validate(); err != nil {
		return PurchaseOrder{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
	}
	if in.PRFID != nil {
		prf, err := s.repo.GetPRF(ctx, *in.PRFID)
		if err != nil {
			if err == ErrPRFNotFound {
				return PurchaseOrder{}, shared.Wrap(err, shared.CodeNotFound, "purchase request %d not found", *in.PRFID)
			}
			return PurchaseOrder{}, err
		}
		if prf.Status != PRFStatusApproved {
			return PurchaseOrder{}, shared.Wrap(ErrInvalidStatus, shared.CodeConflict, "purchase request %s is %s, not APPROVED", prf.PRFNo, prf.Status)
		}
	}
	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		year := in.OrderDate.Year()
		seq, err := tx.NextSequence(ctx, numbering.POScope(year))
		if err != nil {
			return err
		}
		po := PurchaseOrder{
			PONo:       numbering.FormatPO(year, seq),
			SupplierID: in.SupplierID,
			PRFID:      in.PRFID,
			Status:     POStatusDraft,
			OrderDate:  in.OrderDate,
			CreatedBy:  in.ActorID,
		}
		for _, l := range in.Lines {
			po.Lines = append(po.Lines, POLine{ItemID: l.ItemID, Qty: l.Qty, UnitPrice: l.UnitPrice})
		}
		created, err = tx.InsertPO(ctx, po)
		return err
	})
	return created, err
}

// OpenPO releases a DRAFT order so deliveries can post against it.
func (s *Service) OpenPO(ctx context.Context, id int64) error {
	return s.setPOStatus(ctx, id, POStatusDraft, POStatusOpen)
}

// CancelPO cancels an order that has not received any deliveries.
func (s *Service) CancelPO(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return poNotFound(err, id)
		}
		if po.Status == POStatusClosed || po.Status == POStatusCancelled {
			return shared.Wrap(ErrInvalidStatus, shared.CodeConflict, "purchase order %s is already %s", po.PONo, po.Status)
		}
		for _, l := range po.Lines {
			if l.DeliveredQty.IsPositive() {
				return shared.E(shared.CodeConflict, "purchase order %s has received deliveries and cannot be cancelled", po.PONo)
			}
		}
		return tx.UpdatePOStatus(ctx, id, POStatusCancelled)
	})
}

// GetPO loads one order with lines.
func (s *Service) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, poNotFound(err, id)
	}
	return po, nil
}

// ListPOs returns orders, optionally by status.
func (s *Service) ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, status, limit)
}

func (s *Service) setPOStatus(ctx context.Context, id int64, from, to POStatus) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return poNotFound(err, id)
		}
		if po.Status != from {
			return shared.Wrap(ErrInvalidStatus, shared.CodeConflict, "purchase order %s is %s, expected %s", po.PONo, po.Status, from)
		}
		return tx.UpdatePOStatus(ctx, id, to)
	})
}

func poNotFound(err error, id int64) error {
	if err == ErrPONotFound {
		return shared.Wrap(err, shared.CodeNotFound, "purchase order %d not found", id)
	}
	return err
}
