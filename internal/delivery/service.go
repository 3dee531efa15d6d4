package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/costing"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/ncr"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Delivery, error)
	ListByLocation(ctx context.Context, locationID int64, limit int) ([]Delivery, error)
}

// Catalog answers master data questions during validation.
type Catalog interface {
	Item(ctx context.Context, id int64) (masterdata.Item, error)
	ActiveItem(ctx context.Context, id int64) (masterdata.Item, error)
	ActiveLocation(ctx context.Context, id int64) (masterdata.Location, error)
	Supplier(ctx context.Context, id int64) (masterdata.Supplier, error)
}

// Auditor records posting actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates delivery drafting and posting.
type Service struct {
	repo     RepositoryPort
	gate     periods.Gate
	catalog  Catalog
	authz    shared.Authorizer
	audit    Auditor
	notifier Notifier
	logger   *slog.Logger
}

// NewService wires the delivery service.
func NewService(repo RepositoryPort, gate periods.Gate, catalog Catalog, authz shared.Authorizer, audit Auditor, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, catalog: catalog, authz: authz, audit: audit, notifier: notifier, logger: logger}
}

// SaveDraft creates or updates a mutable draft. Drafts carry no stock or
// cost side effects and may hold unapproved over-delivery lines for later
// review.
func (s *Service) SaveDraft(ctx context.Context, actor shared.Actor, in Input) (Delivery, error) {
	if err := in.Validate(false); err != nil {
		return Delivery{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
	}
	if err := s.checkAccess(ctx, actor, in.LocationID); err != nil {
		return Delivery{}, err
	}
	if _, err := s.catalog.ActiveLocation(ctx, in.LocationID); err != nil {
		return Delivery{}, err
	}
	if _, err := s.catalog.Supplier(ctx, in.SupplierID); err != nil {
		return Delivery{}, err
	}
	// Drafts may reference inactive items, but every item must exist.
	for _, li := range in.Lines {
		if _, err := s.catalog.Item(ctx, li.ItemID); err != nil {
			return Delivery{}, err
		}
	}
	var saved Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d := Delivery{
			ID:           in.ID,
			Status:       StatusDraft,
			LocationID:   in.LocationID,
			SupplierID:   in.SupplierID,
			POID:         in.POID,
			InvoiceNo:    in.InvoiceNo,
			DeliveryDate: in.DeliveryDate,
			CreatedBy:    actor.ID,
		}
		if in.ID != 0 {
			existing, err := tx.GetForUpdate(ctx, in.ID)
			if err != nil {
				return notFound(err, in.ID)
			}
			if existing.Status != StatusDraft {
				return shared.Wrap(ErrAlreadyPosted, shared.CodeDeliveryAlreadyPosted, "delivery %s is posted and immutable", existing.DeliveryNo)
			}
			if existing.CreatedBy != actor.ID && actor.Role != shared.RoleAdmin {
				return shared.Wrap(ErrNotCreator, shared.CodeAccessDenied, "draft %s belongs to another user", existing.DeliveryNo)
			}
			d.DeliveryNo = existing.DeliveryNo
			d.CreatedBy = existing.CreatedBy
		}
		if in.InvoiceNo != "" {
			inUse, err := tx.InvoiceInUse(ctx, in.InvoiceNo, in.ID)
			if err != nil {
				return err
			}
			if inUse {
				return shared.E(shared.CodeDuplicateInvoice, "invoice %s already used by another delivery", in.InvoiceNo)
			}
		}
		var po *procurement.PurchaseOrder
		if in.POID != nil {
			loaded, err := tx.GetPOForUpdate(ctx, *in.POID)
			if err != nil {
				return poNotFound(err, *in.POID)
			}
			if loaded.Status != procurement.POStatusOpen {
				return shared.E(shared.CodePONotOpen, "purchase order %s is %s, not OPEN", loaded.PONo, loaded.Status)
			}
			if loaded.SupplierID != in.SupplierID {
				return shared.E(shared.CodeSupplierMismatch, "purchase order %s belongs to supplier %d", loaded.PONo, loaded.SupplierID)
			}
			po = &loaded
		}
		total := decimal.Zero
		consumed := map[int64]decimal.Decimal{}
		for _, li := range in.Lines {
			line := Line{
				ItemID:               li.ItemID,
				POLineID:             li.POLineID,
				Qty:                  li.Qty,
				UnitPrice:            li.UnitPrice,
				LineValue:            costing.LineValue(li.Qty, li.UnitPrice),
				OverDeliveryApproved: li.ApproveOverDelivery,
			}
			if po != nil {
				if pl := matchPOLine(*po, li); pl != nil {
					remaining := pl.RemainingQty().Sub(consumed[pl.ID])
					line.OverDelivery = li.Qty.GreaterThan(remaining)
					consumed[pl.ID] = consumed[pl.ID].Add(li.Qty)
				}
			}
			total = total.Add(line.LineValue)
			d.Lines = append(d.Lines, line)
		}
		d.TotalAmount = total
		d.PendingApproval = hasUnapprovedOverDelivery(d.Lines)

		var err error
		if in.ID == 0 {
			seq, err := tx.NextSequence(ctx, numbering.DeliveryScope(in.LocationID, in.DeliveryDate))
			if err != nil {
				return err
			}
			d.DeliveryNo = numbering.FormatDelivery(in.LocationID, in.DeliveryDate, seq)
			saved, err = tx.Insert(ctx, d)
			return err
		}
		saved, err = tx.ReplaceDraft(ctx, d)
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	s.recordAudit(ctx, actor, "delivery.draft", saved.ID, map[string]any{"delivery_no": saved.DeliveryNo})
	return saved, nil
}

// Post transitions a delivery to POSTED with full stock and cost side
// effects. Either every line effect lands or none do.
func (s *Service) Post(ctx context.Context, actor shared.Actor, in Input) (PostResult, error) {
	if err := in.Validate(true); err != nil {
		return PostResult{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
	}
	if err := s.checkAccess(ctx, actor, in.LocationID); err != nil {
		return PostResult{}, err
	}
	if _, err := s.catalog.ActiveLocation(ctx, in.LocationID); err != nil {
		return PostResult{}, err
	}
	if _, err := s.catalog.Supplier(ctx, in.SupplierID); err != nil {
		return PostResult{}, err
	}
	period, err := s.gate.PostingPeriod(ctx, in.LocationID, in.DeliveryDate)
	if err != nil {
		return PostResult{}, err
	}
	for _, li := range in.Lines {
		if _, err := s.catalog.ActiveItem(ctx, li.ItemID); err != nil {
			return PostResult{}, err
		}
	}
	canOverride, err := s.authz.Allow(ctx, actor, shared.CapApproveOverDelivery)
	if err != nil {
		return PostResult{}, err
	}

	var result PostResult
	var overEvents []OverDeliveryEvent
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = PostResult{}
		overEvents = overEvents[:0]

		d := Delivery{
			ID:           in.ID,
			Status:       StatusPosted,
			LocationID:   in.LocationID,
			SupplierID:   in.SupplierID,
			POID:         in.POID,
			InvoiceNo:    in.InvoiceNo,
			DeliveryDate: in.DeliveryDate,
			CreatedBy:    actor.ID,
		}
		if in.ID != 0 {
			existing, err := tx.GetForUpdate(ctx, in.ID)
			if err != nil {
				return notFound(err, in.ID)
			}
			if existing.Status == StatusPosted {
				return shared.Wrap(ErrAlreadyPosted, shared.CodeDeliveryAlreadyPosted, "delivery %s is already posted", existing.DeliveryNo)
			}
			d.DeliveryNo = existing.DeliveryNo
			d.CreatedBy = existing.CreatedBy
		}
		inUse, err := tx.InvoiceInUse(ctx, in.InvoiceNo, in.ID)
		if err != nil {
			return err
		}
		if inUse {
			return shared.E(shared.CodeDuplicateInvoice, "invoice %s already used by another delivery", in.InvoiceNo)
		}

		var po *procurement.PurchaseOrder
		if in.POID != nil {
			loaded, err := tx.GetPOForUpdate(ctx, *in.POID)
			if err != nil {
				return poNotFound(err, *in.POID)
			}
			if loaded.Status != procurement.POStatusOpen {
				return shared.E(shared.CodePONotOpen, "purchase order %s is %s, not OPEN", loaded.PONo, loaded.Status)
			}
			if loaded.SupplierID != in.SupplierID {
				return shared.E(shared.CodeSupplierMismatch, "purchase order %s belongs to supplier %d", loaded.PONo, loaded.SupplierID)
			}
			po = &loaded
		}

		// Build every line and settle the over-delivery rule before any
		// stock mutation.
		type poAlloc struct {
			line *procurement.POLine
			qty  decimal.Decimal
		}
		var allocations []poAlloc
		consumed := map[int64]decimal.Decimal{}
		total := decimal.Zero
		hasVariance := false
		for _, li := range in.Lines {
			line := Line{
				ItemID:               li.ItemID,
				POLineID:             li.POLineID,
				Qty:                  li.Qty,
				UnitPrice:            li.UnitPrice,
				LineValue:            costing.LineValue(li.Qty, li.UnitPrice),
				OverDeliveryApproved: li.ApproveOverDelivery,
			}
			if po != nil {
				if pl := matchPOLine(*po, li); pl != nil {
					remaining := pl.RemainingQty().Sub(consumed[pl.ID])
					if li.Qty.GreaterThan(remaining) {
						line.OverDelivery = true
						if !line.OverDeliveryApproved && !canOverride {
							return shared.E(shared.CodeOverDeliveryNotApproved,
								"line for item %d exceeds remaining PO quantity %s and is not approved", li.ItemID, remaining)
						}
						// Posting by a privileged actor constitutes approval.
						line.OverDeliveryApproved = true
						overEvents = append(overEvents, OverDeliveryEvent{
							ItemID:    li.ItemID,
							Qty:       li.Qty,
							Remaining: remaining,
							Approved:  true,
							ActorID:   actor.ID,
						})
					}
					consumed[pl.ID] = consumed[pl.ID].Add(li.Qty)
					allocations = append(allocations, poAlloc{line: pl, qty: li.Qty})
				}
			}
			if locked, found, err := s.gate.LockedPrice(ctx, li.ItemID, period.ID); err != nil {
				return err
			} else if found {
				price := locked
				line.PeriodPrice = &price
				vr := costing.DetectVariance(li.UnitPrice, locked)
				line.PriceVariance = vr.Variance
				if vr.HasVariance {
					hasVariance = true
				}
			}
			total = total.Add(line.LineValue)
			d.Lines = append(d.Lines, line)
		}
		d.TotalAmount = total
		d.HasVariance = hasVariance
		d.PendingApproval = false
		d.OverDeliveryRejected = false

		if in.ID == 0 {
			seq, err := tx.NextSequence(ctx, numbering.DeliveryScope(in.LocationID, in.DeliveryDate))
			if err != nil {
				return err
			}
			d.DeliveryNo = numbering.FormatDelivery(in.LocationID, in.DeliveryDate, seq)
			d, err = tx.Insert(ctx, d)
			if err != nil {
				return err
			}
		} else {
			if err := tx.MarkPosted(ctx, d); err != nil {
				return err
			}
			reloaded, err := tx.GetForUpdate(ctx, d.ID)
			if err != nil {
				return err
			}
			d.Lines = reloaded.Lines
			d.CreatedAt = reloaded.CreatedAt
		}

		for _, line := range d.Lines {
			if _, err := tx.ReceiveStock(ctx, d.LocationID, line.ItemID, line.Qty, line.UnitPrice); err != nil {
				return err
			}
		}

		for i := range d.Lines {
			line := d.Lines[i]
			if line.PeriodPrice == nil || line.PriceVariance.IsZero() {
				continue
			}
			deliveryID, lineID, itemID := d.ID, line.ID, line.ItemID
			created, err := tx.InsertNCR(ctx, ncr.NCR{
				Type:           ncr.TypePriceVariance,
				Status:         ncr.StatusOpen,
				AutoGenerated:  true,
				LocationID:     d.LocationID,
				SupplierID:     d.SupplierID,
				DeliveryID:     &deliveryID,
				DeliveryLineID: &lineID,
				ItemID:         &itemID,
				Value:          costing.VarianceValue(line.PriceVariance, line.Qty),
				Description: fmt.Sprintf("price variance on %s: invoiced %s against period price %s",
					d.DeliveryNo, line.UnitPrice, *line.PeriodPrice),
				Impact:   ncr.ImpactNone,
				RaisedBy: actor.ID,
			})
			if err != nil {
				return err
			}
			result.NCRNos = append(result.NCRNos, created.NCRNo)
		}

		if po != nil {
			for _, alloc := range allocations {
				if err := tx.IncrementDelivered(ctx, alloc.line.ID, alloc.qty); err != nil {
					return err
				}
			}
			if fullyDeliveredAfter(*po, consumed) {
				if err := tx.ClosePO(ctx, po.ID); err != nil {
					return err
				}
				if po.PRFID != nil {
					if err := tx.ClosePRFIfApproved(ctx, *po.PRFID); err != nil {
						return err
					}
				}
				result.POAutoClosed = true
			}
		}

		result.Delivery = d
		return nil
	})
	if err != nil {
		return PostResult{}, err
	}

	s.recordAudit(ctx, actor, "delivery.post", result.Delivery.ID, map[string]any{
		"delivery_no":    result.Delivery.DeliveryNo,
		"total":          result.Delivery.TotalAmount.String(),
		"ncrs":           result.NCRNos,
		"po_auto_closed": result.POAutoClosed,
	})
	s.publish(ctx, result, overEvents)
	return result, nil
}

// DeleteDraft removes a draft. Posted deliveries have no delete path.
func (s *Service) DeleteDraft(ctx context.Context, actor shared.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		if d.Status != StatusDraft {
			return shared.Wrap(ErrAlreadyPosted, shared.CodeDeliveryAlreadyPosted, "delivery %s is posted and cannot be deleted", d.DeliveryNo)
		}
		if d.CreatedBy != actor.ID && actor.Role != shared.RoleAdmin {
			return shared.Wrap(ErrNotCreator, shared.CodeAccessDenied, "draft %s belongs to another user", d.DeliveryNo)
		}
		return tx.DeleteDraft(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "delivery.draft_delete", id, nil)
	return nil
}

// Get loads one delivery.
func (s *Service) Get(ctx context.Context, id int64) (Delivery, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Delivery{}, notFound(err, id)
	}
	return d, nil
}

// ListByLocation returns deliveries at a location.
func (s *Service) ListByLocation(ctx context.Context, locationID int64, limit int) ([]Delivery, error) {
	return s.repo.ListByLocation(ctx, locationID, limit)
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

func (s *Service) publish(ctx context.Context, result PostResult, overEvents []OverDeliveryEvent) {
	if s.notifier == nil {
		return
	}
	d := result.Delivery
	postedAt := time.Now()
	if d.PostedAt != nil {
		postedAt = *d.PostedAt
	}
	if err := s.notifier.DeliveryPosted(ctx, PostedEvent{
		DeliveryID:   d.ID,
		DeliveryNo:   d.DeliveryNo,
		LocationID:   d.LocationID,
		SupplierID:   d.SupplierID,
		TotalAmount:  d.TotalAmount,
		HasVariance:  d.HasVariance,
		NCRNos:       result.NCRNos,
		POAutoClosed: result.POAutoClosed,
		POID:         d.POID,
		PostedAt:     postedAt,
	}); err != nil && s.logger != nil {
		s.logger.Warn("notify delivery posted failed", "delivery_no", d.DeliveryNo, "error", err)
	}
	for _, evt := range overEvents {
		evt.DeliveryID = d.ID
		evt.DeliveryNo = d.DeliveryNo
		if err := s.notifier.OverDelivery(ctx, evt); err != nil && s.logger != nil {
			s.logger.Warn("notify over-delivery failed", "delivery_no", d.DeliveryNo, "error", err)
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "delivery",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

// matchPOLine resolves the PO line a delivery line consumes, preferring
// the explicit linkage. The item-id fallback takes the first same-item
// line with quantity still remaining, so a PO that repeats an item keeps
// accepting receipts after an earlier line is exhausted.
func matchPOLine(po procurement.PurchaseOrder, li LineInput) *procurement.POLine {
	if li.POLineID != nil {
		for i := range po.Lines {
			if po.Lines[i].ID == *li.POLineID {
				return &po.Lines[i]
			}
		}
		return nil
	}
	var exhausted *procurement.POLine
	for i := range po.Lines {
		if po.Lines[i].ItemID != li.ItemID {
			continue
		}
		if po.Lines[i].RemainingQty().GreaterThan(decimal.Zero) {
			return &po.Lines[i]
		}
		if exhausted == nil {
			exhausted = &po.Lines[i]
		}
	}
	return exhausted
}

func fullyDeliveredAfter(po procurement.PurchaseOrder, consumed map[int64]decimal.Decimal) bool {
	if len(po.Lines) == 0 {
		return false
	}
	for _, pl := range po.Lines {
		if pl.DeliveredQty.Add(consumed[pl.ID]).LessThan(pl.Qty) {
			return false
		}
	}
	return true
}

func hasUnapprovedOverDelivery(lines []Line) bool {
	for _, l := range lines {
		if l.OverDelivery && !l.OverDeliveryApproved {
			return true
		}
	}
	return false
}

func notFound(err error, id int64) error {
	if err == ErrDeliveryNotFound {
		return shared.Wrap(err, shared.CodeNotFound, "delivery %d not found", id)
	}
	return err
}

func poNotFound(err error, id int64) error {
	if err == procurement.ErrPONotFound {
		return shared.Wrap(err, shared.CodeNotFound, "purchase order %d not found", id)
	}
	return err
}
