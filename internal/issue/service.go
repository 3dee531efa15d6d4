package issue

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
	CostCentre(ctx context.Context, id int64) (masterdata.CostCentre, error)
}

// Auditor records posting actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts consumption documents.
type Service struct {
	repo    RepositoryPort
	gate    periods.Gate
	catalog Catalog
	authz   shared.Authorizer
	audit   Auditor
	logger  *slog.Logger
}

// NewService wires the issue service.
func NewService(repo RepositoryPort, gate periods.Gate, catalog Catalog, authz shared.Authorizer, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, catalog: catalog, authz: authz, audit: audit, logger: logger}
}

// Post creates an issue in its final state. Every line is checked for
// sufficient stock before any position is touched; a single short line
// rejects the whole document.
func (s *Service) Post(ctx context.Context, actor shared.Actor, in Input) (Issue, error) {
	if err := in.Validate(); err != nil {
		return Issue{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
	}
	ok, err := s.authz.HasLocationAccess(ctx, actor, in.LocationID)
	if err != nil {
		return Issue{}, err
	}
	if !ok {
		return Issue{}, shared.E(shared.CodeAccessDenied, "no access to location %d", in.LocationID)
	}
	if _, err := s.catalog.ActiveLocation(ctx, in.LocationID); err != nil {
		return Issue{}, err
	}
	if _, err := s.catalog.CostCentre(ctx, in.CostCentreID); err != nil {
		return Issue{}, err
	}
	if _, err := s.gate.PostingPeriod(ctx, in.LocationID, in.IssueDate); err != nil {
		return Issue{}, err
	}
	itemNames := make(map[int64]string, len(in.Lines))
	for _, li := range in.Lines {
		item, err := s.catalog.ActiveItem(ctx, li.ItemID)
		if err != nil {
			return Issue{}, err
		}
		itemNames[li.ItemID] = item.Name
	}

	var posted Issue
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// First pass locks every position and collects shortfalls so the
		// error can name all failing items at once.
		positions := make(map[int64]ledger.Position, len(in.Lines))
		var short []string
		for _, li := range in.Lines {
			pos, err := tx.GetPositionForUpdate(ctx, in.LocationID, li.ItemID)
			if err != nil && err != ledger.ErrPositionNotFound {
				return err
			}
			if pos.OnHand.LessThan(li.Qty) {
				short = append(short, fmt.Sprintf("%s (have %s, need %s)",
					itemLabel(li.ItemID, itemNames), pos.OnHand, li.Qty))
				continue
			}
			positions[li.ItemID] = pos
		}
		if len(short) > 0 {
			return shared.E(shared.CodeInsufficientStock, "insufficient stock: %s", strings.Join(short, "; "))
		}

		iss := Issue{
			LocationID:   in.LocationID,
			CostCentreID: in.CostCentreID,
			IssueDate:    in.IssueDate,
			CreatedBy:    actor.ID,
		}
		total := decimal.Zero
		for _, li := range in.Lines {
			wac := positions[li.ItemID].WAC
			line := Line{
				ItemID:     li.ItemID,
				Qty:        li.Qty,
				WACAtIssue: wac,
				LineValue:  costing.LineValue(li.Qty, wac),
			}
			total = total.Add(line.LineValue)
			iss.Lines = append(iss.Lines, line)
		}
		iss.TotalValue = total

		seq, err := tx.NextSequence(ctx, numbering.IssueScope(in.LocationID, in.IssueDate))
		if err != nil {
			return err
		}
		iss.IssueNo = numbering.FormatIssue(in.LocationID, in.IssueDate, seq)

		for _, li := range in.Lines {
			if _, err := tx.DeductStock(ctx, in.LocationID, li.ItemID, li.Qty); err != nil {
				return err
			}
		}
		posted, err = tx.Insert(ctx, iss)
		return err
	})
	if err != nil {
		return Issue{}, err
	}
	s.recordAudit(ctx, actor, posted)
	return posted, nil
}

// Get loads one issue.
func (s *Service) Get(ctx context.Context, id int64) (Issue, error) {
	iss, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrIssueNotFound {
			return Issue{}, shared.Wrap(err, shared.CodeNotFound, "issue %d not found", id)
		}
		return Issue{}, err
	}
	return iss, nil
}

// ListByLocation returns issues at a location.
func (s *Service) ListByLocation(ctx context.Context, locationID int64, limit int) ([]Issue, error) {
	return s.repo.ListByLocation(ctx, locationID, limit)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, iss Issue) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "issue.post",
		Entity:   "issue",
		EntityID: fmt.Sprintf("%d", iss.ID),
		Meta:     map[string]any{"issue_no": iss.IssueNo, "total": iss.TotalValue.String()},
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", "action", "issue.post", "error", err)
	}
}

func itemLabel(id int64, names map[int64]string) string {
	if name := names[id]; name != "" {
		return name
	}
	return fmt.Sprintf("item %d", id)
}
