package periods

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
	GetPeriod(ctx context.Context, id int64) (Period, error)
	OpenPeriodFor(ctx context.Context, date time.Time) (Period, error)
	ListPeriods(ctx context.Context, limit int) ([]Period, error)
	GetLocationStatus(ctx context.Context, periodID, locationID int64) (LocationStatus, error)
	AllLocationsReady(ctx context.Context, periodID int64) (bool, error)
	RangeConflict(ctx context.Context, start, end time.Time) (bool, error)
	LockedPrice(ctx context.Context, itemID, periodID int64) (decimal.Decimal, bool, error)
	ListPricePoints(ctx context.Context, periodID int64) ([]PricePoint, error)
	ListLocationIDs(ctx context.Context, periodID int64) ([]int64, error)
}

// Auditor records period lifecycle actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Gate is the slice of the service every posting flow consults before
// mutating stock or documents.
type Gate interface {
	PostingPeriod(ctx context.Context, locationID int64, date time.Time) (Period, error)
	LockedPrice(ctx context.Context, itemID, periodID int64) (decimal.Decimal, bool, error)
}

// Service orchestrates the period lifecycle and answers gate queries.
type Service struct {
	repo   RepositoryPort
	authz  shared.Authorizer
	audit  Auditor
	logger *slog.Logger
}

// NewService wires the period service.
func NewService(repo RepositoryPort, authz shared.Authorizer, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, authz: authz, audit: audit, logger: logger}
}

// Create registers a new DRAFT period with its locations and locked prices.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreatePeriodInput) (Period, error) {
	if err := s.requireManage(ctx, actor); err != nil {
		return Period{}, err
	}
	if err := in.Validate(); err != nil {
		return Period{}, shared.Wrap(err, shared.CodeValidation, "%s", err.Error())
	}
	conflict, err := s.repo.RangeConflict(ctx, in.StartDate, in.EndDate)
	if err != nil {
		return Period{}, err
	}
	if conflict {
		return Period{}, shared.Wrap(ErrPeriodOverlap, shared.CodeConflict, "period range overlaps an existing period")
	}
	period := Period{
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    StatusDraft,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPeriod(ctx, period)
		if err != nil {
			return err
		}
		period.ID = id
		for _, locID := range in.LocationIDs {
			if err := tx.InsertPeriodLocation(ctx, PeriodLocation{PeriodID: id, LocationID: locID, Status: LocationOpen}); err != nil {
				return err
			}
		}
		for _, p := range in.Prices {
			if err := tx.InsertPricePoint(ctx, PricePoint{ItemID: p.ItemID, PeriodID: id, Price: p.Price}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, actor, "period.create", period.ID, map[string]any{"name": period.Name})
	return period, nil
}

// RollForward creates the next period from an existing one, carrying its
// locations and price points. Prices in the input override copied ones.
func (s *Service) RollForward(ctx context.Context, actor shared.Actor, fromID int64, in CreatePeriodInput) (Period, error) {
	if err := s.requireManage(ctx, actor); err != nil {
		return Period{}, err
	}
	source, err := s.repo.GetPeriod(ctx, fromID)
	if err != nil {
		return Period{}, notFound(err, fromID)
	}
	if len(in.LocationIDs) == 0 {
		locIDs, err := s.repo.ListLocationIDs(ctx, source.ID)
		if err != nil {
			return Period{}, err
		}
		in.LocationIDs = locIDs
	}
	points, err := s.repo.ListPricePoints(ctx, source.ID)
	if err != nil {
		return Period{}, err
	}
	overridden := make(map[int64]bool, len(in.Prices))
	for _, p := range in.Prices {
		overridden[p.ItemID] = true
	}
	for _, pp := range points {
		if !overridden[pp.ItemID] {
			in.Prices = append(in.Prices, PriceInput{ItemID: pp.ItemID, Price: pp.Price})
		}
	}
	return s.Create(ctx, actor, in)
}

// Open moves a DRAFT period to OPEN, locking its price list.
func (s *Service) Open(ctx context.Context, actor shared.Actor, id int64) error {
	return s.transition(ctx, actor, id, StatusOpen, nil)
}

// RequestClose moves an OPEN period to PENDING_CLOSE once every location
// has marked itself READY.
func (s *Service) RequestClose(ctx context.Context, actor shared.Actor, id int64) error {
	return s.transition(ctx, actor, id, StatusPendingClose, func(ctx context.Context) error {
		ready, err := s.repo.AllLocationsReady(ctx, id)
		if err != nil {
			return err
		}
		if !ready {
			return shared.Wrap(ErrLocationsNotReady, shared.CodeValidation, "all locations must be READY before requesting close")
		}
		return nil
	})
}

// Reopen returns a PENDING_CLOSE period to OPEN so locations can keep posting.
func (s *Service) Reopen(ctx context.Context, actor shared.Actor, id int64) error {
	return s.transition(ctx, actor, id, StatusOpen, nil)
}

// ApproveClose moves a PENDING_CLOSE period to APPROVED.
func (s *Service) ApproveClose(ctx context.Context, actor shared.Actor, id int64) error {
	return s.transition(ctx, actor, id, StatusApproved, nil)
}

// Close finalizes an APPROVED period and closes every location in it.
func (s *Service) Close(ctx context.Context, actor shared.Actor, id int64) error {
	if err := s.requireManage(ctx, actor); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		if !CanTransition(period.Status, StatusClosed) {
			return invalidTransition(period.Status, StatusClosed)
		}
		if err := tx.UpdatePeriodStatus(ctx, id, StatusClosed); err != nil {
			return err
		}
		return tx.CloseAllLocations(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "period.close", id, nil)
	return nil
}

// MarkLocationReady flags a location as done with the period. Storekeepers
// may mark locations they have access to; there is no capability gate.
func (s *Service) MarkLocationReady(ctx context.Context, actor shared.Actor, periodID, locationID int64) error {
	ok, err := s.authz.HasLocationAccess(ctx, actor, locationID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.E(shared.CodeAccessDenied, "no access to location %d", locationID)
	}
	current, err := s.repo.GetLocationStatus(ctx, periodID, locationID)
	if err != nil {
		return notFound(err, periodID)
	}
	if current != LocationOpen {
		return shared.Wrap(ErrInvalidTransition, shared.CodeConflict, "location is %s, only OPEN locations can be marked ready", current)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateLocationStatus(ctx, periodID, locationID, LocationReady)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "period.location_ready", periodID, map[string]any{"location_id": locationID})
	return nil
}

// Get loads one period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	p, err := s.repo.GetPeriod(ctx, id)
	if err != nil {
		return Period{}, notFound(err, id)
	}
	return p, nil
}

// List returns recent periods.
func (s *Service) List(ctx context.Context, limit int) ([]Period, error) {
	return s.repo.ListPeriods(ctx, limit)
}

// PricePoints returns the locked price list for a period.
func (s *Service) PricePoints(ctx context.Context, periodID int64) ([]PricePoint, error) {
	return s.repo.ListPricePoints(ctx, periodID)
}

// PostingPeriod returns the OPEN period covering date, verifying the
// location is still open for posting within it.
func (s *Service) PostingPeriod(ctx context.Context, locationID int64, date time.Time) (Period, error) {
	period, err := s.repo.OpenPeriodFor(ctx, date)
	if err != nil {
		if err == ErrNoOpenPeriod {
			return Period{}, shared.Wrap(err, shared.CodePeriodClosed, "no open period covers %s", date.Format("2006-01-02"))
		}
		return Period{}, err
	}
	status, err := s.repo.GetLocationStatus(ctx, period.ID, locationID)
	if err != nil {
		return Period{}, shared.Wrap(err, shared.CodePeriodClosed, "location %d is not part of period %s", locationID, period.Name)
	}
	if status != LocationOpen {
		return Period{}, shared.E(shared.CodePeriodClosed, "location %d is %s in period %s", locationID, status, period.Name)
	}
	return period, nil
}

// LockedPrice returns the period price list entry for an item.
func (s *Service) LockedPrice(ctx context.Context, itemID, periodID int64) (decimal.Decimal, bool, error) {
	return s.repo.LockedPrice(ctx, itemID, periodID)
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, target Status, precondition func(context.Context) error) error {
	if err := s.requireManage(ctx, actor); err != nil {
		return err
	}
	if precondition != nil {
		if err := precondition(ctx); err != nil {
			return err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		if !CanTransition(period.Status, target) {
			return invalidTransition(period.Status, target)
		}
		return tx.UpdatePeriodStatus(ctx, id, target)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "period."+string(target), id, nil)
	return nil
}

func (s *Service) requireManage(ctx context.Context, actor shared.Actor) error {
	ok, err := s.authz.Allow(ctx, actor, shared.CapManagePeriods)
	if err != nil {
		return err
	}
	if !ok {
		return shared.E(shared.CodeAccessDenied, "period management requires the %s capability", shared.CapManagePeriods)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, periodID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "period",
		EntityID: fmt.Sprintf("%d", periodID),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

func notFound(err error, id int64) error {
	if err == ErrPeriodNotFound {
		return shared.Wrap(err, shared.CodeNotFound, "period %d not found", id)
	}
	return err
}

func invalidTransition(current, target Status) error {
	return shared.Wrap(ErrInvalidTransition, shared.CodeConflict, "cannot move period from %s to %s", current, target)
}
