package periodshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type periodService interface {
	Create(ctx context.Context, actor shared.Actor, in periods.CreatePeriodInput) (periods.Period, error)
	RollForward(ctx context.Context, actor shared.Actor, fromID int64, in periods.CreatePeriodInput) (periods.Period, error)
	Open(ctx context.Context, actor shared.Actor, id int64) error
	RequestClose(ctx context.Context, actor shared.Actor, id int64) error
	Reopen(ctx context.Context, actor shared.Actor, id int64) error
	ApproveClose(ctx context.Context, actor shared.Actor, id int64) error
	Close(ctx context.Context, actor shared.Actor, id int64) error
	MarkLocationReady(ctx context.Context, actor shared.Actor, periodID, locationID int64) error
	Get(ctx context.Context, id int64) (periods.Period, error)
	List(ctx context.Context, limit int) ([]periods.Period, error)
	PricePoints(ctx context.Context, periodID int64) ([]periods.PricePoint, error)
}

// Handler exposes the period lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service periodService
}

// NewHandler constructs a period HTTP handler.
func NewHandler(logger *slog.Logger, service periodService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Get("/{id}/prices", h.prices)
		r.Post("/{id}/open", h.open)
		r.Post("/{id}/request-close", h.requestClose)
		r.Post("/{id}/reopen", h.reopen)
		r.Post("/{id}/approve-close", h.approveClose)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/roll-forward", h.rollForward)
		r.Post("/{id}/locations/{locationID}/ready", h.markReady)
	})
}

type createPeriodRequest struct {
	Name        string       `json:"name"`
	StartDate   string       `json:"start_date"`
	EndDate     string       `json:"end_date"`
	LocationIDs []int64      `json:"location_ids"`
	Prices      []priceEntry `json:"prices"`
}

type priceEntry struct {
	ItemID int64           `json:"item_id"`
	Price  decimal.Decimal `json:"price"`
}

type periodResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
}

func toPeriodResponse(p periods.Period) periodResponse {
	return periodResponse{
		ID:        p.ID,
		Name:      p.Name,
		StartDate: p.StartDate.Format("2006-01-02"),
		EndDate:   p.EndDate.Format("2006-01-02"),
		Status:    string(p.Status),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeCreate(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.Create(r.Context(), shared.ActorFromContext(r.Context()), in)
	if err != nil {
		h.logger.Warn("create period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

func (h *Handler) rollForward(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	in, err := h.decodeCreate(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.RollForward(r.Context(), shared.ActorFromContext(r.Context()), id, in)
	if err != nil {
		h.logger.Warn("roll forward period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) prices(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	points, err := h.service.PricePoints(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]priceEntry, 0, len(points))
	for _, pp := range points {
		out = append(out, priceEntry{ItemID: pp.ItemID, Price: pp.Price})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Open)
}

func (h *Handler) requestClose(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.RequestClose)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Reopen)
}

func (h *Handler) approveClose(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.ApproveClose)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Close)
}

func (h *Handler) markReady(w http.ResponseWriter, r *http.Request) {
	periodID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	locationID, ok := h.pathID(w, r, "locationID")
	if !ok {
		return
	}
	if err := h.service.MarkLocationReady(r.Context(), shared.ActorFromContext(r.Context()), periodID, locationID); err != nil {
		h.logger.Warn("mark location ready", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(periods.LocationReady)})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(context.Context, shared.Actor, int64) error) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := fn(r.Context(), shared.ActorFromContext(r.Context()), id); err != nil {
		h.logger.Warn("period transition", slog.Int64("period_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) decodeCreate(r *http.Request) (periods.CreatePeriodInput, error) {
	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return periods.CreatePeriodInput{}, shared.Wrap(err, shared.CodeValidation, "invalid JSON body")
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return periods.CreatePeriodInput{}, shared.E(shared.CodeValidation, "start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return periods.CreatePeriodInput{}, shared.E(shared.CodeValidation, "end_date must be YYYY-MM-DD")
	}
	in := periods.CreatePeriodInput{
		Name:        req.Name,
		StartDate:   start,
		EndDate:     end,
		LocationIDs: req.LocationIDs,
	}
	for _, p := range req.Prices {
		in.Prices = append(in.Prices, periods.PriceInput{ItemID: p.ItemID, Price: p.Price})
	}
	return in, nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid %s", name))
		return 0, false
	}
	return id, true
}
