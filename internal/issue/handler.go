package issue

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes issue posting over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the issue HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/issues", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.post)
		r.Get("/{id}", h.get)
	})
}

type lineRequest struct {
	ItemID int64           `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty" validate:"required"`
}

type postRequest struct {
	LocationID   int64         `json:"location_id" validate:"required"`
	CostCentreID int64         `json:"cost_centre_id" validate:"required"`
	IssueDate    string        `json:"issue_date" validate:"required"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineResponse struct {
	ID         int64           `json:"id"`
	ItemID     int64           `json:"item_id"`
	Qty        decimal.Decimal `json:"qty"`
	WACAtIssue decimal.Decimal `json:"wac_at_issue"`
	LineValue  decimal.Decimal `json:"line_value"`
}

type issueResponse struct {
	ID           int64           `json:"id"`
	IssueNo      string          `json:"issue_no"`
	LocationID   int64           `json:"location_id"`
	CostCentreID int64           `json:"cost_centre_id"`
	IssueDate    string          `json:"issue_date"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Lines        []lineResponse  `json:"lines,omitempty"`
}

func toIssueResponse(iss Issue) issueResponse {
	out := issueResponse{
		ID:           iss.ID,
		IssueNo:      iss.IssueNo,
		LocationID:   iss.LocationID,
		CostCentreID: iss.CostCentreID,
		IssueDate:    iss.IssueDate.Format("2006-01-02"),
		TotalValue:   iss.TotalValue,
	}
	for _, l := range iss.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:         l.ID,
			ItemID:     l.ItemID,
			Qty:        l.Qty,
			WACAtIssue: l.WACAtIssue,
			LineValue:  l.LineValue,
		})
	}
	return out
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid request: %s", err.Error()))
		return
	}
	date, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "issue_date must be YYYY-MM-DD"))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	in := Input{
		LocationID:   req.LocationID,
		CostCentreID: req.CostCentreID,
		IssueDate:    date,
		ActorID:      actor.ID,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{ItemID: l.ItemID, Qty: l.Qty})
	}
	iss, err := h.service.Post(r.Context(), actor, in)
	if err != nil {
		h.logger.Warn("post issue", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toIssueResponse(iss))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid id"))
		return
	}
	iss, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIssueResponse(iss))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(r.URL.Query().Get("location"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "location query parameter required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	issues, err := h.service.ListByLocation(r.Context(), locationID, limit)
	if err != nil {
		h.logger.Error("list issues", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]issueResponse, 0, len(issues))
	for _, iss := range issues {
		out = append(out, toIssueResponse(iss))
	}
	httpx.JSON(w, http.StatusOK, out)
}
