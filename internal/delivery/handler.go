package delivery

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

// Handler exposes delivery operations over JSON. Request shape is checked
// here; business invariants are re-verified in the service.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the delivery HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/deliveries", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.save)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.deleteDraft)
	})
}

type lineRequest struct {
	ItemID              int64           `json:"item_id" validate:"required"`
	POLineID            *int64          `json:"po_line_id"`
	Qty                 decimal.Decimal `json:"qty" validate:"required"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	ApproveOverDelivery bool            `json:"approve_over_delivery"`
}

type saveRequest struct {
	ID           int64         `json:"id"`
	LocationID   int64         `json:"location_id" validate:"required"`
	SupplierID   int64         `json:"supplier_id" validate:"required"`
	POID         *int64        `json:"po_id"`
	InvoiceNo    string        `json:"invoice_no"`
	DeliveryDate string        `json:"delivery_date" validate:"required"`
	Status       string        `json:"status" validate:"required,oneof=DRAFT POSTED"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineResponse struct {
	ID                   int64            `json:"id"`
	ItemID               int64            `json:"item_id"`
	POLineID             *int64           `json:"po_line_id,omitempty"`
	Qty                  decimal.Decimal  `json:"qty"`
	UnitPrice            decimal.Decimal  `json:"unit_price"`
	PeriodPrice          *decimal.Decimal `json:"period_price,omitempty"`
	PriceVariance        decimal.Decimal  `json:"price_variance"`
	LineValue            decimal.Decimal  `json:"line_value"`
	OverDelivery         bool             `json:"over_delivery"`
	OverDeliveryApproved bool             `json:"over_delivery_approved"`
}

type deliveryResponse struct {
	ID           int64           `json:"id"`
	DeliveryNo   string          `json:"delivery_no"`
	Status       string          `json:"status"`
	LocationID   int64           `json:"location_id"`
	SupplierID   int64           `json:"supplier_id"`
	POID         *int64          `json:"po_id,omitempty"`
	InvoiceNo    string          `json:"invoice_no,omitempty"`
	DeliveryDate string          `json:"delivery_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	HasVariance  bool            `json:"has_variance"`
	Lines        []lineResponse  `json:"lines,omitempty"`
	NCRs         []string        `json:"ncrs,omitempty"`
	POAutoClosed bool            `json:"po_auto_closed"`
}

func toDeliveryResponse(d Delivery, ncrs []string, poClosed bool) deliveryResponse {
	out := deliveryResponse{
		ID:           d.ID,
		DeliveryNo:   d.DeliveryNo,
		Status:       string(d.Status),
		LocationID:   d.LocationID,
		SupplierID:   d.SupplierID,
		POID:         d.POID,
		InvoiceNo:    d.InvoiceNo,
		DeliveryDate: d.DeliveryDate.Format("2006-01-02"),
		TotalAmount:  d.TotalAmount,
		HasVariance:  d.HasVariance,
		NCRs:         ncrs,
		POAutoClosed: poClosed,
	}
	for _, l := range d.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:                   l.ID,
			ItemID:               l.ItemID,
			POLineID:             l.POLineID,
			Qty:                  l.Qty,
			UnitPrice:            l.UnitPrice,
			PeriodPrice:          l.PeriodPrice,
			PriceVariance:        l.PriceVariance,
			LineValue:            l.LineValue,
			OverDelivery:         l.OverDelivery,
			OverDeliveryApproved: l.OverDeliveryApproved,
		})
	}
	return out
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid request: %s", err.Error()))
		return
	}
	date, err := time.Parse("2006-01-02", req.DeliveryDate)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "delivery_date must be YYYY-MM-DD"))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	in := Input{
		ID:           req.ID,
		LocationID:   req.LocationID,
		SupplierID:   req.SupplierID,
		POID:         req.POID,
		InvoiceNo:    req.InvoiceNo,
		DeliveryDate: date,
		ActorID:      actor.ID,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			ItemID:              l.ItemID,
			POLineID:            l.POLineID,
			Qty:                 l.Qty,
			UnitPrice:           l.UnitPrice,
			ApproveOverDelivery: l.ApproveOverDelivery,
		})
	}

	if req.Status == string(StatusPosted) {
		result, err := h.service.Post(r.Context(), actor, in)
		if err != nil {
			h.logger.Warn("post delivery", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toDeliveryResponse(result.Delivery, result.NCRNos, result.POAutoClosed))
		return
	}
	d, err := h.service.SaveDraft(r.Context(), actor, in)
	if err != nil {
		h.logger.Warn("save delivery draft", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDeliveryResponse(d, nil, false))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDeliveryResponse(d, nil, false))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(r.URL.Query().Get("location"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "location query parameter required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	deliveries, err := h.service.ListByLocation(r.Context(), locationID, limit)
	if err != nil {
		h.logger.Error("list deliveries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]deliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, toDeliveryResponse(d, nil, false))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(r.Context(), shared.ActorFromContext(r.Context()), id); err != nil {
		h.logger.Warn("delete delivery draft", slog.Int64("delivery_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid id"))
		return 0, false
	}
	return id, true
}
