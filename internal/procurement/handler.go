package procurement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes PRF and PO operations over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the procurement HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.Post("/", h.createPO)
		r.Get("/{id}", h.getPO)
		r.Post("/{id}/open", h.openPO)
		r.Post("/{id}/cancel", h.cancelPO)
	})
	r.Route("/purchase-requests", func(r chi.Router) {
		r.Post("/", h.createPRF)
		r.Post("/{id}/approve", h.approvePRF)
	})
}

type createPORequest struct {
	SupplierID int64           `json:"supplier_id"`
	PRFID      *int64          `json:"prf_id"`
	OrderDate  string          `json:"order_date"`
	Lines      []poLineRequest `json:"lines"`
}

type poLineRequest struct {
	ItemID    int64           `json:"item_id"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type poLineResponse struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	Qty          decimal.Decimal `json:"qty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	DeliveredQty decimal.Decimal `json:"delivered_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
}

type poResponse struct {
	ID         int64            `json:"id"`
	PONo       string           `json:"po_no"`
	SupplierID int64            `json:"supplier_id"`
	PRFID      *int64           `json:"prf_id,omitempty"`
	Status     string           `json:"status"`
	OrderDate  string           `json:"order_date"`
	Lines      []poLineResponse `json:"lines,omitempty"`
}

func toPOResponse(po PurchaseOrder) poResponse {
	out := poResponse{
		ID:         po.ID,
		PONo:       po.PONo,
		SupplierID: po.SupplierID,
		PRFID:      po.PRFID,
		Status:     string(po.Status),
		OrderDate:  po.OrderDate.Format("2006-01-02"),
	}
	for _, l := range po.Lines {
		out.Lines = append(out.Lines, poLineResponse{
			ID:           l.ID,
			ItemID:       l.ItemID,
			Qty:          l.Qty,
			UnitPrice:    l.UnitPrice,
			DeliveredQty: l.DeliveredQty,
			RemainingQty: l.RemainingQty(),
		})
	}
	return out
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pos, err := h.service.ListPOs(r.Context(), POStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]poResponse, 0, len(pos))
	for _, po := range pos {
		out = append(out, toPOResponse(po))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	orderDate, err := time.Parse("2006-01-02", req.OrderDate)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "order_date must be YYYY-MM-DD"))
		return
	}
	in := CreatePOInput{
		SupplierID: req.SupplierID,
		PRFID:      req.PRFID,
		OrderDate:  orderDate,
		ActorID:    shared.ActorFromContext(r.Context()).ID,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, POLineInput{ItemID: l.ItemID, Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	po, err := h.service.CreatePO(r.Context(), in)
	if err != nil {
		h.logger.Warn("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPOResponse(po))
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPOResponse(po))
}

func (h *Handler) openPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.OpenPO(r.Context(), id); err != nil {
		h.logger.Warn("open purchase order", slog.Int64("po_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPOResponse(po))
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelPO(r.Context(), id); err != nil {
		h.logger.Warn("cancel purchase order", slog.Int64("po_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(POStatusCancelled)})
}

type createPRFRequest struct {
	LocationID int64  `json:"location_id"`
	Notes      string `json:"notes"`
}

func (h *Handler) createPRF(w http.ResponseWriter, r *http.Request) {
	var req createPRFRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	prf, err := h.service.CreatePRF(r.Context(), CreatePRFInput{
		LocationID: req.LocationID,
		Notes:      req.Notes,
		ActorID:    shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.logger.Warn("create purchase request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":     prf.ID,
		"prf_no": prf.PRFNo,
		"status": string(prf.Status),
	})
}

func (h *Handler) approvePRF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.ApprovePRF(r.Context(), id); err != nil {
		h.logger.Warn("approve purchase request", slog.Int64("prf_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(PRFStatusApproved)})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid id"))
		return 0, false
	}
	return id, true
}
