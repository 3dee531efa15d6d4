package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the audit timeline over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	if v := q.Get("actor"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid actor filter"))
			return
		}
		filters.ActorID = id
	}
	for _, spec := range []struct {
		key string
		dst *time.Time
	}{{"from", &filters.From}, {"to", &filters.To}} {
		if v := q.Get(spec.key); v != "" {
			ts, err := time.Parse("2006-01-02", v)
			if err != nil {
				httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid %s date, want YYYY-MM-DD", spec.key))
				return
			}
			*spec.dst = ts
		}
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	result, err := h.service.Timeline(r.Context(), shared.ActorFromContext(r.Context()), filters)
	if err != nil {
		h.logger.Warn("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
