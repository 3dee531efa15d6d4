package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/audit"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/delivery"
	"github.com/meridian-erp/meridian-erp/internal/issue"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/ncr"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	periodshttp "github.com/meridian-erp/meridian-erp/internal/periods/http"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/recon"
	"github.com/meridian-erp/meridian-erp/internal/transfer"
	"github.com/meridian-erp/meridian-erp/internal/users"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthHandler        *auth.Handler
	AuthMiddleware     func(http.Handler) http.Handler
	UsersHandler       *users.Handler
	AuditHandler       *audit.Handler
	MasterDataHandler  *masterdata.Handler
	ProcurementHandler *procurement.Handler
	DeliveryHandler    *delivery.Handler
	IssueHandler       *issue.Handler
	TransferHandler    *transfer.Handler
	NCRHandler         *ncr.Handler
	PeriodsHandler     *periodshttp.Handler
	ReconHandler       *recon.Handler
	JobsHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router. Login, health and metrics stay
// outside the authenticated group; everything else requires an actor.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
		Auth:    params.AuthMiddleware,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireActor)

		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.MasterDataHandler != nil {
			params.MasterDataHandler.MountRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.DeliveryHandler != nil {
			params.DeliveryHandler.MountRoutes(r)
		}
		if params.IssueHandler != nil {
			params.IssueHandler.MountRoutes(r)
		}
		if params.TransferHandler != nil {
			params.TransferHandler.MountRoutes(r)
		}
		if params.NCRHandler != nil {
			params.NCRHandler.MountRoutes(r)
		}
		if params.PeriodsHandler != nil {
			params.PeriodsHandler.MountRoutes(r)
		}
		if params.ReconHandler != nil {
			params.ReconHandler.MountRoutes(r)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
