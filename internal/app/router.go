package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atrium-bms/atrium/internal/accounting/accounts"
	"github.com/atrium-bms/atrium/internal/accounting/journals"
	"github.com/atrium-bms/atrium/internal/accounting/periods"
	"github.com/atrium-bms/atrium/internal/accounting/reports"
	"github.com/atrium-bms/atrium/internal/ar"
	"github.com/atrium-bms/atrium/internal/billing/schedules"
	"github.com/atrium-bms/atrium/internal/observability"
	"github.com/atrium-bms/atrium/internal/platform/httpx"
	"github.com/atrium-bms/atrium/internal/shared"
	"github.com/atrium-bms/atrium/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AccountsHandler  *accounts.Handler
	PeriodsHandler   *periods.Handler
	JournalsHandler  *journals.Handler
	ReportsHandler   *reports.Handler
	SchedulesHandler *schedules.Handler
	ARHandler        *ar.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Atrium defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CompanyScope)

		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.PeriodsHandler != nil {
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journal-entries", params.JournalsHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.SchedulesHandler != nil {
			r.Route("/schedules", params.SchedulesHandler.MountRoutes)
		}
		if params.ARHandler != nil {
			r.Route("/receivables", params.ARHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// CompanyScope resolves the tenant and acting user from request
// headers. Every /api/v1 route requires a company scope; the actor is
// optional and only feeds audit attribution.
func CompanyScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Company-ID")
		if raw == "" {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "X-Company-ID header required")
			return
		}
		companyID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "X-Company-ID must be a UUID")
			return
		}
		ctx := shared.ContextWithCompany(r.Context(), companyID)
		if actor := r.Header.Get("X-Actor-ID"); actor != "" {
			if actorID, err := uuid.Parse(actor); err == nil {
				ctx = shared.ContextWithActor(ctx, actorID)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
