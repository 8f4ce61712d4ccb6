package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voyager-crm/voyager/internal/auth"
	"github.com/voyager-crm/voyager/internal/billing"
	"github.com/voyager-crm/voyager/internal/collaborators"
	"github.com/voyager-crm/voyager/internal/expeditions"
	"github.com/voyager-crm/voyager/internal/finance"
	"github.com/voyager-crm/voyager/internal/observability"
	"github.com/voyager-crm/voyager/internal/pipeline"
	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/proposals"
	"github.com/voyager-crm/voyager/internal/shared"
	"github.com/voyager-crm/voyager/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Tokens  *auth.TokenIssuer
	Health  func(r *http.Request) error

	AuthHandler         *auth.Handler
	PipelineHandler     *pipeline.Handler
	ProposalHandler     *proposals.Handler
	FinanceHandler      *finance.Handler
	CollaboratorHandler *collaborators.Handler
	ExpeditionHandler   *expeditions.Handler
	BillingHandler      *billing.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with Voyager defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Health != nil {
			if err := params.Health(r); err != nil {
				params.Logger.Warn("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/public", func(r chi.Router) {
		r.Use(PublicRateLimit(params.Config))
		r.Route("/proposal", params.ProposalHandler.MountPublicRoutes)
		r.Route("/expedition", params.ExpeditionHandler.MountPublicRoutes)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(params.Tokens.Authenticate)

		r.Route("/pipelineStage", params.PipelineHandler.MountRoutes)
		r.Route("/proposal", params.ProposalHandler.MountRoutes)
		r.Route("/proposalService", params.ProposalHandler.MountServiceRoutes)
		r.Route("/financialTransaction", params.FinanceHandler.MountTransactionRoutes)
		r.Route("/collaboratorCommission", params.FinanceHandler.MountCommissionRoutes)
		r.Route("/dashboard", params.FinanceHandler.MountDashboardRoutes)
		r.Route("/collaborator", func(r chi.Router) {
			r.Use(auth.RequireRole(shared.RoleAgencyAdmin))
			params.CollaboratorHandler.MountRoutes(r)
		})
		r.Route("/collaboratorProfile", params.CollaboratorHandler.MountSelfRoutes)
		r.Route("/expeditionGroup", params.ExpeditionHandler.MountGroupRoutes)
		r.Route("/expeditionRegistration", params.ExpeditionHandler.MountRegistrationRoutes)
		r.Route("/agencySubscription", params.BillingHandler.MountRoutes)
		r.Route("/plan", params.BillingHandler.MountPlanRoutes)
	})

	r.Route("/functions", func(r chi.Router) {
		r.Use(params.Tokens.Authenticate, auth.RequireRole(shared.RoleSuperAdmin))
		params.BillingHandler.MountFunctionRoutes(r)
		if params.JobHandler != nil {
			params.JobHandler.MountTriggerRoutes(r)
		}
	})

	return r
}
