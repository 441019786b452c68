package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/solkant/solkant/internal/auth"
	"github.com/solkant/solkant/internal/billing"
	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/catalog"
	"github.com/solkant/solkant/internal/clients"
	"github.com/solkant/solkant/internal/dashboard"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/internal/platform/httpx"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/jobs"
	"github.com/solkant/solkant/report"
	"github.com/solkant/solkant/web"
)

// WebhookPath receives payment provider events. It is authenticated by
// signature, not by session.
const WebhookPath = "/webhooks/stripe"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	ClientsHandler   *clients.Handler
	CatalogHandler   *catalog.Handler
	QuotesHandler    *quotes.Handler
	SettingsHandler  *businesses.Handler
	BillingHandler   *billing.Handler
	ReportHandler    *report.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Ping             func(r *http.Request) error
}

// NewRouter constructs the chi.Router with Solkant defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		CSRFExempt:     []string{WebhookPath},
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ping != nil {
			if err := params.Ping(r); err != nil {
				params.Logger.Warn("health check failed", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Dependency unavailable", "")
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
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.BillingHandler != nil {
		r.Route(WebhookPath, params.BillingHandler.MountWebhook)
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireTenant)
		params.DashboardHandler.MountRoutes(r)
		r.Route("/clients", params.ClientsHandler.MountRoutes)
		r.Route("/services", params.CatalogHandler.MountServices)
		r.Route("/packages", params.CatalogHandler.MountPackages)
		r.Route("/quotes", params.QuotesHandler.MountRoutes)
		r.Route("/settings", params.SettingsHandler.MountRoutes)
		if params.BillingHandler != nil {
			r.Route("/billing", params.BillingHandler.MountRoutes)
		}
		r.Route("/api", func(r chi.Router) {
			r.Route("/dashboard", params.DashboardHandler.MountAPI)
			r.Route("/clients", params.ClientsHandler.MountAPI)
			r.Route("/catalog", params.CatalogHandler.MountAPI)
			r.Route("/quotes", params.QuotesHandler.MountAPI)
		})
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers cache embedded assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
