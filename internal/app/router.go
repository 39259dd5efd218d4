package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nast-payroll/portal/internal/auth"
	"github.com/nast-payroll/portal/internal/browser"
	"github.com/nast-payroll/portal/internal/dashboard"
	"github.com/nast-payroll/portal/internal/nav"
	"github.com/nast-payroll/portal/internal/observability"
	"github.com/nast-payroll/portal/internal/rbac"
	"github.com/nast-payroll/portal/jobs"
	"github.com/nast-payroll/portal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	StorageManager   *browser.Manager
	CSRFManager      *browser.CSRFManager
	Sessions         rbac.SessionReader
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)

	// Unknown paths and methods land on the public entry page.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		nav.Redirect(w, r, nav.Landing)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		nav.Redirect(w, r, nav.Landing)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	registerStaticTypes(params.Logger)
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			StorageManager: params.StorageManager,
			CSRFManager:    params.CSRFManager,
		}) {
			r.Use(mw)
		}

		params.AuthHandler.MountRoutes(r)

		gate := rbac.Gate{Sessions: params.Sessions, Logger: params.Logger}
		if params.Metrics != nil {
			gate.Observer = params.Metrics
		}
		for _, area := range rbac.Areas {
			area := area
			r.Route(area.Prefix, func(r chi.Router) {
				r.Use(gate.Require(area.Requirement))
				params.DashboardHandler.MountArea(r, area)
			})
		}
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
