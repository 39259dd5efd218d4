package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nast-payroll/portal/internal/api"
	"github.com/nast-payroll/portal/internal/audit"
	"github.com/nast-payroll/portal/internal/auth"
	"github.com/nast-payroll/portal/internal/browser"
	"github.com/nast-payroll/portal/internal/dashboard"
	"github.com/nast-payroll/portal/internal/observability"
	"github.com/nast-payroll/portal/internal/session"
	"github.com/nast-payroll/portal/internal/view"
	"github.com/nast-payroll/portal/jobs"
)

// Dependencies are the external connections the portal runs on. Pool,
// Revoker and Inspector are optional.
type Dependencies struct {
	Redis      redis.UniversalClient
	Pool       *pgxpool.Pool
	Revoker    auth.Revoker
	Inspector  jobs.QueueInspector
	Metrics    *observability.Metrics
	HTTPClient *http.Client
}

// Portal is the assembled web application.
type Portal struct {
	Handler http.Handler
	Client  *api.Client
	Auth    *auth.Service
	Audit   *audit.Service
}

// NewPortal wires the session store, backend client, lifecycle service and
// pages into one handler.
func NewPortal(ctx context.Context, cfg *Config, logger *slog.Logger, deps Dependencies) (*Portal, error) {
	if deps.Redis == nil {
		return nil, fmt.Errorf("app: redis client required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	storage := browser.NewManager(deps.Redis, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrf := browser.NewCSRFManager(cfg.CSRFSecret)
	sessions := session.NewStore(storage, logger)

	templates, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("app: parse templates: %w", err)
	}
	catalog, err := dashboard.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("app: load menus: %w", err)
	}

	clientCfg := api.Config{
		BaseURL:    cfg.BackendURL,
		Timeout:    cfg.BackendTimeout,
		Tokens:     api.SessionTokens{Sessions: sessions},
		Logger:     logger,
		HTTPClient: deps.HTTPClient,
	}
	if deps.Metrics != nil {
		clientCfg.Observer = deps.Metrics
	}
	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}

	var repo audit.Repository
	if deps.Pool != nil {
		pgRepo := audit.NewPGRepository(deps.Pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("app: audit schema: %w", err)
		}
		repo = pgRepo
	}
	auditService := audit.NewService(repo, logger)

	serviceCfg := auth.ServiceConfig{
		Backend:  auth.APIBackend{Client: client},
		Sessions: sessions,
		Recorder: auditService,
		Logger:   logger,
	}
	if cfg.RevokeOnLogout && deps.Revoker != nil {
		serviceCfg.Revoker = deps.Revoker
	}
	if deps.Metrics != nil {
		serviceCfg.Observer = deps.Metrics
	}
	authService := auth.NewService(serviceCfg)
	client.OnInvalidated(authService.HandleExpiry)

	dashboardCfg := dashboard.Config{
		Logger:    logger,
		Client:    client,
		Sessions:  sessions,
		Templates: templates,
		CSRF:      csrf,
		Catalog:   catalog,
		Fanout:    cfg.DashboardFanout,
	}
	if deps.Pool != nil {
		dashboardCfg.Activity = auditService
	}

	var jobHandler *jobs.Handler
	if deps.Inspector != nil {
		jobHandler = jobs.NewHandler(deps.Inspector, logger)
	}

	handler := NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		StorageManager:   storage,
		CSRFManager:      csrf,
		Sessions:         sessions,
		AuthHandler:      auth.NewHandler(logger, authService, templates, csrf),
		DashboardHandler: dashboard.NewHandler(dashboardCfg),
		JobHandler:       jobHandler,
		Metrics:          deps.Metrics,
	})

	return &Portal{Handler: handler, Client: client, Auth: authService, Audit: auditService}, nil
}
