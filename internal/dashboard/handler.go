// Package dashboard renders the role areas: a summary dashboard and one
// table page per menu entry, all backed by the payroll API.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nast-payroll/portal/internal/api"
	"github.com/nast-payroll/portal/internal/audit"
	"github.com/nast-payroll/portal/internal/browser"
	"github.com/nast-payroll/portal/internal/nav"
	"github.com/nast-payroll/portal/internal/rbac"
	"github.com/nast-payroll/portal/internal/session"
	"github.com/nast-payroll/portal/internal/view"
)

const (
	msgUnreachable = "The payroll backend could not be reached."
	msgNoEmployee  = "Your account is not linked to an employee record."
)

// Fetcher reads from the backend.
type Fetcher interface {
	Get(ctx context.Context, path string, opts ...api.Option) (*api.Response, error)
}

// SessionReader exposes the stored session of the current browser.
type SessionReader interface {
	Read(ctx context.Context) (*session.Session, bool)
}

// ActivitySource serves the session audit timeline.
type ActivitySource interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Config collects Handler dependencies.
type Config struct {
	Logger    *slog.Logger
	Client    Fetcher
	Sessions  SessionReader
	Templates *view.Engine
	CSRF      *browser.CSRFManager
	Catalog   Catalog
	Activity  ActivitySource
	// Fanout bounds concurrent backend calls per dashboard.
	Fanout int
}

// Handler serves the role areas.
type Handler struct {
	logger    *slog.Logger
	client    Fetcher
	sessions  SessionReader
	templates *view.Engine
	csrf      *browser.CSRFManager
	catalog   Catalog
	activity  ActivitySource
	fanout    int
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fanout := cfg.Fanout
	if fanout <= 0 {
		fanout = 4
	}
	return &Handler{
		logger:    logger,
		client:    cfg.Client,
		sessions:  cfg.Sessions,
		templates: cfg.Templates,
		csrf:      cfg.CSRF,
		catalog:   cfg.Catalog,
		activity:  cfg.Activity,
		fanout:    fanout,
	}
}

// MountArea registers the pages of area on r, which is already gated.
func (h *Handler) MountArea(r chi.Router, area rbac.Area) {
	menu, ok := h.catalog.For(area.Requirement)
	if !ok {
		h.logger.Warn("no menu for area", slog.String("area", area.Prefix))
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		nav.Redirect(w, r, area.Dashboard())
	})
	r.Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		h.dashboard(w, r, area, menu)
	})
	for _, page := range menu.Pages {
		page := page
		r.Get("/"+page.Slug, func(w http.ResponseWriter, r *http.Request) {
			h.resource(w, r, area, menu, page)
		})
	}
}

// NavItem is one sidebar link.
type NavItem struct {
	Href   string
	Label  string
	Active bool
}

// Shell is the frame shared by every area page.
type Shell struct {
	Area       string
	Breadcrumb string
	Nav        []NavItem
}

// CardView is one rendered dashboard count.
type CardView struct {
	Label string
	Value string
	Error string
}

type dashboardPageData struct {
	Shell
	Cards []CardView
}

type resourcePageData struct {
	Shell
	Label   string
	Columns []Column
	Rows    [][]string
	Error   string
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request, area rbac.Area, menu Menu) {
	ctx := r.Context()
	sess, ok := h.sessions.Read(ctx)
	if !ok {
		nav.Redirect(w, r, nav.Landing)
		return
	}

	cards := make([]CardView, len(menu.Summary))
	var g errgroup.Group
	g.SetLimit(h.fanout)
	for i, card := range menu.Summary {
		i, card := i, card
		g.Go(func() error {
			cards[i] = h.loadCard(ctx, *sess, card)
			return nil
		})
	}
	_ = g.Wait()

	data := dashboardPageData{Shell: h.shell(area, menu, "dashboard"), Cards: cards}
	h.render(w, r, sess, "pages/dashboard.html", menu.Title+" dashboard", data)
}

func (h *Handler) loadCard(ctx context.Context, sess session.Session, card Card) CardView {
	out := CardView{Label: card.Label}
	endpoint, err := ResolveEndpoint(card.Endpoint, sess)
	if err != nil {
		out.Error = msgNoEmployee
		return out
	}
	resp, err := h.client.Get(ctx, endpoint)
	if err != nil {
		out.Error = h.errorMessage(endpoint, err)
		return out
	}
	if value, ok := countItems(resp.Body); ok {
		out.Value = value
	} else {
		out.Value = "-"
	}
	return out
}

func (h *Handler) resource(w http.ResponseWriter, r *http.Request, area rbac.Area, menu Menu, page Page) {
	ctx := r.Context()
	sess, ok := h.sessions.Read(ctx)
	if !ok {
		nav.Redirect(w, r, nav.Landing)
		return
	}
	data := resourcePageData{Shell: h.shell(area, menu, page.Slug), Label: page.Label}

	var rows []map[string]any
	if page.Source == SourceAudit {
		rows, data.Error = h.activityRows(r)
	} else {
		rows, data.Error = h.backendRows(ctx, *sess, page)
	}
	data.Columns = columnsFor(page.Columns, rows)
	data.Rows = tableRows(data.Columns, rows)
	h.render(w, r, sess, "pages/resource.html", page.Label, data)
}

func (h *Handler) backendRows(ctx context.Context, sess session.Session, page Page) ([]map[string]any, string) {
	endpoint, err := ResolveEndpoint(page.Endpoint, sess)
	if err != nil {
		return nil, msgNoEmployee
	}
	resp, err := h.client.Get(ctx, endpoint)
	if err != nil {
		return nil, h.errorMessage(endpoint, err)
	}
	rows, err := decodeRows(resp.Body)
	if err != nil {
		h.logger.Warn("decode rows", slog.String("endpoint", endpoint), slog.Any("error", err))
		return nil, "The backend returned data this page cannot display."
	}
	return rows, ""
}

func (h *Handler) activityRows(r *http.Request) ([]map[string]any, string) {
	if h.activity == nil {
		return nil, "Session activity is not recorded on this deployment."
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	result, err := h.activity.Timeline(r.Context(), audit.TimelineFilters{
		Kind: audit.Kind(r.URL.Query().Get("kind")),
		Page: page,
	})
	if err != nil {
		if errors.Is(err, audit.ErrNotConfigured) {
			return nil, "Session activity is not recorded on this deployment."
		}
		h.logger.Error("session activity", slog.Any("error", err))
		return nil, "Session activity could not be loaded."
	}
	rows := make([]map[string]any, 0, len(result.Rows))
	for _, ev := range result.Rows {
		rows = append(rows, map[string]any{
			"at":     ev.CreatedAt.Format(time.RFC3339),
			"userId": float64(ev.UserID),
			"role":   ev.Role,
			"kind":   string(ev.Kind),
			"remote": ev.RemoteAddr,
			"agent":  ev.UserAgent,
		})
	}
	return rows, ""
}

// errorMessage turns a backend failure into inline page text. Credential
// rejections need none: the request is already being redirected.
func (h *Handler) errorMessage(endpoint string, err error) string {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return ""
	case errors.As(err, &statusErr):
		if statusErr.Message != "" {
			return statusErr.Message
		}
		return "The backend answered " + strconv.Itoa(statusErr.Status) + " " + http.StatusText(statusErr.Status) + "."
	default:
		h.logger.Warn("backend unreachable", slog.String("endpoint", endpoint), slog.Any("error", err))
		return msgUnreachable
	}
}

func (h *Handler) shell(area rbac.Area, menu Menu, current string) Shell {
	items := make([]NavItem, 0, len(menu.Pages)+1)
	items = append(items, NavItem{Href: area.Dashboard(), Label: "Dashboard", Active: current == "dashboard"})
	for _, page := range menu.Pages {
		items = append(items, NavItem{
			Href:   area.Prefix + "/" + page.Slug,
			Label:  page.Label,
			Active: current == page.Slug,
		})
	}
	return Shell{Area: menu.Title, Breadcrumb: Breadcrumb(menu.Title, current), Nav: items}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, sess *session.Session, name, title string, data any) {
	ctx := r.Context()
	st := browser.StorageFromContext(ctx)
	var csrfToken string
	if h.csrf != nil && st != nil {
		csrfToken, _ = h.csrf.EnsureToken(ctx, st)
	}
	var flash *browser.FlashMessage
	if st != nil {
		flash = st.PopFlash()
	}
	err := h.templates.Render(w, name, view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        sess,
		Data:        data,
	})
	if err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
	}
}
