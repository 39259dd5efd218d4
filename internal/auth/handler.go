package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/nast-payroll/portal/internal/browser"
	"github.com/nast-payroll/portal/internal/nav"
	"github.com/nast-payroll/portal/internal/platform/httpx"
	"github.com/nast-payroll/portal/internal/rbac"
	"github.com/nast-payroll/portal/internal/view"
)

const loginAttemptsPerMinute = 10

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *browser.CSRFManager
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *browser.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// MountRoutes registers the public pages and the /auth endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showLanding)
	r.Get("/forgot-password", h.showForgotPassword)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Get("/reset-password", h.showResetPassword)
	r.Post("/reset-password", h.handleResetPassword)
	r.Route("/auth", func(r chi.Router) {
		r.With(httprate.LimitByIP(loginAttemptsPerMinute, time.Minute)).Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Get("/status", h.status)
	})
}

type landingPageData struct {
	Username string
	Errors   map[string]string
	Error    string
	Expired  bool
}

type forgotPasswordForm struct {
	Email string `validate:"required,email"`
}

type forgotPasswordPageData struct {
	Email  string
	Errors map[string]string
	Error  string
	Notice string
}

type resetPasswordForm struct {
	Token    string `validate:"required"`
	Password string `validate:"required,min=8,max=256"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type resetPasswordPageData struct {
	Token  string
	Errors map[string]string
	Error  string
}

func (h *Handler) showLanding(w http.ResponseWriter, r *http.Request) {
	data := landingPageData{}
	if r.URL.Query().Get("expired") != "" {
		data.Expired = true
		data.Error = MsgSessionExpired
		if err := h.service.ClearStale(r.Context()); err != nil {
			h.logger.Warn("clear stale session", slog.Any("error", err))
		}
	}
	h.render(w, r, http.StatusOK, "pages/landing.html", "Sign in", data)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	creds := Credentials{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	data := landingPageData{Username: creds.Username, Errors: h.validate(creds)}
	if len(data.Errors) > 0 {
		h.render(w, r, http.StatusBadRequest, "pages/landing.html", "Sign in", data)
		return
	}

	result, err := h.service.Login(r.Context(), creds)
	if err != nil {
		var userErr *UserError
		if !errors.As(err, &userErr) {
			h.logger.Error("login", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		data.Error = userErr.Message
		h.render(w, r, http.StatusBadRequest, "pages/landing.html", "Sign in", data)
		return
	}
	h.rotateCSRF(r)
	nav.Finish(w, r, result.Destination)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
	}
	h.rotateCSRF(r)
	nav.Finish(w, r, nav.Landing)
}

func (h *Handler) rotateCSRF(r *http.Request) {
	st := browser.StorageFromContext(r.Context())
	if st == nil || h.csrf == nil {
		return
	}
	if _, err := h.csrf.Rotate(r.Context(), st); err != nil {
		h.logger.Warn("rotate csrf token", slog.Any("error", err))
	}
}

type statusResponse struct {
	State     State  `json:"state"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	Dashboard string `json:"dashboard,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	out := statusResponse{State: h.service.State(r.Context())}
	if sess, ok := h.service.Current(r.Context()); ok {
		out.Username = sess.Username
		out.Role = sess.Role.String()
		out.Dashboard, _ = rbac.DashboardFor(out.Role)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/forgot_password.html", "Reset access", forgotPasswordPageData{})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forgotPasswordForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	data := forgotPasswordPageData{Email: form.Email, Errors: h.validate(form)}
	if len(data.Errors) > 0 {
		h.render(w, r, http.StatusBadRequest, "pages/forgot_password.html", "Reset access", data)
		return
	}
	if err := h.service.ForgotPassword(r.Context(), form.Email); err != nil {
		data.Error = MessageFor(err)
		h.render(w, r, http.StatusBadRequest, "pages/forgot_password.html", "Reset access", data)
		return
	}
	data.Notice = MsgRecoverySent
	h.render(w, r, http.StatusOK, "pages/forgot_password.html", "Reset access", data)
}

func (h *Handler) showResetPassword(w http.ResponseWriter, r *http.Request) {
	data := resetPasswordPageData{Token: strings.TrimSpace(r.URL.Query().Get("token"))}
	if data.Token == "" {
		data.Error = "This reset link is missing its token. Request a new one."
	}
	h.render(w, r, http.StatusOK, "pages/reset_password.html", "Choose a new password", data)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetPasswordForm{
		Token:    strings.TrimSpace(r.PostFormValue("token")),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	data := resetPasswordPageData{Token: form.Token, Errors: h.validate(form)}
	if len(data.Errors) > 0 {
		h.render(w, r, http.StatusBadRequest, "pages/reset_password.html", "Choose a new password", data)
		return
	}
	if err := h.service.ResetPassword(r.Context(), form.Token, form.Password); err != nil {
		data.Error = MessageFor(err)
		h.render(w, r, http.StatusBadRequest, "pages/reset_password.html", "Choose a new password", data)
		return
	}
	if st := browser.StorageFromContext(r.Context()); st != nil {
		st.AddFlash(browser.FlashMessage{Kind: "success", Message: MsgPasswordReset})
	}
	nav.Finish(w, r, nav.Landing)
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	err := h.validator.Struct(form)
	if err == nil {
		return errs
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["general"] = err.Error()
		return errs
	}
	for _, fieldErr := range fieldErrs {
		errs[fieldErr.Field()] = fieldMessage(fieldErr)
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Must be at least " + fe.Param() + " characters."
	case "max":
		return "Must be at most " + fe.Param() + " characters."
	case "eqfield":
		return "Passwords do not match."
	default:
		return "Invalid value."
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	ctx := r.Context()
	st := browser.StorageFromContext(ctx)
	csrfToken, err := h.csrf.EnsureToken(ctx, st)
	if err != nil {
		h.logger.Warn("csrf token", slog.Any("error", err))
	}
	var flash *browser.FlashMessage
	if st != nil {
		flash = st.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
	}
}

// ShowLandingForTest exposes the landing handler for tests.
func (h *Handler) ShowLandingForTest(w http.ResponseWriter, r *http.Request) {
	h.showLanding(w, r)
}

// HandleLoginForTest exposes the login handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
