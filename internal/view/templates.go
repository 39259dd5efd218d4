package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nast-payroll/portal/internal/browser"
	"github.com/nast-payroll/portal/internal/session"
	"github.com/nast-payroll/portal/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *browser.FlashMessage
	CurrentPath string
	User        *session.Session
	Data        any
}

// cases.Caser is stateful; each call borrows its own.
var titleCasers = sync.Pool{
	New: func() any {
		c := cases.Title(language.English)
		return &c
	},
}

// RoleLabel renders a role for display: "ROLE_ACCOUNTANT" becomes "Accountant".
func RoleLabel(role string) string {
	role = strings.TrimPrefix(session.NormalizeRole(role), "ROLE_")
	c := titleCasers.Get().(*cases.Caser)
	defer titleCasers.Put(c)
	return c.String(strings.ToLower(role))
}

// FormatCell renders a decoded JSON value as table text.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', 2, 64)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case map[string]any:
		for _, key := range []string{"name", "roleName", "fullName", "title"} {
			if s, ok := val[key].(string); ok {
				return s
			}
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"roleLabel": RoleLabel,
		"cell":      FormatCell,
		"hasPrefix": strings.HasPrefix,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template and writes it with status. Nothing
// is written when execution fails.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
