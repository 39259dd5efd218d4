package view

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nast-payroll/portal/internal/browser"
	"github.com/nast-payroll/portal/internal/session"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderStatusWritesPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.RenderStatus(rr, http.StatusBadRequest, "pages/landing.html", TemplateData{
		Title:     "Sign in",
		CSRFToken: "tok",
		Flash:     &browser.FlashMessage{Kind: "success", Message: "Welcome"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "<form")
	assert.Contains(t, rr.Body.String(), `value="tok"`)
	assert.Contains(t, rr.Body.String(), "Welcome")
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/missing.html", TemplateData{User: &session.Session{Username: "sita"}})
	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Accountant", RoleLabel("ROLE_ACCOUNTANT"))
	assert.Equal(t, "Admin", RoleLabel(" admin "))
	assert.Equal(t, "Employee", RoleLabel("Employee"))
}

func TestRoleLabelConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got := RoleLabel("ROLE_ACCOUNTANT"); got != "Accountant" {
					t.Errorf("RoleLabel = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", FormatCell(nil))
	assert.Equal(t, "42", FormatCell(float64(42)))
	assert.Equal(t, "1520.50", FormatCell(1520.5))
	assert.Equal(t, "Yes", FormatCell(true))
	assert.Equal(t, "Finance", FormatCell(map[string]any{"name": "Finance"}))
	assert.Equal(t, "ROLE_ADMIN", FormatCell(map[string]any{"roleId": float64(1), "roleName": "ROLE_ADMIN"}))
}
