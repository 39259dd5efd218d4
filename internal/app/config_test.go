package app

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("BACKEND_URL", "")
	require.NoError(t, os.Unsetenv("BACKEND_URL"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", cfg.BackendURL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "nast_portal", cfg.SessionCookie)
	assert.True(t, cfg.RevokeOnLogout)
	assert.Empty(t, cfg.PGDSN)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("BACKEND_URL", "https://payroll.internal/api")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DASHBOARD_FANOUT", "8")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://payroll.internal/api", cfg.BackendURL)
	assert.Equal(t, 8, cfg.DashboardFanout)
	assert.True(t, cfg.IsProduction())
}
