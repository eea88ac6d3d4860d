package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bissquit/incident-console/internal/config"
	"github.com/bissquit/incident-console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()

	upstream := testutil.NewIncidentServer(t)
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Log.Format = "text"
	cfg.Upstream.BaseURL = upstream.BaseURL()
	if mutate != nil {
		mutate(cfg)
	}

	app, err := New(cfg)
	require.NoError(t, err)
	return app
}

func TestApp_ProbeEndpoints(t *testing.T) {
	app := newTestApp(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		rec := httptest.NewRecorder()
		app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestApp_FileStoreReadiness(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.Session.Store = config.StoreFile
		cfg.Session.FilePath = filepath.Join(t.TempDir(), "session.yaml")
	})

	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_ConsoleRoutesMounted(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.Notify.Mattermost.Enabled = true
		cfg.Notify.Mattermost.WebhookURL = "http://127.0.0.1:1/hooks/x"
	})

	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotNil(t, app.Controller())
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "debug", Format: "json"})
	require.NotNil(t, logger)
	assert.True(t, logger.Handler().Enabled(t.Context(), slog.LevelDebug))
}
