package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/alicebob/miniredis/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/auth"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/vault"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HUBSPOT_CLIENT_ID", "hs-client")
	t.Setenv("AIRTABLE_REQUESTS_PER_SECOND", "2.5")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestEcho(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	registry := providers.NewDefaultRegistry(server.ProviderSettings(cfg), httpclient.NewClient(httpclient.DefaultConfig(), logger), logger)
	manager := auth.NewManager(registry, vault.New(redis.Wrap(rdb, logger), cfg.VaultTTL, logger), nil, logger)

	checker := health.NewChecker("test")
	checker.SetReady(true)

	verifier := oidc.NewVerifier("https://issuer.example.com", &oidc.StaticKeySet{}, &oidc.Config{ClientID: "fern"})
	return server.New(cfg, manager, checker, verifier, logger)
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("user_id=u&org_id=o"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestProviderSettings(t *testing.T) {
	cfg := newTestConfig(t)
	settings := server.ProviderSettings(cfg)

	require.Len(t, settings, 3)
	assert.Equal(t, "hs-client", settings[models.ProviderHubSpot].ClientID)
	assert.Equal(t, "http://localhost:8000/api/v1/integrations/notion/oauth2callback", settings[models.ProviderNotion].RedirectURI)
	assert.Equal(t, 2.5, settings[models.ProviderAirtable].RequestsPerSecond)
	assert.Equal(t, 20*time.Second, settings[models.ProviderAirtable].Timeout)
	assert.Equal(t, 5, settings[models.ProviderAirtable].FanOutLimit)
}

func TestNew(t *testing.T) {
	t.Run("should serve the ambient routes", func(t *testing.T) {
		e := newTestEcho(t, newTestConfig(t))

		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/").Code)
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/v1/health/live").Code)
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/v1/health/ready").Code)

		rec := serve(e, http.MethodGet, "/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "fern_api_requests_total")
	})

	t.Run("should serve integrations without auth", func(t *testing.T) {
		e := newTestEcho(t, newTestConfig(t))
		rec := serve(e, http.MethodPost, "/api/v1/integrations/hubspot/authorize")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "client_id=hs-client")
	})

	t.Run("should require a token when auth is enabled", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.AuthEnabled = true
		e := newTestEcho(t, cfg)

		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/api/v1/integrations/hubspot/authorize").Code)
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/api/v1/integrations/hubspot/credentials").Code)

		// the browser redirect carries no token; it fails on its missing code instead
		rec := serve(e, http.MethodGet, "/api/v1/integrations/hubspot/oauth2callback")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	})
}
