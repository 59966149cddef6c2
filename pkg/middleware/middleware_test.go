package middleware_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/middleware"
)

func getTestLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(getTestLogger())
	e.Use(middleware.Context())
	e.Use(middleware.Logger(getTestLogger()))
	return e
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) middleware.Envelope {
	t.Helper()
	var env middleware.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestContext(t *testing.T) {
	e := newEcho()
	e.GET("/integrations/:provider", func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]string{
			"org":      context.GetOrgID(ctx),
			"user":     context.GetUserID(ctx),
			"provider": context.GetProvider(ctx),
			"request":  context.GetRequestID(ctx),
			"route":    context.GetRoute(ctx),
			"method":   context.GetMethod(ctx),
			"ip":       context.GetRemoteIP(ctx),
			"referer":  context.GetReferer(ctx),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/integrations/hubspot", nil)
	req.Header.Set(middleware.HeaderOrgID, "org1")
	req.Header.Set(middleware.HeaderUserID, "user1")
	req.Header.Set("Referer", "https://app.example.com/settings")
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "org1", body["org"])
	assert.Equal(t, "user1", body["user"])
	assert.Equal(t, "hubspot", body["provider"])
	assert.NotEmpty(t, body["request"])
	assert.Equal(t, body["request"], rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "/integrations/:provider", body["route"])
	assert.Equal(t, http.MethodGet, body["method"])
	assert.Equal(t, "203.0.113.7", body["ip"])
	assert.Equal(t, "https://app.example.com/settings", body["referer"])
}

func TestLogger(t *testing.T) {
	e := newEcho()
	e.GET("/metered/:provider", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metered/notion?code=secret", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	scrape := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `fern_api_requests_total{method="GET",route="/metered/:provider",status_code="204"} 1`)
}

func TestError(t *testing.T) {
	t.Run("should wrap http errors in the envelope", func(t *testing.T) {
		e := newEcho()
		e.GET("/", func(c echo.Context) error {
			return httperror.NewHTTPError(http.StatusNotFound, "no credentials found")
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.False(t, env.Success)
		assert.Nil(t, env.Data)
		assert.Equal(t, []string{"no credentials found"}, env.Errors)
		assert.NotEmpty(t, env.RequestID)
	})

	t.Run("should unwrap wrapped http errors", func(t *testing.T) {
		e := newEcho()
		e.GET("/", func(c echo.Context) error {
			return fmt.Errorf("items: %w", httperror.NewHTTPError(http.StatusBadGateway, "hubspot listing failed"))
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, []string{"hubspot listing failed"}, decodeEnvelope(t, rec).Errors)
	})

	t.Run("should map echo errors", func(t *testing.T) {
		e := newEcho()
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Len(t, env.Errors, 1)
	})

	t.Run("should hide unknown errors", func(t *testing.T) {
		e := newEcho()
		e.GET("/", func(c echo.Context) error {
			return assert.AnError
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, []string{"Internal Server Error"}, decodeEnvelope(t, rec).Errors)
	})
}

func TestAuthentication(t *testing.T) {
	verifier := oidc.NewVerifier("https://issuer.example.com", &oidc.StaticKeySet{}, &oidc.Config{ClientID: "fern"})

	newAuthEcho := func() *echo.Echo {
		e := newEcho()
		e.Use(middleware.Authentication(getTestLogger(), verifier, func(c echo.Context) bool {
			return c.Path() == "/open"
		}))
		ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
		e.GET("/open", ok)
		e.GET("/closed", ok)
		return e
	}

	t.Run("should require a bearer token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newAuthEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/closed", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, []string{"missing bearer"}, decodeEnvelope(t, rec).Errors)
	})

	t.Run("should reject invalid tokens", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/closed", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		newAuthEcho().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should let skipped routes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newAuthEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
