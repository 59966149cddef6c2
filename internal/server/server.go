// Package server assembles the echo application from configured components.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/auth"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
)

// ProviderSettings maps configuration onto adapter settings for every provider.
func ProviderSettings(cfg *config.Config) map[models.Provider]providers.Settings {
	build := func(p models.Provider, pc config.ProviderConfig) providers.Settings {
		return providers.Settings{
			ClientID:          pc.ClientID,
			ClientSecret:      pc.ClientSecret,
			RedirectURI:       cfg.RedirectURI(p.String()),
			AuthURL:           pc.AuthURL,
			TokenURL:          pc.TokenURL,
			APIURL:            pc.APIURL,
			RequestsPerSecond: pc.RequestsPerSecond,
			Timeout:           cfg.ProviderHTTPTimeout,
			FanOutLimit:       cfg.AirtableTableFetchConcurrency,
		}
	}

	return map[models.Provider]providers.Settings{
		models.ProviderHubSpot:  build(models.ProviderHubSpot, cfg.HubSpot),
		models.ProviderAirtable: build(models.ProviderAirtable, cfg.Airtable),
		models.ProviderNotion:   build(models.ProviderNotion, cfg.Notion),
	}
}

// New builds the echo instance. verifier is required when cfg.AuthEnabled is set.
func New(cfg *config.Config, manager *auth.Manager, checker *health.Checker, verifier *oidc.IDTokenVerifier, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.HeaderOrgID, middleware.HeaderUserID},
		AllowCredentials: true,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	integrations := handlers.NewIntegrationHandler(manager, logger, cfg.AuthEnabled)

	e.GET("/", integrations.Welcome)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		api.Use(middleware.Authentication(logger, verifier, skipAuthentication))
	}
	integrations.RegisterRoutes(api)

	return e
}

// skipAuthentication lets provider redirects and CORS preflights through.
func skipAuthentication(c echo.Context) bool {
	if c.Request().Method == http.MethodOptions {
		return true
	}
	return c.Path() == handlers.CallbackPath || strings.HasSuffix(c.Request().URL.Path, "/oauth2callback")
}
