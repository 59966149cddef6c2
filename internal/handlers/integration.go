package handlers

import (
	"bytes"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/auth"
	"github.com/Ramsey-B/fern/pkg/models"
)

// IntegrationHandler serves the per-provider authorization and listing endpoints
type IntegrationHandler struct {
	manager       *auth.Manager
	logger        ectologger.Logger
	authenticated bool
}

// NewIntegrationHandler creates a new integration handler. With authenticated
// set, caller identity comes from verified token claims before form values.
func NewIntegrationHandler(manager *auth.Manager, logger ectologger.Logger, authenticated bool) *IntegrationHandler {
	return &IntegrationHandler{
		manager:       manager,
		logger:        logger,
		authenticated: authenticated,
	}
}

// CallbackPath is the route template of the provider redirect target.
const CallbackPath = "/api/v1/integrations/:provider/oauth2callback"

// RegisterRoutes registers the integration routes
func (h *IntegrationHandler) RegisterRoutes(g *echo.Group) {
	integrations := g.Group("/integrations/:provider")
	integrations.POST("/authorize", h.Authorize)
	integrations.GET("/oauth2callback", h.Callback)
	integrations.POST("/credentials", h.Credentials)
	integrations.POST("/items", h.Items)
}

// Authorize handles POST /integrations/:provider/authorize
func (h *IntegrationHandler) Authorize(c echo.Context) error {
	ctx := c.Request().Context()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}
	id := GetIdentity(c, h.authenticated)

	authURL, err := h.manager.Authorize(ctx, provider, id.OrgID, id.UserID)
	if err != nil {
		return ToHTTPError(err)
	}

	return SuccessResponse(c, authURL)
}

// Callback handles GET /integrations/:provider/oauth2callback. It always
// answers with a page for the consent popup.
func (h *IntegrationHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	provider, err := ParseProvider(c)
	if err != nil {
		return h.renderCallback(c, http.StatusNotFound, "callback_error.html", callbackPage{
			Provider: c.Param("provider"),
			Message:  "Unknown integration.",
		})
	}

	if _, err := h.manager.HandleCallback(ctx, provider, c.QueryParams()); err != nil {
		return h.renderCallback(c, StatusFor(err), "callback_error.html", callbackPage{
			Provider: providerTitle(provider),
			Message:  callbackMessage(err),
		})
	}

	return h.renderCallback(c, http.StatusOK, "callback_success.html", callbackPage{Provider: providerTitle(provider)})
}

func (h *IntegrationHandler) renderCallback(c echo.Context, status int, name string, page callbackPage) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, page); err != nil {
		h.logger.WithContext(c.Request().Context()).WithError(err).Errorf("Failed to render %s", name)
		return err
	}
	return c.HTMLBlob(status, buf.Bytes())
}

// Credentials handles POST /integrations/:provider/credentials
func (h *IntegrationHandler) Credentials(c echo.Context) error {
	ctx := c.Request().Context()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}
	id := GetIdentity(c, h.authenticated)

	credential, err := h.manager.GetCredentials(ctx, provider, id.OrgID, id.UserID)
	if err != nil {
		return ToHTTPError(err)
	}

	return SuccessResponse(c, credential)
}

// Items handles POST /integrations/:provider/items
func (h *IntegrationHandler) Items(c echo.Context) error {
	ctx := c.Request().Context()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}
	id := GetIdentity(c, h.authenticated)

	raw := c.FormValue("credentials")
	if raw == "" {
		return BadRequest("credentials is required")
	}
	credential, err := models.ParseCredential(raw)
	if err != nil {
		return BadRequest("credentials must be a JSON object")
	}

	items, err := h.manager.ListItems(ctx, provider, id.OrgID, id.UserID, credential)
	if err != nil {
		return ToHTTPError(err)
	}

	return SuccessResponse(c, items)
}

// Welcome handles GET / and lists the providers that can be connected
func (h *IntegrationHandler) Welcome(c echo.Context) error {
	return SuccessResponse(c, map[string]any{
		"message":   "Fern integration gateway. Use /api/v1/integrations/{provider}/... for endpoints.",
		"providers": h.manager.Providers(),
	})
}

func providerTitle(p models.Provider) string {
	switch p {
	case models.ProviderHubSpot:
		return "HubSpot"
	case models.ProviderAirtable:
		return "Airtable"
	case models.ProviderNotion:
		return "Notion"
	default:
		return p.String()
	}
}

// callbackMessage is the text shown in the popup. Internal failures stay generic.
func callbackMessage(err error) string {
	if StatusFor(err) >= http.StatusInternalServerError {
		return "Something went wrong while saving the connection. Please try again."
	}
	return err.Error()
}
