package handlers

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/auth"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/vault"
)

// Identity is the (org, user) pair a request acts for.
type Identity struct {
	OrgID  string
	UserID string
}

// GetIdentity reads user_id and org_id from the form, falling back to the
// request context. With authenticated set, the context (token claims) wins.
func GetIdentity(c echo.Context, authenticated bool) Identity {
	ctx := c.Request().Context()
	fromCtx := Identity{OrgID: appctx.GetOrgID(ctx), UserID: appctx.GetUserID(ctx)}
	fromForm := Identity{OrgID: c.FormValue("org_id"), UserID: c.FormValue("user_id")}

	first, second := fromForm, fromCtx
	if authenticated {
		first, second = fromCtx, fromForm
	}

	id := first
	if id.OrgID == "" {
		id.OrgID = second.OrgID
	}
	if id.UserID == "" {
		id.UserID = second.UserID
	}
	return id
}

// ParseProvider reads the :provider path parameter
func ParseProvider(c echo.Context) (models.Provider, error) {
	provider, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		return "", httperror.NewHTTPErrorf(http.StatusNotFound, "unknown provider %q", c.Param("provider"))
	}
	return provider, nil
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnknownProvider), errors.Is(err, auth.ErrCredentialNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrValidation),
		errors.Is(err, auth.ErrStateMismatch),
		errors.Is(err, auth.ErrAuthorizationDenied),
		errors.Is(err, auth.ErrMissingAccessToken),
		errors.Is(err, providers.ErrTokenExchange):
		return http.StatusBadRequest
	case errors.Is(err, providers.ErrUpstreamFetch):
		return http.StatusBadGateway
	case httperror.IsHTTPError(err):
		return httperror.GetStatusCode(err)
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts a domain error for the echo error handler. Storage and
// unexpected failures get a generic message.
func ToHTTPError(err error) error {
	if err == nil || httperror.IsHTTPError(err) {
		return err
	}
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		if errors.Is(err, vault.ErrStorage) {
			return httperror.NewHTTPError(status, "credential store is unavailable")
		}
		return httperror.NewHTTPError(status, http.StatusText(status))
	}
	return httperror.NewHTTPError(status, err.Error())
}

// SuccessResponse returns a 200 OK with data in the envelope
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, middleware.Envelope{
		Success:   true,
		Data:      data,
		Errors:    []string{},
		RequestID: appctx.GetRequestID(c.Request().Context()),
	})
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}
