package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/erpdata"
	"github.com/erpbridge/erpbridge/internal/identity"
	"github.com/erpbridge/erpbridge/internal/moduleconfig"
	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/labstack/echo/v5"
)

// StatusForError maps domain errors onto HTTP status codes.
func StatusForError(err error) int {
	var (
		unsupported  *registry.UnsupportedProviderError
		notFound     *moduleconfig.ConfigurationNotFoundError
		decode       *registry.IdentityDecodeError
		missingClaim *identity.MissingIdentityClaimError
		upstreamAuth *registry.UpstreamAuthError
		upstreamData *registry.UpstreamDataError
	)
	switch {
	case errors.As(err, &unsupported), errors.As(err, &notFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &decode), errors.As(err, &missingClaim):
		return http.StatusBadRequest
	case errors.As(err, &upstreamAuth), errors.As(err, &upstreamData):
		return http.StatusBadGateway
	case errors.Is(err, erpdata.ErrUnknownCredential):
		return http.StatusUnauthorized
	case errors.Is(err, erpdata.ErrProviderMismatch):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// RenderError writes err as a JSON error body. Internal errors are logged and replaced with a
// generic message carrying the request id.
func (h *Handlers) RenderError(c *echo.Context, err error) error {
	status := StatusForError(err)
	if status != http.StatusInternalServerError {
		c.Logger().Warn("request failed", "path", c.Request().URL.Path, "status", status, "err", err)
		return errorJSON(c, status, err.Error())
	}

	requestID, _ := c.Get(ContextKeyRequestID).(string)
	c.Logger().Error("http error",
		"request_id", requestID,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"ip", c.RealIP(),
		"err", err,
	)
	msg := "Internal server error."
	if requestID != "" {
		msg = fmt.Sprintf("%s Reference: %s.", msg, requestID)
	}
	return c.JSON(status, map[string]string{"error": msg, "code": InternalErrorCode})
}

func errorJSON(c *echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
