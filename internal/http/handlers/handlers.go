// Package handlers contains the HTTP handlers of the connector API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/erpbridge/erpbridge/internal/authflow"
	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/erpdata"
	"github.com/erpbridge/erpbridge/internal/http/authn"
	"github.com/erpbridge/erpbridge/internal/moduleconfig"
	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"

	sessionKeyStatePrefix = "oauth_state:"
	maxTop                = 1000
)

// ModuleLister lists the effective modules of a provider.
type ModuleLister interface {
	ListModules(ctx context.Context, provider string, tenantID *uuid.UUID) ([]moduleconfig.Resolved, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Registry    *registry.ConnectorRegistry
	Auth        *authflow.Orchestrator
	Data        *erpdata.Service
	Modules     ModuleLister
	Credentials store.CredentialStore
	Sessions    *scs.SessionManager
	// Ping checks the backing store for /healthz. Nil skips the check.
	Ping func(ctx context.Context) error
}

type providerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

func (h *Handlers) HandleHealthz(c *echo.Context) error {
	if h.Ping != nil {
		if err := h.Ping(c.Request().Context()); err != nil {
			c.Logger().Warn("health check failed", "err", err)
			return c.String(http.StatusServiceUnavailable, "unavailable")
		}
	}
	return c.String(http.StatusOK, "ok")
}

func (h *Handlers) HandleProviders(c *echo.Context) error {
	conns := h.Registry.All()
	out := make([]providerView, 0, len(conns))
	for _, conn := range conns {
		out = append(out, providerView{ID: conn.Kind(), DisplayName: conn.DisplayName()})
	}
	return c.JSON(http.StatusOK, map[string]any{"providers": out})
}

// HandleAuthStart stores a fresh state value in the session and redirects to the provider.
func (h *Handlers) HandleAuthStart(c *echo.Context) error {
	provider := store.NormalizeKey(c.Param("provider"))
	state := uuid.NewString()
	target, err := h.Auth.Begin(provider, state)
	if err != nil {
		return h.RenderError(c, err)
	}
	h.Sessions.Put(c.Request().Context(), sessionKeyStatePrefix+provider, state)
	return c.Redirect(http.StatusFound, target)
}

// HandleAuthCallback completes a login and redirects to the frontend with the issued tokens.
func (h *Handlers) HandleAuthCallback(c *echo.Context) error {
	ctx := c.Request().Context()
	provider := store.NormalizeKey(c.Param("provider"))

	if upstreamErr := strings.TrimSpace(c.QueryParam("error")); upstreamErr != "" {
		c.Logger().Warn("provider returned an authorization error",
			"provider", provider,
			"error", upstreamErr,
			"description", c.QueryParam("error_description"),
		)
		return errorJSON(c, http.StatusBadRequest, "authorization was not granted")
	}

	expected := h.Sessions.PopString(ctx, sessionKeyStatePrefix+provider)
	if !callbackStateValid(provider, expected, c.QueryParam("state")) {
		return errorJSON(c, http.StatusBadRequest, "state mismatch")
	}

	res, err := h.Auth.Complete(ctx, provider, c.QueryParam("code"))
	if err != nil {
		return h.RenderError(c, err)
	}
	return c.Redirect(http.StatusFound, res.RedirectURL)
}

// callbackStateValid requires the state stored by HandleAuthStart. Business Central logins are
// handed over by the dashboard, which opens the consent page itself, so a callback without a
// stored state is accepted for that provider only.
func callbackStateValid(provider, expected, got string) bool {
	if expected == "" {
		return provider == configstore.KindBusinessCentral
	}
	return got == expected
}

// HandleModuleData returns the canonical records of one module.
func (h *Handlers) HandleModuleData(c *echo.Context) error {
	q, err := parseQuery(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	res, err := h.Data.Fetch(c.Request().Context(), c.Param("provider"), c.Param("module"), authn.BearerToken(c), q)
	if err != nil {
		return h.RenderError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandleModules lists the modules the caller's tenant can read.
func (h *Handlers) HandleModules(c *echo.Context) error {
	ctx := c.Request().Context()
	provider := store.NormalizeKey(c.Param("provider"))
	if _, err := h.Registry.Resolve(provider); err != nil {
		return h.RenderError(c, err)
	}

	var tenantID *uuid.UUID
	if authn.BearerToken(c) != "" {
		cred, ok, err := authn.LoadCredential(c, h.Credentials)
		if err != nil {
			return h.RenderError(c, err)
		}
		if !ok {
			return h.RenderError(c, erpdata.ErrUnknownCredential)
		}
		tenantID = &cred.TenantID
	}

	modules, err := h.Modules.ListModules(ctx, provider, tenantID)
	if err != nil {
		return h.RenderError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"provider": provider, "modules": modules})
}

// HandleRefresh refreshes a credential. It runs behind authn.RequireCredential and only refreshes
// the credential the caller authenticated with.
func (h *Handlers) HandleRefresh(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid credential id")
	}
	cred, ok := authn.CredentialFromContext(c)
	if !ok || cred.ID != id {
		return h.RenderError(c, erpdata.ErrUnknownCredential)
	}

	updated, err := h.Auth.Refresh(c.Request().Context(), id)
	if err != nil {
		return h.RenderError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":           updated.ID,
		"provider":     updated.Type,
		"access_token": updated.AccessToken,
		"expires_at":   updated.ExpiresAt,
	})
}

func parseQuery(c *echo.Context) (erpdata.Query, error) {
	var q erpdata.Query
	raw := strings.TrimSpace(c.QueryParam("top"))
	if raw == "" {
		return q, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxTop {
		return q, errors.New("top must be between 1 and " + strconv.Itoa(maxTop))
	}
	q.Top = n
	return q, nil
}
