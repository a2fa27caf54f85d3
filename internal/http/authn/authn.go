// Package authn authenticates API callers by the access token they were issued at login.
package authn

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/labstack/echo/v5"
)

const ContextKeyCredential = "auth_credential"

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(c *echo.Context) string {
	header := strings.TrimSpace(c.Request().Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func CredentialFromContext(c *echo.Context) (store.Credential, bool) {
	cred, ok := c.Get(ContextKeyCredential).(store.Credential)
	return cred, ok
}

// LoadCredential looks up the credential owning the request's bearer token. It reports false when
// the request carries no token or the token is unknown.
func LoadCredential(c *echo.Context, creds store.CredentialStore) (store.Credential, bool, error) {
	token := BearerToken(c)
	if token == "" {
		return store.Credential{}, false, nil
	}
	cred, err := creds.FindCredentialByAccessToken(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Credential{}, false, nil
		}
		return store.Credential{}, false, err
	}
	return cred, true, nil
}

// RequireCredential rejects requests without a known bearer token.
func RequireCredential(creds store.CredentialStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			cred, ok, err := LoadCredential(c, creds)
			if err != nil {
				return err
			}
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			c.Set(ContextKeyCredential, cred)
			return next(c)
		}
	}
}
