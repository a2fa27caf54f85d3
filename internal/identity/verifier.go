package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
)

// Verifier checks identity-token signatures and standard claims against an OpenID issuer.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the issuer's signing keys and returns a verifier for tokens issued to
// clientID.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider %s: %w", issuer, err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: strings.TrimSpace(clientID)})}, nil
}

// NewStaticVerifier verifies against a fixed key set instead of discovery.
func NewStaticVerifier(issuer, clientID string, keys oidc.KeySet) *Verifier {
	return &Verifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

// Verify checks rawIDToken and returns its claims.
func (v *Verifier) Verify(ctx context.Context, rawIDToken string) (registry.Claims, error) {
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify identity token: %w", err)
	}
	var claims registry.Claims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse identity token claims: %w", err)
	}
	return claims, nil
}
