// Package authflow runs the login flow shared by every provider: code exchange, identity
// extraction, tenant resolution, credential persistence and the final redirect to the frontend.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/identity"
	"github.com/erpbridge/erpbridge/internal/metrics"
	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/erpbridge/erpbridge/internal/tenancy"
	"github.com/google/uuid"
)

// State is a step of the login flow. A flow moves through the states in declaration order.
type State string

const (
	StateStarted             State = "started"
	StateCodeReceived        State = "code_received"
	StateTokensExchanged     State = "tokens_exchanged"
	StateIdentityDecoded     State = "identity_decoded"
	StateTenantResolved      State = "tenant_resolved"
	StateCredentialPersisted State = "credential_persisted"
	StateRedirected          State = "redirected"
)

// StepError reports the last state a failed flow reached.
type StepError struct {
	Provider string
	State    State
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s login failed after %s: %v", e.Provider, e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// TokenVerifier checks an identity token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (registry.Claims, error)
}

// Store is the persistence the flow writes to.
type Store interface {
	store.ProviderStore
	store.TenantStore
	store.CredentialStore
}

type Options struct {
	Registry    *registry.ConnectorRegistry
	Store       Store
	FrontendURL string
	// Verifiers maps provider ids to the verifier applied to their identity tokens. Providers
	// without one have their tokens decoded without verification.
	Verifiers map[string]TokenVerifier
	Logger    *slog.Logger
	Now       func() time.Time
}

type Orchestrator struct {
	registry  *registry.ConnectorRegistry
	store     Store
	tenants   tenancy.Resolver
	frontend  *url.URL
	verifiers map[string]TokenVerifier
	log       *slog.Logger
	now       func() time.Time
}

// Result describes a completed login.
type Result struct {
	Provider      store.Provider
	Tenant        store.Tenant
	TenantCreated bool
	Credential    store.Credential
	Tokens        registry.Tokens
	Email         string
	RedirectURL   string
	State         State
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, errors.New("connector registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	frontend, err := url.Parse(strings.TrimSpace(opts.FrontendURL))
	if err != nil || frontend.Scheme == "" || frontend.Host == "" {
		return nil, fmt.Errorf("frontend url %q must be an absolute URL", opts.FrontendURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	verifiers := make(map[string]TokenVerifier, len(opts.Verifiers))
	for k, v := range opts.Verifiers {
		verifiers[store.NormalizeKey(k)] = v
	}

	return &Orchestrator{
		registry:  opts.Registry,
		store:     opts.Store,
		tenants:   tenancy.Resolver{Store: opts.Store, Logger: logger},
		frontend:  frontend,
		verifiers: verifiers,
		log:       logger,
		now:       now,
	}, nil
}

// Begin returns the URL that starts authentication with the provider.
func (o *Orchestrator) Begin(providerID, state string) (string, error) {
	conn, err := o.registry.Resolve(providerID)
	if err != nil {
		return "", err
	}
	return conn.AuthURL(state)
}

// Complete finishes a login for the provider using the authorization code returned to the callback.
func (o *Orchestrator) Complete(ctx context.Context, providerID, code string) (Result, error) {
	providerID = store.NormalizeKey(providerID)
	res, err := o.complete(ctx, providerID, code)
	if err != nil {
		label := providerID
		var unsupported *registry.UnsupportedProviderError
		if errors.As(err, &unsupported) {
			label = "unsupported"
		}
		metrics.AuthFlowsTotal.WithLabelValues(label, "error").Inc()
		o.log.Warn("login failed", "provider", providerID, "err", err)
		return Result{}, err
	}
	metrics.AuthFlowsTotal.WithLabelValues(providerID, "ok").Inc()
	o.log.Info("login completed",
		"provider", providerID,
		"tenant_id", res.Tenant.ID,
		"tenant_created", res.TenantCreated,
		"credential_id", res.Credential.ID,
	)
	return res, nil
}

func (o *Orchestrator) complete(ctx context.Context, providerID, code string) (Result, error) {
	res := Result{State: StateStarted}
	fail := func(err error) (Result, error) {
		return Result{}, &StepError{Provider: providerID, State: res.State, Err: err}
	}

	conn, err := o.registry.Resolve(providerID)
	if err != nil {
		return fail(err)
	}
	res.State = StateCodeReceived

	tokens, err := conn.Authenticate(ctx, code)
	if err != nil {
		return fail(err)
	}
	res.Tokens = tokens
	res.State = StateTokensExchanged

	claims, err := o.identityClaims(ctx, conn, tokens.IDToken)
	if err != nil {
		return fail(err)
	}
	email, err := identity.EmailFromClaims(claims)
	if err != nil {
		return fail(err)
	}
	res.Email = email
	res.State = StateIdentityDecoded

	provider, err := o.store.UpsertProvider(ctx, conn.Kind(), conn.DisplayName())
	if err != nil {
		return fail(fmt.Errorf("upsert provider: %w", err))
	}
	res.Provider = provider

	tenant, err := o.tenants.FindOrCreate(ctx, provider, email)
	if err != nil {
		return fail(fmt.Errorf("resolve tenant: %w", err))
	}
	res.Tenant = tenant.Tenant
	res.TenantCreated = tenant.Created
	res.State = StateTenantResolved

	cred, err := o.store.CreateCredential(ctx, store.Credential{
		Type:         conn.Kind(),
		AccessToken:  tokens.AccessToken,
		RefreshToken: optional(tokens.RefreshToken),
		ExpiresAt:    o.expiresAt(tokens.ExpiresIn),
		TenantID:     tenant.Tenant.ID,
		ProviderID:   provider.ID,
	})
	if err != nil {
		if tenant.Created {
			o.discardTenant(ctx, providerID, tenant.Tenant.ID)
		}
		return fail(fmt.Errorf("persist credential: %w", err))
	}
	res.Credential = cred
	res.State = StateCredentialPersisted

	res.RedirectURL = o.redirectURL(conn.Kind(), tokens)
	res.State = StateRedirected
	return res, nil
}

// discardTenant removes a tenant created by a login whose credential could not be stored. A
// concurrent login may already have attached a credential, in which case the tenant stays.
func (o *Orchestrator) discardTenant(ctx context.Context, providerID string, tenantID uuid.UUID) {
	err := o.store.DeleteTenant(context.WithoutCancel(ctx), tenantID)
	switch {
	case err == nil:
		o.log.Info("discarded tenant of failed login", "provider", providerID, "tenant_id", tenantID)
	case errors.Is(err, store.ErrConflict):
	default:
		o.log.Error("discard tenant of failed login", "provider", providerID, "tenant_id", tenantID, "err", err)
	}
}

func (o *Orchestrator) identityClaims(ctx context.Context, conn registry.Connector, idToken string) (registry.Claims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, &registry.IdentityDecodeError{Reason: "no identity token returned"}
	}
	if v, ok := o.verifiers[conn.Kind()]; ok {
		return v.Verify(ctx, idToken)
	}
	return conn.DecodeIdentityToken(idToken)
}

// Refresh exchanges the credential's refresh token for new tokens and stores them.
func (o *Orchestrator) Refresh(ctx context.Context, credentialID uuid.UUID) (store.Credential, error) {
	cred, err := o.store.GetCredential(ctx, credentialID)
	if err != nil {
		return store.Credential{}, fmt.Errorf("load credential %s: %w", credentialID, err)
	}
	conn, err := o.registry.Resolve(cred.Type)
	if err != nil {
		return store.Credential{}, err
	}

	var refreshToken string
	if cred.RefreshToken != nil {
		refreshToken = *cred.RefreshToken
	}
	tokens, err := conn.RefreshToken(ctx, refreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(conn.Kind(), "error").Inc()
		return store.Credential{}, err
	}

	update := store.CredentialTokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    o.expiresAt(tokens.ExpiresIn),
	}
	if tokens.RefreshToken != "" {
		update.RefreshToken = optional(tokens.RefreshToken)
	}
	updated, err := o.store.UpdateCredentialTokens(ctx, cred.ID, update)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(conn.Kind(), "error").Inc()
		return store.Credential{}, fmt.Errorf("store refreshed tokens: %w", err)
	}
	metrics.TokenRefreshesTotal.WithLabelValues(conn.Kind(), "ok").Inc()
	o.log.Info("credential refreshed", "provider", conn.Kind(), "credential_id", cred.ID)
	return updated, nil
}

func (o *Orchestrator) expiresAt(expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := o.now().Add(time.Duration(expiresIn) * time.Second).UTC()
	return &t
}

func (o *Orchestrator) redirectURL(provider string, tokens registry.Tokens) string {
	u := *o.frontend
	q := u.Query()
	q.Set("provider", provider)
	q.Set("id_token", tokens.IDToken)
	q.Set("access_token", tokens.AccessToken)
	u.RawQuery = q.Encode()
	return u.String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
