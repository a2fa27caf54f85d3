// Package tenancy maps an authenticated user onto the tenant that owns their organization,
// creating the tenant on first sight.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/erpbridge/erpbridge/internal/identity"
	"github.com/erpbridge/erpbridge/internal/metrics"
	"github.com/erpbridge/erpbridge/internal/store"
)

type Resolver struct {
	Store  store.TenantStore
	Logger *slog.Logger
}

// Result is the tenant a user was mapped to.
type Result struct {
	Tenant store.Tenant
	// Created is true when this call inserted the tenant.
	Created bool
	// MatchedBy is "email", "domain" or "created".
	MatchedBy string
}

// FindOrCreate returns the provider's tenant for email: an exact email match, else the oldest
// tenant of the same email domain, else a new tenant. Concurrent callers for the same email end up
// with the same tenant because creation relies on the store's unique email constraint.
func (r Resolver) FindOrCreate(ctx context.Context, provider store.Provider, email string) (Result, error) {
	if r.Store == nil {
		return Result{}, errors.New("tenant store is nil")
	}
	email = store.NormalizeEmail(email)
	domain := identity.EmailDomain(email)
	if domain == "" {
		return Result{}, fmt.Errorf("invalid email %q", email)
	}

	if t, err := r.find(ctx, provider, email, domain); err == nil {
		return t, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, err
	}

	t, err := r.create(ctx, provider, email, domain)
	if err == nil {
		metrics.TenantsCreatedTotal.WithLabelValues(provider.Key).Inc()
		r.logger().Info("tenant created", "provider", provider.Key, "tenant_id", t.ID, "email", t.Email)
		return Result{Tenant: t, Created: true, MatchedBy: "created"}, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return Result{}, err
	}

	// Lost a race, or the address already belongs to a tenant of another provider.
	if found, err := r.find(ctx, provider, email, domain); err == nil {
		return found, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, err
	}

	alias := providerAlias(email, provider.Key)
	t, err = r.create(ctx, provider, alias, domain)
	switch {
	case err == nil:
		metrics.TenantsCreatedTotal.WithLabelValues(provider.Key).Inc()
		r.logger().Info("tenant created under provider alias", "provider", provider.Key, "tenant_id", t.ID, "email", t.Email)
		return Result{Tenant: t, Created: true, MatchedBy: "created"}, nil
	case errors.Is(err, store.ErrConflict):
		found, err := r.Store.FindTenantByEmail(ctx, provider.ID, alias)
		if err != nil {
			return Result{}, fmt.Errorf("re-fetch tenant %s: %w", alias, err)
		}
		return Result{Tenant: found, MatchedBy: "email"}, nil
	default:
		return Result{}, err
	}
}

func (r Resolver) find(ctx context.Context, provider store.Provider, email, domain string) (Result, error) {
	t, err := r.Store.FindTenantByEmail(ctx, provider.ID, email)
	if err == nil {
		return Result{Tenant: t, MatchedBy: "email"}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("find tenant by email: %w", err)
	}

	domains := []string{domain}
	if reg := identity.RegistrableDomain(domain); reg != domain {
		domains = append(domains, reg)
	}
	for _, d := range domains {
		t, err = r.Store.FindTenantByEmailDomain(ctx, provider.ID, d)
		if err == nil {
			return Result{Tenant: t, MatchedBy: "domain"}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("find tenant by domain: %w", err)
		}
	}
	return Result{}, store.ErrNotFound
}

func (r Resolver) create(ctx context.Context, provider store.Provider, email, domain string) (store.Tenant, error) {
	name := identity.OrganizationName(domain)
	if name == "" {
		name = domain
	}
	return r.Store.CreateTenant(ctx, store.Tenant{Name: name, Email: email, ProviderID: provider.ID})
}

func (r Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// providerAlias tags the local part with the provider: alice@acme.com becomes alice+sap@acme.com.
func providerAlias(email, providerKey string) string {
	local, domain, _ := strings.Cut(email, "@")
	return local + "+" + providerKey + "@" + domain
}
