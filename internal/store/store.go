// Package store defines the persisted entities and the relational-store contract used by the
// connector core. Implementations live in memstore (tests, local runs) and pgstore (Postgres).
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("store: unique constraint conflict")

const (
	ModuleLeads    = "leads"
	ModuleContacts = "contacts"
	ModuleFinance  = "finance"
)

// Provider is one upstream ERP system type (the "erps" table).
type Provider struct {
	ID          uuid.UUID
	Key         string
	Description string
	CreatedAt   time.Time
}

// Tenant is one customer organization scoped to a single provider (the "companies" table).
type Tenant struct {
	ID         uuid.UUID
	Name       string
	Email      string
	ProviderID uuid.UUID
	CreatedAt  time.Time
}

// Credential is a stored access/refresh token set (the "connectors" table).
type Credential struct {
	ID           uuid.UUID
	Type         string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	TenantID     uuid.UUID
	ProviderID   uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the credential has a known expiry at or before now+skew.
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}

// ERPConfig groups the module configuration of one tenant (or of a provider when TenantID is nil).
type ERPConfig struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	TenantID   *uuid.UUID
	Active     bool
	Settings   map[string]any
	CreatedAt  time.Time
}

// ModuleConfig maps one module onto an upstream endpoint with a declarative field mapping.
type ModuleConfig struct {
	ID            uuid.UUID
	ERPConfigID   uuid.UUID
	Module        string
	Enabled       bool
	DisplayName   string
	Endpoint      string
	FieldMappings map[string]string
	Filters       string
	SortOrder     int
}

// ModuleQuery selects the active, enabled module configuration of a provider. A nil TenantID
// selects the provider-wide configuration. When several active ERP configs of the scope enable the
// module, the most recently created config wins and equal timestamps fall back to the greater
// config id.
type ModuleQuery struct {
	ProviderID uuid.UUID
	TenantID   *uuid.UUID
	Module     string
}

// CredentialTokens carries the token fields written by a refresh.
type CredentialTokens struct {
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
}

type ProviderStore interface {
	UpsertProvider(ctx context.Context, key, description string) (Provider, error)
	GetProviderByKey(ctx context.Context, key string) (Provider, error)
}

type TenantStore interface {
	GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error)
	FindTenantByEmail(ctx context.Context, providerID uuid.UUID, email string) (Tenant, error)
	FindTenantByEmailDomain(ctx context.Context, providerID uuid.UUID, domain string) (Tenant, error)
	// CreateTenant inserts a tenant, returning ErrConflict when the email is already taken.
	CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
	// DeleteTenant removes a tenant that owns no credentials. It returns ErrConflict while any
	// credential still references the tenant.
	DeleteTenant(ctx context.Context, id uuid.UUID) error
}

type CredentialStore interface {
	CreateCredential(ctx context.Context, c Credential) (Credential, error)
	GetCredential(ctx context.Context, id uuid.UUID) (Credential, error)
	FindCredentialByAccessToken(ctx context.Context, accessToken string) (Credential, error)
	UpdateCredentialTokens(ctx context.Context, id uuid.UUID, tokens CredentialTokens) (Credential, error)
	DeleteCredential(ctx context.Context, id uuid.UUID) error
}

type ConfigStore interface {
	CreateERPConfig(ctx context.Context, cfg ERPConfig) (ERPConfig, error)
	GetERPConfig(ctx context.Context, id uuid.UUID) (ERPConfig, error)
	FindModuleConfig(ctx context.Context, q ModuleQuery) (ModuleConfig, error)
	ListModuleConfigs(ctx context.Context, providerID uuid.UUID, tenantID *uuid.UUID) ([]ModuleConfig, error)
	// ReplaceModuleConfigs deletes every module of the ERP config and inserts modules in one step.
	ReplaceModuleConfigs(ctx context.Context, erpConfigID uuid.UUID, modules []ModuleConfig) ([]ModuleConfig, error)
}

// Store is the full persistence contract.
type Store interface {
	ProviderStore
	TenantStore
	CredentialStore
	ConfigStore
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeKey lowercases and trims a provider key or module name.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsBuiltinModule reports whether module is one of leads, contacts or finance.
func IsBuiltinModule(module string) bool {
	switch NormalizeKey(module) {
	case ModuleLeads, ModuleContacts, ModuleFinance:
		return true
	default:
		return false
	}
}
