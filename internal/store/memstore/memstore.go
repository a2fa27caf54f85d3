// Package memstore is an in-memory store.Store used by tests and by `serve` when no database is
// configured.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/google/uuid"
)

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	providers   map[uuid.UUID]store.Provider
	tenants     map[uuid.UUID]store.Tenant
	credentials map[uuid.UUID]store.Credential
	erpConfigs  map[uuid.UUID]store.ERPConfig
	modules     map[uuid.UUID]store.ModuleConfig
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:         time.Now,
		providers:   make(map[uuid.UUID]store.Provider),
		tenants:     make(map[uuid.UUID]store.Tenant),
		credentials: make(map[uuid.UUID]store.Credential),
		erpConfigs:  make(map[uuid.UUID]store.ERPConfig),
		modules:     make(map[uuid.UUID]store.ModuleConfig),
	}
}

func (s *Store) UpsertProvider(_ context.Context, key, description string) (store.Provider, error) {
	key = store.NormalizeKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.providers {
		if p.Key == key {
			if description != "" {
				p.Description = description
				s.providers[id] = p
			}
			return p, nil
		}
	}
	p := store.Provider{ID: uuid.New(), Key: key, Description: description, CreatedAt: s.now()}
	s.providers[p.ID] = p
	return p, nil
}

func (s *Store) GetProviderByKey(_ context.Context, key string) (store.Provider, error) {
	key = store.NormalizeKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.providers {
		if p.Key == key {
			return p, nil
		}
	}
	return store.Provider{}, store.ErrNotFound
}

// Providers returns every stored provider ordered by key.
func (s *Store) Providers() []store.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) GetTenant(_ context.Context, id uuid.UUID) (store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return store.Tenant{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) FindTenantByEmail(_ context.Context, providerID uuid.UUID, email string) (store.Tenant, error) {
	email = store.NormalizeEmail(email)
	return s.firstTenant(func(t store.Tenant) bool {
		return t.ProviderID == providerID && t.Email == email
	})
}

func (s *Store) FindTenantByEmailDomain(_ context.Context, providerID uuid.UUID, domain string) (store.Tenant, error) {
	suffix := "@" + store.NormalizeEmail(domain)
	return s.firstTenant(func(t store.Tenant) bool {
		return t.ProviderID == providerID && strings.HasSuffix(t.Email, suffix)
	})
}

func (s *Store) firstTenant(match func(store.Tenant) bool) (store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *store.Tenant
	for _, t := range s.tenants {
		if !match(t) {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) {
			t := t
			found = &t
		}
	}
	if found == nil {
		return store.Tenant{}, store.ErrNotFound
	}
	return *found, nil
}

// Tenants returns every stored tenant ordered by creation time.
func (s *Store) Tenants() []store.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CreateTenant(_ context.Context, t store.Tenant) (store.Tenant, error) {
	t.Email = store.NormalizeEmail(t.Email)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tenants {
		if existing.Email == t.Email {
			return store.Tenant{}, store.ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = s.now()
	s.tenants[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTenant(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return store.ErrNotFound
	}
	for _, c := range s.credentials {
		if c.TenantID == id {
			return store.ErrConflict
		}
	}
	delete(s.tenants, id)
	return nil
}

func (s *Store) CreateCredential(_ context.Context, c store.Credential) (store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.credentials[c.ID] = c
	return c, nil
}

func (s *Store) GetCredential(_ context.Context, id uuid.UUID) (store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return store.Credential{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) FindCredentialByAccessToken(_ context.Context, accessToken string) (store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *store.Credential
	for _, c := range s.credentials {
		if c.AccessToken != accessToken {
			continue
		}
		if found == nil || c.UpdatedAt.After(found.UpdatedAt) {
			c := c
			found = &c
		}
	}
	if found == nil {
		return store.Credential{}, store.ErrNotFound
	}
	return *found, nil
}

// Credentials returns every stored credential ordered by creation time.
func (s *Store) Credentials() []store.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) UpdateCredentialTokens(_ context.Context, id uuid.UUID, tokens store.CredentialTokens) (store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return store.Credential{}, store.ErrNotFound
	}
	c.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != nil {
		c.RefreshToken = tokens.RefreshToken
	}
	c.ExpiresAt = tokens.ExpiresAt
	c.UpdatedAt = s.now()
	s.credentials[id] = c
	return c, nil
}

func (s *Store) DeleteCredential(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.credentials, id)
	return nil
}

func (s *Store) CreateERPConfig(_ context.Context, cfg store.ERPConfig) (store.ERPConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cfg.CreatedAt = s.now()
	cfg.Settings = maps.Clone(cfg.Settings)
	s.erpConfigs[cfg.ID] = cfg
	return cfg, nil
}

func (s *Store) GetERPConfig(_ context.Context, id uuid.UUID) (store.ERPConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.erpConfigs[id]
	if !ok {
		return store.ERPConfig{}, store.ErrNotFound
	}
	return cfg, nil
}

// SetERPConfigActive toggles the active flag of an ERP config.
func (s *Store) SetERPConfigActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg, ok := s.erpConfigs[id]; ok {
		cfg.Active = active
		s.erpConfigs[id] = cfg
	}
}

func (s *Store) FindModuleConfig(_ context.Context, q store.ModuleQuery) (store.ModuleConfig, error) {
	module := store.NormalizeKey(q.Module)
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found  store.ModuleConfig
		owner  store.ERPConfig
		exists bool
	)
	for _, m := range s.modulesFor(q.ProviderID, q.TenantID) {
		if m.Module != module || !m.Enabled {
			continue
		}
		cfg := s.erpConfigs[m.ERPConfigID]
		if !exists || newerConfig(cfg, owner) {
			found, owner, exists = m, cfg, true
		}
	}
	if !exists {
		return store.ModuleConfig{}, store.ErrNotFound
	}
	return cloneModule(found), nil
}

// newerConfig orders ERP configs the way FindModuleConfig picks them: latest created first,
// then the greater id.
func newerConfig(a, b store.ERPConfig) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

func (s *Store) ListModuleConfigs(_ context.Context, providerID uuid.UUID, tenantID *uuid.UUID) ([]store.ModuleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mods := s.modulesFor(providerID, tenantID)
	out := make([]store.ModuleConfig, 0, len(mods))
	for _, m := range mods {
		out = append(out, cloneModule(m))
	}
	return out, nil
}

// modulesFor returns modules of active ERP configs matching the scope, ordered by sort order.
// Callers must hold s.mu.
func (s *Store) modulesFor(providerID uuid.UUID, tenantID *uuid.UUID) []store.ModuleConfig {
	var out []store.ModuleConfig
	for _, m := range s.modules {
		cfg, ok := s.erpConfigs[m.ERPConfigID]
		if !ok || !cfg.Active || cfg.ProviderID != providerID {
			continue
		}
		if !sameTenant(cfg.TenantID, tenantID) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Module < out[j].Module
	})
	return out
}

func (s *Store) ReplaceModuleConfigs(_ context.Context, erpConfigID uuid.UUID, modules []store.ModuleConfig) ([]store.ModuleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.erpConfigs[erpConfigID]; !ok {
		return nil, store.ErrNotFound
	}
	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		name := store.NormalizeKey(m.Module)
		if _, dup := seen[name]; dup {
			return nil, store.ErrConflict
		}
		seen[name] = struct{}{}
	}

	for id, m := range s.modules {
		if m.ERPConfigID == erpConfigID {
			delete(s.modules, id)
		}
	}
	out := make([]store.ModuleConfig, 0, len(modules))
	for _, m := range modules {
		m.ID = uuid.New()
		m.ERPConfigID = erpConfigID
		m.Module = store.NormalizeKey(m.Module)
		m = cloneModule(m)
		s.modules[m.ID] = m
		out = append(out, m)
	}
	return out, nil
}

func sameTenant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneModule(m store.ModuleConfig) store.ModuleConfig {
	m.FieldMappings = maps.Clone(m.FieldMappings)
	return m
}
