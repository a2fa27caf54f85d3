// Package moduleconfig decides which upstream endpoint and field mapping serve a module request.
// Lookups cascade from the tenant's configuration to the provider-wide configuration and finally to
// the built-in table.
package moduleconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"

	"github.com/erpbridge/erpbridge/internal/metrics"
	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/google/uuid"
)

const (
	SourceTenant   = "tenant"
	SourceProvider = "provider"
	SourceDefault  = "default"
)

// Resolved is the configuration used for one module read.
type Resolved struct {
	Module        string            `json:"module"`
	Endpoint      string            `json:"endpoint"`
	DisplayName   string            `json:"displayName"`
	FieldMappings map[string]string `json:"fieldMappings"`
	Filters       string            `json:"filters,omitempty"`
	IsCustom      bool              `json:"isCustom"`
	SortOrder     int               `json:"sortOrder"`
	Source        string            `json:"source"`
}

// ConfigurationNotFoundError is returned when no tier has a configuration for the module.
type ConfigurationNotFoundError struct {
	Provider string
	Module   string
}

func (e *ConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("no configuration for module %q of provider %q", e.Module, e.Provider)
}

// Store is the persistence the resolver reads and writes.
type Store interface {
	GetProviderByKey(ctx context.Context, key string) (store.Provider, error)
	GetERPConfig(ctx context.Context, id uuid.UUID) (store.ERPConfig, error)
	FindModuleConfig(ctx context.Context, q store.ModuleQuery) (store.ModuleConfig, error)
	ListModuleConfigs(ctx context.Context, providerID uuid.UUID, tenantID *uuid.UUID) ([]store.ModuleConfig, error)
	ReplaceModuleConfigs(ctx context.Context, erpConfigID uuid.UUID, modules []store.ModuleConfig) ([]store.ModuleConfig, error)
}

type Options struct {
	// Cache, when set, memoizes successful resolutions.
	Cache  Cache
	Logger *slog.Logger
}

type Resolver struct {
	store Store
	cache Cache
	log   *slog.Logger
}

func NewResolver(st Store, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, cache: opts.Cache, log: logger}
}

// Resolve returns the configuration of module for provider, preferring the tenant's configuration
// when tenantID is set.
func (r *Resolver) Resolve(ctx context.Context, provider, module string, tenantID *uuid.UUID) (Resolved, error) {
	provider = store.NormalizeKey(provider)
	module = store.NormalizeKey(module)
	if provider == "" || module == "" {
		return Resolved{}, &ConfigurationNotFoundError{Provider: provider, Module: module}
	}

	key := cacheKey(provider, module, tenantID)
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Warn("module config cache read failed", "provider", provider, "module", module, "err", err)
		} else if ok {
			return cached, nil
		}
	}

	resolved, err := r.resolve(ctx, provider, module, tenantID)
	if err != nil {
		return Resolved{}, err
	}
	metrics.ConfigResolutionsTotal.WithLabelValues(provider, moduleLabel(module), resolved.Source).Inc()

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, resolved); err != nil {
			r.log.Warn("module config cache write failed", "provider", provider, "module", module, "err", err)
		}
	}
	return resolved, nil
}

func (r *Resolver) resolve(ctx context.Context, provider, module string, tenantID *uuid.UUID) (Resolved, error) {
	p, err := r.store.GetProviderByKey(ctx, provider)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Never authenticated against this provider; only the built-in table can answer.
	case err != nil:
		return Resolved{}, fmt.Errorf("load provider %q: %w", provider, err)
	default:
		if tenantID != nil {
			row, err := r.store.FindModuleConfig(ctx, store.ModuleQuery{ProviderID: p.ID, TenantID: tenantID, Module: module})
			if err == nil {
				return fromRow(provider, row, SourceTenant), nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return Resolved{}, fmt.Errorf("load tenant module config: %w", err)
			}
		}

		row, err := r.store.FindModuleConfig(ctx, store.ModuleQuery{ProviderID: p.ID, Module: module})
		if err == nil {
			return fromRow(provider, row, SourceProvider), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Resolved{}, fmt.Errorf("load provider module config: %w", err)
		}
	}

	if d, ok := Defaults(provider, module); ok {
		return fromDefault(module, d), nil
	}
	return Resolved{}, &ConfigurationNotFoundError{Provider: provider, Module: module}
}

// ListModules returns the effective module set of a provider for a tenant: built-in modules,
// overlaid by enabled provider-wide rows, overlaid by enabled tenant rows.
func (r *Resolver) ListModules(ctx context.Context, provider string, tenantID *uuid.UUID) ([]Resolved, error) {
	provider = store.NormalizeKey(provider)
	byModule := make(map[string]Resolved)
	for _, module := range []string{store.ModuleLeads, store.ModuleContacts, store.ModuleFinance} {
		if d, ok := Defaults(provider, module); ok {
			byModule[module] = fromDefault(module, d)
		}
	}

	p, err := r.store.GetProviderByKey(ctx, provider)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load provider %q: %w", provider, err)
	default:
		type scope struct {
			tenantID *uuid.UUID
			source   string
		}
		scopes := []scope{{nil, SourceProvider}}
		if tenantID != nil {
			scopes = append(scopes, scope{tenantID, SourceTenant})
		}
		for _, scope := range scopes {
			rows, err := r.store.ListModuleConfigs(ctx, p.ID, scope.tenantID)
			if err != nil {
				return nil, fmt.Errorf("list %s module configs: %w", scope.source, err)
			}
			for _, row := range rows {
				if row.Enabled {
					byModule[row.Module] = fromRow(provider, row, scope.source)
				}
			}
		}
	}

	if len(byModule) == 0 {
		return nil, &ConfigurationNotFoundError{Provider: provider, Module: "*"}
	}
	out := make([]Resolved, 0, len(byModule))
	for _, m := range byModule {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Module < out[j].Module
	})
	return out, nil
}

// ReplaceModules swaps the module set of an ERP config and drops cached resolutions.
func (r *Resolver) ReplaceModules(ctx context.Context, erpConfigID uuid.UUID, modules []store.ModuleConfig) ([]store.ModuleConfig, error) {
	if _, err := r.store.GetERPConfig(ctx, erpConfigID); err != nil {
		return nil, fmt.Errorf("load erp config %s: %w", erpConfigID, err)
	}
	normalized := make([]store.ModuleConfig, 0, len(modules))
	for i, m := range modules {
		m.Module = store.NormalizeKey(m.Module)
		if m.Module == "" {
			return nil, fmt.Errorf("module %d: name is required", i)
		}
		m.Endpoint = strings.TrimSpace(m.Endpoint)
		if m.Endpoint == "" && !store.IsBuiltinModule(m.Module) {
			return nil, fmt.Errorf("module %q: endpoint is required for custom modules", m.Module)
		}
		normalized = append(normalized, m)
	}

	out, err := r.store.ReplaceModuleConfigs(ctx, erpConfigID, normalized)
	if err != nil {
		return nil, fmt.Errorf("replace modules of erp config %s: %w", erpConfigID, err)
	}
	if r.cache != nil {
		if err := r.cache.Purge(ctx); err != nil {
			r.log.Warn("module config cache purge failed", "erp_config_id", erpConfigID, "err", err)
		}
	}
	r.log.Info("module configuration replaced", "erp_config_id", erpConfigID, "modules", len(out))
	return out, nil
}

func fromRow(provider string, row store.ModuleConfig, source string) Resolved {
	out := Resolved{
		Module:        row.Module,
		Endpoint:      row.Endpoint,
		DisplayName:   row.DisplayName,
		FieldMappings: maps.Clone(row.FieldMappings),
		Filters:       row.Filters,
		IsCustom:      !store.IsBuiltinModule(row.Module),
		SortOrder:     row.SortOrder,
		Source:        source,
	}
	if out.FieldMappings == nil {
		out.FieldMappings = map[string]string{}
	}
	if d, ok := Defaults(provider, row.Module); ok {
		if out.Endpoint == "" {
			out.Endpoint = d.Endpoint
		}
		if out.DisplayName == "" {
			out.DisplayName = d.DisplayName
		}
	}
	return out
}

func fromDefault(module string, d Default) Resolved {
	return Resolved{
		Module:        module,
		Endpoint:      d.Endpoint,
		DisplayName:   d.DisplayName,
		FieldMappings: d.FieldMappings,
		Filters:       d.Filters,
		SortOrder:     d.SortOrder,
		Source:        SourceDefault,
	}
}

func moduleLabel(module string) string {
	if store.IsBuiltinModule(module) {
		return module
	}
	return "custom"
}
