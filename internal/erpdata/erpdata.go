// Package erpdata serves canonical module records: it resolves the module configuration for the
// caller's tenant, reads the upstream through the provider's connector and applies the field map.
package erpdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/mapping"
	"github.com/erpbridge/erpbridge/internal/moduleconfig"
	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownCredential is returned when an access token matches no stored credential.
var ErrUnknownCredential = errors.New("unknown access token")

// ErrProviderMismatch is returned when a credential belongs to a different provider than requested.
var ErrProviderMismatch = errors.New("credential was issued for another provider")

const maxConcurrentModules = 4

// Resolver picks the configuration of a module.
type Resolver interface {
	Resolve(ctx context.Context, provider, module string, tenantID *uuid.UUID) (moduleconfig.Resolved, error)
}

type Service struct {
	Registry    *registry.ConnectorRegistry
	Resolver    Resolver
	Credentials store.CredentialStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// Query narrows a module read.
type Query struct {
	Top int
}

// Result is one module's canonical records.
type Result struct {
	Provider    string           `json:"provider"`
	Module      string           `json:"module"`
	DisplayName string           `json:"displayName"`
	Source      string           `json:"configSource"`
	IsCustom    bool             `json:"isCustom"`
	Records     []mapping.Record `json:"records"`
}

// Fetch returns the canonical records of module for the tenant owning accessToken.
func (s *Service) Fetch(ctx context.Context, provider, module, accessToken string, q Query) (Result, error) {
	cred, conn, err := s.authorize(ctx, provider, accessToken)
	if err != nil {
		return Result{}, err
	}
	return s.fetch(ctx, conn, cred, module, q)
}

// FetchAll reads several modules concurrently. Modules that fail are left out of the map and
// their errors are joined.
func (s *Service) FetchAll(ctx context.Context, provider string, modules []string, accessToken string, q Query) (map[string]Result, error) {
	cred, conn, err := s.authorize(ctx, provider, accessToken)
	if err != nil {
		return nil, err
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
		out  = make(map[string]Result, len(modules))
	)
	g.SetLimit(maxConcurrentModules)
	for _, module := range modules {
		g.Go(func() error {
			res, err := s.fetch(ctx, conn, cred, module, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", module, err))
				return nil
			}
			out[res.Module] = res
			return nil
		})
	}
	_ = g.Wait()
	return out, errors.Join(errs...)
}

func (s *Service) authorize(ctx context.Context, provider, accessToken string) (store.Credential, registry.Connector, error) {
	provider = store.NormalizeKey(provider)
	conn, err := s.Registry.Resolve(provider)
	if err != nil {
		return store.Credential{}, nil, err
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return store.Credential{}, nil, ErrUnknownCredential
	}
	cred, err := s.Credentials.FindCredentialByAccessToken(ctx, accessToken)
	if errors.Is(err, store.ErrNotFound) {
		return store.Credential{}, nil, ErrUnknownCredential
	}
	if err != nil {
		return store.Credential{}, nil, fmt.Errorf("load credential: %w", err)
	}
	if store.NormalizeKey(cred.Type) != conn.Kind() {
		return store.Credential{}, nil, ErrProviderMismatch
	}
	if cred.Expired(s.now(), 0) {
		s.logger().Warn("using expired credential", "provider", provider, "credential_id", cred.ID, "tenant_id", cred.TenantID)
	}
	return cred, conn, nil
}

func (s *Service) fetch(ctx context.Context, conn registry.Connector, cred store.Credential, module string, q Query) (Result, error) {
	provider := conn.Kind()
	module = store.NormalizeKey(module)
	cfg, err := s.Resolver.Resolve(ctx, provider, module, &cred.TenantID)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	raw, err := registry.Fetch(ctx, conn, module, registry.FetchRequest{
		AccessToken: cred.AccessToken,
		Endpoint:    cfg.Endpoint,
		Filter:      cfg.Filters,
		Top:         q.Top,
	})
	if err != nil {
		return Result{}, err
	}
	s.logger().Debug("module fetched",
		"provider", provider,
		"module", module,
		"tenant_id", cred.TenantID,
		"config_source", cfg.Source,
		"records", len(raw),
		"duration", time.Since(start),
	)

	return Result{
		Provider:    provider,
		Module:      module,
		DisplayName: cfg.DisplayName,
		Source:      cfg.Source,
		IsCustom:    cfg.IsCustom,
		Records:     mapping.TransformMany(raw, cfg.FieldMappings, map[string]any{"provider": provider}),
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
