package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/erpbridge/erpbridge/internal/authflow"
	"github.com/erpbridge/erpbridge/internal/config"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/erpdata"
	"github.com/erpbridge/erpbridge/internal/moduleconfig"
	"github.com/erpbridge/erpbridge/internal/secrets"
	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/erpbridge/erpbridge/internal/store/memstore"
	"github.com/erpbridge/erpbridge/internal/store/pgstore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// app holds the components shared by the commands.
type app struct {
	cfg      config.Config
	pool     *pgxpool.Pool
	store    store.Store
	registry *registry.ConnectorRegistry
	resolver *moduleconfig.Resolver
	auth     *authflow.Orchestrator
	data     *erpdata.Service
	redis    *redis.Client
}

type appOptions struct {
	// AllowMemoryStore falls back to the in-memory store when DATABASE_URL is empty.
	AllowMemoryStore bool
	VerifyIdentity   bool
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	if err := secrets.Load(ctx, &cfg, slog.Default()); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		st, err := pgstore.New(pool)
		if err != nil {
			return nil, err
		}
		a.store = st
	case opts.AllowMemoryStore:
		slog.Warn("DATABASE_URL is not set, using the in-memory store")
		a.store = memstore.New()
	default:
		return nil, errors.New("DATABASE_URL is required")
	}

	reg, err := buildConnectorRegistry(cfg, nil)
	if err != nil {
		return nil, err
	}
	a.registry = reg
	if len(reg.ListSupported()) == 0 {
		slog.Warn("no provider is configured")
	}

	var cache moduleconfig.Cache
	if cfg.RedisURL != "" {
		rdb, err := moduleconfig.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		cache = moduleconfig.NewRedisCache(rdb, cfg.ConfigCacheTTL)
	}
	a.resolver = moduleconfig.NewResolver(a.store, moduleconfig.Options{Cache: cache, Logger: slog.Default()})

	var verifiers map[string]authflow.TokenVerifier
	if opts.VerifyIdentity {
		if verifiers, err = buildVerifiers(ctx, cfg, reg); err != nil {
			return nil, err
		}
	}
	a.auth, err = authflow.New(authflow.Options{
		Registry:    reg,
		Store:       a.store,
		FrontendURL: cfg.FrontendURL,
		Verifiers:   verifiers,
		Logger:      slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	a.data = &erpdata.Service{
		Registry:    reg,
		Resolver:    a.resolver,
		Credentials: a.store,
		Logger:      slog.Default(),
	}

	ok = true
	return a, nil
}

// Ping checks the database and cache connections.
func (a *app) Ping(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return err
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
