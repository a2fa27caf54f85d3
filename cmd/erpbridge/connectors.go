package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erpbridge/erpbridge/internal/authflow"
	"github.com/erpbridge/erpbridge/internal/config"
	"github.com/erpbridge/erpbridge/internal/connectors/businesscentral"
	"github.com/erpbridge/erpbridge/internal/connectors/dynamics"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/connectors/sap"
	"github.com/erpbridge/erpbridge/internal/identity"
	"github.com/erpbridge/erpbridge/internal/metrics"
)

// buildConnectorRegistry registers an adapter for every provider with settings present.
func buildConnectorRegistry(cfg config.Config, httpClient *http.Client) (*registry.ConnectorRegistry, error) {
	reg := registry.NewRegistry()

	if cfg.DynamicsEnabled() {
		conn, err := dynamics.New(cfg.Dynamics, dynamics.Options{HTTPClient: httpClient, Timeout: cfg.UpstreamTimeout})
		if err != nil {
			return nil, fmt.Errorf("dynamics: %w", err)
		}
		if err := reg.Register(conn); err != nil {
			return nil, err
		}
	}
	if cfg.SAPEnabled() {
		conn, err := sap.New(cfg.SAP, sap.Options{HTTPClient: httpClient, Timeout: cfg.UpstreamTimeout})
		if err != nil {
			return nil, fmt.Errorf("sap: %w", err)
		}
		if err := reg.Register(conn); err != nil {
			return nil, err
		}
	}
	if cfg.BusinessCentralEnabled() {
		conn, err := businesscentral.New(cfg.BusinessCentral, businesscentral.Options{HTTPClient: httpClient, Timeout: cfg.UpstreamTimeout})
		if err != nil {
			return nil, fmt.Errorf("businesscentral: %w", err)
		}
		var c registry.Connector = conn
		if cfg.BCFixtureFallback {
			c = registry.WithFallback(conn, registry.FallbackPolicy{
				Fixtures:   businesscentral.Fixtures(),
				OnFallback: logFallback,
			})
		}
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func logFallback(kind, module string, err error) {
	metrics.FixtureFallbacksTotal.WithLabelValues(kind, module).Inc()
	slog.Warn("upstream unreachable, serving fixture records", "provider", kind, "module", module, "err", err)
}

// buildVerifiers discovers OIDC issuers for the providers that declare one.
func buildVerifiers(ctx context.Context, cfg config.Config, reg *registry.ConnectorRegistry) (map[string]authflow.TokenVerifier, error) {
	if !cfg.OIDCVerify {
		return nil, nil
	}
	issuers := map[string]struct{ issuer, clientID string }{
		"dynamics": {cfg.Dynamics.IssuerURL(), cfg.Dynamics.Normalized().ClientID},
		"sap":      {cfg.SAP.Normalized().IssuerURL, cfg.SAP.Normalized().ClientID},
	}
	out := make(map[string]authflow.TokenVerifier)
	for kind, iss := range issuers {
		if _, ok := reg.Get(kind); !ok || iss.issuer == "" {
			continue
		}
		v, err := identity.NewVerifier(ctx, iss.issuer, iss.clientID)
		if err != nil {
			return nil, fmt.Errorf("%s identity verifier: %w", kind, err)
		}
		out[kind] = v
		slog.Info("identity token verification enabled", "provider", kind, "issuer", iss.issuer)
	}
	return out, nil
}
