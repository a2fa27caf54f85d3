package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"

	"github.com/erpbridge/erpbridge/internal/config"
	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
)

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func bcConfig(baseURL string) config.Config {
	return config.Config{
		FrontendURL: "https://dashboard.example.com",
		BusinessCentral: configstore.BusinessCentralConfig{
			BaseURL:     baseURL,
			Company:     "CRONUS",
			Username:    "admin",
			Password:    "secret",
			Email:       "admin@cronus.example",
			SigningKey:  "signing-key",
			FrontendURL: "https://dashboard.example.com",
		},
		BCFixtureFallback: true,
	}
}

func TestBuildConnectorRegistryOnlyConfiguredProviders(t *testing.T) {
	t.Parallel()

	reg, err := buildConnectorRegistry(config.Config{}, nil)
	if err != nil {
		t.Fatalf("buildConnectorRegistry: %v", err)
	}
	if got := reg.ListSupported(); len(got) != 0 {
		t.Fatalf("ListSupported = %v, want none", got)
	}

	reg, err = buildConnectorRegistry(bcConfig("http://127.0.0.1:1"), nil)
	if err != nil {
		t.Fatalf("buildConnectorRegistry: %v", err)
	}
	if got := reg.ListSupported(); !reflect.DeepEqual(got, []string{"businesscentral"}) {
		t.Fatalf("ListSupported = %v", got)
	}
}

func TestBuildConnectorRegistryRejectsInvalidProvider(t *testing.T) {
	t.Parallel()

	cfg := config.Config{SAP: configstore.SAPConfig{ClientID: "client"}}
	if _, err := buildConnectorRegistry(cfg, nil); err == nil || !strings.HasPrefix(err.Error(), "sap: ") {
		t.Fatalf("expected sap config error, got %v", err)
	}
}

func TestBusinessCentralFallbackFollowsConfig(t *testing.T) {
	t.Parallel()
	base := "http://" + closedAddr(t)
	ctx := context.Background()

	reg, err := buildConnectorRegistry(bcConfig(base), nil)
	if err != nil {
		t.Fatalf("buildConnectorRegistry: %v", err)
	}
	conn, err := reg.Resolve("businesscentral")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	records, err := registry.Fetch(ctx, conn, "leads", registry.FetchRequest{AccessToken: "x"})
	if err != nil || len(records) == 0 {
		t.Fatalf("expected fixture records, got %d, err %v", len(records), err)
	}

	cfg := bcConfig(base)
	cfg.BCFixtureFallback = false
	reg, err = buildConnectorRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("buildConnectorRegistry: %v", err)
	}
	conn, _ = reg.Resolve("businesscentral")
	_, err = registry.Fetch(ctx, conn, "leads", registry.FetchRequest{AccessToken: "x"})
	var dataErr *registry.UpstreamDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected UpstreamDataError without fallback, got %v", err)
	}
}

func TestBuildVerifiersDisabled(t *testing.T) {
	t.Parallel()
	v, err := buildVerifiers(context.Background(), config.Config{}, registry.NewRegistry())
	if err != nil || v != nil {
		t.Fatalf("verifiers = %v, err = %v", v, err)
	}
}

func TestPrintAuthURL(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := printAuthURL(bcConfig("http://127.0.0.1:1"), "BusinessCentral", "s1", &out); err != nil {
		t.Fatalf("printAuthURL: %v", err)
	}
	got := strings.TrimSpace(out.String())
	if !strings.HasPrefix(got, "https://dashboard.example.com?") || !strings.Contains(got, "state=s1") {
		t.Fatalf("auth url = %q", got)
	}

	err := printAuthURL(config.Config{}, "netsuite", "", &out)
	if got := exitStatus(err); got != exitUsage {
		t.Fatalf("exit status = %d, want %d (%v)", got, exitUsage, err)
	}
}
