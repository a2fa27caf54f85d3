// Package secrets fills provider credentials that are absent from the environment from a Vault
// KV mount.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erpbridge/erpbridge/internal/config"
	vaultapi "github.com/hashicorp/vault/api"
)

// Keys read from the secret. Each one fills the matching config field when that field is empty.
const (
	KeyDynamicsClientSecret = "dynamics_client_secret"
	KeySAPClientSecret      = "sap_client_secret"
	KeyBCUsername           = "bc_username"
	KeyBCPassword           = "bc_password"
	KeyBCSigningKey         = "bc_signing_key"
)

type Options struct {
	Address    string
	Token      string
	Namespace  string
	Mount      string
	SecretPath string
	HTTPClient *http.Client
}

// Vault reads one KV secret. Both KV v1 and v2 mounts are supported.
type Vault struct {
	client *vaultapi.Client
	mount  string
	path   string
}

func NewVault(opts Options) (*Vault, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("vault token is required")
	}
	secretPath := strings.Trim(strings.TrimSpace(opts.SecretPath), "/")
	if secretPath == "" {
		return nil, errors.New("vault secret path is required")
	}
	mount := strings.Trim(strings.TrimSpace(opts.Mount), "/")
	if mount == "" {
		mount = "secret"
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = opts.HTTPClient
	if cfg.HttpClient == nil {
		cfg.HttpClient = &http.Client{Timeout: 30 * time.Second}
	}
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	client.SetToken(token)
	if ns := strings.TrimSpace(opts.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	return &Vault{client: client, mount: mount, path: secretPath}, nil
}

// Read returns the string values of the secret. A missing secret yields an empty map.
func (v *Vault) Read(ctx context.Context) (map[string]string, error) {
	data, err := v.read(ctx, v.mount+"/data/"+v.path)
	if err != nil {
		return nil, err
	}
	if nested, ok := data["data"].(map[string]any); ok {
		return stringValues(nested), nil
	}
	if len(data) == 0 {
		// KV v1 mounts have no data/ prefix.
		if data, err = v.read(ctx, v.mount+"/"+v.path); err != nil {
			return nil, err
		}
	}
	return stringValues(data), nil
}

func (v *Vault) read(ctx context.Context, path string) (map[string]any, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return map[string]any{}, nil
	}
	return secret.Data, nil
}

// Apply copies secret values into cfg fields that are still empty and returns the keys it used.
func Apply(cfg *config.Config, values map[string]string) []string {
	var used []string
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) != "" {
			return
		}
		if v := strings.TrimSpace(values[key]); v != "" {
			*dst = v
			used = append(used, key)
		}
	}
	fill(&cfg.Dynamics.ClientSecret, KeyDynamicsClientSecret)
	fill(&cfg.SAP.ClientSecret, KeySAPClientSecret)
	fill(&cfg.BusinessCentral.Username, KeyBCUsername)
	fill(&cfg.BusinessCentral.Password, KeyBCPassword)
	fill(&cfg.BusinessCentral.SigningKey, KeyBCSigningKey)
	return used
}

// Load reads the configured secret and applies it to cfg. It does nothing when Vault is not configured.
func Load(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Vault.Enabled() {
		return nil
	}
	v, err := NewVault(Options{
		Address:    cfg.Vault.Addr,
		Token:      cfg.Vault.Token,
		Mount:      cfg.Vault.Mount,
		SecretPath: cfg.Vault.SecretPath,
	})
	if err != nil {
		return err
	}
	values, err := v.Read(ctx)
	if err != nil {
		return err
	}
	used := Apply(cfg, values)
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("provider secrets loaded from vault", "path", cfg.Vault.Mount+"/"+cfg.Vault.SecretPath, "keys", used)
	return nil
}

func stringValues(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, raw := range data {
		if s, ok := raw.(string); ok {
			out[k] = s
		}
	}
	return out
}
