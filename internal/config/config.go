package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultFrontendURL     = "http://localhost:3000"
	defaultUpstreamTimeout = 60 * time.Second
	defaultConfigCacheTTL  = 5 * time.Minute
	defaultSessionLifetime = 10 * time.Minute
	defaultVaultSecretPath = "erpbridge"
	defaultVaultMount      = "secret"

	// MetricsDisabled turns the metrics listener off when used as METRICS_ADDR.
	MetricsDisabled = "off"
)

type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	MetricsAddr     string
	FrontendURL     string
	UpstreamTimeout time.Duration
	RedisURL        string
	ConfigCacheTTL  time.Duration
	OIDCVerify      bool
	SessionLifetime time.Duration
	CookieSecure    bool

	Vault VaultConfig

	Dynamics          configstore.DynamicsConfig
	SAP               configstore.SAPConfig
	BusinessCentral   configstore.BusinessCentralConfig
	BCFixtureFallback bool
}

// VaultConfig locates the optional KV store holding provider secrets.
type VaultConfig struct {
	Addr       string
	Token      string
	Mount      string
	SecretPath string
}

func (v VaultConfig) Enabled() bool {
	return strings.TrimSpace(v.Addr) != "" && strings.TrimSpace(v.Token) != ""
}

// MetricsEnabled reports whether the metrics listener should run.
func (c Config) MetricsEnabled() bool {
	addr := strings.TrimSpace(c.MetricsAddr)
	return addr != "" && !strings.EqualFold(addr, MetricsDisabled)
}

// DynamicsEnabled reports whether any Dynamics setting is present.
func (c Config) DynamicsEnabled() bool {
	return c.Dynamics.ClientID != "" || c.Dynamics.OrgURL != ""
}

func (c Config) SAPEnabled() bool {
	return c.SAP.ClientID != "" || c.SAP.APIBase != ""
}

func (c Config) BusinessCentralEnabled() bool {
	return c.BusinessCentral.BaseURL != ""
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	frontendURL := getenvDefault("FRONTEND_URL", defaultFrontendURL)
	cfg := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:     getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		FrontendURL:     frontendURL,
		UpstreamTimeout: getenvDurationDefault("UPSTREAM_TIMEOUT", defaultUpstreamTimeout),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		ConfigCacheTTL:  getenvDurationDefault("CONFIG_CACHE_TTL", defaultConfigCacheTTL),
		OIDCVerify:      getenvBoolDefault("OIDC_VERIFY", false),
		SessionLifetime: getenvDurationDefault("SESSION_LIFETIME", defaultSessionLifetime),
		CookieSecure:    getenvBoolDefault("AUTH_COOKIE_SECURE", false),

		Vault: VaultConfig{
			Addr:       strings.TrimSpace(os.Getenv("VAULT_ADDR")),
			Token:      strings.TrimSpace(os.Getenv("VAULT_TOKEN")),
			Mount:      getenvDefault("VAULT_MOUNT", defaultVaultMount),
			SecretPath: getenvDefault("VAULT_SECRET_PATH", defaultVaultSecretPath),
		},

		Dynamics: configstore.DynamicsConfig{
			TenantID:     os.Getenv("DYNAMICS_TENANT_ID"),
			ClientID:     os.Getenv("DYNAMICS_CLIENT_ID"),
			ClientSecret: os.Getenv("DYNAMICS_CLIENT_SECRET"),
			OrgURL:       os.Getenv("DYNAMICS_ORG_URL"),
			RedirectURI:  os.Getenv("DYNAMICS_REDIRECT_URI"),
			Authority:    os.Getenv("DYNAMICS_AUTHORITY"),
			APIVersion:   os.Getenv("DYNAMICS_API_VERSION"),
		},
		SAP: configstore.SAPConfig{
			ClientID:     os.Getenv("SAP_CLIENT_ID"),
			ClientSecret: os.Getenv("SAP_CLIENT_SECRET"),
			AuthURL:      os.Getenv("SAP_AUTH_URL"),
			TokenURL:     os.Getenv("SAP_TOKEN_URL"),
			APIBase:      os.Getenv("SAP_API_BASE"),
			RedirectURI:  os.Getenv("SAP_REDIRECT_URI"),
			Scopes:       splitList(os.Getenv("SAP_SCOPES")),
			IssuerURL:    os.Getenv("SAP_ISSUER_URL"),
		},
		BusinessCentral: configstore.BusinessCentralConfig{
			BaseURL:     os.Getenv("BC_BASE_URL"),
			Company:     os.Getenv("BC_COMPANY"),
			Username:    os.Getenv("BC_USERNAME"),
			Password:    os.Getenv("BC_PASSWORD"),
			Email:       os.Getenv("BC_EMAIL"),
			SigningKey:  os.Getenv("BC_SIGNING_KEY"),
			FrontendURL: frontendURL,
			ExpiresIn:   int64(getenvIntDefault("BC_TOKEN_EXPIRES_IN", 0)),
		},
		BCFixtureFallback: getenvBoolDefault("BC_FIXTURE_FALLBACK", true),
	}

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// splitList splits a comma or space separated list, dropping empty items.
func splitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
