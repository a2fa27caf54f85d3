package configstore

import (
	"errors"
	"net/url"
	"strings"
)

const (
	KindDynamics        = "dynamics"
	KindSAP             = "sap"
	KindBusinessCentral = "businesscentral"
)

const (
	defaultDynamicsAuthority  = "https://login.microsoftonline.com"
	defaultDynamicsAPIVersion = "v9.2"
	defaultSAPScope           = "openid"
	defaultBCExpiresIn        = 3600
)

type DynamicsConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	OrgURL       string `json:"org_url"`
	RedirectURI  string `json:"redirect_uri"`
	Authority    string `json:"authority"`
	APIVersion   string `json:"api_version"`
}

func (c DynamicsConfig) Normalized() DynamicsConfig {
	out := c
	out.TenantID = normalizeGUID(out.TenantID)
	if out.TenantID == "" {
		out.TenantID = "common"
	}
	out.ClientID = normalizeGUID(out.ClientID)
	out.ClientSecret = strings.TrimSpace(out.ClientSecret)
	out.OrgURL = normalizeBaseURL(out.OrgURL)
	out.RedirectURI = strings.TrimSpace(out.RedirectURI)
	out.Authority = normalizeBaseURL(out.Authority)
	if out.Authority == "" {
		out.Authority = defaultDynamicsAuthority
	}
	out.APIVersion = strings.TrimSpace(out.APIVersion)
	if out.APIVersion == "" {
		out.APIVersion = defaultDynamicsAPIVersion
	}
	return out
}

// AuthorizeURL is the tenant's authorization endpoint.
func (c DynamicsConfig) AuthorizeURL() string {
	c = c.Normalized()
	return c.Authority + "/" + url.PathEscape(c.TenantID) + "/oauth2/v2.0/authorize"
}

// TokenURL is the tenant's token endpoint.
func (c DynamicsConfig) TokenURL() string {
	c = c.Normalized()
	return c.Authority + "/" + url.PathEscape(c.TenantID) + "/oauth2/v2.0/token"
}

// APIBaseURL is the Web API root of the organization.
func (c DynamicsConfig) APIBaseURL() string {
	c = c.Normalized()
	return c.OrgURL + "/api/data/" + c.APIVersion
}

// Scopes returns the delegated scopes requested during authorization.
func (c DynamicsConfig) Scopes() []string {
	c = c.Normalized()
	return []string{c.OrgURL + "/user_impersonation", "offline_access", "openid", "email", "profile"}
}

func (c DynamicsConfig) Validate() error {
	c = c.Normalized()
	if c.ClientID == "" {
		return errors.New("Dynamics client ID is required")
	}
	if c.ClientSecret == "" {
		return errors.New("Dynamics client secret is required")
	}
	if c.OrgURL == "" {
		return errors.New("Dynamics organization URL is required")
	}
	if c.RedirectURI == "" {
		return errors.New("Dynamics redirect URI is required")
	}
	return nil
}

type SAPConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url"`
	TokenURL     string   `json:"token_url"`
	APIBase      string   `json:"api_base"`
	RedirectURI  string   `json:"redirect_uri"`
	Scopes       []string `json:"scopes"`
	// IssuerURL enables identity token verification when set.
	IssuerURL string `json:"issuer_url"`
}

func (c SAPConfig) Normalized() SAPConfig {
	out := c
	out.ClientID = strings.TrimSpace(out.ClientID)
	out.ClientSecret = strings.TrimSpace(out.ClientSecret)
	out.AuthURL = strings.TrimSpace(out.AuthURL)
	out.TokenURL = strings.TrimSpace(out.TokenURL)
	out.APIBase = normalizeBaseURL(out.APIBase)
	out.RedirectURI = strings.TrimSpace(out.RedirectURI)
	out.IssuerURL = strings.TrimSpace(out.IssuerURL)
	out.Scopes = normalizeScopes(out.Scopes)
	if len(out.Scopes) == 0 {
		out.Scopes = []string{defaultSAPScope}
	}
	return out
}

func (c SAPConfig) Validate() error {
	c = c.Normalized()
	if c.ClientID == "" {
		return errors.New("SAP client ID is required")
	}
	if c.ClientSecret == "" {
		return errors.New("SAP client secret is required")
	}
	if c.AuthURL == "" || c.TokenURL == "" {
		return errors.New("SAP authorization and token URLs are required")
	}
	if c.APIBase == "" {
		return errors.New("SAP API base URL is required")
	}
	if c.RedirectURI == "" {
		return errors.New("SAP redirect URI is required")
	}
	return nil
}

type BusinessCentralConfig struct {
	BaseURL     string `json:"base_url"`
	Company     string `json:"company"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	SigningKey  string `json:"signing_key"`
	FrontendURL string `json:"frontend_url"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c BusinessCentralConfig) Normalized() BusinessCentralConfig {
	out := c
	out.BaseURL = normalizeBaseURL(out.BaseURL)
	out.Company = strings.TrimSpace(out.Company)
	out.Username = strings.TrimSpace(out.Username)
	out.Email = strings.ToLower(strings.TrimSpace(out.Email))
	if out.Email == "" && strings.Contains(out.Username, "@") {
		out.Email = strings.ToLower(out.Username)
	}
	out.SigningKey = strings.TrimSpace(out.SigningKey)
	out.FrontendURL = strings.TrimRight(strings.TrimSpace(out.FrontendURL), "/")
	if out.ExpiresIn <= 0 {
		out.ExpiresIn = defaultBCExpiresIn
	}
	return out
}

// ODataBaseURL is the company-scoped OData root.
func (c BusinessCentralConfig) ODataBaseURL() string {
	c = c.Normalized()
	if c.Company == "" {
		return c.BaseURL + "/ODataV4"
	}
	return c.BaseURL + "/ODataV4/Company('" + url.PathEscape(c.Company) + "')"
}

func (c BusinessCentralConfig) Validate() error {
	c = c.Normalized()
	if c.BaseURL == "" {
		return errors.New("Business Central base URL is required")
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("Business Central username and password are required")
	}
	if c.Email == "" {
		return errors.New("Business Central identity email is required")
	}
	if c.SigningKey == "" {
		return errors.New("Business Central signing key is required")
	}
	if c.FrontendURL == "" {
		return errors.New("frontend URL is required")
	}
	return nil
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}

func normalizeGUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	return strings.TrimSpace(s)
}

func normalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// IssuerURL is the OpenID issuer of the tenant, or "" for the multi-tenant endpoints whose
// tokens carry a per-tenant issuer.
func (c DynamicsConfig) IssuerURL() string {
	c = c.Normalized()
	switch c.TenantID {
	case "common", "organizations", "consumers":
		return ""
	}
	return c.Authority + "/" + url.PathEscape(c.TenantID) + "/v2.0"
}
