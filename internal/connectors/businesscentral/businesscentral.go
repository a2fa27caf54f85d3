// Package businesscentral is the connector for an on-premises Business Central instance. The
// service speaks HTTP Basic only, so authentication is synthesized locally: the access token is the
// encoded credential pair and the identity token is signed with a configured key.
package businesscentral

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/erpbridge/erpbridge/internal/connectors/odata"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/golang-jwt/jwt"
)

const (
	EndpointLeads    = "Customers"
	EndpointContacts = "Contacts"
	EndpointFinance  = "SalesInvoices"
)

const (
	defaultTop    = 50
	tokenIssuer   = "erpbridge/businesscentral"
	tokenTypeBase = "Basic"
)

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Now        func() time.Time
}

type Connector struct {
	registry.UnimplementedConnector

	cfg  configstore.BusinessCentralConfig
	data *odata.Client
	now  func() time.Time
}

func New(cfg configstore.BusinessCentralConfig, opts Options) (*Connector, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	data, err := odata.New(odata.Options{
		Provider:   configstore.KindBusinessCentral,
		BaseURL:    cfg.ODataBaseURL(),
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.Timeout,
		Envelope:   odata.EnvelopeV4,
		Authorizer: odata.Basic,
	})
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Connector{cfg: cfg, data: data, now: now}, nil
}

func (c *Connector) Kind() string { return configstore.KindBusinessCentral }

func (c *Connector) DisplayName() string { return "Dynamics 365 Business Central" }

// AuthURL skips the OAuth dance and sends the user straight back to the frontend in basic mode.
func (c *Connector) AuthURL(state string) (string, error) {
	u, err := url.Parse(c.cfg.FrontendURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("provider", configstore.KindBusinessCentral)
	q.Set("auth", "basic")
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Authenticate ignores the code; credentials come from configuration.
func (c *Connector) Authenticate(_ context.Context, _ string) (registry.Tokens, error) {
	return c.issue()
}

// RefreshToken re-derives the basic credential. There is nothing to refresh upstream.
func (c *Connector) RefreshToken(_ context.Context, _ string) (registry.Tokens, error) {
	return c.issue()
}

func (c *Connector) issue() (registry.Tokens, error) {
	now := c.now()
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":                tokenIssuer,
		"sub":                c.cfg.Username,
		"preferred_username": c.cfg.Email,
		"email":              c.cfg.Email,
		"name":               c.cfg.Username,
		"iat":                now.Unix(),
		"exp":                now.Add(time.Duration(c.cfg.ExpiresIn) * time.Second).Unix(),
	}).SignedString([]byte(c.cfg.SigningKey))
	if err != nil {
		return registry.Tokens{}, &registry.UpstreamAuthError{
			Provider: configstore.KindBusinessCentral,
			Err:      errors.Join(errors.New("sign identity token"), err),
		}
	}

	return registry.Tokens{
		AccessToken: base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password)),
		IDToken:     idToken,
		TokenType:   tokenTypeBase,
		ExpiresIn:   c.cfg.ExpiresIn,
	}, nil
}

func (c *Connector) Leads(ctx context.Context, req registry.FetchRequest) ([]registry.Record, error) {
	return c.fetch(ctx, EndpointLeads, req)
}

func (c *Connector) Contacts(ctx context.Context, req registry.FetchRequest) ([]registry.Record, error) {
	return c.fetch(ctx, EndpointContacts, req)
}

func (c *Connector) FinanceData(ctx context.Context, req registry.FetchRequest) ([]registry.Record, error) {
	return c.fetch(ctx, EndpointFinance, req)
}

func (c *Connector) ModuleHandlers() map[string]registry.FetchFunc {
	return map[string]registry.FetchFunc{
		store.ModuleLeads:     c.Leads,
		store.ModuleContacts:  c.Contacts,
		store.ModuleFinance:   c.FinanceData,
		registry.ModuleCustom: c.custom,
	}
}

func (c *Connector) DecodeIdentityToken(token string) (registry.Claims, error) {
	return registry.DecodeIdentityToken(token)
}

func (c *Connector) custom(ctx context.Context, req registry.FetchRequest) ([]registry.Record, error) {
	return c.fetch(ctx, "", req)
}

func (c *Connector) fetch(ctx context.Context, fallbackEndpoint string, req registry.FetchRequest) ([]registry.Record, error) {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = fallbackEndpoint
	}
	top := req.Top
	if top <= 0 {
		top = defaultTop
	}
	return c.data.List(ctx, req.AccessToken, endpoint, odata.Query{Top: top, Filter: req.Filter})
}
