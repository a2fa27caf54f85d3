// Package dynamics is the connector for the Dynamics 365 Web API.
package dynamics

import (
	"context"
	"net/http"
	"time"

	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/erpbridge/erpbridge/internal/connectors/oauthflow"
	"github.com/erpbridge/erpbridge/internal/connectors/odata"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/store"
)

// Default entity sets per module.
const (
	EndpointLeads    = "leads"
	EndpointContacts = "contacts"
	EndpointFinance  = "invoices"
)

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// AuthorizeURL and TokenURL override the tenant endpoints derived from the configuration.
	AuthorizeURL string
	TokenURL     string
}

type Connector struct {
	registry.UnimplementedConnector

	flow *oauthflow.Flow
	data *odata.Client
}

func New(cfg configstore.DynamicsConfig, opts Options) (*Connector, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil && opts.Timeout > 0 {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	authorizeURL := cfg.AuthorizeURL()
	if opts.AuthorizeURL != "" {
		authorizeURL = opts.AuthorizeURL
	}
	tokenURL := cfg.TokenURL()
	if opts.TokenURL != "" {
		tokenURL = opts.TokenURL
	}

	flow, err := oauthflow.New(oauthflow.Options{
		Provider:     configstore.KindDynamics,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      authorizeURL,
		TokenURL:     tokenURL,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes(),
		HTTPClient:   httpClient,
		AuthParams:   map[string]string{"response_mode": "query"},
	})
	if err != nil {
		return nil, err
	}

	data, err := odata.New(odata.Options{
		Provider:   configstore.KindDynamics,
		BaseURL:    cfg.APIBaseURL(),
		HTTPClient: httpClient,
		Timeout:    opts.Timeout,
		Envelope:   odata.EnvelopeV4,
		Headers: map[string]string{
			"OData-Version":    "4.0",
			"OData-MaxVersion": "4.0",
			"Prefer":           `odata.include-annotations="OData.Community.Display.V1.FormattedValue"`,
		},
	})
	if err != nil {
		return nil, err
	}

	return &Connector{flow: flow, data: data}, nil
}

func (c *Connector) Kind() string { return configstore.KindDynamics }

func (c *Connector) DisplayName() string { return "Microsoft Dynamics 365" }

func (c *Connector) AuthURL(state string) (string, error) {
	return c.flow.AuthCodeURL(state), nil
}

func (c *Connector) Authenticate(ctx context.Context, code string) (registry.Tokens, error) {
	return c.flow.Exchange(ctx, code)
}

func (c *Connector) RefreshToken(ctx context.Context, refreshToken string) (registry.Tokens, error) {
	return c.flow.Refresh(ctx, refreshToken)
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
	return c.data.List(ctx, req.AccessToken, endpoint, odata.Query{Top: req.Top, Filter: req.Filter})
}
