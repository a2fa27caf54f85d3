// Package sap is the connector for SAP S/4HANA Cloud OData v2 services.
package sap

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

const (
	EndpointLeads    = "API_BUSINESS_PARTNER/A_BusinessPartner"
	EndpointContacts = "API_BUSINESS_PARTNER/A_BPContactToFuncAndDept"
	EndpointFinance  = "API_JOURNALENTRYITEMBASIC_SRV/A_JournalEntryItemBasic"
)

// defaultTop bounds reads that do not set $top; v2 services otherwise page server-side.
const defaultTop = 100

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Connector struct {
	registry.UnimplementedConnector

	flow *oauthflow.Flow
	data *odata.Client
}

func New(cfg configstore.SAPConfig, opts Options) (*Connector, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil && opts.Timeout > 0 {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	flow, err := oauthflow.New(oauthflow.Options{
		Provider:     configstore.KindSAP,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, err
	}

	data, err := odata.New(odata.Options{
		Provider:   configstore.KindSAP,
		BaseURL:    cfg.APIBase,
		HTTPClient: httpClient,
		Timeout:    opts.Timeout,
		Envelope:   odata.EnvelopeV2,
		Format:     "json",
	})
	if err != nil {
		return nil, err
	}

	return &Connector{flow: flow, data: data}, nil
}

func (c *Connector) Kind() string { return configstore.KindSAP }

func (c *Connector) DisplayName() string { return "SAP S/4HANA Cloud" }

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
	top := req.Top
	if top <= 0 {
		top = defaultTop
	}
	return c.data.List(ctx, req.AccessToken, endpoint, odata.Query{Top: top, Filter: req.Filter})
}
