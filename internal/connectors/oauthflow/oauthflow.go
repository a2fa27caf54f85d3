// Package oauthflow wraps golang.org/x/oauth2 for the authorization-code and refresh-token grants
// used by the OAuth adapters, mapping token endpoint failures to registry.UpstreamAuthError.
package oauthflow

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/metrics"
	"golang.org/x/oauth2"
)

const defaultTimeout = 60 * time.Second

type Options struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
	// AuthParams are extra query parameters added to the authorization URL.
	AuthParams map[string]string
}

type Flow struct {
	provider   string
	cfg        oauth2.Config
	http       *http.Client
	authParams []oauth2.AuthCodeOption
	now        func() time.Time
}

func New(opts Options) (*Flow, error) {
	provider := strings.TrimSpace(opts.Provider)
	if provider == "" {
		return nil, errors.New("oauth provider is required")
	}
	if strings.TrimSpace(opts.ClientID) == "" {
		return nil, errors.New(provider + " oauth client id is required")
	}
	if strings.TrimSpace(opts.AuthURL) == "" || strings.TrimSpace(opts.TokenURL) == "" {
		return nil, errors.New(provider + " oauth endpoints are required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	params := make([]oauth2.AuthCodeOption, 0, len(opts.AuthParams))
	for k, v := range opts.AuthParams {
		params = append(params, oauth2.SetAuthURLParam(k, v))
	}

	return &Flow{
		provider: provider,
		cfg: oauth2.Config{
			ClientID:     strings.TrimSpace(opts.ClientID),
			ClientSecret: strings.TrimSpace(opts.ClientSecret),
			Endpoint: oauth2.Endpoint{
				AuthURL:   strings.TrimSpace(opts.AuthURL),
				TokenURL:  strings.TrimSpace(opts.TokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: strings.TrimSpace(opts.RedirectURL),
			Scopes:      opts.Scopes,
		},
		http:       httpClient,
		authParams: params,
		now:        time.Now,
	}, nil
}

// AuthCodeURL builds the authorization URL. An empty state is omitted.
func (f *Flow) AuthCodeURL(state string) string {
	return f.cfg.AuthCodeURL(strings.TrimSpace(state), f.authParams...)
}

// Exchange trades an authorization code for tokens.
func (f *Flow) Exchange(ctx context.Context, code string) (registry.Tokens, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return registry.Tokens{}, &registry.UpstreamAuthError{Provider: f.provider, Err: errors.New("authorization code is required")}
	}
	start := time.Now()
	tok, err := f.cfg.Exchange(f.clientContext(ctx), code)
	f.observe("exchange", start, err)
	if err != nil {
		return registry.Tokens{}, f.authError(err)
	}
	return f.tokens(tok), nil
}

// Refresh trades a refresh token for a new access token.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (registry.Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return registry.Tokens{}, &registry.UpstreamAuthError{Provider: f.provider, Err: errors.New("refresh token is required")}
	}
	start := time.Now()
	src := f.cfg.TokenSource(f.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	f.observe("refresh", start, err)
	if err != nil {
		return registry.Tokens{}, f.authError(err)
	}
	return f.tokens(tok), nil
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.http)
}

func (f *Flow) tokens(tok *oauth2.Token) registry.Tokens {
	out := registry.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	if out.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(tok.Expiry.Sub(f.now()).Round(time.Second) / time.Second)
	}
	return out
}

func (f *Flow) authError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		out := &registry.UpstreamAuthError{Provider: f.provider, Body: string(re.Body), Err: err}
		if re.Response != nil {
			out.StatusCode = re.Response.StatusCode
		}
		return out
	}
	return &registry.UpstreamAuthError{Provider: f.provider, Err: err}
}

func (f *Flow) observe(operation string, start time.Time, err error) {
	status := "ok"
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &re) && re.Response != nil:
		status = strconv.Itoa(re.Response.StatusCode)
	case err != nil:
		status = "error"
	}
	metrics.UpstreamRequestDuration.WithLabelValues(f.provider, operation, status).Observe(time.Since(start).Seconds())
}
