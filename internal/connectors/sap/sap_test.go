package sap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
)

func newTestConnector(t *testing.T, srv *httptest.Server) *Connector {
	t.Helper()
	c, err := New(configstore.SAPConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/token",
		APIBase:      srv.URL + "/sap/opu/odata/sap",
		RedirectURI:  "https://app.example.com/auth/sap/callback",
	}, Options{HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestAuthURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := newTestConnector(t, srv)

	raw, err := c.AuthURL("xyz")
	if err != nil {
		t.Fatalf("AuthURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if u.Path != "/oauth/authorize" {
		t.Fatalf("path = %q", u.Path)
	}
	if q.Get("client_id") != "client" || q.Get("state") != "xyz" || q.Get("scope") != "openid" || q.Get("response_type") != "code" {
		t.Fatalf("unexpected query %v", q)
	}
	if q.Get("redirect_uri") != "https://app.example.com/auth/sap/callback" {
		t.Fatalf("redirect_uri = %q", q.Get("redirect_uri"))
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"bad code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","id_token":"h.p.s","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()
	c := newTestConnector(t, srv)

	tokens, err := c.Authenticate(context.Background(), "good")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if tokens.AccessToken != "at" || tokens.RefreshToken != "rt" || tokens.IDToken != "h.p.s" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if tokens.ExpiresIn < 3599 || tokens.ExpiresIn > 3600 {
		t.Fatalf("ExpiresIn = %d", tokens.ExpiresIn)
	}

	_, err = c.Authenticate(context.Background(), "bad")
	var authErr *registry.UpstreamAuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected UpstreamAuthError, got %v", err)
	}
	if authErr.StatusCode != http.StatusBadRequest || !strings.Contains(authErr.Body, "invalid_grant") {
		t.Fatalf("unexpected auth error %+v", authErr)
	}
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at2","expires_in":1800,"token_type":"Bearer"}`))
	}))
	defer srv.Close()
	c := newTestConnector(t, srv)

	tokens, err := c.RefreshToken(context.Background(), "rt")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if tokens.AccessToken != "at2" {
		t.Fatalf("AccessToken = %q", tokens.AccessToken)
	}
	if tokens.RefreshToken != "rt" {
		t.Fatalf("expected refresh token to be carried over, got %q", tokens.RefreshToken)
	}
}

func TestLeadsUnwrapsV2Envelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sap/opu/odata/sap/"+EndpointLeads {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer at" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("$format") != "json" || q.Get("$top") != "100" {
			t.Errorf("unexpected query %v", q)
		}
		if !strings.Contains(r.URL.RawQuery, "$format=json") {
			t.Errorf("expected literal $ in query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"d":{"results":[{"BusinessPartner":"1000001","BusinessPartnerFullName":"Acme"},{"BusinessPartner":"1000002"}]}}`))
	}))
	defer srv.Close()
	c := newTestConnector(t, srv)

	records, err := c.Leads(context.Background(), registry.FetchRequest{AccessToken: "at"})
	if err != nil {
		t.Fatalf("Leads: %v", err)
	}
	if len(records) != 2 || records[0]["BusinessPartnerFullName"] != "Acme" {
		t.Fatalf("unexpected records %v", records)
	}
}

func TestCustomModuleUsesRequestEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sap/opu/odata/sap/API_PRODUCT_SRV/A_Product" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("$filter"); got != "ProductType eq 'FERT'" {
			t.Errorf("$filter = %q", got)
		}
		_, _ = w.Write([]byte(`{"d":{"results":[]}}`))
	}))
	defer srv.Close()
	c := newTestConnector(t, srv)

	records, err := registry.Fetch(context.Background(), c, "products", registry.FetchRequest{
		AccessToken: "at",
		Endpoint:    "API_PRODUCT_SRV/A_Product",
		Filter:      "ProductType eq 'FERT'",
		Top:         5,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %v", records)
	}
}

func TestDataErrorCarriesStatusAndBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":{"value":"No authorization"}}}`))
	}))
	defer srv.Close()
	c := newTestConnector(t, srv)

	_, err := c.FinanceData(context.Background(), registry.FetchRequest{AccessToken: "at"})
	var dataErr *registry.UpstreamDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected UpstreamDataError, got %v", err)
	}
	if dataErr.StatusCode != http.StatusForbidden || !strings.Contains(dataErr.Body, "No authorization") {
		t.Fatalf("unexpected data error %+v", dataErr)
	}
	if dataErr.Endpoint != EndpointFinance {
		t.Fatalf("Endpoint = %q", dataErr.Endpoint)
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(configstore.SAPConfig{ClientID: "client"}, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
