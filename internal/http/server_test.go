package httpapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/erpbridge/erpbridge/internal/authflow"
	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/connectors/sap"
	"github.com/erpbridge/erpbridge/internal/erpdata"
	"github.com/erpbridge/erpbridge/internal/http/handlers"
	"github.com/erpbridge/erpbridge/internal/moduleconfig"
	"github.com/erpbridge/erpbridge/internal/store/memstore"
	"github.com/labstack/echo/v5"
)

const frontendURL = "https://dashboard.example.com/auth/complete"

func idToken(payload string) string {
	return "eyJhbGciOiJSUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth/token":
			_ = r.ParseForm()
			switch {
			case r.PostForm.Get("grant_type") == "refresh_token":
				_, _ = w.Write([]byte(`{"access_token":"sap-access-2","expires_in":1800,"token_type":"Bearer"}`))
			case r.PostForm.Get("code") == "good-code":
				_, _ = w.Write([]byte(`{"access_token":"sap-access","refresh_token":"sap-refresh","id_token":"` +
					idToken(`{"email":"alice@acme.com"}`) + `","expires_in":3600,"token_type":"Bearer"}`))
			default:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			}
		case "/odata/" + sap.EndpointLeads:
			if r.Header.Get("Authorization") != "Bearer sap-access" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"d":{"results":[{"BusinessPartner":"1000","BusinessPartnerFullName":"Acme Ltd","OrganizationBPName1":"Acme"}]}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":{"value":"boom"}}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	server   *httptest.Server
	store    *memstore.Store
	upstream *httptest.Server
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	upstream := newUpstream(t)
	conn, err := sap.New(configstore.SAPConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      upstream.URL + "/oauth/authorize",
		TokenURL:     upstream.URL + "/oauth/token",
		APIBase:      upstream.URL + "/odata",
		RedirectURI:  "https://api.example.com/auth/sap/callback",
	}, sap.Options{HTTPClient: upstream.Client()})
	if err != nil {
		t.Fatalf("sap.New: %v", err)
	}
	reg := registry.NewRegistry()
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memstore.New()
	orch, err := authflow.New(authflow.Options{Registry: reg, Store: st, FrontendURL: frontendURL, Logger: logger})
	if err != nil {
		t.Fatalf("authflow.New: %v", err)
	}
	resolver := moduleconfig.NewResolver(st, moduleconfig.Options{Logger: logger})

	es := NewEchoServer(&handlers.Handlers{
		Registry:    reg,
		Auth:        orch,
		Data:        &erpdata.Service{Registry: reg, Resolver: resolver, Credentials: st, Logger: logger},
		Modules:     resolver,
		Credentials: st,
		Sessions:    scs.New(),
	})
	es.e.Logger = logger
	srv := httptest.NewServer(es.Handler())
	t.Cleanup(srv.Close)
	return testApp{server: srv, store: st, upstream: upstream}
}

func (a testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, rawURL, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

// login runs the authorization flow the way a browser does and returns the callback response.
func login(t *testing.T, app testApp, c *http.Client, code string) *http.Response {
	t.Helper()
	start := get(t, c, app.server.URL+"/auth/sap", "")
	if start.StatusCode != http.StatusFound {
		t.Fatalf("start status = %d", start.StatusCode)
	}
	authURL, err := url.Parse(start.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	state := authURL.Query().Get("state")
	if state == "" {
		t.Fatalf("auth url %q carries no state", authURL)
	}
	return get(t, c, app.server.URL+"/auth/sap/callback?code="+url.QueryEscape(code)+"&state="+url.QueryEscape(state), "")
}

func TestLoginAndReadModule(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	c := app.client(t)

	start := get(t, c, app.server.URL+"/auth/sap", "")
	if start.StatusCode != http.StatusFound {
		t.Fatalf("start status = %d", start.StatusCode)
	}
	authURL, err := url.Parse(start.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	state := authURL.Query().Get("state")
	if state == "" || !strings.HasPrefix(authURL.String(), app.upstream.URL+"/oauth/authorize") {
		t.Fatalf("unexpected auth url %q", authURL)
	}

	cb := get(t, c, app.server.URL+"/auth/sap/callback?code=good-code&state="+url.QueryEscape(state), "")
	if cb.StatusCode != http.StatusFound {
		t.Fatalf("callback status = %d", cb.StatusCode)
	}
	redirect, err := url.Parse(cb.Header.Get("Location"))
	if err != nil || !strings.HasPrefix(redirect.String(), frontendURL) {
		t.Fatalf("unexpected redirect %q", cb.Header.Get("Location"))
	}
	token := redirect.Query().Get("access_token")
	if token != "sap-access" || redirect.Query().Get("provider") != "sap" {
		t.Fatalf("redirect query = %v", redirect.Query())
	}

	data := get(t, c, app.server.URL+"/api/sap/leads?top=10", token)
	if data.StatusCode != http.StatusOK {
		t.Fatalf("data status = %d", data.StatusCode)
	}
	body := decode(t, data)
	records, _ := body["records"].([]any)
	if len(records) != 1 {
		t.Fatalf("records = %v", body["records"])
	}
	rec := records[0].(map[string]any)
	if rec["id"] != "1000" || rec["company"] != "Acme" || rec["provider"] != "sap" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["email"]; !ok {
		t.Fatalf("email key must be present")
	}

	modules := decode(t, get(t, c, app.server.URL+"/api/sap/modules", token))
	if list, _ := modules["modules"].([]any); len(list) != 3 {
		t.Fatalf("modules = %v", modules["modules"])
	}
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	c := app.client(t)

	get(t, c, app.server.URL+"/auth/sap", "")
	resp := get(t, c, app.server.URL+"/auth/sap/callback?code=good-code&state=forged", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if n := len(app.store.Credentials()); n != 0 {
		t.Fatalf("credentials = %d, want 0", n)
	}
}

func TestCallbackRequiresStartedFlow(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	c := app.client(t)

	for _, path := range []string{
		"/auth/sap/callback?code=good-code",
		"/auth/sap/callback?code=good-code&state=guessed",
	} {
		resp := get(t, c, app.server.URL+path, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, resp.StatusCode)
		}
	}
	if n := len(app.store.Credentials()); n != 0 {
		t.Fatalf("credentials = %d, want 0", n)
	}

	if resp := login(t, app, c, "bad"); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("bad code status = %d, want 502", resp.StatusCode)
	}

	// The state is single use.
	first := login(t, app, c, "good-code")
	if first.StatusCode != http.StatusFound {
		t.Fatalf("callback status = %d", first.StatusCode)
	}
	state := first.Request.URL.Query().Get("state")
	replay := get(t, c, app.server.URL+"/auth/sap/callback?code=good-code&state="+url.QueryEscape(state), "")
	if replay.StatusCode != http.StatusBadRequest {
		t.Fatalf("replayed state status = %d, want 400", replay.StatusCode)
	}
}

func TestErrorStatuses(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	c := app.client(t)

	cases := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "unsupported provider start", path: "/auth/netsuite", want: http.StatusNotFound},
		{name: "unsupported provider data", path: "/api/netsuite/leads", token: "x", want: http.StatusNotFound},
		{name: "provider error", path: "/auth/sap/callback?error=access_denied", want: http.StatusBadRequest},
		{name: "unknown token", path: "/api/sap/leads", token: "nope", want: http.StatusUnauthorized},
		{name: "missing token", path: "/api/sap/leads", want: http.StatusUnauthorized},
		{name: "bad top", path: "/api/sap/leads?top=0", token: "x", want: http.StatusBadRequest},
		{name: "unknown route", path: "/nowhere", want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := get(t, c, app.server.URL+tc.path, tc.token)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestRefreshRequiresOwningToken(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	c := app.client(t)

	if cb := login(t, app, c, "good-code"); cb.StatusCode != http.StatusFound {
		t.Fatalf("callback status = %d", cb.StatusCode)
	}
	creds := app.store.Credentials()
	if len(creds) != 1 {
		t.Fatalf("credentials = %d", len(creds))
	}
	refreshURL := app.server.URL + "/api/credentials/" + creds[0].ID.String() + "/refresh"

	post := func(token string) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, refreshURL, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	if resp := post("someone-else"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	resp := post("sap-access")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := decode(t, resp); body["access_token"] != "sap-access-2" {
		t.Fatalf("body = %v", body)
	}
}

func TestProviders(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	body := decode(t, get(t, app.client(t), app.server.URL+"/api/providers", ""))
	list, _ := body["providers"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["id"] != "sap" {
		t.Fatalf("providers = %v", body["providers"])
	}
}

func TestStatusForError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{&registry.UnsupportedProviderError{Provider: "x"}, http.StatusNotFound},
		{&moduleconfig.ConfigurationNotFoundError{Provider: "sap", Module: "projects"}, http.StatusNotFound},
		{&authflow.StepError{Provider: "sap", Err: &registry.IdentityDecodeError{Reason: "bad"}}, http.StatusBadRequest},
		{&registry.UpstreamDataError{Provider: "sap", StatusCode: 500}, http.StatusBadGateway},
		{erpdata.ErrUnknownCredential, http.StatusUnauthorized},
		{erpdata.ErrProviderMismatch, http.StatusForbidden},
		{registry.ErrNotImplemented, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := handlers.StatusForError(tc.err); got != tc.want {
			t.Fatalf("StatusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHTTPErrorHandlerInternalErrorIsGeneric(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(handlers.ContextKeyRequestID, "req-123")

	es := &EchoServer{h: &handlers.Handlers{}, e: e}
	es.httpErrorHandler(c, errors.New("very sensitive error"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusInternalServerError)
	}
	body := rec.Body.String()
	if strings.Contains(body, "very sensitive") {
		t.Fatalf("response leaked error details: %q", body)
	}
	if !strings.Contains(body, "Reference: req-123") || !strings.Contains(body, handlers.InternalErrorCode) {
		t.Fatalf("response missing reference or code: %q", body)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	resp := get(t, app.client(t), app.server.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get(echo.HeaderXRequestID); got == "" {
		t.Fatalf("missing request id header")
	}

	down := &handlers.Handlers{Ping: func(context.Context) error { return errors.New("down") }}
	e := echo.New()
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	if err := down.HandleHealthz(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)); err != nil {
		t.Fatalf("HandleHealthz: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
