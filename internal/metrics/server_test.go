package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerReadiness(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		ready ReadyFunc
		want  int
	}{
		{name: "no check", want: http.StatusOK},
		{name: "healthy", ready: func(context.Context) error { return nil }, want: http.StatusOK},
		{name: "store down", ready: func(context.Context) error { return errors.New("dial tcp: refused") }, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			Handler(tc.ready).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	t.Parallel()
	AuthFlowsTotal.WithLabelValues("sap", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "erpbridge_auth_flows_total") {
		t.Fatalf("auth flow counter missing from output")
	}
}

func TestStartServerDisabled(t *testing.T) {
	t.Parallel()
	for _, addr := range []string{"", " off ", "disabled"} {
		if srv, errCh := StartServer(context.Background(), addr, nil); srv != nil || errCh != nil {
			t.Fatalf("addr %q should disable the server", addr)
		}
	}
}
