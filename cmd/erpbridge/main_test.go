package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
)

func TestReportFailure_StructuredForScopedCommands(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "erpbridge refresh",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	reportFailure(errors.New("boom"), exitUpstream, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	want := map[string]any{
		"app":       "erpbridge",
		"command":   "erpbridge refresh",
		"msg":       "erp upstream failed",
		"exit_code": float64(exitUpstream),
		"err":       "boom",
	}
	for k, v := range want {
		if payload[k] != v {
			t.Fatalf("%s = %v, want %v", k, payload[k], v)
		}
	}
}

func TestReportFailure_PlainOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "erpbridge providers",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	reportFailure(errors.New("plain boom"), exitFailure, &out)
	if got := out.String(); got != "plain boom\n" {
		t.Fatalf("output = %q, want %q", got, "plain boom\n")
	}
}

func TestRunExitStatus(t *testing.T) {
	resetCommandExecutionContext()
	t.Cleanup(resetCommandExecutionContext)

	rejected := &registry.UpstreamAuthError{Provider: "sap", StatusCode: http.StatusBadRequest, Body: "invalid_grant"}
	tests := []struct {
		name string
		err  error
		want int
		out  string
	}{
		{name: "ok", want: exitOK},
		{name: "plain error", err: errors.New("boom"), want: exitFailure, out: "boom\n"},
		{name: "canceled", err: fmt.Errorf("serve: %w", context.Canceled), want: exitInterrupted, out: "canceled\n"},
		{name: "usage", err: newUsageError("invalid credential id %q", "x"), want: exitUsage, out: "invalid credential id \"x\"\n"},
		{name: "upstream auth", err: fmt.Errorf("refresh: %w", rejected), want: exitUpstream, out: "refresh: " + rejected.Error() + "\n"},
		{name: "upstream data", err: &registry.UpstreamDataError{Provider: "dynamics", Endpoint: "leads", StatusCode: 503}, want: exitUpstream},
		{name: "unreachable", err: fmt.Errorf("list: %w", context.DeadlineExceeded), want: exitUpstream},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			got := run(func() error { return tc.err }, &out)
			if got != tc.want {
				t.Fatalf("exit status = %d, want %d", got, tc.want)
			}
			if tc.out != "" && out.String() != tc.out {
				t.Fatalf("output = %q, want %q", out.String(), tc.out)
			}
			if tc.err == nil && out.Len() != 0 {
				t.Fatalf("unexpected output %q", out.String())
			}
		})
	}
}
