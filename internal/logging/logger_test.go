package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLoadConfigFromEnv(t *testing.T) {
	cases := []struct {
		name    string
		format  string
		level   string
		want    Config
		wantErr bool
	}{
		{name: "defaults", want: Config{Format: "json", Level: slog.LevelInfo}},
		{name: "text debug", format: "text", level: "debug", want: Config{Format: "text", Level: slog.LevelDebug}},
		{name: "warning alias", format: " JSON ", level: "Warning", want: Config{Format: "json", Level: slog.LevelWarn}},
		{name: "invalid format", format: "yaml", wantErr: true},
		{name: "invalid level", level: "trace", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(EnvFormat, tc.format)
			t.Setenv(EnvLevel, tc.level)

			cfg, err := LoadConfigFromEnv()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfigFromEnv() error = %v", err)
			}
			if cfg != tc.want {
				t.Fatalf("config = %+v, want %+v", cfg, tc.want)
			}
		})
	}
}

func decodeLine(t *testing.T, out *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected JSON log line")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	return payload
}

func TestNewLogger_JSONIncludesStaticAttrs(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(DefaultConfig(), &out, "erpbridge serve")
	logger.Info("hello", "provider", "sap")

	payload := decodeLine(t, &out)
	if got := payload["app"]; got != "erpbridge" {
		t.Fatalf("app = %v, want %q", got, "erpbridge")
	}
	if got := payload["command"]; got != "erpbridge serve" {
		t.Fatalf("command = %v, want %q", got, "erpbridge serve")
	}
	if got := payload["provider"]; got != "sap" {
		t.Fatalf("provider = %v", got)
	}
}

func TestNewLogger_DefaultsCommand(t *testing.T) {
	var out bytes.Buffer
	NewLogger(DefaultConfig(), &out, "  ").Info("hello")
	if got := decodeLine(t, &out)["command"]; got != "erpbridge" {
		t.Fatalf("command = %v, want %q", got, "erpbridge")
	}
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(DefaultConfig(), &out, "")
	logger.Info("token exchanged", "access_token", "secret-at", "Refresh_Token", "secret-rt", "tenant_id", "t1")

	payload := decodeLine(t, &out)
	if payload["access_token"] != redacted || payload["Refresh_Token"] != redacted {
		t.Fatalf("tokens not redacted: %v", payload)
	}
	if payload["tenant_id"] != "t1" {
		t.Fatalf("tenant_id = %v", payload["tenant_id"])
	}
	if strings.Contains(out.String(), "secret-") {
		t.Fatalf("secret leaked: %s", out.String())
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(Config{Format: "text", Level: slog.LevelWarn}, &out, "")
	logger.Info("dropped")
	if out.Len() != 0 {
		t.Fatalf("info line should be filtered, got %q", out.String())
	}
	logger.Warn("kept")
	if !strings.Contains(out.String(), "msg=kept") {
		t.Fatalf("warn line missing: %q", out.String())
	}
}
