package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/erpbridge/erpbridge/internal/moduleconfig"
)

func TestReadModules(t *testing.T) {
	t.Parallel()

	got, err := readModules(strings.NewReader(`[
		{"module": "leads", "endpoint": "leads", "fieldMappings": {"id": "leadid"}},
		{"module": "projects", "enabled": false, "endpoint": "msdyn_projects", "sortOrder": 9}
	]`))
	if err != nil {
		t.Fatalf("readModules: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("modules = %d, want 2", len(got))
	}
	if !got[0].Enabled || got[0].FieldMappings["id"] != "leadid" {
		t.Fatalf("first module = %+v", got[0])
	}
	if got[1].Enabled || got[1].SortOrder != 9 {
		t.Fatalf("second module = %+v", got[1])
	}
}

func TestReadModulesRejects(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		`{"module": "leads"}`,
		`[{"endpoint": "leads"}]`,
		`[{"module": "leads", "unknown": 1}]`,
	} {
		if _, err := readModules(strings.NewReader(input)); err == nil {
			t.Fatalf("expected error for %s", input)
		}
	}
}

func TestWriteModules(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := writeModules(&out, []moduleconfig.Resolved{
		{Module: "leads", Source: moduleconfig.SourceDefault, Endpoint: "leads", FieldMappings: map[string]string{"id": "leadid", "name": "fullname"}},
	})
	if err != nil {
		t.Fatalf("writeModules: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "MODULE") {
		t.Fatalf("output = %q", out.String())
	}
	if fields := strings.Fields(lines[1]); len(fields) != 4 || fields[0] != "leads" || fields[3] != "2" {
		t.Fatalf("row = %q", lines[1])
	}
}
