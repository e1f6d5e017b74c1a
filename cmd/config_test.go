package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newConfigCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"schema"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config schema error = %v", err)
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &schema); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !strings.Contains(out.String(), `"refresh_schedule"`) {
		t.Error("schema is missing server.refresh_schedule")
	}
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	agents := `
agents:
  - id: docs
    kind: static
    tools:
      - name: faq
        response: ok
`
	if err := os.WriteFile(good, []byte(agents), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("server:\n  refresh_schedule: whenever\n"+agents), 0o600); err != nil {
		t.Fatal(err)
	}

	old := configPath
	t.Cleanup(func() { configPath = old })

	configPath = good
	var out bytes.Buffer
	cmd := newConfigCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config validate error = %v", err)
	}
	if !strings.Contains(out.String(), "1 agent(s)") {
		t.Errorf("output = %q", out.String())
	}

	configPath = bad
	cmd = newConfigCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"validate"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for invalid refresh schedule")
	}
}
