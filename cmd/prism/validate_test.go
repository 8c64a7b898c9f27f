package main

import (
	"strings"
	"testing"

	"mercator-hq/prism/pkg/cli"
)

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, `
providers:
  local:
    client: echo
    models: ["echo-*"]
  openai:
    base_url: https://api.openai.com/v1
    api_key: sk-test
routing:
  strategy: least-in-flight
audit:
  driver: memory
`)

	out, err := execute(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	for _, want := range []string{"local", "sdk", "echo-*", "openai", "rest", "configuration valid: 2 providers, strategy least-in-flight"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown sdk client", "providers:\n  local:\n    client: no-such-client\naudit:\n  driver: memory\n"},
		{"bad strategy", "routing:\n  strategy: coin-flip\naudit:\n  driver: memory\n"},
		{"bad yaml", "providers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "validate", "--config", writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			if code := cli.ExitCode(err); code != cli.ExitConfig {
				t.Errorf("exit code = %d, want %d (%v)", code, cli.ExitConfig, err)
			}
		})
	}

	if _, err := execute(t, "validate", "--config", "/nonexistent/prism.yaml"); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("missing file error = %v", err)
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	path := writeConfig(t, "providers:\n  local:\n    client: echo\naudit:\n  driver: memory\n")
	out, err := execute(t, "run", "--config", path, "--dry-run", "--log-level", "warn")
	if err != nil {
		t.Fatalf("run --dry-run error = %v", err)
	}
	if !strings.Contains(out, "is valid (1 providers)") {
		t.Errorf("output = %q", out)
	}
}
