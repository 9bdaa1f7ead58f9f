// ABOUTME: Tests for configuration loading and parsing.
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

agents:
  default: "claude"
  failover_enabled: true
  response_timeout: "90s"
  idle_timeout: "1500ms"
  settle_timeout: "2s"
  stop_grace: "4s"

providers:
  claude:
    enabled: true
    command: "claude"
    base_args: ["--print"]
  codex:
    enabled: true
    command: "codex"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Agents.Default != "claude" {
		t.Errorf("expected default claude, got %q", cfg.Agents.Default)
	}
	if !cfg.Agents.FailoverEnabled {
		t.Error("expected failover enabled")
	}
	if cfg.Agents.ResponseTimeout != 90*time.Second {
		t.Errorf("expected 90s response timeout, got %v", cfg.Agents.ResponseTimeout)
	}
	if cfg.Agents.IdleTimeout != 1500*time.Millisecond {
		t.Errorf("expected 1500ms idle timeout, got %v", cfg.Agents.IdleTimeout)
	}
	if cfg.Providers.Claude.Command != "claude" {
		t.Errorf("expected claude command, got %q", cfg.Providers.Claude.Command)
	}
	if len(cfg.Providers.Claude.BaseArgs) != 1 || cfg.Providers.Claude.BaseArgs[0] != "--print" {
		t.Errorf("unexpected base args: %v", cfg.Providers.Claude.BaseArgs)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json logging, got %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_AGENT_CMD", "/usr/local/bin/claude")

	configPath := writeConfig(t, `
database:
  path: "./test.db"
agents:
  default: "claude"
providers:
  claude:
    enabled: true
    command: "${TEST_AGENT_CMD}"
  codex:
    enabled: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.Claude.Command != "/usr/local/bin/claude" {
		t.Errorf("expected expanded command, got %q", cfg.Providers.Claude.Command)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
agents:
  default: "codex"
providers:
  claude:
    enabled: false
  codex:
    enabled: true
    command: "codex"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agents.ResponseTimeout != DefaultResponseTimeout {
		t.Errorf("expected default response timeout, got %v", cfg.Agents.ResponseTimeout)
	}
	if cfg.Agents.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("expected default idle timeout, got %v", cfg.Agents.IdleTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
agents:
  default: "claude"
  idle_timeout: "not-a-duration"
providers:
  claude:
    enabled: true
    command: "claude"
  codex:
    enabled: false
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "idle_timeout") {
		t.Errorf("expected idle_timeout in error, got %v", err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing database path",
			content: `
agents:
  default: "claude"
providers:
  claude:
    enabled: true
    command: "claude"
`,
			wantErr: "database.path",
		},
		{
			name: "unknown default provider",
			content: `
database:
  path: "./test.db"
agents:
  default: "gemini"
providers:
  claude:
    enabled: true
    command: "claude"
`,
			wantErr: "agents.default",
		},
		{
			name: "default provider disabled",
			content: `
database:
  path: "./test.db"
agents:
  default: "codex"
providers:
  claude:
    enabled: true
    command: "claude"
  codex:
    enabled: false
`,
			wantErr: "not enabled",
		},
		{
			name: "enabled provider without command",
			content: `
database:
  path: "./test.db"
agents:
  default: "claude"
providers:
  claude:
    enabled: true
`,
			wantErr: "command is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
