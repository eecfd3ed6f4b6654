package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
bridge:
  url: ws://game:3080
bot:
  username: Reeve
agent:
  id: AGENT123
  alias_id: ALIAS456
  region: eu-west-1
  max_tool_round_trips: 4
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Bridge.URL != "ws://game:3080" {
		t.Errorf("bridge URL = %q", cfg.Bridge.URL)
	}
	if cfg.Bot.Username != "Reeve" {
		t.Errorf("username = %q", cfg.Bot.Username)
	}
	if cfg.Agent.ID != "AGENT123" || cfg.Agent.AliasID != "ALIAS456" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Agent.Region != "eu-west-1" {
		t.Errorf("region = %q", cfg.Agent.Region)
	}
	if cfg.Agent.MaxToolRoundTrips != 4 {
		t.Errorf("max round trips = %d, want 4", cfg.Agent.MaxToolRoundTrips)
	}
	// Unset fields keep defaults.
	if cfg.Agent.InvokeTimeoutSec != 120 {
		t.Errorf("invoke timeout = %d, want default 120", cfg.Agent.InvokeTimeoutSec)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_AGENT_ID", "FROMENV")

	path := writeConfig(t, `
agent:
  id: ${TEST_AGENT_ID}
  alias_id: ALIAS
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.ID != "FROMENV" {
		t.Errorf("agent ID = %q, want FROMENV", cfg.Agent.ID)
	}
}

func TestLoadRCONEnvFallbacks(t *testing.T) {
	t.Setenv("MINECRAFT_SERVER_ADDRESS", "mc.example.com")
	t.Setenv("MINECRAFT_SERVER_PORT_RCON", "25575")
	t.Setenv("RCON_PASSWORD", "hunter2")

	path := writeConfig(t, `
agent:
  id: AGENT
  alias_id: ALIAS
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RCON.Address != "mc.example.com" || cfg.RCON.Port != 25575 || cfg.RCON.Password != "hunter2" {
		t.Errorf("rcon = %+v, want env fallbacks applied", cfg.RCON)
	}
	if !cfg.RCON.Configured() {
		t.Error("RCON should report configured")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty username",
			mutate:  func(c *Config) { c.Bot.Username = "" },
			wantErr: true,
		},
		{
			name:    "negative round trips",
			mutate:  func(c *Config) { c.Agent.MaxToolRoundTrips = -1 },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: true,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: true,
		},
		{
			name:   "json log format",
			mutate: func(c *Config) { c.LogFormat = "json" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
