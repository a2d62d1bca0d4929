package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != nil || cfg.Practice.Words != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadConfigSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9000"
session_ttl = "45m"
idle_timeout = "30s"
min_words = 5
max_words = 100

[practice]
server = "http://localhost:9000"
words = 30
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr == nil || *cfg.Server.Addr != ":9000" {
		t.Fatalf("unexpected addr %v", cfg.Server.Addr)
	}
	if cfg.Server.SessionTTL == nil || *cfg.Server.SessionTTL != 45*time.Minute {
		t.Fatalf("unexpected session ttl %v", cfg.Server.SessionTTL)
	}
	if cfg.Server.IdleTimeout == nil || *cfg.Server.IdleTimeout != 30*time.Second {
		t.Fatalf("unexpected idle timeout %v", cfg.Server.IdleTimeout)
	}
	if cfg.Server.MinWords == nil || *cfg.Server.MinWords != 5 || cfg.Server.DefaultWords != nil {
		t.Fatalf("unexpected word range %+v", cfg.Server)
	}
	if cfg.Practice.Words == nil || *cfg.Practice.Words != 30 {
		t.Fatalf("unexpected practice words %v", cfg.Practice.Words)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("TYPESTREAM_ADDR", ":7000")
	t.Setenv("TYPESTREAM_SESSION_TTL", "5m")
	t.Setenv("TYPESTREAM_OTEL_ENABLED", "true")

	envCfg, err := LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if envCfg.LogLevel != nil {
		t.Fatalf("expected unset log level to stay nil")
	}

	fileAddr := ":9000"
	fileLevel := "debug"
	merged := envCfg.Overlay(ServerConfig{Addr: &fileAddr, LogLevel: &fileLevel})
	if *merged.Addr != ":7000" {
		t.Fatalf("expected env addr to win, got %q", *merged.Addr)
	}
	if *merged.LogLevel != "debug" {
		t.Fatalf("expected file log level to survive, got %q", *merged.LogLevel)
	}
	if merged.SessionTTL == nil || *merged.SessionTTL != 5*time.Minute {
		t.Fatalf("unexpected ttl %v", merged.SessionTTL)
	}
	if merged.OTelEnabled == nil || !*merged.OTelEnabled {
		t.Fatalf("expected otel enabled")
	}
}

func TestParseEnvInvalidValue(t *testing.T) {
	t.Setenv("TYPESTREAM_IDLE_TIMEOUT", "soon")
	if _, err := LoadEnv(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "typestream", "config.toml") {
		t.Fatalf("unexpected config path %q", got)
	}
	if got := DefaultResultsPath(); got != filepath.Join("/data", "typestream", "results.db") {
		t.Fatalf("unexpected results path %q", got)
	}
	if got := DefaultWordListPath("de"); got != filepath.Join("/cfg", "typestream", "wordlists", "de.txt") {
		t.Fatalf("unexpected word list path %q", got)
	}
}
