package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/budget"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOrCreate_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if cfg.Budget.Total != Default().Budget.Total {
		t.Errorf("expected default total, got %d", cfg.Budget.Total)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "large_output_threshold") {
		t.Errorf("expected written config to contain output settings:\n%s", data)
	}
}

func TestLoadOrCreate_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
data_dir = "` + dir + `"

[budget]
total = 100

[budget.thresholds]
yellow = 0.5
orange = 0.7
red = 0.8
critical = 0.9

[output]
large_output_threshold = 40
chunk_size = 10

[switch]
mode = "Native"
target = "large-context"
timeout = "500ms"
switch_command = ["switch-backend"]

[snapshot]
primary = "` + filepath.Join(dir, "primary") + `"
fallback = "` + filepath.Join(dir, "fallback") + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	if cfg.Budget.Total != 100 {
		t.Errorf("total = %d, want 100", cfg.Budget.Total)
	}
	if cfg.Budget.Thresholds.Yellow != 0.5 || cfg.Budget.Thresholds.Critical != 0.9 {
		t.Errorf("unexpected thresholds: %+v", cfg.Budget.Thresholds)
	}
	if cfg.Switch.Mode != SwitchModeNative {
		t.Errorf("expected normalized native mode, got %q", cfg.Switch.Mode)
	}
	if cfg.Switch.Timeout.Std() != 500*time.Millisecond {
		t.Errorf("unexpected switch timeout %s", cfg.Switch.Timeout.Std())
	}
	if cfg.Bind != ":50061" {
		t.Errorf("expected default bind, got %q", cfg.Bind)
	}
	if cfg.Monitor.Interval != Default().Monitor.Interval {
		t.Errorf("expected default monitor interval to survive partial file")
	}
}

func TestSave_DurationsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Switch.Timeout = Duration(250 * time.Millisecond)
	cfg.Monitor.Interval = 0
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `timeout = '250ms'`) && !strings.Contains(string(data), `timeout = "250ms"`) {
		t.Errorf("expected timeout written as a duration string:\n%s", data)
	}

	loaded, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if loaded.Switch.Timeout.Std() != 250*time.Millisecond {
		t.Errorf("timeout = %s, want 250ms", loaded.Switch.Timeout.Std())
	}
	if loaded.Monitor.Interval != 0 {
		t.Errorf("interval = %s, want monitor disabled", loaded.Monitor.Interval.Std())
	}
}

func TestLoadOrCreate_RejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero budget", "[budget]\ntotal = 0\n"},
		{"malformed thresholds", "[budget.thresholds]\nyellow = 0.8\norange = 0.7\nred = 0.9\ncritical = 0.95\n"},
		{"unknown switch mode", "[switch]\nmode = \"teleport\"\n"},
		{"native without command", "[switch]\nmode = \"native\"\ntarget = \"x\"\n"},
		{"unparseable timeout", "[switch]\ntimeout = \"soon\"\n"},
		{"zero timeout", "[switch]\ntimeout = \"0s\"\n"},
		{"negative interval", "[monitor]\ninterval = \"-1s\"\n"},
		{"bad toml", "[budget\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := LoadOrCreate(path)
			if !errors.Is(err, budget.ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestValidate_SameSnapshotLocations(t *testing.T) {
	cfg := Default()
	cfg.Snapshot.Fallback = cfg.Snapshot.Primary + string(os.PathSeparator)

	if err := cfg.Validate(); !errors.Is(err, budget.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GOVERNOR_TOTAL_BUDGET", "500")
	t.Setenv("GOVERNOR_SWITCH_MODE", "NATIVE")
	t.Setenv("GOVERNOR_BIND", "127.0.0.1:9999")
	t.Setenv("GOVERNOR_LOG_JSON", "1")
	t.Setenv("GOVERNOR_SWITCH_TIMEOUT", "1.5s")

	cfg := LoadEnvOverrides(Default())

	if cfg.Budget.Total != 500 {
		t.Errorf("total = %d, want 500", cfg.Budget.Total)
	}
	if cfg.Switch.Mode != SwitchModeNative {
		t.Errorf("mode = %q, want native", cfg.Switch.Mode)
	}
	if cfg.Bind != "127.0.0.1:9999" {
		t.Errorf("bind = %q", cfg.Bind)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("format = %q, want json", cfg.Log.Format)
	}
	if cfg.Switch.Timeout.Std() != 1500*time.Millisecond {
		t.Errorf("timeout = %s, want 1.5s", cfg.Switch.Timeout.Std())
	}
}

func TestLoadEnvOverrides_IgnoresMalformedBudget(t *testing.T) {
	t.Setenv("GOVERNOR_TOTAL_BUDGET", "lots")

	cfg := LoadEnvOverrides(Default())
	if cfg.Budget.Total != Default().Budget.Total {
		t.Errorf("expected default total to be kept, got %d", cfg.Budget.Total)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should not be an error: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GOVERNOR_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOVERNOR_TEST_DOTENV", "")
	os.Unsetenv("GOVERNOR_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("GOVERNOR_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected variable from .env, got %q", got)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("hello", "level", "yellow")

	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected JSON log line, got %q", buf.String())
	}
}
