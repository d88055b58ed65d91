package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erg0nix/kontekst-governor/internal/config"
)

func testConfig(dir string) config.Config {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Snapshot.Primary = filepath.Join(dir, "data", "snapshots")
	cfg.Snapshot.Fallback = filepath.Join(dir, "fallback")
	return cfg
}

func TestInitWritesConfigAndDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "config.toml")

	cfg, err := initConfig(path, testConfig(dir), false)
	if err != nil {
		t.Fatalf("initConfig: %v", err)
	}

	for _, d := range []string{cfg.DataDir, cfg.Snapshot.Primary, cfg.Snapshot.Fallback} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", d, err)
		}
	}

	loaded, err := config.LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if loaded.Snapshot.Primary != cfg.Snapshot.Primary {
		t.Errorf("primary = %q, want %q", loaded.Snapshot.Primary, cfg.Snapshot.Primary)
	}
	if loaded.Budget.Total != cfg.Budget.Total {
		t.Errorf("total = %d, want %d", loaded.Budget.Total, cfg.Budget.Total)
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := initConfig(path, testConfig(dir), false)
	if err == nil {
		t.Fatal("expected error when config exists")
	}
	if !strings.Contains(err.Error(), "--force") {
		t.Fatalf("unexpected error: %s", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "existing" {
		t.Fatalf("config was overwritten: %q", data)
	}

	if _, err := initConfig(path, testConfig(dir), true); err != nil {
		t.Fatalf("initConfig with force: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) == "existing" {
		t.Fatal("expected config to be overwritten with force")
	}
}

func TestClientAddrFromBind(t *testing.T) {
	tests := []struct {
		bind string
		want string
	}{
		{":50061", "127.0.0.1:50061"},
		{"0.0.0.0:7000", "127.0.0.1:7000"},
		{"[::]:7000", "127.0.0.1:7000"},
		{"10.0.0.5:7000", "10.0.0.5:7000"},
		{"localhost", "localhost"},
	}

	for _, tt := range tests {
		if got := clientAddrFromBind(tt.bind); got != tt.want {
			t.Errorf("clientAddrFromBind(%q) = %q, want %q", tt.bind, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	if n, err := parseAmount("42", "delta"); err != nil || n != 42 {
		t.Fatalf("parseAmount = %d, %v", n, err)
	}
	if _, err := parseAmount("-3", "delta"); err != nil {
		t.Fatalf("negative values are passed through: %v", err)
	}
	if _, err := parseAmount("abc", "delta"); err == nil {
		t.Fatal("expected error for non-integer")
	}
}
