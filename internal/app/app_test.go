package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/capability"
	"github.com/erg0nix/kontekst-governor/internal/config"
	"github.com/erg0nix/kontekst-governor/internal/governor"
	"github.com/erg0nix/kontekst-governor/internal/session"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Snapshot.Primary = filepath.Join(cfg.DataDir, "snapshots")
	cfg.Snapshot.Fallback = t.TempDir()
	cfg.Budget.Total = 100
	return cfg
}

func TestNewServices(t *testing.T) {
	cfg := testConfig(t)

	services, err := NewServices(cfg)
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}

	services.Source.Update(continuityForTest())
	d, err := services.Governor.OnUnitComplete(context.Background(), 80)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != governor.ActionContinueDegraded {
		t.Fatalf("expected continue_degraded, got %s (%s)", d.Action, d.Reason)
	}
	if got := len(services.Store.Locations()); got != 2 {
		t.Errorf("expected primary and fallback locations, got %d", got)
	}

	entries, err := session.ReadJournal(cfg.Snapshot.Primary, services.Governor.SessionID())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Action != governor.ActionContinueDegraded {
		t.Errorf("expected the directive to be journaled, got %+v", entries)
	}
}

func TestNewServices_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Budget.Total = 0

	if _, err := NewServices(cfg); !errors.Is(err, governor.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestNewProbe(t *testing.T) {
	if _, ok := NewProbe(config.SwitchConfig{Mode: config.SwitchModeUnsupported}).(capability.UnsupportedBackend); !ok {
		t.Error("unsupported mode should select UnsupportedBackend")
	}

	probe := NewProbe(config.SwitchConfig{
		Mode:          config.SwitchModeNative,
		Target:        "large-context",
		Timeout:       config.Duration(5 * time.Second),
		SwitchCommand: []string{"true"},
	})
	native, ok := probe.(*capability.NativeSwitchBackend)
	if !ok {
		t.Fatalf("native mode should select NativeSwitchBackend, got %T", probe)
	}
	if native.Timeout.Seconds() != 5 {
		t.Errorf("unexpected timeout %s", native.Timeout)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	if pid := ReadPID(filepath.Join(dir, "missing.pid")); pid != 0 {
		t.Errorf("missing file should give 0, got %d", pid)
	}

	garbage := filepath.Join(dir, "garbage.pid")
	if err := os.WriteFile(garbage, []byte("not a pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid := ReadPID(garbage); pid != 0 {
		t.Errorf("garbage should give 0, got %d", pid)
	}

	self := PIDFile(dir)
	if err := writePIDFile(self); err != nil {
		t.Fatal(err)
	}
	if pid := ReadPID(self); pid != os.Getpid() {
		t.Errorf("expected own pid %d, got %d", os.Getpid(), pid)
	}

	data, _ := os.ReadFile(self)
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("unexpected pid file content %q", data)
	}
}

func continuityForTest() snapshot.Snapshot {
	return snapshot.Snapshot{
		Context:   "task: nightly report",
		Progress:  "done: extraction",
		Decisions: "use cached rates; reversible",
		Next:      "render report; alternate: send raw csv",
	}
}
