package app

import (
	"fmt"

	"github.com/erg0nix/kontekst-governor/internal/capability"
	"github.com/erg0nix/kontekst-governor/internal/config"
	"github.com/erg0nix/kontekst-governor/internal/governor"
	"github.com/erg0nix/kontekst-governor/internal/session"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

// Services holds the wired components shared by the gRPC daemon and the MCP server.
type Services struct {
	Governor *governor.Governor
	Source   *governor.LatchedSource
	Store    *snapshot.Store
	Monitor  *governor.Monitor
}

// NewServices validates cfg and builds a Governor with its snapshot store and capability probe.
func NewServices(cfg config.Config) (Services, error) {
	if err := cfg.Validate(); err != nil {
		return Services{}, err
	}

	store, err := NewStore(cfg.Snapshot)
	if err != nil {
		return Services{}, err
	}

	source := &governor.LatchedSource{}
	g, err := governor.New(governor.Options{
		Total:                cfg.Budget.Total,
		Thresholds:           cfg.Budget.Thresholds,
		LargeOutputThreshold: cfg.Output.LargeOutputThreshold,
		ChunkSize:            cfg.Output.ChunkSize,
		SwitchTarget:         capability.BackendDescriptor{Name: cfg.Switch.Target},
		Journal:              session.NewJournal(cfg.Snapshot.Primary),
	}, store, NewProbe(cfg.Switch), source)
	if err != nil {
		return Services{}, fmt.Errorf("build governor: %w", err)
	}

	return Services{
		Governor: g,
		Source:   source,
		Store:    store,
		Monitor:  governor.NewMonitor(g, cfg.Monitor.Interval.Std()),
	}, nil
}

func NewStore(cfg config.SnapshotConfig) (*snapshot.Store, error) {
	locations := []snapshot.Location{{Name: "primary", Root: cfg.Primary}}
	if cfg.Fallback != "" {
		locations = append(locations, snapshot.Location{Name: "fallback", Root: cfg.Fallback})
	}

	store, err := snapshot.NewStore(locations...)
	if err != nil {
		return nil, fmt.Errorf("build snapshot store: %w", err)
	}
	return store, nil
}

// NewProbe selects the switch backend once, at construction.
func NewProbe(cfg config.SwitchConfig) capability.Probe {
	if cfg.Mode != config.SwitchModeNative {
		return capability.UnsupportedBackend{}
	}

	env := &capability.ExecEnvironment{
		ProbeCommand:  cfg.ProbeCommand,
		SwitchCommand: cfg.SwitchCommand,
	}
	return capability.NewNativeSwitchBackend(env, cfg.Timeout.Std())
}
