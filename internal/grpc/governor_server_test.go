package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/erg0nix/kontekst-governor/internal/budget"
	"github.com/erg0nix/kontekst-governor/internal/capability"
	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/governor"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

func continuity() snapshot.Snapshot {
	return snapshot.Snapshot{
		Context:   "task: index the archive; phase: crawl",
		Progress:  "done: 3 of 5 shards; current: shard 4",
		Decisions: "skip binary files; reversible",
		Next:      "crawl shard 5; alternate: sample it",
	}
}

func startServer(t *testing.T) (*Client, *governor.Governor, chan struct{}) {
	t.Helper()

	store, err := snapshot.NewStore(
		snapshot.Location{Name: "primary", Root: t.TempDir()},
		snapshot.Location{Name: "fallback", Root: t.TempDir()},
	)
	if err != nil {
		t.Fatal(err)
	}

	source := &governor.LatchedSource{}
	g, err := governor.New(governor.Options{
		Total:                100,
		Thresholds:           budget.DefaultThresholds(),
		LargeOutputThreshold: 300,
		ChunkSize:            200,
		SwitchTarget:         capability.BackendDescriptor{Name: "large-context"},
	}, store, capability.UnsupportedBackend{}, source)
	if err != nil {
		t.Fatal(err)
	}

	stopped := make(chan struct{}, 1)
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterGovernorServer(server, &GovernorHandler{
		Governor:  g,
		Source:    source,
		StartTime: time.Now(),
		StopFunc:  func() { stopped <- struct{}{} },
	})

	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	return client, g, stopped
}

func TestGovernorService_UnitsEscalateAndSnapshot(t *testing.T) {
	client, g, _ := startServer(t)
	ctx := context.Background()

	if err := client.UpdateContinuity(ctx, continuity()); err != nil {
		t.Fatalf("UpdateContinuity: %v", err)
	}

	d, err := client.OnUnitComplete(ctx, 40)
	if err != nil {
		t.Fatalf("OnUnitComplete: %v", err)
	}
	if d.Action != governor.ActionContinue || d.Status != nil {
		t.Fatalf("unexpected green directive %+v", d)
	}

	d, err = client.OnUnitComplete(ctx, 22)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != governor.ActionContinue || d.Mode.Level != core.LevelYellow || !d.Mode.SnapshotRequired {
		t.Fatalf("unexpected yellow directive %+v", d)
	}
	if d.Status == nil || d.Status.SnapshotStatus != governor.SnapshotComplete || d.Status.Used != 62 {
		t.Fatalf("unexpected status %+v", d.Status)
	}

	latest, err := client.ReadLatest(ctx, "")
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if latest.SessionID != g.SessionID() || latest.Decisions != continuity().Decisions || latest.Step != 2 {
		t.Errorf("unexpected snapshot %+v", latest)
	}
}

func TestGovernorService_HaltAtCritical(t *testing.T) {
	client, _, _ := startServer(t)
	ctx := context.Background()

	if err := client.UpdateContinuity(ctx, continuity()); err != nil {
		t.Fatal(err)
	}

	d, err := client.OnUnitComplete(ctx, 97)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != governor.ActionHalt || !errors.Is(d.Err(), governor.ErrBudgetExhausted) {
		t.Fatalf("expected halt, got %+v", d)
	}
	if d.Switch == nil || d.Switch.Outcome != capability.OutcomeUnsupported {
		t.Errorf("expected unsupported switch record, got %+v", d.Switch)
	}
	if !strings.Contains(d.Reason, "backend switch unsupported") {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestGovernorService_ErrorsKeepTheirKind(t *testing.T) {
	client, _, _ := startServer(t)
	ctx := context.Background()

	if _, err := client.OnUnitComplete(ctx, -1); !errors.Is(err, governor.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := client.BeforeLargeOutput(ctx, -1); !errors.Is(err, governor.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := client.ReadLatest(ctx, ""); !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGovernorService_CheckpointStatusReset(t *testing.T) {
	client, _, _ := startServer(t)
	ctx := context.Background()

	d, err := client.Checkpoint(ctx, continuity())
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if d.Action != governor.ActionContinue {
		t.Fatalf("expected continue, got %s (%s)", d.Action, d.Reason)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.SnapshotStatus != governor.SnapshotComplete || status.StartedAt == "" {
		t.Errorf("unexpected status %+v", status)
	}
	old := status.SessionID

	reset, err := client.Reset(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reset.SessionID == old || reset.SnapshotStatus != governor.SnapshotNotStarted {
		t.Errorf("unexpected status after reset %+v", reset)
	}

	previous, err := client.ReadLatest(ctx, old)
	if err != nil {
		t.Fatalf("ReadLatest(%s): %v", old, err)
	}
	if previous.Next != continuity().Next {
		t.Errorf("unexpected snapshot %+v", previous)
	}
}

func TestGovernorService_Shutdown(t *testing.T) {
	client, _, stopped := startServer(t)

	message, err := client.Shutdown(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if message != "shutting down" {
		t.Errorf("unexpected message %q", message)
	}

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop function was not called")
	}
}
