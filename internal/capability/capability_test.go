package capability

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

type fakeEnvironment struct {
	capability    Capability
	capabilityErr error
	signal        Signal
	switchErr     error
	block         bool
	calls         int
	queries       int
}

func (f *fakeEnvironment) Capability(context.Context) (Capability, error) {
	f.queries++
	return f.capability, f.capabilityErr
}

func (f *fakeEnvironment) RequestSwitch(ctx context.Context, _ BackendDescriptor) (Signal, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return SignalNone, ctx.Err()
	}
	return f.signal, f.switchErr
}

var target = BackendDescriptor{Name: "large-context"}

func TestNativeSwitchBackend_OnlyExplicitSignalConfirms(t *testing.T) {
	tests := []struct {
		name    string
		env     *fakeEnvironment
		want    Outcome
		wantErr error
	}{
		{"explicit confirmation", &fakeEnvironment{capability: Supported, signal: SignalConfirmed}, OutcomeConfirmed, nil},
		{"explicit rejection", &fakeEnvironment{capability: Supported, signal: SignalRejected}, OutcomeRejected, ErrSwitchRejected},
		{"silence", &fakeEnvironment{capability: Supported, signal: SignalNone}, OutcomeRejected, ErrSwitchRejected},
		{"error", &fakeEnvironment{capability: Supported, switchErr: errors.New("boom")}, OutcomeRejected, ErrSwitchRejected},
		{"error with confirm signal", &fakeEnvironment{capability: Supported, signal: SignalConfirmed, switchErr: errors.New("partial")}, OutcomeRejected, ErrSwitchRejected},
		{"timeout", &fakeEnvironment{capability: Supported, block: true}, OutcomeRejected, ErrSwitchTimeout},
		{"unsupported", &fakeEnvironment{capability: Unsupported, signal: SignalConfirmed}, OutcomeUnsupported, ErrSwitchUnsupported},
		{"capability error", &fakeEnvironment{capabilityErr: errors.New("no answer"), signal: SignalConfirmed}, OutcomeUnsupported, ErrSwitchUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewNativeSwitchBackend(tt.env, 50*time.Millisecond)

			attempt := backend.AttemptSwitch(context.Background(), target)

			if attempt.Outcome != tt.want {
				t.Fatalf("outcome = %s, want %s (detail %q)", attempt.Outcome, tt.want, attempt.Detail)
			}
			if !attempt.Requested {
				t.Error("expected attempt to be marked requested")
			}
			if !errors.Is(attempt.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", attempt.Err(), tt.wantErr)
			}
			if tt.want == OutcomeUnsupported && tt.env.calls != 0 {
				t.Error("switch must not be requested when capability is unsupported")
			}
		})
	}
}

func TestNativeSwitchBackend_CancelledContextIsNotConfirmed(t *testing.T) {
	env := &fakeEnvironment{capability: Supported, block: true}
	backend := NewNativeSwitchBackend(env, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	attempt := backend.AttemptSwitch(ctx, target)
	if attempt.Outcome == OutcomeConfirmed {
		t.Fatal("cancelled attempt must not be confirmed")
	}
}

func TestNativeSwitchBackend_AttemptReusesQueriedCapability(t *testing.T) {
	env := &fakeEnvironment{capability: Supported, signal: SignalConfirmed}
	backend := NewNativeSwitchBackend(env, time.Second)

	if backend.QuerySwitchCapability(context.Background()) != Supported {
		t.Fatal("expected supported")
	}
	attempt := backend.AttemptSwitch(context.Background(), target)
	if attempt.Outcome != OutcomeConfirmed || !attempt.CapabilityConfirmed {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if env.queries != 1 {
		t.Errorf("capability queried %d times for one failover, want 1", env.queries)
	}

	backend.AttemptSwitch(context.Background(), target)
	if env.queries != 2 {
		t.Errorf("a later attempt must query again, got %d queries", env.queries)
	}

	env.capability = Unsupported
	if got := backend.AttemptSwitch(context.Background(), target); got.Outcome != OutcomeUnsupported {
		t.Errorf("stale capability was reused: %+v", got)
	}
}

func TestNativeSwitchBackend_QueryPassesThrough(t *testing.T) {
	supported := NewNativeSwitchBackend(&fakeEnvironment{capability: Supported}, time.Second)
	if got := supported.QuerySwitchCapability(context.Background()); got != Supported {
		t.Errorf("expected supported, got %s", got)
	}

	unknown := NewNativeSwitchBackend(&fakeEnvironment{capability: "maybe"}, time.Second)
	if got := unknown.QuerySwitchCapability(context.Background()); got != Unsupported {
		t.Errorf("expected unknown answers to map to unsupported, got %s", got)
	}
}

func TestUnsupportedBackend(t *testing.T) {
	var backend Probe = UnsupportedBackend{}

	if got := backend.QuerySwitchCapability(context.Background()); got != Unsupported {
		t.Errorf("expected unsupported, got %s", got)
	}

	attempt := backend.AttemptSwitch(context.Background(), target)
	if attempt.Outcome != OutcomeUnsupported || attempt.CapabilityConfirmed {
		t.Errorf("unexpected attempt: %+v", attempt)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecEnvironment(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name       string
		probe      string
		switchCmd  string
		wantCap    Capability
		wantSignal Signal
		wantErr    bool
	}{
		{"confirmed", "echo supported", `test "$GOVERNOR_SWITCH_TARGET" = large-context && echo confirmed`, Supported, SignalConfirmed, false},
		{"rejected", "echo supported", "echo rejected", Supported, SignalRejected, false},
		{"chatter is not a signal", "echo supported", "echo switching now", Supported, SignalNone, false},
		{"failing command", "echo nope", "exit 3", Unsupported, SignalNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &ExecEnvironment{
				ProbeCommand:  []string{"sh", "-c", tt.probe},
				SwitchCommand: []string{"sh", "-c", tt.switchCmd},
			}

			capability, err := env.Capability(context.Background())
			if err != nil {
				t.Fatalf("Capability: %v", err)
			}
			if capability != tt.wantCap {
				t.Errorf("capability = %s, want %s", capability, tt.wantCap)
			}

			signal, err := env.RequestSwitch(context.Background(), target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RequestSwitch error = %v, wantErr %v", err, tt.wantErr)
			}
			if signal != tt.wantSignal {
				t.Errorf("signal = %d, want %d", signal, tt.wantSignal)
			}
		})
	}
}

func TestExecEnvironment_NoProbeCommandIsUnsupported(t *testing.T) {
	env := &ExecEnvironment{}

	capability, err := env.Capability(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if capability != Unsupported {
		t.Errorf("expected unsupported without probe command, got %s", capability)
	}
}
