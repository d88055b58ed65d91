package governor

import (
	"context"
	"testing"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/budget"
)

func TestMonitor_SamplesWithoutMutating(t *testing.T) {
	g, _ := newTestGovernor(t, nil, staticSource)
	mustUnit(t, g, 70)
	before := g.Status()

	samples := make(chan budget.State, 16)
	monitor := NewMonitor(g, 5*time.Millisecond)
	monitor.OnSample = func(state budget.State) {
		select {
		case samples <- state:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	select {
	case state := <-samples:
		if state.Used != 70 || state.Level != before.Level {
			t.Errorf("unexpected sample %+v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor produced no sample")
	}

	cancel()
	<-done

	if after := g.Status(); after != before {
		t.Errorf("monitor changed the session: %+v != %+v", after, before)
	}
}

func TestMonitor_ZeroIntervalReturns(t *testing.T) {
	g, _ := newTestGovernor(t, nil, staticSource)

	done := make(chan struct{})
	go func() {
		NewMonitor(g, 0).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor with zero interval should return immediately")
	}
}
