package governor

import (
	"context"
	"log/slog"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/budget"
	"github.com/erg0nix/kontekst-governor/internal/core"
)

// Sampler is read by the monitor. Governor implements it.
type Sampler interface {
	Sample() budget.State
}

// Monitor periodically logs the budget level. It only reads the counter, so it never
// races the executor's hook calls for control of the session.
type Monitor struct {
	sampler  Sampler
	interval time.Duration
	OnSample func(budget.State)
}

func NewMonitor(sampler Sampler, interval time.Duration) *Monitor {
	return &Monitor{sampler: sampler, interval: interval}
}

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := core.LevelGreen
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := m.sampler.Sample()
			if m.OnSample != nil {
				m.OnSample(state)
			}

			if state.Level != last {
				slog.Info("budget level observed", "level", state.Level, "used", state.Used, "total", state.Total)
				last = state.Level
			} else {
				slog.Debug("budget sample", "level", state.Level, "percent", state.Percent())
			}
		}
	}
}
