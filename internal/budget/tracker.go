// Package budget tracks consumption of a session's finite budget and classifies it into levels.
package budget

import (
	"fmt"
	"math"
	"math/big"
	"sync/atomic"

	"github.com/erg0nix/kontekst-governor/internal/core"
)

// State is a point-in-time view of the budget.
type State struct {
	Used  int64      `json:"used"`
	Total int64      `json:"total"`
	Level core.Level `json:"level"`
}

// DisplayUsed clamps Used at Total for presentation. Used keeps the true value.
func (s State) DisplayUsed() int64 {
	if s.Used > s.Total {
		return s.Total
	}
	return s.Used
}

// Percent returns the consumed share of the budget as an integer in [0, 100].
func (s State) Percent() int {
	if s.Total <= 0 {
		return 100
	}
	percent := new(big.Int).Mul(big.NewInt(s.DisplayUsed()), big.NewInt(100))
	return int(percent.Quo(percent, big.NewInt(s.Total)).Int64())
}

func (s State) Remaining() int64 {
	return s.Total - s.DisplayUsed()
}

// Tracker accumulates consumption. Writes are serialized by the owner;
// the counter is atomic so samplers can read it concurrently.
type Tracker struct {
	total      int64
	thresholds Thresholds
	used       atomic.Int64
}

func NewTracker(total int64, thresholds Thresholds) (*Tracker, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total budget must be positive, got %d", ErrInvalidConfiguration, total)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	return &Tracker{total: total, thresholds: thresholds}, nil
}

// RecordConsumption adds delta to the counter and returns the resulting state.
func (t *Tracker) RecordConsumption(delta int64) (State, error) {
	if delta < 0 {
		return t.State(), fmt.Errorf("%w: consumption delta must be non-negative, got %d", ErrInvalidInput, delta)
	}

	current := t.used.Load()
	if delta > math.MaxInt64-current {
		t.used.Store(math.MaxInt64)
	} else {
		t.used.Store(current + delta)
	}

	return t.State(), nil
}

func (t *Tracker) CurrentLevel() core.Level {
	return t.thresholds.LevelFor(t.used.Load(), t.total)
}

func (t *Tracker) State() State {
	used := t.used.Load()
	return State{Used: used, Total: t.total, Level: t.thresholds.LevelFor(used, t.total)}
}

func (t *Tracker) Total() int64 {
	return t.total
}

func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}
