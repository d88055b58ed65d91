package governor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/budget"
	"github.com/erg0nix/kontekst-governor/internal/capability"
	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/mode"
)

var (
	ErrInvalidConfiguration = budget.ErrInvalidConfiguration
	ErrInvalidInput         = budget.ErrInvalidInput
	ErrBudgetExhausted      = errors.New("budget exhausted")
	ErrNoContinuity         = errors.New("no continuity content available")
)

type Action string

const (
	ActionContinue         Action = "continue"
	ActionContinueDegraded Action = "continue_degraded"
	ActionSnapshotAndPause Action = "snapshot_and_pause"
	ActionHalt             Action = "halt"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionContinue, ActionContinueDegraded, ActionSnapshotAndPause, ActionHalt:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

type SnapshotStatus string

const (
	SnapshotNotStarted SnapshotStatus = "not_started"
	SnapshotInProgress SnapshotStatus = "in_progress"
	SnapshotComplete   SnapshotStatus = "complete"
)

// Status is the operator-facing view of a session.
type Status struct {
	SessionID         core.SessionID `json:"session_id"`
	Level             core.Level     `json:"level"`
	BudgetUsedPercent int            `json:"budget_used_percent"`
	Used              int64          `json:"used"`
	Total             int64          `json:"total"`
	SnapshotStatus    SnapshotStatus `json:"snapshot_status"`
	SnapshotLocation  string         `json:"snapshot_location,omitempty"`
	SnapshotStep      int64          `json:"snapshot_step,omitempty"`
	Steps             int64          `json:"steps"`
	Halted            bool           `json:"halted"`

	// SnapshotPending reports that a required snapshot could not be written. SnapshotStatus
	// and SnapshotStep then describe the last one that was.
	SnapshotPending bool `json:"snapshot_pending,omitempty"`

	AwaitingSwitchConfirmation bool   `json:"awaiting_switch_confirmation,omitempty"`
	Backend                    string `json:"backend,omitempty"`
}

func (s Status) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "level=%s budget=%d%% (%d/%d) snapshot=%s", s.Level, s.BudgetUsedPercent, min(s.Used, s.Total), s.Total, s.SnapshotStatus)
	if s.SnapshotLocation != "" {
		fmt.Fprintf(&b, " at %s (step %d)", s.SnapshotLocation, s.SnapshotStep)
	}
	if s.SnapshotPending {
		b.WriteString(" snapshot-pending")
	}
	if s.AwaitingSwitchConfirmation {
		b.WriteString(" awaiting-switch-confirmation")
	}
	if s.Backend != "" {
		fmt.Fprintf(&b, " backend=%s", s.Backend)
	}
	if s.Halted {
		b.WriteString(" halted")
	}
	return b.String()
}

// Directive is the only value returned to the task executor.
type Directive struct {
	Action Action      `json:"action"`
	Mode   mode.Policy `json:"mode"`
	Reason string      `json:"reason"`

	// Status is set whenever the level is Yellow or above.
	Status *Status `json:"status,omitempty"`
	// Switch is set when a backend switch was considered during this call.
	Switch *capability.Attempt `json:"switch,omitempty"`
	// Disclosure carries the rendered snapshot when no location could persist it.
	Disclosure string `json:"disclosure,omitempty"`
}

// Err returns ErrBudgetExhausted for a Halt directive.
func (d Directive) Err() error {
	if d.Action == ActionHalt {
		return ErrBudgetExhausted
	}
	return nil
}

// JournalEntry is one directive as it was returned to the caller.
type JournalEntry struct {
	At        time.Time      `json:"ts"`
	SessionID core.SessionID `json:"session_id"`
	Hook      string         `json:"hook"`
	Step      int64          `json:"step"`
	Action    Action         `json:"action"`
	Level     core.Level     `json:"level"`
	Used      int64          `json:"used"`
	Total     int64          `json:"total"`
	Reason    string         `json:"reason"`
}

type Recorder interface {
	Record(entry JournalEntry) error
}
