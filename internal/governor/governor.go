// Package governor enforces a session's resource budget. It classifies consumption into
// levels, writes continuity snapshots when the level escalates, consults the capability
// probe before running out, and halts the session once the budget is critical.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/budget"
	"github.com/erg0nix/kontekst-governor/internal/capability"
	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/mode"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

type Options struct {
	Total                int64
	Thresholds           budget.Thresholds
	LargeOutputThreshold int64
	ChunkSize            int
	SwitchTarget         capability.BackendDescriptor
	// Journal, when set, receives every directive the hooks return.
	Journal Recorder
}

type session struct {
	id             core.SessionID
	tracker        *budget.Tracker
	level          core.Level
	steps          int64
	latest         *snapshot.Handle
	latestStep     int64
	snapshotStatus SnapshotStatus
	awaitingSwitch bool
	backend        string
	finalWritten   bool
	halted         bool
	haltReason     string

	// pendingSnapshot is set while a snapshot required at Yellow or above has not been written.
	pendingSnapshot bool
}

// Governor serializes hook calls from a single task executor. Status and Sample may be
// called concurrently from other goroutines.
type Governor struct {
	opts   Options
	store  SnapshotWriter
	chain  []recoveryStrategy
	probe  capability.Probe
	modes  *mode.Controller
	source ContinuitySource
	now    func() time.Time

	mu      sync.Mutex
	session *session

	tracker atomic.Pointer[budget.Tracker]

	statusMu sync.RWMutex
	status   Status
}

// New builds a Governor and opens its first session. A nil probe means backend
// switching is unsupported; a nil source means only explicit checkpoints can
// produce snapshots.
func New(opts Options, store SnapshotWriter, probe capability.Probe, source ContinuitySource) (*Governor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: snapshot store is required", ErrInvalidConfiguration)
	}
	if opts.LargeOutputThreshold <= 0 {
		return nil, fmt.Errorf("%w: large output threshold must be positive, got %d", ErrInvalidConfiguration, opts.LargeOutputThreshold)
	}

	modes, err := mode.NewController(opts.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	if probe == nil {
		probe = capability.UnsupportedBackend{}
	}

	g := &Governor{
		opts:   opts,
		store:  store,
		chain:  recoveryChain(store),
		probe:  probe,
		modes:  modes,
		source: source,
		now:    time.Now,
	}

	if err := g.startSession(core.NewSessionID()); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Governor) startSession(id core.SessionID) error {
	tracker, err := budget.NewTracker(g.opts.Total, g.opts.Thresholds)
	if err != nil {
		return err
	}

	g.session = &session{id: id, tracker: tracker, snapshotStatus: SnapshotNotStarted}
	g.tracker.Store(tracker)
	g.publishStatus()
	return nil
}

func (g *Governor) SessionID() core.SessionID {
	return g.Status().SessionID
}

// OnUnitComplete records the consumption of one completed unit of work.
func (g *Governor) OnUnitComplete(ctx context.Context, delta int64) (Directive, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session
	if s.halted {
		return g.finish(ctx, "unit_complete", g.haltedDirective()), nil
	}

	previous := s.level
	state, err := s.tracker.RecordConsumption(delta)
	if err != nil {
		return Directive{}, err
	}
	s.steps++

	return g.finish(ctx, "unit_complete", g.advance(ctx, previous, state)), nil
}

// BeforeLargeOutput is consulted before the executor emits an output of estimatedSize lines.
func (g *Governor) BeforeLargeOutput(ctx context.Context, estimatedSize int64) (Directive, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session
	if s.halted {
		return g.finish(ctx, "before_output", g.haltedDirective()), nil
	}
	if estimatedSize < 0 {
		return Directive{}, fmt.Errorf("%w: estimated output size must be non-negative, got %d", ErrInvalidInput, estimatedSize)
	}

	state := s.tracker.State()
	d := g.baseDirective(s.level)
	notes := []string{summary(s.level, state)}

	large := estimatedSize > g.opts.LargeOutputThreshold
	if large || s.pendingSnapshot {
		out := g.ensureSnapshot(ctx, false)
		if s.pendingSnapshot {
			s.pendingSnapshot = out.pause
		}
		notes = append(notes, out.note)
		if out.pause {
			d.Action = ActionSnapshotAndPause
			d.Disclosure = out.disclosure
		}
	}
	if large {
		if !d.Mode.Chunk.Allows(estimatedSize) {
			notes = append(notes, fmt.Sprintf("split the %d-line output into chunks of at most %d lines", estimatedSize, d.Mode.Chunk.Lines))
		}
	}

	d.Reason = strings.Join(notes, "; ")
	return g.finish(ctx, "before_output", d), nil
}

// Checkpoint writes the executor's snapshot on request, superseding any earlier one.
func (g *Governor) Checkpoint(ctx context.Context, snap snapshot.Snapshot) (Directive, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session
	if s.halted {
		return g.finish(ctx, "checkpoint", g.haltedDirective()), nil
	}

	d := g.baseDirective(s.level)
	out := g.write(ctx, snap)
	if out.pause {
		d.Action = ActionSnapshotAndPause
		d.Disclosure = out.disclosure
	}
	d.Reason = summary(s.level, s.tracker.State()) + "; " + out.note

	return g.finish(ctx, "checkpoint", d), nil
}

// Reset starts a new session. Snapshots of the previous session stay on disk but are
// no longer the latest for this Governor.
func (g *Governor) Reset() (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	previous := g.session.id
	if err := g.startSession(core.NewSessionID()); err != nil {
		return Status{}, err
	}

	slog.Info("session reset", "previous", previous, "session", g.session.id)
	return g.Status(), nil
}

// Resume returns the latest complete snapshot of an earlier session.
func (g *Governor) Resume(sessionID core.SessionID) (snapshot.Snapshot, error) {
	return g.store.ReadLatest(sessionID)
}

func (g *Governor) Status() Status {
	g.statusMu.RLock()
	defer g.statusMu.RUnlock()

	return g.status
}

// Sample reads the live counter without waiting for an in-flight hook call.
func (g *Governor) Sample() budget.State {
	return g.tracker.Load().State()
}

func (g *Governor) advance(ctx context.Context, previous core.Level, state budget.State) Directive {
	s := g.session

	level := max(previous, state.Level)
	s.level = level
	escalated := level > previous
	crossedRed := escalated && previous < core.LevelRed && level >= core.LevelRed

	if escalated {
		slog.Info("budget level escalated", "session", s.id, "from", previous, "to", level, "used", state.Used, "total", state.Total)
	}

	if level == core.LevelCritical {
		return g.halt(ctx, state, crossedRed)
	}

	d := g.baseDirective(level)
	notes := []string{summary(level, state)}

	if level >= core.LevelYellow && (escalated || s.pendingSnapshot) {
		out := g.ensureSnapshot(ctx, false)
		s.pendingSnapshot = out.pause
		notes = append(notes, out.note)
		if out.pause {
			d.Action = ActionSnapshotAndPause
			d.Disclosure = out.disclosure
		}
	}

	if crossedRed {
		attempt := g.failover(ctx)
		d.Switch = &attempt
		note := switchNote(attempt)
		if attempt.Outcome != capability.OutcomeConfirmed {
			note += "; continuing on the current backend"
		}
		notes = append(notes, note)
	}

	d.Reason = strings.Join(notes, "; ")
	return d
}

func (g *Governor) halt(ctx context.Context, state budget.State, crossedRed bool) Directive {
	s := g.session

	d := Directive{Action: ActionHalt, Mode: g.modes.PolicyFor(core.LevelCritical)}
	notes := []string{fmt.Sprintf("budget exhausted: %d/%d used (%d%%), level critical", state.DisplayUsed(), state.Total, state.Percent())}

	if !s.finalWritten {
		s.finalWritten = true
		out := g.ensureSnapshot(ctx, true)
		notes = append(notes, "final "+out.note)
		d.Disclosure = out.disclosure
	}

	if crossedRed {
		attempt := g.failover(ctx)
		d.Switch = &attempt
		notes = append(notes, switchNote(attempt))
	}

	notes = append(notes, "no further work is admitted; start a new session to continue")

	s.halted = true
	s.haltReason = strings.Join(notes, "; ")
	d.Reason = s.haltReason

	slog.Warn("session halted", "session", s.id, "used", state.Used, "total", state.Total)
	return d
}

func (g *Governor) haltedDirective() Directive {
	return Directive{
		Action: ActionHalt,
		Mode:   g.modes.PolicyFor(core.LevelCritical),
		Reason: g.session.haltReason,
	}
}

func (g *Governor) baseDirective(level core.Level) Directive {
	action := ActionContinue
	if level >= core.LevelOrange {
		action = ActionContinueDegraded
	}
	return Directive{Action: action, Mode: g.modes.PolicyFor(level)}
}

// finish applies checkpoint-boundary cancellation and attaches the status surface.
func (g *Governor) finish(ctx context.Context, hook string, d Directive) Directive {
	s := g.session

	if d.Action != ActionHalt && ctx.Err() != nil {
		d.Action = ActionSnapshotAndPause
		d.Reason = strings.TrimPrefix(d.Reason+"; cancelled at checkpoint", "; ")
	}
	if d.Disclosure != "" {
		d.Reason += "\n\n" + d.Disclosure
	}

	status := g.publishStatus()
	if s.level >= core.LevelYellow {
		d.Status = &status
	}

	if g.opts.Journal != nil {
		entry := JournalEntry{
			At:        g.now().UTC(),
			SessionID: s.id,
			Hook:      hook,
			Step:      s.steps,
			Action:    d.Action,
			Level:     status.Level,
			Used:      status.Used,
			Total:     status.Total,
			Reason:    d.Reason,
		}
		if err := g.opts.Journal.Record(entry); err != nil {
			slog.Warn("failed to record directive", "session", s.id, "hook", hook, "error", err)
		}
	}
	return d
}

type snapshotOutcome struct {
	note       string
	pause      bool
	disclosure string
}

// ensureSnapshot writes a snapshot unless one exists that covers the last completed step.
func (g *Governor) ensureSnapshot(ctx context.Context, force bool) snapshotOutcome {
	s := g.session

	if !force && s.latest != nil && s.latestStep >= s.steps {
		return snapshotOutcome{note: fmt.Sprintf("snapshot %s is current", s.latest.ID)}
	}

	if g.source == nil {
		return snapshotOutcome{pause: true, note: "snapshot required: " + ErrNoContinuity.Error()}
	}

	snap, err := g.source.Continuity(ctx)
	if err != nil {
		return snapshotOutcome{pause: true, note: "snapshot required: " + err.Error()}
	}
	return g.write(ctx, snap)
}

// write persists snap through the recovery chain. Cancellation of ctx does not interrupt it.
func (g *Governor) write(ctx context.Context, snap snapshot.Snapshot) snapshotOutcome {
	s := g.session

	snap.ID = core.NewSnapshotID()
	snap.SessionID = s.id
	snap.Step = s.steps
	snap.Level = s.level
	snap.CreatedAt = g.now().UTC()

	previous := s.snapshotStatus
	s.snapshotStatus = SnapshotInProgress
	g.publishStatus()

	result := persist(context.WithoutCancel(ctx), g.chain, snap)

	switch result.Outcome {
	case OutcomePersisted:
		handle := result.Handle
		s.latest = &handle
		s.latestStep = snap.Step
		s.snapshotStatus = SnapshotComplete
		s.pendingSnapshot = false

		note := fmt.Sprintf("snapshot %s complete at %s", handle.ID, handle.Path)
		if len(result.Failures) > 0 {
			note += " (" + strings.Join(result.Failures, "; ") + ")"
		}
		return snapshotOutcome{note: note}

	case OutcomeDisclosed:
		s.snapshotStatus = previous
		return snapshotOutcome{
			pause:      true,
			disclosure: result.Disclosure,
			note:       fmt.Sprintf("snapshot could not be persisted (%s); persist the snapshot below manually before continuing", strings.Join(result.Failures, "; ")),
		}

	default:
		s.snapshotStatus = previous
		err := result.Err
		if err == nil {
			err = errors.New("unknown failure")
		}
		return snapshotOutcome{pause: true, note: "snapshot required: " + err.Error()}
	}
}

func (g *Governor) failover(ctx context.Context) capability.Attempt {
	s := g.session
	target := g.opts.SwitchTarget

	s.awaitingSwitch = true
	g.publishStatus()
	defer func() {
		s.awaitingSwitch = false
		g.publishStatus()
	}()

	var attempt capability.Attempt
	if g.probe.QuerySwitchCapability(ctx) != capability.Supported {
		attempt = capability.Attempt{Outcome: capability.OutcomeUnsupported, Target: target, Detail: "environment reports switching unsupported"}
	} else {
		attempt = g.probe.AttemptSwitch(ctx, target)
	}

	if attempt.Outcome == capability.OutcomeConfirmed {
		s.backend = target.Name
	}

	slog.Info("backend switch considered", "session", s.id, "target", target.Name, "requested", attempt.Requested, "outcome", attempt.Outcome, "detail", attempt.Detail)
	return attempt
}

func (g *Governor) publishStatus() Status {
	s := g.session
	state := s.tracker.State()

	status := Status{
		SessionID:                  s.id,
		Level:                      max(s.level, state.Level),
		BudgetUsedPercent:          state.Percent(),
		Used:                       state.Used,
		Total:                      state.Total,
		SnapshotStatus:             s.snapshotStatus,
		SnapshotPending:            s.pendingSnapshot,
		Steps:                      s.steps,
		Halted:                     s.halted,
		AwaitingSwitchConfirmation: s.awaitingSwitch,
		Backend:                    s.backend,
	}
	if s.latest != nil {
		status.SnapshotLocation = s.latest.Path
		status.SnapshotStep = s.latestStep
	}

	g.statusMu.Lock()
	g.status = status
	g.statusMu.Unlock()

	return status
}

func summary(level core.Level, state budget.State) string {
	return fmt.Sprintf("level %s, %d%% of budget used (%d/%d)", level, state.Percent(), state.DisplayUsed(), state.Total)
}

func switchNote(a capability.Attempt) string {
	switch a.Outcome {
	case capability.OutcomeConfirmed:
		return fmt.Sprintf("backend switch to %s confirmed", a.Target.Name)
	case capability.OutcomeUnsupported:
		return "backend switch unsupported"
	case capability.OutcomeNotAttempted:
		return "backend switch not attempted"
	default:
		return fmt.Sprintf("backend switch to %s attempted but not confirmed (%s)", a.Target.Name, a.Detail)
	}
}
