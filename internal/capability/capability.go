// Package capability answers whether an alternate execution backend is available and
// attempts a switch to it. A switch is only ever reported as confirmed when the execution
// environment sends an explicit affirmative signal.
package capability

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrSwitchUnsupported = errors.New("backend switch unsupported")
	ErrSwitchRejected    = errors.New("backend switch rejected")
	ErrSwitchTimeout     = errors.New("backend switch timed out")
)

type Capability string

const (
	Supported   Capability = "supported"
	Unsupported Capability = "unsupported"
)

type Outcome string

const (
	OutcomeNotAttempted Outcome = "not_attempted"
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeRejected     Outcome = "rejected"
	OutcomeUnsupported  Outcome = "unsupported"
)

// Signal is what an environment answers to a switch request.
type Signal int

const (
	SignalNone Signal = iota
	SignalConfirmed
	SignalRejected
)

// BackendDescriptor names the backend a switch targets.
type BackendDescriptor struct {
	Name string `json:"name"`
}

// Attempt is the record of one switch attempt.
type Attempt struct {
	Requested           bool              `json:"requested"`
	CapabilityConfirmed bool              `json:"capability_confirmed"`
	Outcome             Outcome           `json:"outcome"`
	Target              BackendDescriptor `json:"target"`
	Detail              string            `json:"detail,omitempty"`
}

// Err maps a non-confirmed outcome to its error kind; it is nil only for a confirmed switch
// or when no attempt was made.
func (a Attempt) Err() error {
	switch a.Outcome {
	case OutcomeConfirmed, OutcomeNotAttempted:
		return nil
	case OutcomeUnsupported:
		return ErrSwitchUnsupported
	default:
		if a.Detail == detailTimeout {
			return ErrSwitchTimeout
		}
		return ErrSwitchRejected
	}
}

// Probe is implemented by NativeSwitchBackend and UnsupportedBackend.
type Probe interface {
	QuerySwitchCapability(ctx context.Context) Capability
	AttemptSwitch(ctx context.Context, target BackendDescriptor) Attempt
}

// Environment is the execution environment a native backend defers to.
type Environment interface {
	Capability(ctx context.Context) (Capability, error)
	RequestSwitch(ctx context.Context, target BackendDescriptor) (Signal, error)
}

const (
	detailTimeout   = "timed out waiting for confirmation"
	detailNoSignal  = "environment returned no explicit confirmation"
	detailRejected  = "environment rejected the switch"
	detailNoSupport = "environment does not support backend switching"
)

// UnsupportedBackend is used where the environment cannot switch backends at all.
type UnsupportedBackend struct{}

func (UnsupportedBackend) QuerySwitchCapability(context.Context) Capability {
	return Unsupported
}

func (UnsupportedBackend) AttemptSwitch(_ context.Context, target BackendDescriptor) Attempt {
	return Attempt{Requested: true, Outcome: OutcomeUnsupported, Target: target, Detail: detailNoSupport}
}

// NativeSwitchBackend passes capability queries and switch requests through to an Environment.
type NativeSwitchBackend struct {
	Env     Environment
	Timeout time.Duration

	// supported holds a Supported answer until the next AttemptSwitch consumes it.
	supported atomic.Bool
}

func NewNativeSwitchBackend(env Environment, timeout time.Duration) *NativeSwitchBackend {
	return &NativeSwitchBackend{Env: env, Timeout: timeout}
}

func (b *NativeSwitchBackend) QuerySwitchCapability(ctx context.Context) Capability {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	capability, err := b.Env.Capability(ctx)
	if err != nil {
		slog.Warn("capability query failed", "error", err)
		return Unsupported
	}
	if capability != Supported {
		b.supported.Store(false)
		return Unsupported
	}
	b.supported.Store(true)
	return Supported
}

// AttemptSwitch blocks until the environment answers or the timeout expires.
func (b *NativeSwitchBackend) AttemptSwitch(ctx context.Context, target BackendDescriptor) Attempt {
	ctx, span := otel.Tracer("capability").Start(ctx, "capability.AttemptSwitch")
	defer span.End()

	attempt := b.attempt(ctx, target)

	span.SetAttributes(
		attribute.String("target", target.Name),
		attribute.String("outcome", string(attempt.Outcome)),
	)
	slog.Info("backend switch attempt", "target", target.Name, "outcome", attempt.Outcome, "detail", attempt.Detail)
	return attempt
}

func (b *NativeSwitchBackend) attempt(ctx context.Context, target BackendDescriptor) Attempt {
	attempt := Attempt{Requested: true, Outcome: OutcomeRejected, Target: target}

	if !b.supported.Swap(false) {
		if b.QuerySwitchCapability(ctx) != Supported {
			attempt.Outcome = OutcomeUnsupported
			attempt.Detail = detailNoSupport
			return attempt
		}
		b.supported.Store(false)
	}
	attempt.CapabilityConfirmed = true

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	type answer struct {
		signal Signal
		err    error
	}
	answers := make(chan answer, 1)
	go func() {
		signal, err := b.Env.RequestSwitch(ctx, target)
		answers <- answer{signal: signal, err: err}
	}()

	select {
	case <-ctx.Done():
		attempt.Detail = detailTimeout
		return attempt
	case a := <-answers:
		if ctx.Err() != nil {
			attempt.Detail = detailTimeout
			return attempt
		}

		switch {
		case a.err != nil:
			attempt.Detail = a.err.Error()
		case a.signal == SignalConfirmed:
			attempt.Outcome = OutcomeConfirmed
			attempt.Detail = ""
		case a.signal == SignalRejected:
			attempt.Detail = detailRejected
		default:
			attempt.Detail = detailNoSignal
		}
		return attempt
	}
}

func (b *NativeSwitchBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.Timeout)
}
