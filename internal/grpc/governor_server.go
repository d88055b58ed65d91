package grpc

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/governor"
)

// DaemonStatus is the Status response: the session status plus daemon uptime.
type DaemonStatus struct {
	governor.Status
	Bind          string `json:"bind,omitempty"`
	DataDir       string `json:"data_dir,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type GovernorHandler struct {
	Governor  *governor.Governor
	Source    *governor.LatchedSource
	Bind      string
	DataDir   string
	StartTime time.Time
	StopFunc  func()
}

func (h *GovernorHandler) OnUnitComplete(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	directive, err := h.Governor.OnUnitComplete(ctx, req.GetValue())
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(directive)
}

func (h *GovernorHandler) BeforeLargeOutput(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	directive, err := h.Governor.BeforeLargeOutput(ctx, req.GetValue())
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(directive)
}

// Checkpoint writes the pushed snapshot and keeps it as the latest continuity state.
func (h *GovernorHandler) Checkpoint(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap, err := continuityFromStruct(req)
	if err != nil {
		return nil, toStatusError(err)
	}
	if h.Source != nil {
		h.Source.Update(snap)
	}

	directive, err := h.Governor.Checkpoint(ctx, snap)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(directive)
}

func (h *GovernorHandler) UpdateContinuity(_ context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	snap, err := continuityFromStruct(req)
	if err != nil {
		return nil, toStatusError(err)
	}
	if h.Source != nil {
		h.Source.Update(snap)
	}
	return &emptypb.Empty{}, nil
}

func (h *GovernorHandler) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(h.daemonStatus(h.Governor.Status()))
}

func (h *GovernorHandler) Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	status, err := h.Governor.Reset()
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(h.daemonStatus(status))
}

func (h *GovernorHandler) ReadLatest(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	sessionID := core.SessionID(req.GetValue())
	if sessionID == "" {
		sessionID = h.Governor.SessionID()
	}

	snap, err := h.Governor.Resume(sessionID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(snap)
}

func (h *GovernorHandler) Shutdown(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if h.StopFunc != nil {
		go h.StopFunc()
	}
	return wrapperspb.String("shutting down"), nil
}

func (h *GovernorHandler) daemonStatus(status governor.Status) DaemonStatus {
	out := DaemonStatus{Status: status, Bind: h.Bind, DataDir: h.DataDir}
	if !h.StartTime.IsZero() {
		out.StartedAt = h.StartTime.Format(time.RFC3339)
		out.UptimeSeconds = int64(time.Since(h.StartTime).Seconds())
	}
	return out
}
