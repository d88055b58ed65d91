package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/governor"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

// Governor is the hook surface the tools call. *governor.Governor implements it.
type Governor interface {
	OnUnitComplete(ctx context.Context, delta int64) (governor.Directive, error)
	BeforeLargeOutput(ctx context.Context, estimatedSize int64) (governor.Directive, error)
	Checkpoint(ctx context.Context, snap snapshot.Snapshot) (governor.Directive, error)
	Status() governor.Status
	Reset() (governor.Status, error)
	Resume(sessionID core.SessionID) (snapshot.Snapshot, error)
}

type Handlers struct {
	governor Governor
	source   *governor.LatchedSource
}

func (h *Handlers) UnitComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	delta, ok := core.Int64FromAny(request.GetArguments()["delta"])
	if !ok {
		return mcp.NewToolResultError("delta argument is required and must be a number"), nil
	}

	if snap, ok := continuityFromRequest(request); ok && h.source != nil {
		h.source.Update(snap)
	}

	directive, err := h.governor.OnUnitComplete(ctx, delta)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unit not recorded: %v", err)), nil
	}
	return jsonResult(directive)
}

func (h *Handlers) BeforeOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	size, ok := core.Int64FromAny(request.GetArguments()["estimated_size"])
	if !ok {
		return mcp.NewToolResultError("estimated_size argument is required and must be a number"), nil
	}

	directive, err := h.governor.BeforeLargeOutput(ctx, size)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("output check failed: %v", err)), nil
	}
	return jsonResult(directive)
}

func (h *Handlers) Checkpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, ok := continuityFromRequest(request)
	if !ok {
		return mcp.NewToolResultError("context, progress, decisions and next are required"), nil
	}
	if h.source != nil {
		h.source.Update(snap)
	}

	directive, err := h.governor.Checkpoint(ctx, snap)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("checkpoint failed: %v", err)), nil
	}
	return jsonResult(directive)
}

func (h *Handlers) Status(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.governor.Status())
}

func (h *Handlers) Reset(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := h.governor.Reset()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	return jsonResult(status)
}

func (h *Handlers) Resume(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := core.SessionID(request.GetString("session_id", ""))
	if sessionID == "" {
		sessionID = h.governor.Status().SessionID
	}

	snap, err := h.governor.Resume(sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no snapshot to resume: %v", err)), nil
	}
	return mcp.NewToolResultText(snapshot.Render(snap)), nil
}

// continuityFromRequest reads the four snapshot parts. ok is false when none is present.
func continuityFromRequest(request mcp.CallToolRequest) (snapshot.Snapshot, bool) {
	args := request.GetArguments()

	snap := snapshot.Snapshot{
		Context:   core.StringFromAny(args["context"]),
		Progress:  core.StringFromAny(args["progress"]),
		Decisions: core.StringFromAny(args["decisions"]),
		Next:      core.StringFromAny(args["next"]),
	}
	if snap.Context == "" && snap.Progress == "" && snap.Decisions == "" && snap.Next == "" {
		return snapshot.Snapshot{}, false
	}
	return snap, true
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("encode tool result", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
