// Package mcp exposes the Governor hooks as MCP tools so an agent host can report its
// consumption and receive directives over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/erg0nix/kontekst-governor/internal/governor"
)

const (
	ServerName    = "kontekst-governor"
	ServerVersion = "0.1.0"
)

func continuityProperties(description string) map[string]any {
	return map[string]any{
		"context": map[string]any{
			"type":        "string",
			"description": description + ": task identity, current phase, loaded scope",
		},
		"progress": map[string]any{
			"type":        "string",
			"description": description + ": completed steps, current step, blockers",
		},
		"decisions": map[string]any{
			"type":        "string",
			"description": description + ": key decisions with rationale and reversibility",
		},
		"next": map[string]any{
			"type":        "string",
			"description": description + ": immediate next actions and an alternate path",
		},
	}
}

// NewServer builds an MCP server with every governor tool registered.
func NewServer(g Governor, source *governor.LatchedSource) (*mcpserver.MCPServer, *Handlers) {
	server := mcpserver.NewMCPServer(ServerName, ServerVersion)
	return server, RegisterTools(server, g, source)
}

func RegisterTools(server *mcpserver.MCPServer, g Governor, source *governor.LatchedSource) *Handlers {
	handlers := &Handlers{governor: g, source: source}

	unitProperties := continuityProperties("Optional current continuity state")
	unitProperties["delta"] = map[string]any{
		"type":        "number",
		"description": "Budget consumed by the unit of work that just completed",
	}
	server.AddTool(mcp.Tool{
		Name:        "governor_unit_complete",
		Description: "Report a completed unit of work and its budget consumption. Returns the directive to follow before starting the next unit.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: unitProperties,
			Required:   []string{"delta"},
		},
	}, handlers.UnitComplete)

	server.AddTool(mcp.Tool{
		Name:        "governor_before_output",
		Description: "Ask before emitting a large output. Returns whether to continue and the chunk size to use.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"estimated_size": map[string]any{
					"type":        "number",
					"description": "Estimated output size in lines",
				},
			},
			Required: []string{"estimated_size"},
		},
	}, handlers.BeforeOutput)

	server.AddTool(mcp.Tool{
		Name:        "governor_checkpoint",
		Description: "Write a continuity snapshot now. All four parts must be non-empty.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: continuityProperties("Snapshot part"),
			Required:   []string{"context", "progress", "decisions", "next"},
		},
	}, handlers.Checkpoint)

	server.AddTool(mcp.Tool{
		Name:        "governor_status",
		Description: "Show the current budget level, percentage used and snapshot status.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, handlers.Status)

	server.AddTool(mcp.Tool{
		Name:        "governor_reset",
		Description: "Start a new session with a fresh budget. Snapshots of the previous session are kept.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, handlers.Reset)

	server.AddTool(mcp.Tool{
		Name:        "governor_resume",
		Description: "Load the latest complete snapshot of a session to resume work from it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session to resume (default: current session)",
				},
			},
		},
	}, handlers.Resume)

	return handlers
}
