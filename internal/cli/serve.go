package cli

import (
	"github.com/spf13/cobra"

	"github.com/erg0nix/kontekst-governor/internal/app"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the governor daemon",
		RunE:  runServeCmd,
	}

	cmd.Flags().Bool("foreground", false, "run server in foreground")
	cmd.Flags().String("bind", "", "bind address (overrides config)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	foreground, _ := cmd.Flags().GetBool("foreground")
	bindOverride, _ := cmd.Flags().GetString("bind")

	cfg := a.Config
	if bindOverride != "" {
		cfg.Bind = bindOverride
	}

	if foreground {
		return app.RunServer(cfg)
	}

	return startServer(cfg, a.ConfigPath, false)
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the governor hooks as MCP tools over stdio",
		Long: `Serve the governor hooks as MCP tools over stdio.

The process owns a single session. Agent hosts call governor_unit_complete
after each unit of work and follow the returned directive.`,
		Example: `  # claude_desktop_config.json
  # {
  #   "mcpServers": {
  #     "governor": {"command": "governor", "args": ["mcp"]}
  #   }
  # }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return app.RunMCP(a.Config)
		},
	}
}
