package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erg0nix/kontekst-governor/internal/config"
	grpcsvc "github.com/erg0nix/kontekst-governor/internal/grpc"
)

type App struct {
	Config     config.Config
	ConfigPath string
	ServerAddr string
}

func newApp(cmd *cobra.Command) (*App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	serverOverride, _ := cmd.Flags().GetString("server")
	envFile, _ := cmd.Flags().GetString("env-file")

	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg = config.LoadEnvOverrides(cfg)

	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		ServerAddr: resolveServer(serverOverride, cfg),
	}, nil
}

func (a *App) dial() (*grpcsvc.Client, error) {
	client, err := grpcsvc.Dial(a.ServerAddr)
	if err != nil {
		printServerNotRunning(a.ServerAddr, err)
		return nil, err
	}
	return client, nil
}
