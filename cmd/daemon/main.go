package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/erg0nix/kontekst-governor/internal/app"
	"github.com/erg0nix/kontekst-governor/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var (
		configPathFlag = flag.String("config", "", "path to config file (default ~/.kontekst-governor/config.toml)")
		bindFlag       = flag.String("bind", "", "gRPC bind address")
		dataDirFlag    = flag.String("data-dir", "", "base data dir (default ~/.kontekst-governor)")
		envFileFlag    = flag.String("env-file", "", "path to .env file (default ./.env)")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envFileFlag); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	configPath := *configPathFlag
	if configPath == "" {
		configPath = filepath.Join(config.Default().DataDir, "config.toml")
	}

	daemonConfig, err := config.LoadOrCreate(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	daemonConfig = config.LoadEnvOverrides(daemonConfig)

	setIfNotEmpty := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}

	setIfNotEmpty(&daemonConfig.Bind, *bindFlag)
	setIfNotEmpty(&daemonConfig.DataDir, *dataDirFlag)

	if err := app.RunServer(daemonConfig); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}
