package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erg0nix/kontekst-governor/internal/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the snapshot directories",
		RunE:  runInitCmd,
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	force, _ := cmd.Flags().GetBool("force")

	path := configPathOrDefault(configPath)
	cfg, err := initConfig(path, config.LoadEnvOverrides(config.Default()), force)
	if err != nil {
		return err
	}

	fmt.Println(styleSuccess.Render("wrote " + path))
	fmt.Println(styleDim.Render("snapshots: " + cfg.Snapshot.Primary))
	if cfg.Snapshot.Fallback != "" {
		fmt.Println(styleDim.Render("fallback:  " + cfg.Snapshot.Fallback))
	}
	fmt.Println("start with: " + styleCommand.Render("governor serve"))
	return nil
}

func initConfig(path string, cfg config.Config, force bool) (config.Config, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return cfg, fmt.Errorf("%s already exists; pass --force to overwrite", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if err := config.Save(path, cfg); err != nil {
		return cfg, fmt.Errorf("write config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.Snapshot.Primary, cfg.Snapshot.Fallback} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cfg, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return cfg, nil
}
