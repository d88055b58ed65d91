package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/erg0nix/kontekst-governor/internal/budget"
)

const (
	SwitchModeUnsupported = "unsupported"
	SwitchModeNative      = "native"
)

type BudgetConfig struct {
	Total      int64             `toml:"total"`
	Thresholds budget.Thresholds `toml:"thresholds"`
}

type OutputConfig struct {
	LargeOutputThreshold int64 `toml:"large_output_threshold"`
	ChunkSize            int   `toml:"chunk_size"`
}

type SwitchConfig struct {
	Mode          string   `toml:"mode"`
	Target        string   `toml:"target"`
	Timeout       Duration `toml:"timeout"`
	ProbeCommand  []string `toml:"probe_command"`
	SwitchCommand []string `toml:"switch_command"`
}

type SnapshotConfig struct {
	Primary  string `toml:"primary"`
	Fallback string `toml:"fallback"`
}

// MonitorConfig.Interval of zero disables the background monitor.
type MonitorConfig struct {
	Interval Duration `toml:"interval"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Bind     string         `toml:"bind"`
	DataDir  string         `toml:"data_dir"`
	Budget   BudgetConfig   `toml:"budget"`
	Output   OutputConfig   `toml:"output"`
	Switch   SwitchConfig   `toml:"switch"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Log      LogConfig      `toml:"log"`
}

func Default() Config {
	defaultDataDir := defaultDataDir()
	return Config{
		Bind:    ":50061",
		DataDir: defaultDataDir,
		Budget: BudgetConfig{
			Total:      200000,
			Thresholds: budget.DefaultThresholds(),
		},
		Output: OutputConfig{
			LargeOutputThreshold: 300,
			ChunkSize:            200,
		},
		Switch: SwitchConfig{
			Mode:    SwitchModeUnsupported,
			Target:  "",
			Timeout: Duration(30 * time.Second),
		},
		Snapshot: SnapshotConfig{
			Primary:  filepath.Join(defaultDataDir, "snapshots"),
			Fallback: filepath.Join(os.TempDir(), "kontekst-governor"),
		},
		Monitor: MonitorConfig{
			Interval: Duration(15 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config, Save(path, config)
		}

		return config, err
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, fmt.Errorf("%w: %s: %v", budget.ErrInvalidConfiguration, path, err)
	}

	config.DataDir = expandPath(config.DataDir)
	config.Snapshot.Primary = expandPath(config.Snapshot.Primary)
	config.Snapshot.Fallback = expandPath(config.Snapshot.Fallback)
	config.Bind = strings.TrimSpace(config.Bind)
	config.Switch.Mode = strings.ToLower(strings.TrimSpace(config.Switch.Mode))

	if config.Bind == "" {
		config.Bind = ":50061"
	}

	return config, config.Validate()
}

// Save writes cfg as TOML, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	configData, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, configData, 0o644)
}

// Validate reports every problem found, wrapped in budget.ErrInvalidConfiguration.
func (c Config) Validate() error {
	var problems []error

	if c.Budget.Total <= 0 {
		problems = append(problems, fmt.Errorf("budget.total must be positive, got %d", c.Budget.Total))
	}
	if err := c.Budget.Thresholds.Validate(); err != nil {
		problems = append(problems, err)
	}
	if c.Output.LargeOutputThreshold <= 0 {
		problems = append(problems, fmt.Errorf("output.large_output_threshold must be positive, got %d", c.Output.LargeOutputThreshold))
	}
	if c.Output.ChunkSize <= 0 {
		problems = append(problems, fmt.Errorf("output.chunk_size must be positive, got %d", c.Output.ChunkSize))
	}
	if c.Switch.Timeout <= 0 {
		problems = append(problems, fmt.Errorf("switch.timeout must be positive, got %s", c.Switch.Timeout.Std()))
	}
	if c.Monitor.Interval < 0 {
		problems = append(problems, fmt.Errorf("monitor.interval must not be negative, got %s", c.Monitor.Interval.Std()))
	}

	switch c.Switch.Mode {
	case SwitchModeUnsupported:
	case SwitchModeNative:
		if c.Switch.Target == "" {
			problems = append(problems, errors.New("switch.target is required in native mode"))
		}
		if len(c.Switch.SwitchCommand) == 0 {
			problems = append(problems, errors.New("switch.switch_command is required in native mode"))
		}
	default:
		problems = append(problems, fmt.Errorf("switch.mode must be %q or %q, got %q", SwitchModeUnsupported, SwitchModeNative, c.Switch.Mode))
	}

	if strings.TrimSpace(c.Snapshot.Primary) == "" {
		problems = append(problems, errors.New("snapshot.primary is required"))
	}
	if c.Snapshot.Fallback != "" && filepath.Clean(c.Snapshot.Fallback) == filepath.Clean(c.Snapshot.Primary) {
		problems = append(problems, errors.New("snapshot.fallback must differ from snapshot.primary"))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", budget.ErrInvalidConfiguration, errors.Join(problems...))
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".kontekst-governor"
	}

	return filepath.Join(homeDir, ".kontekst-governor")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()

		if homeDir != "" {
			trimmed := strings.TrimPrefix(path, "~")
			trimmed = strings.TrimPrefix(trimmed, string(os.PathSeparator))

			return filepath.Join(homeDir, trimmed)
		}
	}

	return path
}
