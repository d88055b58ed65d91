package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from an optional .env file without overriding the
// process environment.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// LoadEnvOverrides applies GOVERNOR_* variables on top of cfg.
func LoadEnvOverrides(cfg Config) Config {
	if v := os.Getenv("GOVERNOR_BIND"); v != "" {
		cfg.Bind = v
	}
	if v := os.Getenv("GOVERNOR_DATA_DIR"); v != "" {
		cfg.DataDir = expandPath(v)
	}
	if v := os.Getenv("GOVERNOR_TOTAL_BUDGET"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Budget.Total = n
		} else {
			slog.Warn("ignoring GOVERNOR_TOTAL_BUDGET", "value", v, "error", err)
		}
	}
	if v := os.Getenv("GOVERNOR_SWITCH_MODE"); v != "" {
		cfg.Switch.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("GOVERNOR_SWITCH_TIMEOUT"); v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err == nil {
			cfg.Switch.Timeout = d
		} else {
			slog.Warn("ignoring GOVERNOR_SWITCH_TIMEOUT", "value", v, "error", err)
		}
	}
	if v := os.Getenv("GOVERNOR_SNAPSHOT_PRIMARY"); v != "" {
		cfg.Snapshot.Primary = expandPath(v)
	}
	if v := os.Getenv("GOVERNOR_SNAPSHOT_FALLBACK"); v != "" {
		cfg.Snapshot.Fallback = expandPath(v)
	}
	if v := os.Getenv("GOVERNOR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if os.Getenv("GOVERNOR_LOG_JSON") == "1" {
		cfg.Log.Format = "json"
	}
	return cfg
}
