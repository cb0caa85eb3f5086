package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("database", cfg.Database)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("grid.page_size", cfg.Grid.PageSize)
	v.SetDefault("grid.prefetch_threshold", cfg.Grid.PrefetchThreshold)
	v.SetDefault("grid.row_estimate", cfg.Grid.RowEstimate)
	v.SetDefault("grid.overscan", cfg.Grid.Overscan)
	v.SetDefault("grid.measure", cfg.Grid.Measure)
	v.SetDefault("grid.sort_mode", cfg.Grid.SortMode)
	v.SetDefault("grid.wrap_cells", cfg.Grid.WrapCells)
	v.SetDefault("scan.extensions", cfg.Scan.Extensions)
	v.SetDefault("scan.hash", cfg.Scan.Hash)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateGridConfig(cfg.Grid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateGridConfig(cfg GridConfig) error {
	if cfg.PageSize <= 0 {
		return fmt.Errorf("grid.page_size must be positive, got %d", cfg.PageSize)
	}
	if cfg.PrefetchThreshold <= 0 {
		return fmt.Errorf("grid.prefetch_threshold must be positive, got %d", cfg.PrefetchThreshold)
	}
	if cfg.RowEstimate <= 0 {
		return fmt.Errorf("grid.row_estimate must be positive, got %d", cfg.RowEstimate)
	}
	if cfg.Overscan < 0 {
		return fmt.Errorf("grid.overscan must not be negative, got %d", cfg.Overscan)
	}
	if !oneOf(cfg.Measure, "live", "fixed") {
		return fmt.Errorf("unsupported grid.measure %q", cfg.Measure)
	}
	if !oneOf(cfg.SortMode, "single", "multi") {
		return fmt.Errorf("unsupported grid.sort_mode %q", cfg.SortMode)
	}
	return nil
}

func oneOf(value string, choices ...string) bool {
	return slices.Contains(choices, strings.TrimSpace(value))
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Database = expandEnv(cfg.Database)
	cfg.LogFile = expandEnv(cfg.LogFile)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = home + value[1:]
		}
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
