package appconfig

import (
	"os"
	"path/filepath"

	"songgrid/internal/grid"
	"songgrid/internal/library"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int        `mapstructure:"config_version" yaml:"config_version"`
	Database      string     `mapstructure:"database" yaml:"database"`
	LogFile       string     `mapstructure:"log_file" yaml:"log_file"`
	LogLevel      string     `mapstructure:"log_level" yaml:"log_level"`
	Grid          GridConfig `mapstructure:"grid" yaml:"grid"`
	Scan          ScanConfig `mapstructure:"scan" yaml:"scan"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// GridConfig tunes the song grid.
type GridConfig struct {
	PageSize          int    `mapstructure:"page_size" yaml:"page_size"`
	PrefetchThreshold int    `mapstructure:"prefetch_threshold" yaml:"prefetch_threshold"`
	RowEstimate       int    `mapstructure:"row_estimate" yaml:"row_estimate"`
	Overscan          int    `mapstructure:"overscan" yaml:"overscan"`
	Measure           string `mapstructure:"measure" yaml:"measure"`
	SortMode          string `mapstructure:"sort_mode" yaml:"sort_mode"`
	WrapCells         bool   `mapstructure:"wrap_cells" yaml:"wrap_cells"`
}

// ScanConfig controls the library scanner.
type ScanConfig struct {
	Extensions string `mapstructure:"extensions" yaml:"extensions"`
	Hash       bool   `mapstructure:"hash" yaml:"hash"`
}

// Options converts the grid settings. Strings are validated by Load, so
// parse failures fall back to the zero value.
func (g GridConfig) Options() grid.Options {
	measure, _ := grid.ParseMeasureStrategy(g.Measure)
	mode, _ := grid.ParseSortMode(g.SortMode)
	return grid.Options{
		PageSize:          g.PageSize,
		PrefetchThreshold: g.PrefetchThreshold,
		RowEstimate:       g.RowEstimate,
		Overscan:          g.Overscan,
		Measure:           measure,
		SortMode:          mode,
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	dir, err := DataDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Database:      filepath.Join(dir, "songs.db"),
		LogFile:       "",
		LogLevel:      "info",
		Grid: GridConfig{
			PageSize:          grid.DefaultPageSize,
			PrefetchThreshold: 50,
			RowEstimate:       1,
			Overscan:          grid.DefaultOverscan,
			Measure:           "live",
			SortMode:          "single",
			WrapCells:         false,
		},
		Scan: ScanConfig{
			Extensions: library.DefaultExtensions,
			Hash:       false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "songgrid", "config.yaml"), nil
}

// DataDir is where the song database lives by default.
func DataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "songgrid"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "songgrid"), nil
}
