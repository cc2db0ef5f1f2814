package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
	"github.com/dmitrijs2005/gophchat/internal/timex"
)

// FileConfig is a DTO used exclusively for config file decoding. It relies
// on timex.Duration so intervals may be written as "2s" or as integer
// nanoseconds. Zero values leave the corresponding setting untouched.
type FileConfig struct {
	DatabasePath       string         `json:"database_path" yaml:"database_path"`
	WatchInterval      timex.Duration `json:"watch_interval" yaml:"watch_interval"`
	LogLevel           string         `json:"log_level" yaml:"log_level"`
	LogFormat          string         `json:"log_format" yaml:"log_format"`
	HashAlgorithm      string         `json:"hash_algorithm" yaml:"hash_algorithm"`
	ChangeLogRetention *int           `json:"change_log_retention" yaml:"change_log_retention"`
}

// parseFile overlays cfg with the file named by -c/-config. Files ending in
// .yaml or .yml are decoded as YAML, anything else as JSON.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc FileConfig) apply(cfg *Config) {
	if fc.DatabasePath != "" {
		cfg.DatabasePath = fc.DatabasePath
	}
	if fc.WatchInterval.Duration != 0 {
		cfg.WatchInterval = fc.WatchInterval.Duration
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.HashAlgorithm != "" {
		cfg.HashAlgorithm = fc.HashAlgorithm
	}
	if fc.ChangeLogRetention != nil {
		cfg.ChangeLogRetention = *fc.ChangeLogRetention
	}
}
