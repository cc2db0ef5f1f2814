package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// Config holds runtime settings for the GophChat client.
//
// Fields:
//   - DatabasePath: the SQLite file shared by every instance on the device.
//   - WatchInterval: how often the change log is polled for other instances' writes.
//   - LogLevel, LogFormat: slog level (debug|info|warn|error) and handler (text|json).
//   - HashAlgorithm: digest used for new secrets (sha256|argon2id).
//   - ChangeLogRetention: change-log rows kept in the store; 0 keeps all.
type Config struct {
	DatabasePath       string
	WatchInterval      time.Duration
	LogLevel           string
	LogFormat          string
	HashAlgorithm      string
	ChangeLogRetention int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "gophchat.db"
	c.WatchInterval = time.Second
	c.LogLevel = "warn"
	c.LogFormat = "text"
	c.HashAlgorithm = cryptox.AlgorithmSHA256
	c.ChangeLogRetention = 1000
}

// Validate reports the first setting the client cannot run with.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", c.WatchInterval)
	}
	if c.ChangeLogRetention < 0 {
		return fmt.Errorf("change log retention must not be negative, got %d", c.ChangeLogRetention)
	}
	if _, err := cryptox.NewHasher(c.HashAlgorithm); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the config file (if one is given) and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
