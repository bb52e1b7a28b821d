// Package config holds runtime configuration for the memvault server.
//
// Configuration is resolved in three layers: built-in defaults, an
// optional YAML file (memvault.yaml in the data directory, or an explicit
// path), and MEMVAULT_* environment variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BlockSchema declares the expected structure of a registered block.
// A block with a schema is "structured": its body is a fixed sequence of
// markdown sections, one per field, and field-scoped operations are legal.
// Blocks without a schema are freeform.
type BlockSchema struct {
	Title  string   `yaml:"title"`
	Fields []string `yaml:"fields"`
}

// Config holds all tunables for the server and the underlying stores.
type Config struct {
	// DataDir is where the SQLite database lives.
	DataDir string `yaml:"data_dir"`

	// LogMode selects the zap encoder: "dev" (default) or "prod".
	LogMode string `yaml:"log_mode"`

	// ProposalTTL is how long a proposal may sit unreviewed before it
	// transitions to expired.
	ProposalTTL time.Duration `yaml:"proposal_ttl"`

	// SweepInterval is how often the background sweep marks expired
	// proposals. Expiry is also evaluated lazily on read, so the sweep
	// is housekeeping, not correctness.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// HistoryCap bounds how many commits a single history query returns.
	HistoryCap int `yaml:"history_cap"`

	// MaxBodyBytes bounds the size of a block body on write.
	MaxBodyBytes int `yaml:"max_body_bytes"`

	// CacheMaxEntries bounds the block read cache.
	CacheMaxEntries int64 `yaml:"cache_max_entries"`

	// WebhookURL, when set, enables the webhook sync notifier. Empty
	// means changes are only logged.
	WebhookURL string `yaml:"webhook_url"`

	// Schemas registers structured blocks by label.
	Schemas map[string]BlockSchema `yaml:"schemas"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:         filepath.Join(home, ".memvault"),
		LogMode:         "dev",
		ProposalTTL:     7 * 24 * time.Hour,
		SweepInterval:   time.Hour,
		HistoryCap:      100,
		MaxBodyBytes:    64 * 1024,
		CacheMaxEntries: 4096,
		Schemas:         map[string]BlockSchema{},
	}
}

// Load resolves the configuration. path may be empty, in which case only
// MEMVAULT_CONFIG (if set) or <DataDir>/memvault.yaml is consulted; a
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MEMVAULT_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = filepath.Join(cfg.DataDir, "memvault.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = Default().HistoryCap
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = Default().ProposalTTL
	}
	if cfg.Schemas == nil {
		cfg.Schemas = map[string]BlockSchema{}
	}
	return cfg, nil
}

// applyEnv overlays MEMVAULT_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEMVAULT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MEMVAULT_LOG_MODE"); v != "" {
		c.LogMode = v
	}
	if v := os.Getenv("MEMVAULT_WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("MEMVAULT_PROPOSAL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.ProposalTTL = d
		}
	}
	if v := os.Getenv("MEMVAULT_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.SweepInterval = d
		}
	}
}
