// Package config loads the archiver's file-driven configuration. Unlike the
// radio service this module started from, no option is ever read from the
// environment — the core is driven entirely by a YAML document on disk.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds every recognised option from the configuration document.
type Config struct {
	WebhookURL     string `yaml:"webhook_url"`
	TickSeconds    int    `yaml:"tick_seconds"`
	AccountsPath   string `yaml:"accounts_path"`
	TrackStorePath string `yaml:"track_store_path"`

	MaxUploadsPerAccount int `yaml:"max_uploads_per_account"`
	PaginationHint       int `yaml:"pagination_hint"`

	TempDir string `yaml:"temp_dir"`

	UpstreamParallelism   int `yaml:"upstream_parallelism"`
	ProcessingParallelism int `yaml:"processing_parallelism"`
	WebhookParallelism    int `yaml:"webhook_parallelism"`

	EnableLikes     bool `yaml:"enable_likes"`
	MaxLikesPerAccount int `yaml:"max_likes_per_account"`

	AutoEnrollSource   string `yaml:"auto_enroll_source"`
	AutoEnrollInterval int    `yaml:"auto_enroll_interval"`

	SaveEveryTicks  int `yaml:"save_every_ticks"`
	SaveEveryTracks int `yaml:"save_every_tracks"`

	ShowTranscoderOutput bool `yaml:"show_transcoder_output"`
}

// TickInterval returns the configured tick period as a time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// applyDefaults fills in zero-valued fields with the documented defaults,
// mirroring the teacher's withDefault-style helpers but operating on an
// already-parsed document instead of os.Getenv.
func applyDefaults(c *Config) {
	if c.TickSeconds <= 0 {
		c.TickSeconds = 120
	}
	if c.AccountsPath == "" {
		c.AccountsPath = "./data/accounts.json"
	}
	if c.TrackStorePath == "" {
		c.TrackStorePath = "./data/tracks.json"
	}
	if c.MaxUploadsPerAccount <= 0 {
		c.MaxUploadsPerAccount = 20
	}
	if c.PaginationHint <= 0 || c.PaginationHint > 50 {
		c.PaginationHint = 50
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.UpstreamParallelism <= 0 {
		c.UpstreamParallelism = 2
	}
	if c.ProcessingParallelism <= 0 {
		c.ProcessingParallelism = 4
	}
	if c.WebhookParallelism <= 0 {
		c.WebhookParallelism = 4
	}
	if c.MaxLikesPerAccount <= 0 {
		c.MaxLikesPerAccount = 20
	}
	if c.AutoEnrollInterval <= 0 {
		c.AutoEnrollInterval = 30
	}
	if c.SaveEveryTicks <= 0 {
		c.SaveEveryTicks = 10
	}
	if c.SaveEveryTracks <= 0 {
		c.SaveEveryTracks = 5
	}
}

// Load reads and parses the YAML configuration document at path, applying
// defaults for anything left unset. WebhookURL is the only option without a
// default: a missing webhook endpoint is an unrecoverable init failure.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("config: webhook_url is required")
	}

	return &cfg, nil
}
