// Package config loads and validates the TOML configuration a run needs.
// The core packages never read this (or any other ambient state) directly;
// the CLI translates a Config into their explicit arguments.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the recognized option set.
type Config struct {
	// Local paths.
	ScanRoot    string `toml:"scan_root"`
	StagingRoot string `toml:"staging_root"`

	// Remote POSIX-style prefixes. RemoteSourceRoot maps to ScanRoot on the
	// transfer service's view of the source endpoint; RemoteStagingRoot maps
	// to StagingRoot (and defaults to it).
	RemoteSourceRoot  string `toml:"remote_source_root"`
	RemoteDestRoot    string `toml:"remote_dest_root"`
	RemoteStagingRoot string `toml:"remote_staging_root"`

	// Batching policy.
	SizeThreshold   string `toml:"size_threshold"` // human-readable, default "50M"
	TimestampRename *bool  `toml:"timestamp_rename"`
	VerifyChecksum  bool   `toml:"verify_checksum"`
	PreserveMtime   bool   `toml:"preserve_mtime"`
	Workers         int    `toml:"workers"`

	// Transfer service.
	EndpointURL   string `toml:"endpoint_url"`
	SubmitTimeout string `toml:"submit_timeout"` // Go duration, default "2m"

	// Credential store reference (keyring-style service/client pair).
	SecretService  string `toml:"secret_service"`
	SecretClientID string `toml:"secret_client_id"`

	// Optional run journal database path.
	JournalPath string `toml:"journal_path"`
}

// Load reads the config file at path.
func Load(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s not found", path)
		}
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unrecognized key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Validate checks the fields every run needs before scanning begins. A
// validation failure terminates the run with a non-zero outcome before any
// filesystem work happens.
func (c *Config) Validate() error {
	required := []struct {
		key, val string
	}{
		{"scan_root", c.ScanRoot},
		{"staging_root", c.StagingRoot},
		{"remote_source_root", c.RemoteSourceRoot},
		{"remote_dest_root", c.RemoteDestRoot},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("config: %s is required", r.key)
		}
	}
	if _, err := c.ThresholdBytes(); err != nil {
		return err
	}
	if _, err := c.SubmitTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// RemoteStaging returns the remote staging prefix. It defaults to the local
// staging root for deployments where both endpoints mount the same scratch
// filesystem.
func (c *Config) RemoteStaging() string {
	if c.RemoteStagingRoot != "" {
		return c.RemoteStagingRoot
	}
	return c.StagingRoot
}

// ThresholdBytes parses size_threshold, defaulting to 50 MiB.
func (c *Config) ThresholdBytes() (int64, error) {
	if c.SizeThreshold == "" {
		return 50 * 1024 * 1024, nil
	}
	n, err := ParseSize(c.SizeThreshold)
	if err != nil {
		return 0, fmt.Errorf("config: size_threshold: %w", err)
	}
	return n, nil
}

// SubmitTimeoutDuration parses submit_timeout, defaulting to zero (the
// submitter applies its own default).
func (c *Config) SubmitTimeoutDuration() (time.Duration, error) {
	if c.SubmitTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SubmitTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: submit_timeout: %w", err)
	}
	return d, nil
}

// TimestampRenameEnabled reports the raw-file renaming policy. It defaults
// to true: accumulate-forever naming is the safe choice when a window may be
// re-run; mirroring is opt-in.
func (c *Config) TimestampRenameEnabled() bool {
	if c.TimestampRename == nil {
		return true
	}
	return *c.TimestampRename
}
