// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRESTPort is the REST API port used when none is configured.
const DefaultRESTPort = 11370

// ServerConfig represents the opsignerd configuration file.
type ServerConfig struct {
	Port         int    `yaml:"port" description:"REST API port" default:"11370"`
	DataDir      string `yaml:"data_dir" description:"Data directory holding keystore, wallet and network files"`
	KeystoreFile string `yaml:"keystore_file" description:"Encrypted keystore path" default:"keystore.blob"`
	WalletFile   string `yaml:"wallet_file" description:"Wallet account book path" default:"wallet.json"`
	NetworksFile string `yaml:"networks_file" description:"Network registry path" default:"networks.yaml"`
	AuditLog     string `yaml:"audit_log" description:"JSONL audit log path (empty disables auditing)" default:"audit.log"`
	LockTimeout  string `yaml:"lock_timeout" description:"Inactivity timeout before auto-lock (0=never)" default:"15m"`
	WatchStore   *bool  `yaml:"watch_store" description:"Lock the signer when the keystore file changes on disk" default:"true"`
}

// DefaultServerConfig returns the default daemon configuration. Relative
// paths are resolved against the data directory.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:         DefaultRESTPort,
		KeystoreFile: "keystore.blob",
		WalletFile:   "wallet.json",
		NetworksFile: "networks.yaml",
		AuditLog:     "audit.log",
		LockTimeout:  "15m",
	}
}

// ResolvePath resolves a path relative to baseDir if not absolute.
// Returns path unchanged if empty or already absolute.
func ResolvePath(path, baseDir string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// LoadServerConfig loads the daemon configuration from
// <dataDir>/config.yaml, filling missing fields with defaults and
// resolving relative paths against dataDir. A missing file yields the
// defaults.
func LoadServerConfig(dataDir string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	cfg.DataDir = dataDir
	if dataDir == "" {
		return cfg, nil
	}

	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.resolve(dataDir)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	defaults := DefaultServerConfig()
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.KeystoreFile == "" {
		cfg.KeystoreFile = defaults.KeystoreFile
	}
	if cfg.WalletFile == "" {
		cfg.WalletFile = defaults.WalletFile
	}
	if cfg.NetworksFile == "" {
		cfg.NetworksFile = defaults.NetworksFile
	}
	if cfg.LockTimeout == "" {
		cfg.LockTimeout = defaults.LockTimeout
	}
	cfg.DataDir = dataDir
	cfg.resolve(dataDir)
	return cfg, nil
}

func (c *ServerConfig) resolve(dataDir string) {
	c.KeystoreFile = ResolvePath(c.KeystoreFile, dataDir)
	c.WalletFile = ResolvePath(c.WalletFile, dataDir)
	c.NetworksFile = ResolvePath(c.NetworksFile, dataDir)
	c.AuditLog = ResolvePath(c.AuditLog, dataDir)
}

// ShouldWatchStore reports whether the keystore file watcher is enabled.
// Defaults to true when unset.
func (c *ServerConfig) ShouldWatchStore() bool {
	if c.WatchStore == nil {
		return true
	}
	return *c.WatchStore
}

// ParseLockTimeout parses the lock_timeout setting into a time.Duration.
// "0" and the empty string mean never lock; negative durations are
// rejected.
func ParseLockTimeout(timeoutStr string) (time.Duration, error) {
	if timeoutStr == "" || timeoutStr == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q not supported (use \"0\" for no timeout)", timeoutStr)
	}
	return d, nil
}

// DataDirFromEnv resolves the daemon data directory: the flag value wins,
// then the OPSIGNER_DATA environment variable. Empty means unset.
func DataDirFromEnv(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("OPSIGNER_DATA")
}
