// Package config loads and resolves the daemon configuration.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds the resolved daemon configuration. It is built once at
// startup and treated as immutable afterwards.
type Config struct {
	// Root is the workspace root directory (system.root).
	Root string
	// LogLevel is one of debug, info, warn, error (system.log_level).
	LogLevel string
	// LogFormat is "text" or "json" (system.log_format).
	LogFormat string

	Paths   PathsConfig
	Watcher WatcherConfig
	Agents  AgentsConfig
	Journal JournalConfig

	// Warnings collected while loading; reported once at startup.
	Warnings []string
}

// PathsConfig holds directory locations under the workspace root.
type PathsConfig struct {
	// Inbox is the inbox directory; requests are watched under
	// {Inbox}/Requests and generated plans staged under {Inbox}/Plans.
	Inbox string
	// Blueprints is the directory containing agent definition documents.
	Blueprints string
	// Flows is the directory containing flow definition files.
	Flows string
	// Active is the directory watched for approved plans.
	Active string
}

// WatcherConfig holds file watcher tuning options.
type WatcherConfig struct {
	// Debounce is the quiet period required before a file is considered
	// candidate-ready (watcher.debounce_ms).
	Debounce time.Duration
	// StabilityCheck enables size-stability verification before a file is
	// read (watcher.stability_check).
	StabilityCheck bool
}

// AgentsConfig holds agent defaults.
type AgentsConfig struct {
	// DefaultModel is a provider-qualified model identifier in the form
	// "provider:model" (agents.default_model).
	DefaultModel string
	// DefaultAgent is the blueprint used when a request names none.
	DefaultAgent string
}

// JournalConfig holds the activity journal settings.
type JournalConfig struct {
	// Path of the sqlite database file. Defaults to {Root}/journal.db.
	Path string
	// FlushInterval between batched writes.
	FlushInterval time.Duration
	// BatchSize is the max number of events per batch.
	BatchSize int
}

// RequestsDir returns the watched directory for request documents.
func (c *Config) RequestsDir() string {
	return filepath.Join(c.Paths.Inbox, "Requests")
}

// StagedPlansDir returns the staging directory for generated plans.
func (c *Config) StagedPlansDir() string {
	return filepath.Join(c.Paths.Inbox, "Plans")
}

// ArchiveDir returns the directory processed requests are moved to.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.RequestsDir(), "archive")
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("system.root must not be empty")
	}
	if c.Watcher.Debounce <= 0 {
		return fmt.Errorf("watcher.debounce_ms must be positive, got %v", c.Watcher.Debounce)
	}
	if c.Journal.BatchSize <= 0 {
		return fmt.Errorf("journal.batch_size must be positive, got %d", c.Journal.BatchSize)
	}
	return nil
}
