package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/orchd-dev/orchd/internal/fileutil"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// ORCHD_SYSTEM_ROOT overrides system.root.
const envPrefix = "ORCHD"

// homeEnv overrides the workspace root directly.
const homeEnv = "ORCHD_HOME"

// Loader reads and merges configuration from the config file, environment
// variables and built-in defaults.
type Loader struct {
	v          *viper.Viper
	configFile string
	root       string
	warnings   []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) LoaderOption {
	return func(l *Loader) {
		l.configFile = configFile
	}
}

// WithRoot overrides the workspace root, taking precedence over both the
// config file and ORCHD_HOME.
func WithRoot(dir string) LoaderOption {
	return func(l *Loader) {
		l.root = dir
	}
}

// NewLoader creates a Loader with the given options.
func NewLoader(options ...LoaderOption) *Loader {
	loader := &Loader{v: viper.New()}
	for _, opt := range options {
		opt(loader)
	}
	return loader
}

// Load reads the configuration file if present, applies defaults and
// environment overrides, and returns a validated Config.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(l.defaultRoot())
		l.v.AddConfigPath(filepath.Join(xdg.ConfigHome, "orchd"))
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// A missing config file is fine; defaults apply.
	}

	cfg, err := l.build()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("system.log_level", "info")
	l.v.SetDefault("system.log_format", "text")
	l.v.SetDefault("watcher.debounce_ms", 500)
	l.v.SetDefault("watcher.stability_check", true)
	l.v.SetDefault("agents.default_model", "anthropic:claude-sonnet-4-20250514")
	l.v.SetDefault("agents.default_agent", "assistant")
	l.v.SetDefault("journal.flush_interval_ms", 500)
	l.v.SetDefault("journal.batch_size", 32)
}

// defaultRoot resolves the workspace root: explicit option, then ORCHD_HOME,
// then system.root from any already-read config, then ~/orchd.
func (l *Loader) defaultRoot() string {
	if l.root != "" {
		return l.root
	}
	if dir := os.Getenv(homeEnv); dir != "" {
		return dir
	}
	return filepath.Join(fileutil.MustGetUserHomeDir(), "orchd")
}

func (l *Loader) build() (*Config, error) {
	root := l.root
	if root == "" {
		root = os.Getenv(homeEnv)
	}
	if root == "" {
		root = l.v.GetString("system.root")
	}
	if root == "" {
		root = filepath.Join(fileutil.MustGetUserHomeDir(), "orchd")
	}
	root, err := fileutil.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve system.root: %w", err)
	}

	cfg := &Config{
		Root:      root,
		LogLevel:  l.v.GetString("system.log_level"),
		LogFormat: l.v.GetString("system.log_format"),
		Paths: PathsConfig{
			Inbox:      l.pathOrDefault("paths.inbox", filepath.Join(root, "Inbox")),
			Blueprints: l.pathOrDefault("paths.blueprints", filepath.Join(root, "System", "Blueprints")),
			Flows:      l.pathOrDefault("paths.flows", filepath.Join(root, "System", "Flows")),
			Active:     l.pathOrDefault("paths.active", filepath.Join(root, "System", "Active")),
		},
		Watcher: WatcherConfig{
			Debounce:       time.Duration(l.v.GetInt("watcher.debounce_ms")) * time.Millisecond,
			StabilityCheck: l.v.GetBool("watcher.stability_check"),
		},
		Agents: AgentsConfig{
			DefaultModel: l.v.GetString("agents.default_model"),
			DefaultAgent: l.v.GetString("agents.default_agent"),
		},
		Journal: JournalConfig{
			Path:          l.pathOrDefault("journal.path", filepath.Join(root, "journal.db")),
			FlushInterval: time.Duration(l.v.GetInt("journal.flush_interval_ms")) * time.Millisecond,
			BatchSize:     l.v.GetInt("journal.batch_size"),
		},
		Warnings: l.warnings,
	}

	if !strings.Contains(cfg.Agents.DefaultModel, ":") {
		l.warnings = append(l.warnings, fmt.Sprintf(
			"agents.default_model %q is not provider-qualified", cfg.Agents.DefaultModel))
		cfg.Warnings = l.warnings
	}

	return cfg, nil
}

// pathOrDefault resolves a configured path, falling back to def when unset
// or unresolvable.
func (l *Loader) pathOrDefault(key, def string) string {
	value := l.v.GetString(key)
	if value == "" {
		return def
	}
	resolved, err := fileutil.ResolvePath(value)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("invalid %s value %q: %v", key, value, err))
		return def
	}
	return resolved
}
