package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := NewLoader(WithRoot(root)).Load()
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, filepath.Join(root, "Inbox"), cfg.Paths.Inbox)
	assert.Equal(t, filepath.Join(root, "System", "Blueprints"), cfg.Paths.Blueprints)
	assert.Equal(t, filepath.Join(root, "System", "Active"), cfg.Paths.Active)
	assert.Equal(t, 500*time.Millisecond, cfg.Watcher.Debounce)
	assert.True(t, cfg.Watcher.StabilityCheck)
	assert.Equal(t, "anthropic:claude-sonnet-4-20250514", cfg.Agents.DefaultModel)
	assert.Equal(t, "assistant", cfg.Agents.DefaultAgent)
	assert.Equal(t, filepath.Join(root, "journal.db"), cfg.Journal.Path)
	assert.Equal(t, 32, cfg.Journal.BatchSize)
}

func TestLoadConfigFile(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
system:
  root: `+root+`
  log_level: debug
watcher:
  debounce_ms: 250
agents:
  default_model: openai:gpt-4o
  default_agent: planner
journal:
  batch_size: 16
`), 0o600))

	cfg, err := NewLoader(WithConfigFile(configPath)).Load()
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Watcher.Debounce)
	assert.Equal(t, "openai:gpt-4o", cfg.Agents.DefaultModel)
	assert.Equal(t, "planner", cfg.Agents.DefaultAgent)
	assert.Equal(t, 16, cfg.Journal.BatchSize)
}

func TestLoadRootPrecedence(t *testing.T) {
	fromEnv := t.TempDir()
	fromOption := t.TempDir()
	t.Setenv("ORCHD_HOME", fromEnv)

	// The explicit option wins over ORCHD_HOME.
	cfg, err := NewLoader(WithRoot(fromOption)).Load()
	require.NoError(t, err)
	assert.Equal(t, fromOption, cfg.Root)

	// Without the option, ORCHD_HOME applies.
	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, fromEnv, cfg.Root)
}

func TestLoadWarnsOnUnqualifiedModel(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
system:
  root: `+root+`
agents:
  default_model: gpt-4o
`), 0o600))

	cfg, err := NewLoader(WithConfigFile(configPath)).Load()
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "gpt-4o")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Root:    "/tmp/orchd",
		Watcher: WatcherConfig{Debounce: time.Second},
		Journal: JournalConfig{BatchSize: 32},
	}
	assert.NoError(t, valid.Validate())

	noRoot := valid
	noRoot.Root = ""
	assert.Error(t, noRoot.Validate())

	badDebounce := valid
	badDebounce.Watcher.Debounce = 0
	assert.Error(t, badDebounce.Validate())

	badBatch := valid
	badBatch.Journal.BatchSize = 0
	assert.Error(t, badBatch.Validate())
}

func TestConfigDirs(t *testing.T) {
	t.Parallel()

	cfg := Config{Paths: PathsConfig{Inbox: "/w/Inbox"}}
	assert.Equal(t, filepath.Join("/w/Inbox", "Requests"), cfg.RequestsDir())
	assert.Equal(t, filepath.Join("/w/Inbox", "Plans"), cfg.StagedPlansDir())
	assert.Equal(t, filepath.Join("/w/Inbox", "Requests", "archive"), cfg.ArchiveDir())
}
