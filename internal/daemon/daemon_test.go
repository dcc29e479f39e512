package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchd-dev/orchd/internal/config"
	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/llm"
	"github.com/orchd-dev/orchd/internal/llm/llmtest"
)

const testTraceID = "44444444-4444-4444-8444-444444444444"

const planReply = `## Step 1: Investigate
Look at the code.

## Step 2: Fix
Apply the change.
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Root:     root,
		LogLevel: "debug",
		Paths: config.PathsConfig{
			Inbox:      filepath.Join(root, "Inbox"),
			Blueprints: filepath.Join(root, "System", "Blueprints"),
			Flows:      filepath.Join(root, "System", "Flows"),
			Active:     filepath.Join(root, "System", "Active"),
		},
		Watcher: config.WatcherConfig{
			Debounce:       50 * time.Millisecond,
			StabilityCheck: true,
		},
		Agents: config.AgentsConfig{
			DefaultModel: "anthropic:claude-sonnet-4-20250514",
			DefaultAgent: "assistant",
		},
		Journal: config.JournalConfig{
			Path:          filepath.Join(root, "journal.db"),
			FlushInterval: 20 * time.Millisecond,
			BatchSize:     8,
		},
	}
}

// startDaemon runs a daemon against a mock provider. The returned stop
// function cancels the run context and returns Run's error; it is safe to
// call more than once.
func startDaemon(t *testing.T, cfg *config.Config, mock *llmtest.Mock) (*Daemon, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	d, err := New(ctx, cfg, WithProviderResolver(
		func(modelID string) (llm.Provider, string, error) {
			return mock, modelID, nil
		}))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Paths.Blueprints, "assistant.md"),
		[]byte("You plan work."), 0o600))

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-errCh:
			case <-time.After(10 * time.Second):
				runErr = errors.New("daemon did not shut down in time")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })

	// Give the watch loops a moment to come up.
	time.Sleep(100 * time.Millisecond)
	return d, stop
}

func waitForFile(t *testing.T, path string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("file %s never appeared", path)
	return ""
}

func waitForEvent(t *testing.T, d *Daemon, traceID, actionType string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		events, err := d.Journal().ByTrace(context.Background(), traceID)
		require.NoError(t, err)
		for _, event := range events {
			if event.ActionType == actionType {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("event %s for trace %s never journaled", actionType, traceID)
}

func TestDaemonHappyPath(t *testing.T) {
	cfg := testConfig(t)
	mock := llmtest.New(llmtest.Reply{Content: planReply})
	d, stop := startDaemon(t, cfg, mock)

	// Drop a request; expect a staged plan with the same trace id.
	requestDoc := "---\ntrace_id: " + testTraceID + "\nagent_id: assistant\n---\nFix the bug.\n"
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.RequestsDir(), "req-1.md"), []byte(requestDoc), 0o600))

	planPath := filepath.Join(cfg.StagedPlansDir(), testTraceID+"_plan.md")
	staged := waitForFile(t, planPath, 10*time.Second)
	assert.Contains(t, staged, "trace_id: "+testTraceID)
	assert.Contains(t, staged, "## Step 1: Investigate")

	waitForEvent(t, d, testTraceID, "request.routed.agent", 5*time.Second)
	waitForEvent(t, d, testTraceID, "request.processed", 5*time.Second)

	// The request file was archived.
	assert.NoFileExists(t, filepath.Join(cfg.RequestsDir(), "req-1.md"))
	assert.FileExists(t, filepath.Join(cfg.ArchiveDir(), "req-1.md"))

	// Approve the plan by moving it into the active directory.
	approved := filepath.Join(cfg.Paths.Active, testTraceID+"_plan.md")
	require.NoError(t, os.Rename(planPath, approved))

	waitForEvent(t, d, testTraceID, "plan.completed", 10*time.Second)

	require.NoError(t, stop())
}

func TestDaemonRejectsInvalidRequest(t *testing.T) {
	cfg := testConfig(t)
	mock := llmtest.New(llmtest.Reply{Content: planReply})
	d, _ := startDaemon(t, cfg, mock)

	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.RequestsDir(), "bad.md"),
		[]byte("---\ntrace_id: "+testTraceID+"\nagent_id: nobody\n---\nhi\n"), 0o600))

	waitForEvent(t, d, testTraceID, "request.routed.invalid", 10*time.Second)

	// An actionable failure produces an error notification.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		notifications, err := d.Journal().ActiveNotifications(context.Background())
		require.NoError(t, err)
		for _, n := range notifications {
			if n.Type == journal.NotificationError {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("error notification never recorded")
}

func TestDaemonShutdownIsClean(t *testing.T) {
	cfg := testConfig(t)
	mock := llmtest.New()
	d, stop := startDaemon(t, cfg, mock)

	require.NoError(t, stop())

	// Journal closed with a final flush; daemon lifecycle events persisted.
	events, err := readRecent(d)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func readRecent(d *Daemon) ([]journal.Event, error) {
	jnl, err := journal.Open(context.Background(), d.cfg.Journal)
	if err != nil {
		return nil, err
	}
	defer func() { _ = jnl.Close() }()
	return jnl.Recent(context.Background(), 10)
}
