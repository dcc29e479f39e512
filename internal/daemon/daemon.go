// Package daemon wires the orchestrator together: configuration, journal,
// loaders, flow engine, router, processors and the two watch loops.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/orchd-dev/orchd/internal/blueprint"
	"github.com/orchd-dev/orchd/internal/config"
	"github.com/orchd-dev/orchd/internal/fileutil"
	"github.com/orchd-dev/orchd/internal/flow"
	"github.com/orchd-dev/orchd/internal/flow/engine"
	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/llm"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
	"github.com/orchd-dev/orchd/internal/plan"
	"github.com/orchd-dev/orchd/internal/request"
	"github.com/orchd-dev/orchd/internal/router"
	"github.com/orchd-dev/orchd/internal/watcher"

	// Register all LLM providers.
	_ "github.com/orchd-dev/orchd/internal/llm/allproviders"
)

const flushTimeout = 10 * time.Second

// Daemon owns all long-lived components of the orchestrator.
type Daemon struct {
	cfg     *config.Config
	journal *journal.Journal

	blueprints *blueprint.Loader
	flows      *flow.Loader
	engine     *engine.Engine
	router     *router.Router
	processor  *request.Processor
	executor   *plan.Executor

	requestWatcher *watcher.Watcher
	planWatcher    *watcher.Watcher
}

// Option configures a Daemon.
type Option func(*options)

type options struct {
	registrar plan.ChangesetRegistrar
	resolver  request.ProviderResolver
}

// WithRegistrar sets the changeset registrar used after plan execution.
func WithRegistrar(registrar plan.ChangesetRegistrar) Option {
	return func(o *options) { o.registrar = registrar }
}

// WithProviderResolver overrides how model ids map to LLM providers.
// Tests substitute a mock provider through this.
func WithProviderResolver(resolver request.ProviderResolver) Option {
	return func(o *options) { o.resolver = resolver }
}

// New builds a Daemon from the resolved configuration. Journal open
// failures and unreachable directories are fatal.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Daemon, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	for _, dir := range []string{
		cfg.RequestsDir(), cfg.StagedPlansDir(), cfg.ArchiveDir(),
		cfg.Paths.Blueprints, cfg.Paths.Flows, cfg.Paths.Active,
	} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to prepare directory %s: %w", dir, err)
		}
	}

	jnl, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	d := &Daemon{cfg: cfg, journal: jnl}
	d.blueprints = blueprint.NewLoader(cfg.Paths.Blueprints, cfg.Agents.DefaultModel)
	d.flows = flow.NewLoader(cfg.Paths.Flows)

	agents := newAgentService(d.blueprints, llm.DefaultConfig())
	processorOpts := []request.ProcessorOption{}
	if o.resolver != nil {
		agents.resolver = o.resolver
		processorOpts = append(processorOpts, request.WithProviderResolver(o.resolver))
	}

	d.engine = engine.New(agents, engine.WithEventSink(jnl))
	flowSvc := &flowService{flows: d.flows, engine: d.engine}
	d.router = router.New(flowSvc, flowSvc, agents, d.blueprints, jnl, cfg.Agents.DefaultAgent)
	d.processor = request.NewProcessor(d.blueprints, jnl,
		cfg.StagedPlansDir(), cfg.ArchiveDir(), cfg.Agents.DefaultAgent, processorOpts...)

	executorOpts := []plan.ExecutorOption{plan.WithEventSink(jnl)}
	if o.registrar != nil {
		executorOpts = append(executorOpts, plan.WithRegistrar(o.registrar))
	}
	d.executor = plan.NewExecutor(d.router, executorOpts...)

	d.requestWatcher = watcher.New(cfg.RequestsDir(), d.onRequestFile,
		watcher.WithDebounce(cfg.Watcher.Debounce),
		watcher.WithStabilityCheck(cfg.Watcher.StabilityCheck))
	d.planWatcher = watcher.New(cfg.Paths.Active, d.onPlanFile,
		watcher.WithDebounce(cfg.Watcher.Debounce),
		watcher.WithStabilityCheck(cfg.Watcher.StabilityCheck),
		watcher.WithSuffix("_plan.md"))

	return d, nil
}

// Journal exposes the activity journal, mainly for inspection commands.
func (d *Daemon) Journal() *journal.Journal { return d.journal }

// Run starts both watch loops and blocks until ctx is cancelled, then
// shuts down: watchers first, in-flight work unwinds through the shared
// context, and the journal flushes before close.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.requestWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.cfg.RequestsDir(), err)
	}
	if err := d.planWatcher.Start(ctx); err != nil {
		d.requestWatcher.Stop()
		return fmt.Errorf("failed to watch %s: %w", d.cfg.Paths.Active, err)
	}

	d.journal.Log("daemon", "daemon.started", d.cfg.Root, map[string]any{
		"requests": d.cfg.RequestsDir(),
		"plans":    d.cfg.Paths.Active,
	})
	logger.Info(ctx, "Daemon started", tag.Dir(d.cfg.Root))

	<-ctx.Done()
	logger.Info(ctx, "Shutting down")

	d.requestWatcher.Stop()
	d.planWatcher.Stop()

	d.journal.Log("daemon", "daemon.stopped", d.cfg.Root, nil)
	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := d.journal.WaitForFlush(flushCtx); err != nil {
		logger.Warn(ctx, "Journal flush incomplete", tag.Error(err))
	}
	return d.journal.Close()
}

// onRequestFile handles a settled request document.
func (d *Daemon) onRequestFile(ctx context.Context, event watcher.FileReady) {
	d.journal.Log("watcher", "file.detected", event.Path, map[string]any{"kind": "request"})
	logger.Info(ctx, "Request file detected", tag.File(event.Path))

	req, err := request.Parse(event.Path, event.Content)
	if err != nil {
		d.journal.Log("watcher", "request.failed", event.Path,
			map[string]any{"error": err.Error()})
		d.notifyError(ctx, fmt.Sprintf("invalid request %s: %v", event.Path, err), "")
		logger.Error(ctx, "Invalid request file", tag.File(event.Path), tag.Error(err))
		return
	}

	decision := d.router.Classify(ctx, req)
	if !decision.Routed {
		d.notifyError(ctx, fmt.Sprintf("request %s not routed: %s", req.RequestID, decision.Reason), req.TraceID)
		return
	}

	if _, err := d.processor.Process(ctx, req); err != nil {
		d.notifyError(ctx, fmt.Sprintf("request %s failed: %v", req.RequestID, err), req.TraceID)
	}
}

// onPlanFile handles a settled approved plan.
func (d *Daemon) onPlanFile(ctx context.Context, event watcher.FileReady) {
	d.journal.Log("watcher", "file.detected", event.Path, map[string]any{"kind": "plan"})
	logger.Info(ctx, "Plan file detected", tag.File(event.Path))

	result, err := d.executor.ExecuteContent(ctx, event.Path, event.Content)
	if err != nil {
		d.notifyError(ctx, fmt.Sprintf("plan %s failed: %v", event.Path, err), "")
		return
	}
	if _, err := d.journal.Notify(ctx, journal.NotificationSuccess,
		fmt.Sprintf("plan completed with %d steps", result.StepsExecuted),
		journal.WithNotifyTrace(result.TraceID)); err != nil {
		logger.Warn(ctx, "Failed to record notification", tag.Error(err))
	}
}

func (d *Daemon) notifyError(ctx context.Context, message, traceID string) {
	opts := []journal.NotifyOption{}
	if traceID != "" {
		opts = append(opts, journal.WithNotifyTrace(traceID))
	}
	if _, err := d.journal.Notify(ctx, journal.NotificationError, message, opts...); err != nil {
		logger.Warn(ctx, "Failed to record notification", tag.Error(err))
	}
}
