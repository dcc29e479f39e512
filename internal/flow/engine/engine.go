package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orchd-dev/orchd/internal/backoff"
	"github.com/orchd-dev/orchd/internal/flow"
	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
)

// AgentCaller invokes an agent with an input payload and returns its output.
type AgentCaller interface {
	CallAgent(ctx context.Context, agentID, input string) (string, error)
}

// EventSink receives execution events. *journal.Journal satisfies it.
type EventSink interface {
	Log(actor, actionType, target string, payload map[string]any, opts ...journal.LogOption)
}

// Engine executes flows.
type Engine struct {
	caller     AgentCaller
	transforms *TransformRegistry
	sink       EventSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransforms replaces the default transform registry.
func WithTransforms(r *TransformRegistry) Option {
	return func(e *Engine) { e.transforms = r }
}

// WithEventSink attaches a journal for execution events.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// New creates an Engine around the given agent caller.
func New(caller AgentCaller, opts ...Option) *Engine {
	e := &Engine{
		caller:     caller,
		transforms: NewTransformRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecOption configures a single Execute call.
type ExecOption func(*execution)

// WithTraceID tags all journal events of this run with the trace id.
func WithTraceID(traceID string) ExecOption {
	return func(ex *execution) { ex.traceID = traceID }
}

// execution holds the mutable state of one flow run. All maps are owned by
// the scheduling goroutine; worker goroutines communicate through doneCh.
type execution struct {
	flow         *flow.Flow
	requestInput string
	traceID      string

	status  map[string]StepStatus
	results map[string]*StepResult

	running  int
	aborted  bool
	failFast bool
}

// Execute runs the flow to completion. A failed flow is reported through
// Result.Status; the error return covers invalid flows only.
func (e *Engine) Execute(ctx context.Context, f *flow.Flow, requestInput string, opts ...ExecOption) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if f.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout.Duration)
		defer cancel()
	}

	ex := &execution{
		flow:         f,
		requestInput: requestInput,
		status:       make(map[string]StepStatus, len(f.Steps)),
		results:      make(map[string]*StepResult, len(f.Steps)),
	}
	for _, step := range f.Steps {
		ex.status[step.ID] = StepPending
	}
	for _, opt := range opts {
		opt(ex)
	}

	e.record(ex, "flow.started", f.ID, map[string]any{"steps": len(f.Steps)})
	logger.Info(ctx, "Flow execution started", tag.Flow(f.ID), tag.Count(len(f.Steps)))

	startedAt := time.Now()
	e.run(ctx, ex)

	result := &Result{
		FlowID:    f.ID,
		Status:    FlowCompleted,
		StartedAt: startedAt,
	}
	for _, step := range f.Steps {
		sr := ex.results[step.ID]
		result.StepResults = append(result.StepResults, sr)
		if sr.Status == StepFailed {
			result.Status = FlowFailed
		}
	}
	if ex.aborted {
		result.Status = FlowFailed
	}
	result.FinalOutput = e.finalOutput(f, ex.results)
	result.FinishedAt = time.Now()

	e.record(ex, "flow.finished", f.ID, map[string]any{"status": string(result.Status)})
	logger.Info(ctx, "Flow execution finished",
		tag.Flow(f.ID), tag.Status(string(result.Status)),
		tag.Duration(result.FinishedAt.Sub(result.StartedAt)))
	return result, nil
}

// run drives the scheduling loop until every step is terminal.
func (e *Engine) run(ctx context.Context, ex *execution) {
	// Flows built in code may leave MaxParallelism unset; a zero-capacity
	// semaphore would block every worker, so treat it as unbounded.
	maxParallel := ex.flow.MaxParallelism
	if maxParallel <= 0 {
		maxParallel = len(ex.flow.Steps)
	}
	sem := make(chan struct{}, maxParallel)
	doneCh := make(chan *StepResult)
	ctxDone := ctx.Done()

	e.dispatch(ctx, ex, sem, doneCh)
	for ex.running > 0 {
		select {
		case res := <-doneCh:
			ex.running--
			ex.status[res.StepID] = res.Status
			ex.results[res.StepID] = res
			if res.Status == StepFailed {
				e.record(ex, "execution.failed", res.StepID, map[string]any{"error": res.Error})
				if ex.flow.FailFast {
					ex.failFast = true
				}
			} else {
				e.record(ex, "step.finished", res.StepID, map[string]any{"status": string(res.Status)})
			}
			e.dispatch(ctx, ex, sem, doneCh)
		case <-ctxDone:
			// In-flight agent calls observe the same context and unwind
			// on their own; pending steps are skipped on next dispatch.
			ex.aborted = true
			ctxDone = nil
			e.dispatch(ctx, ex, sem, doneCh)
		}
	}
	// Steps left pending by an empty final dispatch (all remaining were
	// blocked on skipped or failed work) are resolved here.
	e.dispatch(ctx, ex, sem, doneCh)
}

// dispatch starts every runnable step and resolves every skippable one.
// Runs only on the scheduling goroutine.
func (e *Engine) dispatch(ctx context.Context, ex *execution, sem chan struct{}, doneCh chan<- *StepResult) {
	progress := true
	for progress {
		progress = false
		for _, step := range ex.flow.Steps {
			if ex.status[step.ID] != StepPending {
				continue
			}

			depsTerminal, depFailed := true, false
			for _, dep := range step.DependsOn {
				st := ex.status[dep]
				if !st.Terminal() {
					depsTerminal = false
					break
				}
				if st == StepFailed || st == StepSkipped {
					depFailed = true
				}
			}
			if !depsTerminal {
				continue
			}

			skipReason := ""
			switch {
			case depFailed:
				skipReason = "upstream step failed or skipped"
			case ex.failFast:
				skipReason = "fail-fast triggered"
			case ex.aborted:
				skipReason = "flow cancelled"
			default:
				ok, err := EvalCondition(step.Condition, ex.results)
				if err != nil {
					skipReason = err.Error()
				} else if !ok {
					skipReason = "condition not met"
				}
			}
			if skipReason != "" {
				now := time.Now()
				ex.status[step.ID] = StepSkipped
				ex.results[step.ID] = &StepResult{
					StepID: step.ID, Status: StepSkipped, Error: skipReason,
					StartedAt: now, FinishedAt: now,
				}
				e.record(ex, "step.skipped", step.ID, map[string]any{"reason": skipReason})
				progress = true
				continue
			}

			input, err := e.buildInput(step, ex)
			if err != nil {
				now := time.Now()
				ex.status[step.ID] = StepFailed
				ex.results[step.ID] = &StepResult{
					StepID: step.ID, Status: StepFailed, Error: err.Error(),
					StartedAt: now, FinishedAt: now,
				}
				e.record(ex, "execution.failed", step.ID, map[string]any{"error": err.Error()})
				if ex.flow.FailFast {
					ex.failFast = true
				}
				progress = true
				continue
			}

			ex.status[step.ID] = StepRunning
			ex.running++
			go func(step *flow.Step, input string) {
				sem <- struct{}{}
				defer func() { <-sem }()
				doneCh <- e.runStep(ctx, step, input)
			}(step, input)
		}
	}
}

// runStep executes one step through the retry fabric with a per-attempt
// timeout. maxAttempts in the retry block counts retries, so a step runs at
// most maxAttempts+1 times.
func (e *Engine) runStep(ctx context.Context, step *flow.Step, input string) *StepResult {
	result := &StepResult{StepID: step.ID, StartedAt: time.Now()}

	policy := &backoff.ConstantBackoffPolicy{}
	retryable := false
	if step.Retry != nil && step.Retry.MaxAttempts > 0 {
		retryable = true
		policy.Interval = time.Duration(step.Retry.BackoffMs) * time.Millisecond
		policy.MaxRetries = step.Retry.MaxAttempts
	}

	var output string
	err := backoff.Retry(ctx, func(ctx context.Context) error {
		result.Attempts++
		out, err := e.callWithTimeout(ctx, step, input)
		if err != nil {
			logger.Warn(ctx, "Step attempt failed",
				tag.Step(step.ID), tag.Attempt(result.Attempts), tag.Error(err))
			return err
		}
		output = out
		return nil
	}, policy, func(error) bool { return retryable })

	if err == nil {
		result.Status = StepCompleted
		result.Output = output
	} else {
		result.Status = StepFailed
		result.Error = err.Error()
	}
	result.FinishedAt = time.Now()
	return result
}

func (e *Engine) callWithTimeout(ctx context.Context, step *flow.Step, input string) (string, error) {
	if step.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout.Duration)
		defer cancel()
	}
	return e.caller.CallAgent(ctx, step.Agent, input)
}

// buildInput assembles a step's input from its declared source and applies
// the named transform. Dependency results are terminal when this runs.
func (e *Engine) buildInput(step *flow.Step, ex *execution) (string, error) {
	source, transform := flow.SourceRequest, ""
	if step.Input != nil {
		if step.Input.Source != "" {
			source = step.Input.Source
		}
		transform = step.Input.Transform
	}

	var raw string
	switch {
	case source == flow.SourceRequest:
		raw = ex.requestInput
	case source == flow.SourceAggregate:
		raw = e.aggregate(step, ex)
	case flow.StepSource(source) != "":
		ref := flow.StepSource(source)
		res, ok := ex.results[ref]
		if !ok || res.Status != StepCompleted {
			return "", fmt.Errorf("step %q: input source %q has no completed output", step.ID, ref)
		}
		raw = res.Output
	default:
		return "", fmt.Errorf("step %q: unknown input source %q", step.ID, source)
	}

	out, err := e.transforms.Apply(transform, raw)
	if err != nil {
		return "", fmt.Errorf("step %q: %w", step.ID, err)
	}
	return out, nil
}

// aggregate renders the outputs of all declared upstream steps as markdown
// sections in dependency declaration order.
func (e *Engine) aggregate(step *flow.Step, ex *execution) string {
	var sb strings.Builder
	for _, dep := range step.DependsOn {
		res, ok := ex.results[dep]
		if !ok || res.Status != StepCompleted {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", dep, strings.TrimSpace(res.Output))
	}
	return strings.TrimSpace(sb.String())
}

// finalOutput assembles the flow output from the declared OutputSpec.
// Without one, the outputs of all leaf steps are concatenated.
func (e *Engine) finalOutput(f *flow.Flow, results map[string]*StepResult) string {
	var raw string
	if f.Output != nil && f.Output.From != "" {
		if res, ok := results[f.Output.From]; ok && res.Status == StepCompleted {
			raw = res.Output
		}
	} else {
		raw = e.leafOutputs(f, results)
	}

	format := "text"
	if f.Output != nil && f.Output.Format != "" {
		format = f.Output.Format
	}
	switch format {
	case "json":
		encoded, err := json.Marshal(map[string]any{
			"flow":   f.ID,
			"output": raw,
		})
		if err != nil {
			return raw
		}
		return string(encoded)
	default:
		// text and markdown return the output as produced.
		return raw
	}
}

func (e *Engine) leafOutputs(f *flow.Flow, results map[string]*StepResult) string {
	hasDependant := make(map[string]bool)
	for _, step := range f.Steps {
		for _, dep := range step.DependsOn {
			hasDependant[dep] = true
		}
	}
	var leaves []string
	for _, step := range f.Steps {
		if hasDependant[step.ID] {
			continue
		}
		if res, ok := results[step.ID]; ok && res.Status == StepCompleted {
			leaves = append(leaves, strings.TrimSpace(res.Output))
		}
	}
	sort.Strings(leaves)
	return strings.Join(leaves, "\n\n")
}

func (e *Engine) record(ex *execution, actionType, target string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	opts := []journal.LogOption{}
	if ex.traceID != "" {
		opts = append(opts, journal.WithTrace(ex.traceID))
	}
	e.sink.Log("flow-engine", actionType, target, payload, opts...)
}
