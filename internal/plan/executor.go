package plan

import (
	"context"
	"fmt"

	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
	"github.com/orchd-dev/orchd/internal/request"
	"github.com/orchd-dev/orchd/internal/router"
)

// Router routes synthetic per-step requests. *router.Router satisfies it.
type Router interface {
	Route(ctx context.Context, req *request.Request) (*router.Decision, error)
}

// EventSink receives execution events. *journal.Journal satisfies it.
type EventSink interface {
	Log(actor, actionType, target string, payload map[string]any, opts ...journal.LogOption)
}

// Result is the outcome of executing a plan.
type Result struct {
	TraceID       string
	StepsExecuted int
	Outputs       []string
	ChangesetID   string
	CommitSHA     string
}

// Executor runs approved plans step by step through the router.
type Executor struct {
	router    Router
	registrar ChangesetRegistrar
	sink      EventSink
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRegistrar attaches a changeset registrar called after successful
// execution.
func WithRegistrar(registrar ChangesetRegistrar) ExecutorOption {
	return func(e *Executor) { e.registrar = registrar }
}

// WithEventSink attaches a journal for plan events.
func WithEventSink(sink EventSink) ExecutorOption {
	return func(e *Executor) { e.sink = sink }
}

// NewExecutor creates an Executor over the given router.
func NewExecutor(r Router, opts ...ExecutorOption) *Executor {
	e := &Executor{router: r}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteContent parses and executes a plan document. Parse failures are
// journaled as plan.parsing_failed and nothing is executed.
func (e *Executor) ExecuteContent(ctx context.Context, path, content string) (*Result, error) {
	p, err := Parse(content)
	if err != nil {
		if e.sink != nil {
			e.sink.Log("plan-executor", "plan.parsing_failed", path,
				map[string]any{"error": err.Error()})
		}
		logger.Error(ctx, "Plan parsing failed", tag.File(path), tag.Error(err))
		return nil, err
	}
	return e.Execute(ctx, p)
}

// Execute runs a parsed plan. Steps run sequentially through the router;
// a plan that names a flow in its frontmatter is handed over whole.
func (e *Executor) Execute(ctx context.Context, p *Plan) (*Result, error) {
	e.record(p, "plan.execution_started", map[string]any{"steps": len(p.Steps)})
	if !p.Sequential {
		e.record(p, "plan.non_sequential_steps", map[string]any{
			"numbers": stepNumbers(p.Steps),
		})
		logger.Warn(ctx, "Plan step numbering has gaps, executing anyway",
			tag.Trace(p.TraceID))
	}

	result := &Result{TraceID: p.TraceID}

	if p.Flow != "" {
		if err := e.executeAsFlow(ctx, p, result); err != nil {
			return nil, err
		}
	} else {
		if err := e.executeSequential(ctx, p, result); err != nil {
			return nil, err
		}
	}

	if e.registrar != nil {
		changeset := NewChangeset(p.TraceID, changesetDescription(p), "plan-executor")
		sha, err := e.registrar.Register(changeset)
		if err != nil {
			e.record(p, "plan.failed", map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("changeset registration failed: %w", err)
		}
		changeset.CommitSHA = sha
		result.ChangesetID = changeset.ID
		result.CommitSHA = sha
	}

	e.record(p, "plan.completed", map[string]any{
		"steps":     result.StepsExecuted,
		"changeset": result.ChangesetID,
	})
	logger.Info(ctx, "Plan completed",
		tag.Trace(p.TraceID), tag.Count(result.StepsExecuted))
	return result, nil
}

// executeAsFlow routes the whole plan body through the named flow.
func (e *Executor) executeAsFlow(ctx context.Context, p *Plan, result *Result) error {
	req := e.syntheticRequest(p, p.RequestID, planBody(p))
	req.Flow = p.Flow

	decision, err := e.router.Route(ctx, req)
	if err != nil {
		e.record(p, "plan.failed", map[string]any{"error": err.Error()})
		return err
	}
	if !decision.Routed {
		e.record(p, "plan.failed", map[string]any{"error": decision.Reason})
		return fmt.Errorf("plan flow rejected: %s", decision.Reason)
	}
	if decision.FlowResult != nil {
		result.StepsExecuted = len(decision.FlowResult.StepResults)
		result.Outputs = append(result.Outputs, decision.FlowResult.FinalOutput)
	}
	return nil
}

// executeSequential routes one synthetic request per step, stopping on the
// first failure.
func (e *Executor) executeSequential(ctx context.Context, p *Plan, result *Result) error {
	for _, step := range p.Steps {
		requestID := fmt.Sprintf("%s-step-%d", p.RequestID, step.Number)
		body := fmt.Sprintf("## Step %d: %s\n\n%s", step.Number, step.Title, step.Content)
		req := e.syntheticRequest(p, requestID, body)

		logger.Info(ctx, "Executing plan step",
			tag.Trace(p.TraceID), tag.Step(step.Title), tag.Count(step.Number))

		decision, err := e.router.Route(ctx, req)
		if err != nil {
			e.record(p, "plan.failed", map[string]any{
				"step": step.Number, "error": err.Error(),
			})
			return fmt.Errorf("step %d failed: %w", step.Number, err)
		}
		if !decision.Routed {
			e.record(p, "plan.failed", map[string]any{
				"step": step.Number, "error": decision.Reason,
			})
			return fmt.Errorf("step %d rejected: %s", step.Number, decision.Reason)
		}

		result.StepsExecuted++
		result.Outputs = append(result.Outputs, decision.AgentOutput)
	}
	return nil
}

func (e *Executor) syntheticRequest(p *Plan, requestID, body string) *request.Request {
	return &request.Request{
		TraceID:   p.TraceID,
		RequestID: requestID,
		AgentID:   p.Agent,
		Model:     p.Model,
		Status:    request.StatusInProgress,
		Body:      body,
	}
}

func (e *Executor) record(p *Plan, actionType string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.Log("plan-executor", actionType, p.RequestID, payload,
		journal.WithTrace(p.TraceID))
}

func stepNumbers(steps []Step) []int {
	numbers := make([]int, len(steps))
	for i, step := range steps {
		numbers[i] = step.Number
	}
	return numbers
}

func planBody(p *Plan) string {
	var body string
	for _, step := range p.Steps {
		body += fmt.Sprintf("## Step %d: %s\n\n%s\n\n", step.Number, step.Title, step.Content)
	}
	return body
}

func changesetDescription(p *Plan) string {
	if len(p.Steps) == 0 {
		return "plan " + p.RequestID
	}
	return p.Steps[0].Title
}
