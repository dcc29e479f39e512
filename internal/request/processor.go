package request

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/orchd-dev/orchd/internal/backoff"
	"github.com/orchd-dev/orchd/internal/blueprint"
	"github.com/orchd-dev/orchd/internal/document"
	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/llm"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
	"github.com/orchd-dev/orchd/internal/stringutil"
)

const planPrompt = `Break the request below into a numbered execution plan.
Respond with markdown sections only, one per step, in the form:

## Step 1: <short title>
<what to do>

Number the steps 1..K without gaps. Do not add any text outside the step sections.`

// ProviderResolver resolves a provider and model name for a
// provider-qualified model id.
type ProviderResolver func(modelID string) (llm.Provider, string, error)

// Processor turns a parsed request into a staged plan file.
type Processor struct {
	blueprints   *blueprint.Loader
	journal      *journal.Journal
	resolver     ProviderResolver
	profile      backoff.Profile
	plansDir     string
	archiveDir   string
	defaultAgent string
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRetryProfile overrides the retry profile for LLM calls.
func WithRetryProfile(profile backoff.Profile) ProcessorOption {
	return func(p *Processor) { p.profile = profile }
}

// WithProviderResolver overrides how model ids map to providers. Tests use
// this to substitute a mock provider.
func WithProviderResolver(resolver ProviderResolver) ProcessorOption {
	return func(p *Processor) { p.resolver = resolver }
}

// NewProcessor creates a Processor. plansDir receives generated plans;
// archiveDir receives processed request files.
func NewProcessor(blueprints *blueprint.Loader, jnl *journal.Journal, plansDir, archiveDir, defaultAgent string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		blueprints: blueprints,
		journal:    jnl,
		resolver: func(modelID string) (llm.Provider, string, error) {
			return llm.ProviderForModel(modelID, llm.DefaultConfig())
		},
		profile:      backoff.DefaultProfile(),
		plansDir:     plansDir,
		archiveDir:   archiveDir,
		defaultAgent: defaultAgent,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process generates a plan for the request, stages it under the plans
// directory and archives the request file. Returns the staged plan path.
func (p *Processor) Process(ctx context.Context, req *Request) (string, error) {
	p.record(req, "request.processing_started", map[string]any{"request_id": req.RequestID})

	planPath, err := p.process(ctx, req)
	if err != nil {
		p.record(req, "request.failed", map[string]any{"error": err.Error()})
		logger.Error(ctx, "Request processing failed",
			tag.Trace(req.TraceID), tag.Request(req.RequestID), tag.Error(err))
		return "", err
	}

	p.record(req, "request.processed", map[string]any{"plan": planPath})
	logger.Info(ctx, "Request processed",
		tag.Trace(req.TraceID), tag.Request(req.RequestID), tag.File(planPath))
	return planPath, nil
}

func (p *Processor) process(ctx context.Context, req *Request) (string, error) {
	agentID := req.AgentID
	if agentID == "" {
		agentID = p.defaultAgent
	}
	bp, err := p.blueprints.Load(agentID)
	if err != nil {
		return "", err
	}

	modelID := req.Model
	if modelID == "" {
		modelID = bp.Model
	}
	provider, model, err := p.resolver(modelID)
	if err != nil {
		return "", err
	}

	result, err := backoff.Execute(ctx, p.profile,
		func(ctx context.Context, attempt backoff.Attempt) (*llm.Response, error) {
			temp := attempt.Temperature
			return provider.Generate(ctx, &llm.Request{
				Model:       model,
				Temperature: &temp,
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: bp.SystemPrompt + "\n\n" + planPrompt},
					{Role: llm.RoleUser, Content: req.Body},
				},
			})
		},
		backoff.WithOnRetry(func(event backoff.RetryEvent) {
			logger.Warn(ctx, "Plan generation retry",
				tag.Trace(req.TraceID), tag.Attempt(event.Attempt), tag.Error(event.Err))
		}))
	if err != nil {
		return "", fmt.Errorf("plan generation failed: %w", err)
	}

	planPath, err := p.stagePlan(req, agentID, modelID, result.Value.Content)
	if err != nil {
		return "", err
	}
	if err := p.archive(req); err != nil {
		logger.Warn(ctx, "Failed to archive request",
			tag.Trace(req.TraceID), tag.File(req.Path), tag.Error(err))
	}
	return planPath, nil
}

// stagePlan writes the plan with a temp-file rename so the plan watcher
// never observes a half-written document.
func (p *Processor) stagePlan(req *Request, agentID, modelID, body string) (string, error) {
	frontmatter := map[string]any{
		"trace_id":   req.TraceID,
		"request_id": req.RequestID,
		"agent":      agentID,
		"model":      modelID,
		"created_at": stringutil.FormatTime(time.Now()),
	}
	// A flow request carries its flow into the plan, so the approved plan
	// opts into DAG execution.
	if req.Flow != "" {
		frontmatter["flow"] = req.Flow
	}
	content, err := document.Render(frontmatter, body)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.plansDir, 0o750); err != nil {
		return "", err
	}
	planPath := filepath.Join(p.plansDir, req.TraceID+"_plan.md")
	tmp := planPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, planPath); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return planPath, nil
}

func (p *Processor) archive(req *Request) error {
	if req.Path == "" {
		return nil
	}
	if err := os.MkdirAll(p.archiveDir, 0o750); err != nil {
		return err
	}
	return os.Rename(req.Path, filepath.Join(p.archiveDir, filepath.Base(req.Path)))
}

func (p *Processor) record(req *Request, actionType string, payload map[string]any) {
	if p.journal == nil {
		return
	}
	p.journal.Log("request-processor", actionType, req.RequestID, payload,
		journal.WithTrace(req.TraceID))
}
