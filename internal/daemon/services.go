package daemon

import (
	"context"
	"fmt"

	"github.com/orchd-dev/orchd/internal/backoff"
	"github.com/orchd-dev/orchd/internal/blueprint"
	"github.com/orchd-dev/orchd/internal/flow"
	"github.com/orchd-dev/orchd/internal/flow/engine"
	"github.com/orchd-dev/orchd/internal/llm"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
)

// agentService executes single agents through the LLM layer. It backs both
// the flow engine's AgentCaller and the router's AgentRunner.
type agentService struct {
	blueprints *blueprint.Loader
	resolver   func(modelID string) (llm.Provider, string, error)
	profile    backoff.Profile
}

func newAgentService(blueprints *blueprint.Loader, providerCfg llm.Config) *agentService {
	return &agentService{
		blueprints: blueprints,
		resolver: func(modelID string) (llm.Provider, string, error) {
			return llm.ProviderForModel(modelID, providerCfg)
		},
		profile: backoff.DefaultProfile(),
	}
}

// CallAgent loads the agent's blueprint and generates a response, retrying
// transient provider failures with temperature escalation.
func (s *agentService) CallAgent(ctx context.Context, agentID, input string) (string, error) {
	bp, err := s.blueprints.Load(agentID)
	if err != nil {
		return "", err
	}
	provider, model, err := s.resolver(bp.Model)
	if err != nil {
		return "", err
	}

	result, err := backoff.Execute(ctx, s.profile,
		func(ctx context.Context, attempt backoff.Attempt) (*llm.Response, error) {
			temp := attempt.Temperature
			return provider.Generate(ctx, &llm.Request{
				Model:       model,
				Temperature: &temp,
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: bp.SystemPrompt},
					{Role: llm.RoleUser, Content: input},
				},
			})
		},
		backoff.WithOnRetry(func(event backoff.RetryEvent) {
			logger.Warn(ctx, "Agent call retry",
				tag.Agent(agentID), tag.Attempt(event.Attempt), tag.Error(event.Err))
		}))
	if err != nil {
		return "", fmt.Errorf("agent %q failed: %w", agentID, err)
	}
	return result.Value.Content, nil
}

// RunAgent adapts CallAgent to the router's AgentRunner interface.
func (s *agentService) RunAgent(ctx context.Context, agentID, input, _ string) (string, error) {
	return s.CallAgent(ctx, agentID, input)
}

// flowService adapts the flow loader and engine to the router's
// FlowValidator and FlowRunner interfaces.
type flowService struct {
	flows  *flow.Loader
	engine *engine.Engine
}

// ValidateFlow loads the flow, which validates it.
func (s *flowService) ValidateFlow(id string) error {
	_, err := s.flows.Load(id)
	return err
}

// RunFlow executes a named flow. A flow that finishes failed is not an
// error here; callers read the result status.
func (s *flowService) RunFlow(ctx context.Context, flowID, input, traceID string) (*engine.Result, error) {
	f, err := s.flows.Load(flowID)
	if err != nil {
		return nil, err
	}
	return s.engine.Execute(ctx, f, input, engine.WithTraceID(traceID))
}
