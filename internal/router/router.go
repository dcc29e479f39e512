// Package router decides how an inbound request is executed: handed to the
// flow engine when it names a flow, otherwise dispatched to a single agent.
package router

import (
	"context"
	"fmt"

	"github.com/orchd-dev/orchd/internal/flow/engine"
	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
	"github.com/orchd-dev/orchd/internal/request"
)

// FlowValidator checks a flow definition without running it.
type FlowValidator interface {
	ValidateFlow(id string) error
}

// FlowRunner executes a named flow against an input payload.
type FlowRunner interface {
	RunFlow(ctx context.Context, flowID, input, traceID string) (*engine.Result, error)
}

// AgentRunner executes a single agent against an input payload.
type AgentRunner interface {
	RunAgent(ctx context.Context, agentID, input, traceID string) (string, error)
}

// BlueprintStore answers existence checks for agent blueprints.
type BlueprintStore interface {
	Exists(id string) bool
}

// EventSink receives routing events. *journal.Journal satisfies it.
type EventSink interface {
	Log(actor, actionType, target string, payload map[string]any, opts ...journal.LogOption)
}

// Kind labels a routing decision.
type Kind string

const (
	KindFlow    Kind = "flow"
	KindAgent   Kind = "agent"
	KindInvalid Kind = "invalid"
)

// Decision is the outcome of routing one request.
type Decision struct {
	Routed bool
	Kind   Kind
	Reason string

	// Target is the flow or agent id the request resolved to.
	Target string

	FlowResult  *engine.Result
	AgentOutput string
}

// Router routes parsed requests to the flow engine or an agent runner.
type Router struct {
	flows        FlowValidator
	flowRunner   FlowRunner
	agentRunner  AgentRunner
	blueprints   BlueprintStore
	sink         EventSink
	defaultAgent string
}

// New creates a Router from its injected capabilities.
func New(flows FlowValidator, flowRunner FlowRunner, agentRunner AgentRunner, blueprints BlueprintStore, sink EventSink, defaultAgent string) *Router {
	return &Router{
		flows:        flows,
		flowRunner:   flowRunner,
		agentRunner:  agentRunner,
		blueprints:   blueprints,
		sink:         sink,
		defaultAgent: defaultAgent,
	}
}

// Classify validates the request's routing target and journals the
// decision without executing anything. Used at request intake, before a
// plan has been generated and approved.
func (r *Router) Classify(ctx context.Context, req *request.Request) *Decision {
	if req.Flow != "" {
		if err := r.flows.ValidateFlow(req.Flow); err != nil {
			return r.invalid(ctx, req, req.Flow,
				fmt.Sprintf("invalid flow %q: %v", req.Flow, err))
		}
		r.record(req, "request.routed.flow", req.Flow,
			map[string]any{"request_id": req.RequestID})
		logger.Info(ctx, "Request routed to flow", tag.Trace(req.TraceID), tag.Flow(req.Flow))
		return &Decision{Routed: true, Kind: KindFlow, Target: req.Flow}
	}

	agentID := req.AgentID
	if agentID == "" {
		agentID = r.defaultAgent
	}
	if agentID == "" || !r.blueprints.Exists(agentID) {
		return r.invalid(ctx, req, agentID, fmt.Sprintf("unknown agent %q", agentID))
	}
	r.record(req, "request.routed.agent", agentID,
		map[string]any{"request_id": req.RequestID})
	logger.Info(ctx, "Request routed to agent", tag.Trace(req.TraceID), tag.Agent(agentID))
	return &Decision{Routed: true, Kind: KindAgent, Target: agentID}
}

// Route classifies the request and executes the decision. Validation
// failures do not return an error; they surface as an unrouted Decision
// with a reason.
func (r *Router) Route(ctx context.Context, req *request.Request) (*Decision, error) {
	decision := r.Classify(ctx, req)
	if !decision.Routed {
		return decision, nil
	}

	switch decision.Kind {
	case KindFlow:
		result, err := r.flowRunner.RunFlow(ctx, decision.Target, req.Body, req.TraceID)
		if err != nil {
			return nil, err
		}
		decision.FlowResult = result
	case KindAgent:
		output, err := r.agentRunner.RunAgent(ctx, decision.Target, req.Body, req.TraceID)
		if err != nil {
			return nil, err
		}
		decision.AgentOutput = output
	}
	return decision, nil
}

func (r *Router) invalid(ctx context.Context, req *request.Request, target, reason string) *Decision {
	r.record(req, "request.routed.invalid", target, map[string]any{"reason": reason})
	logger.Warn(ctx, "Request rejected", tag.Trace(req.TraceID), tag.Reason(reason))
	return &Decision{Routed: false, Kind: KindInvalid, Target: target, Reason: reason}
}

func (r *Router) record(req *request.Request, actionType, target string, payload map[string]any) {
	if r.sink == nil {
		return
	}
	r.sink.Log("router", actionType, target, payload, journal.WithTrace(req.TraceID))
}
