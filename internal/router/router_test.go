package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchd-dev/orchd/internal/flow/engine"
	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/request"
)

const testTraceID = "22222222-2222-4222-8222-222222222222"

type fakeCapabilities struct {
	mu sync.Mutex

	validFlows map[string]bool
	agents     map[string]bool

	flowRuns  []string
	agentRuns []string

	events []string
}

func newFakeCapabilities() *fakeCapabilities {
	return &fakeCapabilities{
		validFlows: make(map[string]bool),
		agents:     make(map[string]bool),
	}
}

func (f *fakeCapabilities) ValidateFlow(id string) error {
	if !f.validFlows[id] {
		return errors.New("flow validation failed")
	}
	return nil
}

func (f *fakeCapabilities) RunFlow(_ context.Context, flowID, _, _ string) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flowRuns = append(f.flowRuns, flowID)
	return &engine.Result{FlowID: flowID, Status: engine.FlowCompleted}, nil
}

func (f *fakeCapabilities) RunAgent(_ context.Context, agentID, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agentRuns = append(f.agentRuns, agentID)
	return "agent output", nil
}

func (f *fakeCapabilities) Exists(id string) bool { return f.agents[id] }

func (f *fakeCapabilities) Log(_, actionType, _ string, _ map[string]any, _ ...journal.LogOption) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, actionType)
}

func parseRequest(t *testing.T, frontmatter string) *request.Request {
	t.Helper()
	req, err := request.Parse("req.md", "---\ntrace_id: "+testTraceID+"\n"+frontmatter+"---\nbody")
	require.NoError(t, err)
	return req
}

func TestRouteFlow(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities()
	caps.validFlows["code-review"] = true
	r := New(caps, caps, caps, caps, caps, "assistant")

	dec, err := r.Route(context.Background(), parseRequest(t, "flow: code-review\n"))
	require.NoError(t, err)

	assert.True(t, dec.Routed)
	assert.Equal(t, KindFlow, dec.Kind)
	require.NotNil(t, dec.FlowResult)
	assert.Equal(t, engine.FlowCompleted, dec.FlowResult.Status)
	assert.Equal(t, []string{"code-review"}, caps.flowRuns)
	assert.Contains(t, caps.events, "request.routed.flow")
}

func TestRouteInvalidFlow(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities()
	r := New(caps, caps, caps, caps, caps, "assistant")

	dec, err := r.Route(context.Background(), parseRequest(t, "flow: bad-flow\n"))
	require.NoError(t, err)

	assert.False(t, dec.Routed)
	assert.Equal(t, KindInvalid, dec.Kind)
	assert.Contains(t, dec.Reason, "bad-flow")
	assert.Empty(t, caps.flowRuns)
	assert.Contains(t, caps.events, "request.routed.invalid")
}

func TestRouteAgent(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities()
	caps.agents["senior-coder"] = true
	r := New(caps, caps, caps, caps, caps, "assistant")

	dec, err := r.Route(context.Background(), parseRequest(t, "agent_id: senior-coder\n"))
	require.NoError(t, err)

	assert.True(t, dec.Routed)
	assert.Equal(t, KindAgent, dec.Kind)
	assert.Equal(t, "agent output", dec.AgentOutput)
	assert.Equal(t, []string{"senior-coder"}, caps.agentRuns)
	assert.Contains(t, caps.events, "request.routed.agent")
}

func TestRouteDefaultAgent(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities()
	caps.agents["assistant"] = true
	r := New(caps, caps, caps, caps, caps, "assistant")

	dec, err := r.Route(context.Background(), parseRequest(t, ""))
	require.NoError(t, err)

	assert.True(t, dec.Routed)
	assert.Equal(t, []string{"assistant"}, caps.agentRuns)
}

func TestClassifyDoesNotExecute(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities()
	caps.validFlows["code-review"] = true
	caps.agents["senior-coder"] = true
	r := New(caps, caps, caps, caps, caps, "assistant")

	dec := r.Classify(context.Background(), parseRequest(t, "flow: code-review\n"))
	assert.True(t, dec.Routed)
	assert.Equal(t, KindFlow, dec.Kind)
	assert.Equal(t, "code-review", dec.Target)

	dec = r.Classify(context.Background(), parseRequest(t, "agent_id: senior-coder\n"))
	assert.True(t, dec.Routed)
	assert.Equal(t, KindAgent, dec.Kind)

	// Classification journals but never runs anything.
	assert.Empty(t, caps.flowRuns)
	assert.Empty(t, caps.agentRuns)
	assert.Contains(t, caps.events, "request.routed.flow")
	assert.Contains(t, caps.events, "request.routed.agent")
}

func TestRouteUnknownAgent(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities()
	r := New(caps, caps, caps, caps, caps, "assistant")

	dec, err := r.Route(context.Background(), parseRequest(t, "agent_id: nobody\n"))
	require.NoError(t, err)

	assert.False(t, dec.Routed)
	assert.Equal(t, KindInvalid, dec.Kind)
	assert.Contains(t, dec.Reason, "nobody")
	assert.Empty(t, caps.agentRuns)
	assert.Contains(t, caps.events, "request.routed.invalid")
}
