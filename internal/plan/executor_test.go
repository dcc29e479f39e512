package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchd-dev/orchd/internal/journal"
	"github.com/orchd-dev/orchd/internal/request"
	"github.com/orchd-dev/orchd/internal/router"
)

type fakeRouter struct {
	requests  []*request.Request
	decisions []*router.Decision
	err       error
}

func (f *fakeRouter) Route(_ context.Context, req *request.Request) (*router.Decision, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.decisions) > 0 {
		dec := f.decisions[0]
		if len(f.decisions) > 1 {
			f.decisions = f.decisions[1:]
		}
		return dec, nil
	}
	return &router.Decision{Routed: true, Kind: router.KindAgent, AgentOutput: "done"}, nil
}

type fakeRegistrar struct {
	registered []*Changeset
	sha        string
	err        error
}

func (f *fakeRegistrar) Register(c *Changeset) (string, error) {
	f.registered = append(f.registered, c)
	return f.sha, f.err
}

type eventRecorder struct {
	events []string
}

func (r *eventRecorder) Log(_, actionType, _ string, _ map[string]any, _ ...journal.LogOption) {
	r.events = append(r.events, actionType)
}

const validPlan = `---
trace_id: ` + testTraceID + `
request_id: req-1
agent: senior-coder
---
## Step 1: Outline
Sketch it.

## Step 2: Implement
Build it.
`

func TestExecuteSequential(t *testing.T) {
	t.Parallel()

	rt := &fakeRouter{}
	reg := &fakeRegistrar{sha: "abc123"}
	events := &eventRecorder{}
	e := NewExecutor(rt, WithRegistrar(reg), WithEventSink(events))

	result, err := e.ExecuteContent(context.Background(), "p.md", validPlan)
	require.NoError(t, err)

	assert.Equal(t, 2, result.StepsExecuted)
	assert.Equal(t, "abc123", result.CommitSHA)
	assert.NotEmpty(t, result.ChangesetID)

	require.Len(t, rt.requests, 2)
	assert.Equal(t, testTraceID, rt.requests[0].TraceID)
	assert.Equal(t, "req-1-step-1", rt.requests[0].RequestID)
	assert.Equal(t, "senior-coder", rt.requests[0].AgentID)
	assert.Contains(t, rt.requests[0].Body, "Sketch it.")
	assert.Contains(t, rt.requests[1].Body, "Build it.")

	require.Len(t, reg.registered, 1)
	assert.Equal(t, testTraceID, reg.registered[0].TraceID)
	assert.Contains(t, events.events, "plan.completed")
}

func TestExecuteStopsOnFailure(t *testing.T) {
	t.Parallel()

	rt := &fakeRouter{err: errors.New("agent exploded")}
	events := &eventRecorder{}
	e := NewExecutor(rt, WithEventSink(events))

	_, err := e.ExecuteContent(context.Background(), "p.md", validPlan)
	require.Error(t, err)
	assert.Len(t, rt.requests, 1)
	assert.Contains(t, events.events, "plan.failed")
	assert.NotContains(t, events.events, "plan.completed")
}

func TestExecuteUnroutedStepFails(t *testing.T) {
	t.Parallel()

	rt := &fakeRouter{decisions: []*router.Decision{
		{Routed: false, Kind: router.KindInvalid, Reason: "unknown agent"},
	}}
	e := NewExecutor(rt)

	_, err := e.ExecuteContent(context.Background(), "p.md", validPlan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent")
}

func TestExecuteParseFailureJournaled(t *testing.T) {
	t.Parallel()

	rt := &fakeRouter{}
	events := &eventRecorder{}
	e := NewExecutor(rt, WithEventSink(events))

	bad := "---\ntrace_id: " + testTraceID + "\n---\n## Step 1: \nempty title"
	_, err := e.ExecuteContent(context.Background(), "p.md", bad)
	require.Error(t, err)
	assert.Empty(t, rt.requests)
	assert.Contains(t, events.events, "plan.parsing_failed")
}

func TestExecuteNonSequentialWarns(t *testing.T) {
	t.Parallel()

	rt := &fakeRouter{}
	events := &eventRecorder{}
	e := NewExecutor(rt, WithEventSink(events))

	gapped := "---\ntrace_id: " + testTraceID + "\nrequest_id: r\n---\n## Step 1: A\nx\n## Step 3: B\ny"
	result, err := e.ExecuteContent(context.Background(), "p.md", gapped)
	require.NoError(t, err)
	assert.Equal(t, 2, result.StepsExecuted)
	assert.Contains(t, events.events, "plan.non_sequential_steps")
}

func TestExecutePlanWithFlow(t *testing.T) {
	t.Parallel()

	rt := &fakeRouter{decisions: []*router.Decision{
		{Routed: true, Kind: router.KindFlow},
	}}
	e := NewExecutor(rt)

	withFlow := "---\ntrace_id: " + testTraceID + "\nrequest_id: r\nflow: code-review\n---\n## Step 1: A\nx"
	_, err := e.ExecuteContent(context.Background(), "p.md", withFlow)
	require.NoError(t, err)

	require.Len(t, rt.requests, 1)
	assert.Equal(t, "code-review", rt.requests[0].Flow)
}

func TestChangesetTransitions(t *testing.T) {
	t.Parallel()

	c := NewChangeset(testTraceID, "add parser", "plan-executor")
	assert.Equal(t, ChangesetPending, c.Status)

	c.Approve()
	assert.Equal(t, ChangesetApproved, c.Status)
	require.NotNil(t, c.ApprovedAt)

	// Terminal states do not transition again.
	first := *c.ApprovedAt
	c.Reject("nope")
	assert.Equal(t, ChangesetApproved, c.Status)
	assert.Equal(t, first, *c.ApprovedAt)
}
