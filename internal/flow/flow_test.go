package flow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, deps ...string) *Step {
	return &Step{ID: id, Agent: "worker", DependsOn: deps}
}

func TestFlowValidate(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{
			step("a"),
			step("b", "a"),
			step("c", "a"),
			step("d", "b", "c"),
		}}
		assert.NoError(t, f.Validate())
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f"}
		assert.ErrorIs(t, f.Validate(), ErrNoSteps)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{step("a"), step("a")}}
		assert.ErrorIs(t, f.Validate(), ErrDuplicateStepID)
	})

	t.Run("UnknownDependency", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{step("a", "ghost")}}
		assert.ErrorIs(t, f.Validate(), ErrUnknownDep)
	})

	t.Run("Cycle", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{
			step("a", "c"),
			step("b", "a"),
			step("c", "b"),
		}}
		assert.ErrorIs(t, f.Validate(), ErrCycleDetected)
	})

	t.Run("SelfCycle", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{step("a", "a")}}
		assert.ErrorIs(t, f.Validate(), ErrCycleDetected)
	})

	t.Run("UnknownInputStep", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{
			step("a"),
			{ID: "b", Agent: "worker", DependsOn: []string{"a"},
				Input: &InputSpec{Source: "step:ghost"}},
		}}
		assert.ErrorIs(t, f.Validate(), ErrUnknownDep)
	})

	t.Run("MissingAgent", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{{ID: "a"}}}
		assert.Error(t, f.Validate())
	})

	t.Run("MalformedCondition", func(t *testing.T) {
		t.Parallel()
		f := &Flow{ID: "f", Steps: []*Step{
			step("a"),
			{ID: "b", Agent: "worker", DependsOn: []string{"a"},
				Condition: "results.a.output contains error"},
		}}
		err := f.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid condition clause")
	})
}

func TestParseCondition(t *testing.T) {
	t.Parallel()

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		clauses, err := ParseCondition("  ")
		require.NoError(t, err)
		assert.Empty(t, clauses)
	})

	t.Run("Conjunction", func(t *testing.T) {
		t.Parallel()
		clauses, err := ParseCondition(
			"results.draft.status == completed && results.review.status != failed")
		require.NoError(t, err)
		require.Len(t, clauses, 2)
		assert.Equal(t, ConditionClause{StepID: "draft", Status: "completed"}, clauses[0])
		assert.Equal(t, ConditionClause{StepID: "review", Negate: true, Status: "failed"}, clauses[1])
	})

	t.Run("Rejected", func(t *testing.T) {
		t.Parallel()
		for _, cond := range []string{
			"results.a.status = completed",
			"results.a.status == running",
			"results.a.output == completed",
			"a.status == completed",
			"results.a.status == completed || results.b.status == failed",
		} {
			_, err := ParseCondition(cond)
			assert.Error(t, err, cond)
		}
	})
}

func TestFlowLayers(t *testing.T) {
	t.Parallel()

	f := &Flow{ID: "f", Steps: []*Step{
		step("fetch"),
		step("parse", "fetch"),
		step("index", "fetch"),
		step("report", "parse", "index"),
	}}

	layers, err := f.Layers()
	require.NoError(t, err)
	require.Len(t, layers, 3)

	ids := func(layer []*Step) []string {
		out := make([]string, len(layer))
		for i, s := range layer {
			out[i] = s.ID
		}
		return out
	}
	assert.Equal(t, []string{"fetch"}, ids(layers[0]))
	assert.Equal(t, []string{"parse", "index"}, ids(layers[1]))
	assert.Equal(t, []string{"report"}, ids(layers[2]))
}

func TestStepSource(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "draft", StepSource("step:draft"))
	assert.Empty(t, StepSource("request"))
	assert.Empty(t, StepSource("aggregate"))
	assert.Empty(t, StepSource("step:"))
}

func TestLoader(t *testing.T) {
	t.Parallel()

	const doc = `name: Research Pipeline
maxParallelism: 2
failFast: true
timeout: 5m
output:
  from: report
  format: markdown
steps:
  - id: gather
    agent: researcher
    input:
      source: request
  - id: draft
    agent: writer
    dependsOn: [gather]
    input:
      source: step:gather
      transform: focus
    retry:
      maxAttempts: 2
      backoffMs: 100
    timeout: 90s
  - id: report
    agent: editor
    dependsOn: [draft]
    condition: results.draft.status == completed
`

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "research.yaml"), []byte(doc), 0o600))

	loader := NewLoader(dir)
	f, err := loader.Load("research")
	require.NoError(t, err)

	assert.Equal(t, "research", f.ID)
	assert.Equal(t, "Research Pipeline", f.Name)
	assert.Equal(t, 2, f.MaxParallelism)
	assert.True(t, f.FailFast)
	assert.Equal(t, 5*time.Minute, f.Timeout.Duration)
	require.NotNil(t, f.Output)
	assert.Equal(t, "report", f.Output.From)

	draft := f.Step("draft")
	require.NotNil(t, draft)
	assert.Equal(t, []string{"gather"}, draft.DependsOn)
	assert.Equal(t, "step:gather", draft.Input.Source)
	assert.Equal(t, "focus", draft.Input.Transform)
	assert.Equal(t, 2, draft.Retry.MaxAttempts)
	assert.Equal(t, 90*time.Second, draft.Timeout.Duration)
	assert.Equal(t, "results.draft.status == completed", f.Step("report").Condition)

	t.Run("NotFound", func(t *testing.T) {
		_, err := loader.Load("missing")
		assert.Error(t, err)
	})

	t.Run("InvalidRejected", func(t *testing.T) {
		bad := "steps:\n  - id: a\n    agent: w\n    dependsOn: [a]\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cyclic.yaml"), []byte(bad), 0o600))
		_, err := loader.Load("cyclic")
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := loader.List()
		require.NoError(t, err)
		assert.Contains(t, ids, "research")
	})
}
