// Package reflector wraps tool invocations with an LLM judgment that
// decides whether the tool actually achieved its stated purpose, retrying
// with adjusted parameters when the judge suggests it.
package reflector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/orchd-dev/orchd/internal/llm"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
)

// ToolCall describes one tool invocation to be judged.
type ToolCall struct {
	ID           string
	Name         string
	Parameters   map[string]any
	Purpose      string
	Dependencies []string
}

// ExecutionResult is the raw outcome of running a tool.
type ExecutionResult struct {
	Success  bool
	Output   string
	Error    string
	Duration time.Duration
}

// Executor runs a tool with the given parameters.
type Executor func(ctx context.Context, name string, params map[string]any) (*ExecutionResult, error)

// IssueType classifies a problem found by the judge.
type IssueType string

const (
	IssueError      IssueType = "error"
	IssueIncomplete IssueType = "incomplete"
	IssueUnexpected IssueType = "unexpected"
	IssueWarning    IssueType = "warning"
)

// Severity grades an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Issue is one problem the judge found with a tool result.
type Issue struct {
	Type        IssueType `json:"type"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
}

// Verdict is the structured judgment returned by the LLM.
type Verdict struct {
	Success           bool           `json:"success"`
	Confidence        int            `json:"confidence"`
	AchievedPurpose   bool           `json:"achieved_purpose"`
	Issues            []Issue        `json:"issues"`
	RetrySuggested    bool           `json:"retry_suggested"`
	RetryReason       string         `json:"retry_reason"`
	AlternativeParams map[string]any `json:"alternative_parameters"`
	Insights          string         `json:"insights"`
}

// HasCriticalIssue reports whether any issue is graded critical.
func (v *Verdict) HasCriticalIssue() bool {
	for _, issue := range v.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Outcome is the final result of a reflected tool call.
type Outcome struct {
	Call      ToolCall
	Execution *ExecutionResult
	Verdict   *Verdict
	Success   bool
	Attempts  int
	Insights  []string
}

// Reflector judges tool executions with an LLM.
type Reflector struct {
	provider   llm.Provider
	model      string
	maxRetries int
	parallel   bool
	metrics    *Metrics
}

// Option configures a Reflector.
type Option func(*Reflector)

// WithMaxRetries bounds judge-suggested re-executions per call.
func WithMaxRetries(n int) Option {
	return func(r *Reflector) { r.maxRetries = n }
}

// WithParallelism toggles concurrent execution in ExecuteMultiple.
func WithParallelism(enabled bool) Option {
	return func(r *Reflector) { r.parallel = enabled }
}

// New creates a Reflector that judges with the given provider and model.
func New(provider llm.Provider, model string, opts ...Option) *Reflector {
	r := &Reflector{
		provider:   provider,
		model:      model,
		maxRetries: 2,
		parallel:   true,
		metrics:    NewMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the reflector's metrics collector.
func (r *Reflector) Metrics() *Metrics { return r.metrics }

// Execute runs one tool call through the execute-judge-retry loop.
func (r *Reflector) Execute(ctx context.Context, call ToolCall, exec Executor) (*Outcome, error) {
	outcome := &Outcome{Call: call}
	params := call.Parameters

	for attempt := 0; ; attempt++ {
		outcome.Attempts = attempt + 1

		execResult, err := exec(ctx, call.Name, params)
		if err != nil {
			execResult = &ExecutionResult{Success: false, Error: err.Error()}
		}
		outcome.Execution = execResult

		verdict, err := r.judge(ctx, call, params, execResult)
		if err != nil {
			// Judge unavailable: fall back to the raw execution result.
			logger.Warn(ctx, "Reflection judgment unavailable",
				tag.Tool(call.Name), tag.Error(err))
			outcome.Success = execResult.Success
			r.metrics.record(call.Name, outcome.Success, attempt)
			return outcome, nil
		}
		outcome.Verdict = verdict
		if verdict.Insights != "" {
			outcome.Insights = append(outcome.Insights, verdict.Insights)
		}

		success := verdict.Success && verdict.AchievedPurpose
		if verdict.HasCriticalIssue() {
			success = false
		}
		outcome.Success = success

		if success || !verdict.RetrySuggested || attempt >= r.maxRetries {
			r.metrics.record(call.Name, success, attempt)
			return outcome, nil
		}

		logger.Info(ctx, "Retrying tool with adjusted parameters",
			tag.Tool(call.Name), tag.Attempt(attempt+1), tag.Reason(verdict.RetryReason))
		params = mergeParams(params, verdict.AlternativeParams)
	}
}

// ExecuteMultiple runs calls honoring the partial order induced by their
// dependencies. Independent calls run concurrently when parallelism is
// enabled, otherwise strictly in declaration order.
func (r *Reflector) ExecuteMultiple(ctx context.Context, calls []ToolCall, exec Executor) ([]*Outcome, error) {
	layers, err := layerCalls(calls)
	if err != nil {
		return nil, err
	}

	outcomes := make(map[string]*Outcome, len(calls))
	for _, layer := range layers {
		if !r.parallel || len(layer) == 1 {
			for _, call := range layer {
				outcome, err := r.Execute(ctx, call, exec)
				if err != nil {
					return nil, err
				}
				outcomes[call.ID] = outcome
			}
			continue
		}

		type indexed struct {
			id      string
			outcome *Outcome
			err     error
		}
		ch := make(chan indexed, len(layer))
		for _, call := range layer {
			go func(call ToolCall) {
				outcome, err := r.Execute(ctx, call, exec)
				ch <- indexed{id: call.ID, outcome: outcome, err: err}
			}(call)
		}
		for range layer {
			res := <-ch
			if res.err != nil {
				return nil, res.err
			}
			outcomes[res.id] = res.outcome
		}
	}

	ordered := make([]*Outcome, 0, len(calls))
	for _, call := range calls {
		ordered = append(ordered, outcomes[call.ID])
	}
	return ordered, nil
}

// layerCalls groups calls into earliest-start layers over the dependency
// graph, rejecting unknown references and cycles.
func layerCalls(calls []ToolCall) ([][]ToolCall, error) {
	byID := make(map[string]ToolCall, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			return nil, fmt.Errorf("tool call %q has no id", call.Name)
		}
		if _, dup := byID[call.ID]; dup {
			return nil, fmt.Errorf("duplicate tool call id %q", call.ID)
		}
		byID[call.ID] = call
	}

	indegree := make(map[string]int, len(calls))
	dependants := make(map[string][]string)
	for _, call := range calls {
		indegree[call.ID] = len(call.Dependencies)
		for _, dep := range call.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("tool call %q depends on unknown call %q", call.ID, dep)
			}
			dependants[dep] = append(dependants[dep], call.ID)
		}
	}

	var layers [][]ToolCall
	var frontier []ToolCall
	for _, call := range calls {
		if indegree[call.ID] == 0 {
			frontier = append(frontier, call)
		}
	}

	visited := 0
	for len(frontier) > 0 {
		layers = append(layers, frontier)
		visited += len(frontier)

		ready := make(map[string]bool)
		for _, call := range frontier {
			for _, depID := range dependants[call.ID] {
				indegree[depID]--
				if indegree[depID] == 0 {
					ready[depID] = true
				}
			}
		}
		frontier = nil
		for _, call := range calls {
			if ready[call.ID] {
				frontier = append(frontier, call)
			}
		}
	}
	if visited != len(calls) {
		return nil, fmt.Errorf("tool call dependency cycle detected")
	}
	return layers, nil
}

// judge asks the LLM for a structured verdict on an execution result.
func (r *Reflector) judge(ctx context.Context, call ToolCall, params map[string]any, result *ExecutionResult) (*Verdict, error) {
	prompt, err := buildJudgePrompt(call, params, result)
	if err != nil {
		return nil, err
	}

	resp, err := r.provider.Generate(ctx, &llm.Request{
		Model: r.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: judgeSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), verdict); err != nil {
		return nil, fmt.Errorf("unparseable verdict: %w", err)
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 100 {
		verdict.Confidence = 100
	}
	return verdict, nil
}

const judgeSystemPrompt = `You are a tool execution judge. Given a tool call, its stated purpose and its result, decide whether the tool actually achieved that purpose. Respond with a single JSON object:
{"success": bool, "confidence": 0-100, "achieved_purpose": bool, "issues": [{"type": "error|incomplete|unexpected|warning", "description": "...", "severity": "critical|major|minor"}], "retry_suggested": bool, "retry_reason": "...", "alternative_parameters": {}, "insights": "..."}`

func buildJudgePrompt(call ToolCall, params map[string]any, result *ExecutionResult) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("unserializable parameters: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tool: %s\nPurpose: %s\nParameters: %s\n", call.Name, call.Purpose, paramsJSON)
	fmt.Fprintf(&sb, "Execution success: %t\n", result.Success)
	if result.Output != "" {
		fmt.Fprintf(&sb, "Output:\n%s\n", result.Output)
	}
	if result.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", result.Error)
	}
	return sb.String(), nil
}

// extractJSON strips markdown code fences around a JSON payload.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
	}
	return strings.TrimSpace(content)
}

// mergeParams overlays alternatives onto the original parameters.
func mergeParams(original, alternatives map[string]any) map[string]any {
	if len(alternatives) == 0 {
		return original
	}
	merged := make(map[string]any, len(original)+len(alternatives))
	for k, v := range original {
		merged[k] = v
	}
	for k, v := range alternatives {
		merged[k] = v
	}
	return merged
}
