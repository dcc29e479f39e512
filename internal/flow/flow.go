// Package flow defines multi-agent workflow definitions and their loading
// and validation. A flow is a DAG of steps, each executed by an agent, with
// declarative input sourcing, retry and conditional execution.
package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/orchd-dev/orchd/internal/blueprint"
)

// Validation errors.
var (
	ErrNoSteps         = errors.New("flow has no steps")
	ErrDuplicateStepID = errors.New("duplicate step id")
	ErrUnknownDep      = errors.New("dependency references unknown step")
	ErrCycleDetected   = errors.New("dependency cycle detected")
)

// Input sources.
const (
	SourceRequest   = "request"
	SourceAggregate = "aggregate"
	// Step-scoped sources use the "step:<id>" form.
	stepSourcePrefix = "step:"
)

// Flow is a complete workflow definition.
type Flow struct {
	ID             string      `yaml:"-"`
	Name           string      `yaml:"name"`
	Description    string      `yaml:"description"`
	Version        string      `yaml:"version"`
	Steps          []*Step     `yaml:"steps"`
	MaxParallelism int         `yaml:"maxParallelism"`
	FailFast       bool        `yaml:"failFast"`
	Timeout        Duration    `yaml:"timeout"`
	Output         *OutputSpec `yaml:"output"`
}

// Step is one unit of work inside a flow.
type Step struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Agent     string     `yaml:"agent"`
	DependsOn []string   `yaml:"dependsOn"`
	Input     *InputSpec `yaml:"input"`
	Retry     *RetrySpec `yaml:"retry"`
	Timeout   Duration   `yaml:"timeout"`
	Condition string     `yaml:"condition"`
}

// InputSpec declares where a step's input comes from and how it is shaped.
type InputSpec struct {
	Source    string `yaml:"source"`
	Transform string `yaml:"transform"`
}

// RetrySpec configures per-step retry with a fixed interval.
type RetrySpec struct {
	MaxAttempts int `yaml:"maxAttempts"`
	BackoffMs   int `yaml:"backoffMs"`
}

// OutputSpec declares how the flow's final output is assembled.
type OutputSpec struct {
	From   string `yaml:"from"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that also accepts bare numbers as seconds
// in YAML, matching how timeouts are written in flow files.
type Duration struct {
	time.Duration
}

// UnmarshalYAML accepts either a duration string ("90s", "2m") or a
// number of seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	case int:
		d.Duration = time.Duration(v) * time.Second
	case int64:
		d.Duration = time.Duration(v) * time.Second
	case uint64:
		d.Duration = time.Duration(v) * time.Second
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
	case nil:
		d.Duration = 0
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// StepSource returns the step id referenced by a "step:<id>" input source,
// or "" when source is not step-scoped.
func StepSource(source string) string {
	if len(source) > len(stepSourcePrefix) && source[:len(stepSourcePrefix)] == stepSourcePrefix {
		return source[len(stepSourcePrefix):]
	}
	return ""
}

// Validate checks structural integrity: non-empty steps, unique ids, known
// dependencies and acyclicity. Agent ids are checked for shape only; their
// existence is the router's concern at execution time.
func (f *Flow) Validate() error {
	if len(f.Steps) == 0 {
		return fmt.Errorf("flow %q: %w", f.ID, ErrNoSteps)
	}

	byID := make(map[string]*Step, len(f.Steps))
	for _, step := range f.Steps {
		if step.ID == "" {
			return fmt.Errorf("flow %q: step with empty id", f.ID)
		}
		if _, exists := byID[step.ID]; exists {
			return fmt.Errorf("flow %q: %w: %q", f.ID, ErrDuplicateStepID, step.ID)
		}
		byID[step.ID] = step
		if step.Agent == "" {
			return fmt.Errorf("flow %q: step %q has no agent", f.ID, step.ID)
		}
		if err := blueprint.ValidateID(step.Agent); err != nil {
			return fmt.Errorf("flow %q: step %q: %w", f.ID, step.ID, err)
		}
		if step.Retry != nil && step.Retry.MaxAttempts < 0 {
			return fmt.Errorf("flow %q: step %q: negative maxAttempts", f.ID, step.ID)
		}
		if _, err := ParseCondition(step.Condition); err != nil {
			return fmt.Errorf("flow %q: step %q: %w", f.ID, step.ID, err)
		}
	}

	for _, step := range f.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("flow %q: step %q: %w: %q", f.ID, step.ID, ErrUnknownDep, dep)
			}
		}
		if ref := StepSource(f.inputSource(step)); ref != "" {
			if _, ok := byID[ref]; !ok {
				return fmt.Errorf("flow %q: step %q: input %w: %q", f.ID, step.ID, ErrUnknownDep, ref)
			}
		}
	}

	if _, err := f.Layers(); err != nil {
		return err
	}
	return nil
}

func (f *Flow) inputSource(step *Step) string {
	if step.Input == nil {
		return ""
	}
	return step.Input.Source
}

// Step returns the step with the given id, or nil.
func (f *Flow) Step(id string) *Step {
	for _, step := range f.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// Layers computes an earliest-start layering of the DAG with Kahn's
// algorithm: layer 0 holds steps with no dependencies, layer N holds steps
// whose dependencies all sit in layers below N. Step order within a layer
// follows declaration order. Returns ErrCycleDetected if the graph is not
// acyclic.
func (f *Flow) Layers() ([][]*Step, error) {
	indegree := make(map[string]int, len(f.Steps))
	dependants := make(map[string][]string, len(f.Steps))
	for _, step := range f.Steps {
		indegree[step.ID] = len(step.DependsOn)
		for _, dep := range step.DependsOn {
			dependants[dep] = append(dependants[dep], step.ID)
		}
	}

	var layers [][]*Step
	frontier := make([]*Step, 0, len(f.Steps))
	for _, step := range f.Steps {
		if indegree[step.ID] == 0 {
			frontier = append(frontier, step)
		}
	}

	visited := 0
	for len(frontier) > 0 {
		layers = append(layers, frontier)
		visited += len(frontier)

		var next []*Step
		ready := make(map[string]bool)
		for _, step := range frontier {
			for _, depID := range dependants[step.ID] {
				indegree[depID]--
				if indegree[depID] == 0 {
					ready[depID] = true
				}
			}
		}
		for _, step := range f.Steps {
			if ready[step.ID] {
				next = append(next, step)
			}
		}
		frontier = next
	}

	if visited != len(f.Steps) {
		return nil, fmt.Errorf("flow %q: %w", f.ID, ErrCycleDetected)
	}
	return layers, nil
}
