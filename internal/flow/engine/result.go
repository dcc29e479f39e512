// Package engine executes flow DAGs: dependency-ordered scheduling with
// bounded parallelism, per-step retry and timeout, conditional skipping
// and output assembly.
package engine

import (
	"time"
)

// StepStatus is the lifecycle state of a step during flow execution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the status is a final state.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// FlowStatus is the overall outcome of a flow run.
type FlowStatus string

const (
	FlowCompleted FlowStatus = "completed"
	FlowFailed    FlowStatus = "failed"
)

// StepResult records the outcome of one step.
type StepResult struct {
	StepID     string
	Status     StepStatus
	Output     string
	Error      string
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result is the outcome of a flow run.
type Result struct {
	FlowID      string
	Status      FlowStatus
	StepResults []*StepResult
	FinalOutput string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// StepResult returns the result for a step id, or nil.
func (r *Result) StepResult(id string) *StepResult {
	for _, sr := range r.StepResults {
		if sr.StepID == id {
			return sr
		}
	}
	return nil
}
