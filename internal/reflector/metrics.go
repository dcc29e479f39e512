package reflector

import (
	"sync"
	"sync/atomic"
)

// Metrics tracks reflected tool execution counts.
type Metrics struct {
	totalCalls   atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	totalRetries atomic.Int64

	mu      sync.Mutex
	perTool map[string]*ToolMetrics
}

// ToolMetrics holds counters for one tool.
type ToolMetrics struct {
	Calls     int64
	Successes int64
	Failures  int64
	Retries   int64
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	TotalCalls   int64
	Successes    int64
	Failures     int64
	TotalRetries int64
	RetryRate    float64
	PerTool      map[string]ToolMetrics
}

// NewMetrics creates an empty Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{perTool: make(map[string]*ToolMetrics)}
}

func (m *Metrics) record(tool string, success bool, retries int) {
	m.totalCalls.Add(1)
	if success {
		m.successes.Add(1)
	} else {
		m.failures.Add(1)
	}
	m.totalRetries.Add(int64(retries))

	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.perTool[tool]
	if !ok {
		tm = &ToolMetrics{}
		m.perTool[tool] = tm
	}
	tm.Calls++
	if success {
		tm.Successes++
	} else {
		tm.Failures++
	}
	tm.Retries += int64(retries)
}

// Snapshot returns a consistent copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		TotalCalls:   m.totalCalls.Load(),
		Successes:    m.successes.Load(),
		Failures:     m.failures.Load(),
		TotalRetries: m.totalRetries.Load(),
		PerTool:      make(map[string]ToolMetrics),
	}
	if snap.TotalCalls > 0 {
		snap.RetryRate = float64(snap.TotalRetries) / float64(snap.TotalCalls)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, tm := range m.perTool {
		snap.PerTool[name] = *tm
	}
	return snap
}
