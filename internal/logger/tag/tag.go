// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming for consistency. Use these functions
// instead of raw strings to ensure consistent and type-safe log output
// across the codebase.
package tag

import (
	"log/slog"
	"time"
)

// Core identification tags

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Trace creates a tag for pipeline trace ids.
func Trace(id string) slog.Attr {
	return slog.String("trace-id", id)
}

// Request creates a tag for request document ids.
func Request(id string) slog.Attr {
	return slog.String("request-id", id)
}

// Agent creates a tag for agent (blueprint) ids.
func Agent(id string) slog.Attr {
	return slog.String("agent", id)
}

// Flow creates a tag for flow ids.
func Flow(id string) slog.Attr {
	return slog.String("flow", id)
}

// Step creates a tag for flow step ids.
func Step(id string) slog.Attr {
	return slog.String("step", id)
}

// Attempt creates a tag for attempt numbers.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Tool creates a tag for tool names.
func Tool(name string) slog.Attr {
	return slog.String("tool", name)
}

// Model creates a tag for provider-qualified model identifiers.
func Model(id string) slog.Attr {
	return slog.String("model", id)
}

// Path and file tags

// File creates a tag for file paths.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// Dir creates a tag for directory paths.
func Dir(path string) slog.Attr {
	return slog.String("dir", path)
}

// Execution context tags

// Status creates a tag for execution status values.
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

// Duration creates a tag for elapsed time.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count creates a tag for generic counts.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Reason creates a tag for human-readable failure reasons.
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}
