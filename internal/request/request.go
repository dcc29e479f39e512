// Package request parses inbound request documents and turns them into
// staged plans through an LLM call.
package request

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/orchd-dev/orchd/internal/document"
)

// Request statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusFailed:     true,
}

// Parse errors.
var (
	ErrMissingTraceID = errors.New("missing trace_id")
	ErrInvalidTraceID = errors.New("trace_id is not a valid UUID")
	ErrInvalidStatus  = errors.New("invalid status")
)

const (
	defaultPriority = 5
	maxPriority     = 10
)

// Request is a parsed request document.
type Request struct {
	TraceID    string
	RequestID  string
	AgentID    string
	Flow       string
	Model      string
	Status     string
	Priority   int
	Tags       []string
	Skills     []string
	SkipSkills []string

	// Frontmatter keeps the full header, unknown keys included.
	Frontmatter map[string]any
	Body        string
	Path        string
}

// header is the schema-validated view of request frontmatter.
type header struct {
	TraceID    string   `yaml:"trace_id"`
	AgentID    string   `yaml:"agent_id"`
	Flow       string   `yaml:"flow"`
	Model      string   `yaml:"model"`
	Status     string   `yaml:"status"`
	Priority   *int     `yaml:"priority"`
	Tags       []string `yaml:"tags"`
	Skills     []string `yaml:"skills"`
	SkipSkills []string `yaml:"skip_skills"`
}

// Parse reads a request from its file content. The request id is derived
// from the filename. An agent id may be absent; the router substitutes the
// configured default.
func Parse(path, content string) (*Request, error) {
	doc, err := document.Parse(content)
	if err != nil {
		return nil, err
	}

	var h header
	if doc.Frontmatter != nil {
		if err := document.Decode(doc.Frontmatter, &h); err != nil {
			return nil, err
		}
	}

	if h.TraceID == "" {
		return nil, ErrMissingTraceID
	}
	if _, err := uuid.Parse(h.TraceID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTraceID, h.TraceID)
	}

	status := h.Status
	if status == "" {
		status = StatusPending
	}
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, h.Status)
	}

	priority := defaultPriority
	if h.Priority != nil {
		priority = *h.Priority
		if priority < 0 {
			priority = 0
		}
		if priority > maxPriority {
			priority = maxPriority
		}
	}

	return &Request{
		TraceID:     h.TraceID,
		RequestID:   requestID(path),
		AgentID:     h.AgentID,
		Flow:        h.Flow,
		Model:       h.Model,
		Status:      status,
		Priority:    priority,
		Tags:        h.Tags,
		Skills:      h.Skills,
		SkipSkills:  h.SkipSkills,
		Frontmatter: doc.Frontmatter,
		Body:        strings.TrimSpace(doc.Body),
		Path:        path,
	}, nil
}

func requestID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}
