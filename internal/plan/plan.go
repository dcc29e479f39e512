// Package plan parses approved plan documents and executes their steps
// through the request router.
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/orchd-dev/orchd/internal/document"
)

var stepHeading = regexp.MustCompile(`(?m)^## Step (\d+): *(.*)$`)

// Parse errors.
var (
	ErrMissingTraceID = errors.New("plan missing trace_id")
	ErrNoSteps        = errors.New("plan has no steps")
	ErrEmptyTitle     = errors.New("plan step has empty title")
)

// Step is one numbered section of a plan.
type Step struct {
	Number  int
	Title   string
	Content string
}

// Plan is a parsed plan document.
type Plan struct {
	TraceID   string
	RequestID string
	Agent     string
	Model     string
	Flow      string
	Steps     []Step

	// Sequential is false when the step numbering has gaps. The plan is
	// still executable; the executor journals a warning.
	Sequential bool

	Frontmatter map[string]any
}

type header struct {
	TraceID   string `yaml:"trace_id"`
	RequestID string `yaml:"request_id"`
	Agent     string `yaml:"agent"`
	Model     string `yaml:"model"`
	Flow      string `yaml:"flow"`
}

// Parse reads a plan document. The frontmatter must carry a trace_id; the
// body must contain at least one "## Step N: <title>" section with a
// non-empty title.
func Parse(content string) (*Plan, error) {
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

	steps, sequential, err := parseSteps(doc.Body)
	if err != nil {
		return nil, err
	}

	return &Plan{
		TraceID:     h.TraceID,
		RequestID:   h.RequestID,
		Agent:       h.Agent,
		Model:       h.Model,
		Flow:        h.Flow,
		Steps:       steps,
		Sequential:  sequential,
		Frontmatter: doc.Frontmatter,
	}, nil
}

// parseSteps splits the body on step headings. Numbering gaps are reported
// through the sequential flag rather than as errors; an empty title is a
// hard parse error.
func parseSteps(body string) ([]Step, bool, error) {
	matches := stepHeading.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil, false, ErrNoSteps
	}

	steps := make([]Step, 0, len(matches))
	for i, m := range matches {
		var number int
		if _, err := fmt.Sscanf(body[m[2]:m[3]], "%d", &number); err != nil {
			return nil, false, fmt.Errorf("invalid step number %q", body[m[2]:m[3]])
		}
		title := strings.TrimSpace(body[m[4]:m[5]])
		if title == "" {
			return nil, false, fmt.Errorf("%w: step %d", ErrEmptyTitle, number)
		}

		contentStart := m[1]
		contentEnd := len(body)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}
		steps = append(steps, Step{
			Number:  number,
			Title:   title,
			Content: strings.TrimSpace(body[contentStart:contentEnd]),
		})
	}

	sequential := true
	for i, step := range steps {
		if step.Number != i+1 {
			sequential = false
			break
		}
	}
	return steps, sequential, nil
}
