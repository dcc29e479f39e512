package engine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// TransformFunc reshapes step input. The engine treats transforms as opaque
// pipelines; semantics live entirely in the registry.
type TransformFunc func(input string) (string, error)

// TransformRegistry maps transform names to implementations.
type TransformRegistry struct {
	mu         sync.RWMutex
	transforms map[string]TransformFunc
}

// NewTransformRegistry creates a registry preloaded with the built-in
// transforms.
func NewTransformRegistry() *TransformRegistry {
	r := &TransformRegistry{transforms: make(map[string]TransformFunc)}
	r.Register("passthrough", func(input string) (string, error) {
		return input, nil
	})
	r.Register("extract-section", extractSection)
	r.Register("focus", focus)
	r.Register("merge-documentation", mergeDocumentation)
	return r
}

// Register adds or replaces a named transform.
func (r *TransformRegistry) Register(name string, fn TransformFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[name] = fn
}

// Apply runs the named transform over input. An empty name is passthrough;
// an unknown name is an error.
func (r *TransformRegistry) Apply(name, input string) (string, error) {
	if name == "" {
		return input, nil
	}
	r.mu.RLock()
	fn, ok := r.transforms[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown transform %q", name)
	}
	return fn(input)
}

var headingPattern = regexp.MustCompile(`(?m)^##\s+`)

// extractSection returns the first markdown section, from the first level-2
// heading to the next one. Input without headings passes through.
func extractSection(input string) (string, error) {
	locs := headingPattern.FindAllStringIndex(input, 2)
	if len(locs) == 0 {
		return input, nil
	}
	start := locs[0][0]
	if len(locs) == 1 {
		return strings.TrimSpace(input[start:]), nil
	}
	return strings.TrimSpace(input[start:locs[1][0]]), nil
}

// focus strips markdown code fences and blank runs, keeping prose the
// downstream agent should concentrate on.
func focus(input string) (string, error) {
	var out []string
	inFence := false
	for _, line := range strings.Split(input, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		out = append(out, line)
	}
	collapsed := regexp.MustCompile(`\n{3,}`).ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(collapsed), nil
}

// mergeDocumentation joins aggregated upstream sections under a single
// document heading.
func mergeDocumentation(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", nil
	}
	return "# Documentation\n\n" + trimmed + "\n", nil
}
