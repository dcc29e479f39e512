// Package blueprint loads agent definitions from markdown files. A blueprint
// is a markdown document whose body is the agent's system prompt and whose
// optional frontmatter carries identity, model and capability metadata.
package blueprint

import (
	"fmt"
	"regexp"

	"github.com/orchd-dev/orchd/internal/stringutil"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Blueprint is a loaded agent definition.
type Blueprint struct {
	ID           string   `yaml:"-"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Version      string   `yaml:"version"`
	Model        string   `yaml:"model"`
	Capabilities []string `yaml:"capabilities"`
	Skills       []string `yaml:"default_skills"`
	Tags         []string `yaml:"tags"`
	SystemPrompt string   `yaml:"-"`

	// Extensions controlling reflexive execution and memory.
	Reflexive              bool `yaml:"reflexive"`
	MaxReflexionIterations int  `yaml:"max_reflexion_iterations"`
	ConfidenceRequired     int  `yaml:"confidence_required"`
	MemoryEnabled          bool `yaml:"memory_enabled"`
}

// LoadError reports why a blueprint could not be loaded.
type LoadError struct {
	ID     string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("blueprint %q: %s: %v", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("blueprint %q: %s", e.ID, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidateID reports whether id is a legal blueprint identifier.
func ValidateID(id string) error {
	if id == "" {
		return &LoadError{ID: id, Reason: "empty agent id"}
	}
	if !idPattern.MatchString(id) {
		return &LoadError{ID: id, Reason: "agent id must be lowercase alphanumeric with hyphens"}
	}
	return nil
}

func (b *Blueprint) validate() error {
	if err := ValidateID(b.ID); err != nil {
		return err
	}
	if b.SystemPrompt == "" {
		return &LoadError{ID: b.ID, Reason: "empty system prompt"}
	}
	if b.Version != "" && !stringutil.IsValidSemver(b.Version) {
		return &LoadError{ID: b.ID, Reason: fmt.Sprintf("invalid version %q", b.Version)}
	}
	if b.ConfidenceRequired < 0 || b.ConfidenceRequired > 100 {
		return &LoadError{ID: b.ID, Reason: "confidence_required must be within 0-100"}
	}
	return nil
}

// applyDefaults fills derived and default fields after decoding.
func (b *Blueprint) applyDefaults(defaultModel string) {
	if b.Name == "" {
		b.Name = stringutil.KebabToTitle(b.ID)
	}
	if b.Model == "" {
		b.Model = defaultModel
	}
	if b.Reflexive && b.MaxReflexionIterations <= 0 {
		b.MaxReflexionIterations = 3
	}
}
