// Package document handles markdown documents with YAML frontmatter, the
// wire format for requests, plans and blueprints.
package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
)

const delimiter = "---"

// Document is a parsed markdown document.
type Document struct {
	// Frontmatter holds all keys from the YAML header, including ones no
	// schema knows about. Unknown keys are preserved but ignored.
	Frontmatter map[string]any
	// Body is the markdown content after the frontmatter block.
	Body string
}

// Parse splits content into frontmatter and body. Content without a leading
// frontmatter fence parses as body-only with a nil map.
func Parse(content string) (*Document, error) {
	if !strings.HasPrefix(content, delimiter+"\n") && !strings.HasPrefix(content, delimiter+"\r\n") {
		return &Document{Body: content}, nil
	}

	rest := content[len(delimiter):]
	rest = strings.TrimPrefix(rest, "\r")
	rest = strings.TrimPrefix(rest, "\n")

	end := findClosingFence(rest)
	if end < 0 {
		return nil, errors.New("unterminated frontmatter: missing closing fence")
	}

	header := rest[:end]
	body := rest[end:]
	// Skip the fence line itself.
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(header), &frontmatter); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}

	return &Document{Frontmatter: frontmatter, Body: body}, nil
}

// findClosingFence locates a "---" line terminating the frontmatter block.
func findClosingFence(s string) int {
	offset := 0
	for {
		idx := strings.Index(s[offset:], delimiter)
		if idx < 0 {
			return -1
		}
		abs := offset + idx
		atLineStart := abs == 0 || s[abs-1] == '\n'
		lineEnd := abs + len(delimiter)
		atLineEnd := lineEnd >= len(s) || s[lineEnd] == '\n' || s[lineEnd] == '\r'
		if atLineStart && atLineEnd {
			return abs
		}
		offset = abs + len(delimiter)
	}
}

// Decode maps frontmatter keys onto a typed struct. Unknown keys are left
// in place; type mismatches surface as errors.
func Decode(frontmatter map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(frontmatter); err != nil {
		return fmt.Errorf("invalid frontmatter: %w", err)
	}
	return nil
}

// Render serializes a document back to markdown with a frontmatter header.
// Keys are emitted in sorted order so rendering is deterministic.
func Render(frontmatter map[string]any, body string) (string, error) {
	if len(frontmatter) == 0 {
		return body, nil
	}

	keys := make([]string, 0, len(frontmatter))
	for k := range frontmatter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(delimiter)
	sb.WriteByte('\n')
	for _, k := range keys {
		line, err := yaml.Marshal(map[string]any{k: frontmatter[k]})
		if err != nil {
			return "", fmt.Errorf("failed to encode frontmatter key %q: %w", k, err)
		}
		sb.Write(line)
	}
	sb.WriteString(delimiter)
	sb.WriteByte('\n')
	sb.WriteString(body)
	return sb.String(), nil
}

// GetString returns a frontmatter value as a trimmed string.
func GetString(frontmatter map[string]any, key string) string {
	if v, ok := frontmatter[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// GetStringList returns a frontmatter value as a string list, accepting
// both YAML lists and single scalars.
func GetStringList(frontmatter map[string]any, key string) []string {
	v, ok := frontmatter[key]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	default:
		return nil
	}
}
