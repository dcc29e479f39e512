// Package stringutil provides small string helpers shared across packages.
package stringutil

import (
	"strings"
	"time"
	"unicode"
)

// FormatTime returns formatted time in RFC3339 format.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ParseTime parses an RFC3339 formatted time string.
func ParseTime(val string) (time.Time, error) {
	return time.Parse(time.RFC3339, val)
}

// TruncString returns the string truncated to the given max length.
func TruncString(val string, max int) string {
	if len(val) <= max {
		return val
	}
	return val[:max]
}

// KebabToTitle converts a kebab-case identifier to a title-cased display
// name, e.g. "senior-coder" becomes "Senior Coder".
func KebabToTitle(id string) string {
	parts := strings.Split(id, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

// IsValidSemver reports whether the value looks like a MAJOR.MINOR.PATCH
// version. Pre-release and build metadata suffixes are accepted.
func IsValidSemver(v string) bool {
	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
