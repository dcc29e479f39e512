package stringutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	assert.Empty(t, FormatTime(time.Time{}))

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	formatted := FormatTime(ts)
	assert.Equal(t, "2026-03-14T09:26:53Z", formatted)

	parsed, err := ParseTime(formatted)
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))
}

func TestTruncString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hel", TruncString("hello", 3))
	assert.Equal(t, "hi", TruncString("hi", 10))
	assert.Empty(t, TruncString("hello", 0))
}

func TestKebabToTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"senior-coder", "Senior Coder"},
		{"assistant", "Assistant"},
		{"a-b-c", "A B C"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, KebabToTitle(tc.input), tc.input)
	}
}

func TestIsValidSemver(t *testing.T) {
	t.Parallel()

	valid := []string{"1.0.0", "0.2.10", "2.0.0-rc.1", "1.2.3+build.5"}
	for _, v := range valid {
		assert.True(t, IsValidSemver(v), v)
	}

	invalid := []string{"", "1", "1.2", "v1.2.3", "1.2.x", "1..3"}
	for _, v := range invalid {
		assert.False(t, IsValidSemver(v), v)
	}
}
