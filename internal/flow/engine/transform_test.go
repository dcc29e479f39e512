package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformRegistry(t *testing.T) {
	t.Parallel()

	reg := NewTransformRegistry()

	t.Run("EmptyNameIsPassthrough", func(t *testing.T) {
		t.Parallel()
		out, err := reg.Apply("", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})

	t.Run("Passthrough", func(t *testing.T) {
		t.Parallel()
		out, err := reg.Apply("passthrough", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})

	t.Run("Unknown", func(t *testing.T) {
		t.Parallel()
		_, err := reg.Apply("nope", "hello")
		assert.Error(t, err)
	})

	t.Run("Custom", func(t *testing.T) {
		t.Parallel()
		reg := NewTransformRegistry()
		reg.Register("upper-first", func(input string) (string, error) {
			return ">" + input, nil
		})
		out, err := reg.Apply("upper-first", "x")
		require.NoError(t, err)
		assert.Equal(t, ">x", out)
	})
}

func TestExtractSection(t *testing.T) {
	t.Parallel()

	t.Run("FirstSection", func(t *testing.T) {
		t.Parallel()
		out, err := extractSection("intro\n## One\nbody one\n## Two\nbody two\n")
		require.NoError(t, err)
		assert.Equal(t, "## One\nbody one", out)
	})

	t.Run("SingleSection", func(t *testing.T) {
		t.Parallel()
		out, err := extractSection("## Only\ncontent\n")
		require.NoError(t, err)
		assert.Equal(t, "## Only\ncontent", out)
	})

	t.Run("NoHeadingsPassesThrough", func(t *testing.T) {
		t.Parallel()
		out, err := extractSection("plain text")
		require.NoError(t, err)
		assert.Equal(t, "plain text", out)
	})
}

func TestFocus(t *testing.T) {
	t.Parallel()

	out, err := focus("keep this\n```go\ncode dropped\n```\n\n\n\nand this\n")
	require.NoError(t, err)
	assert.Equal(t, "keep this\n\nand this", out)
}

func TestMergeDocumentation(t *testing.T) {
	t.Parallel()

	out, err := mergeDocumentation("## a\n\ntext\n")
	require.NoError(t, err)
	assert.Equal(t, "# Documentation\n\n## a\n\ntext\n", out)

	out, err = mergeDocumentation("  ")
	require.NoError(t, err)
	assert.Empty(t, out)
}
