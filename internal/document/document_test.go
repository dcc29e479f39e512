package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("FrontmatterAndBody", func(t *testing.T) {
		t.Parallel()
		doc, err := Parse("---\nagent_id: researcher\npriority: 7\n---\nFind recent papers.\n")
		require.NoError(t, err)
		assert.Equal(t, "researcher", doc.Frontmatter["agent_id"])
		assert.EqualValues(t, 7, doc.Frontmatter["priority"])
		assert.Equal(t, "Find recent papers.\n", doc.Body)
	})

	t.Run("BodyOnly", func(t *testing.T) {
		t.Parallel()
		doc, err := Parse("Just a prompt with no header.")
		require.NoError(t, err)
		assert.Nil(t, doc.Frontmatter)
		assert.Equal(t, "Just a prompt with no header.", doc.Body)
	})

	t.Run("UnterminatedFrontmatter", func(t *testing.T) {
		t.Parallel()
		_, err := Parse("---\nagent_id: researcher\nno closing fence")
		assert.Error(t, err)
	})

	t.Run("InvalidYAML", func(t *testing.T) {
		t.Parallel()
		_, err := Parse("---\n: : :\n---\nbody")
		assert.Error(t, err)
	})

	t.Run("DashesInsideBody", func(t *testing.T) {
		t.Parallel()
		doc, err := Parse("---\nid: x\n---\nfirst\n---\nsecond\n")
		require.NoError(t, err)
		assert.Equal(t, "x", doc.Frontmatter["id"])
		assert.Equal(t, "first\n---\nsecond\n", doc.Body)
	})

	t.Run("UnknownKeysPreserved", func(t *testing.T) {
		t.Parallel()
		doc, err := Parse("---\nagent_id: a\nx_custom: hello\n---\nbody")
		require.NoError(t, err)
		assert.Equal(t, "hello", doc.Frontmatter["x_custom"])
	})
}

func TestDecode(t *testing.T) {
	t.Parallel()

	type header struct {
		AgentID  string   `yaml:"agent_id"`
		Priority int      `yaml:"priority"`
		Tags     []string `yaml:"tags"`
	}

	t.Run("MapsKnownKeys", func(t *testing.T) {
		t.Parallel()
		var h header
		err := Decode(map[string]any{
			"agent_id": "researcher",
			"priority": 3,
			"tags":     []any{"a", "b"},
			"extra":    "ignored",
		}, &h)
		require.NoError(t, err)
		assert.Equal(t, "researcher", h.AgentID)
		assert.Equal(t, 3, h.Priority)
		assert.Equal(t, []string{"a", "b"}, h.Tags)
	})

	t.Run("WeakTyping", func(t *testing.T) {
		t.Parallel()
		var h header
		require.NoError(t, Decode(map[string]any{"priority": "5"}, &h))
		assert.Equal(t, 5, h.Priority)
	})
}

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		out, err := Render(map[string]any{"trace_id": "abc", "agent": "writer"}, "## Step 1: Draft\n")
		require.NoError(t, err)

		doc, err := Parse(out)
		require.NoError(t, err)
		assert.Equal(t, "abc", doc.Frontmatter["trace_id"])
		assert.Equal(t, "writer", doc.Frontmatter["agent"])
		assert.Equal(t, "## Step 1: Draft\n", doc.Body)
	})

	t.Run("EmptyFrontmatterIsBodyOnly", func(t *testing.T) {
		t.Parallel()
		out, err := Render(nil, "body")
		require.NoError(t, err)
		assert.Equal(t, "body", out)
	})
}

func TestGetStringList(t *testing.T) {
	t.Parallel()

	fm := map[string]any{
		"scalar": "one",
		"list":   []any{"a", "b"},
		"empty":  "",
	}
	assert.Equal(t, []string{"one"}, GetStringList(fm, "scalar"))
	assert.Equal(t, []string{"a", "b"}, GetStringList(fm, "list"))
	assert.Nil(t, GetStringList(fm, "empty"))
	assert.Nil(t, GetStringList(fm, "missing"))
}
