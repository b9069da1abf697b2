package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	for _, name := range Required {
		text, ok := c.Get(name)
		assert.True(t, ok, name)
		assert.NotEmpty(t, text, name)
	}

	answer, _ := c.Get(Answer)
	assert.Contains(t, answer, "{{context}}")
	assert.Contains(t, answer, "{{question}}")

	summary, _ := c.Get(Summary)
	assert.Contains(t, summary, "{{conversation}}")
}

func TestLoad_MissingTemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"answer.txt": {Data: []byte("Q: {{question}}")},
	}

	_, err := Load(fsys)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Contains(t, err.Error(), Summary)
}

func TestLoad_EmptyTemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"answer.txt":  {Data: []byte("Q: {{question}}")},
		"summary.txt": {Data: []byte("  \n")},
	}

	_, err := Load(fsys)
	assert.ErrorIs(t, err, ErrEmptyTemplate)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "answer.txt"), []byte("A {{context}} {{question}}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.txt"), []byte("S {{conversation}}"), 0o644))

	c, err := LoadDir(dir)
	require.NoError(t, err)

	out, err := c.Render(Summary, map[string]string{KeyConversation: "Alice: hi"})
	require.NoError(t, err)
	assert.Equal(t, "S Alice: hi", out)
}

func TestRender(t *testing.T) {
	c, err := Load(fstest.MapFS{"answer.txt": {Data: []byte("{{context}}\nQ: {{question}} {{other}}")}}, Answer)
	require.NoError(t, err)

	t.Run("substitutes known keys", func(t *testing.T) {
		out, err := c.Render(Answer, map[string]string{
			KeyContext:  "[1] Alice (00:01): hello",
			KeyQuestion: "who spoke?",
		})
		require.NoError(t, err)
		assert.Equal(t, "[1] Alice (00:01): hello\nQ: who spoke? {{other}}", out)
	})

	t.Run("values are not re-expanded", func(t *testing.T) {
		out, err := c.Render(Answer, map[string]string{
			KeyContext:  "{{question}}",
			KeyQuestion: "q",
		})
		require.NoError(t, err)
		assert.Equal(t, "{{question}}\nQ: q {{other}}", out)
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := c.Render(Summary, nil)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})
}
