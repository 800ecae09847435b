package tether_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwojciec/tether"
)

func TestToolResult_Unmarshal(t *testing.T) {
	t.Parallel()

	t.Run("text and image blocks", func(t *testing.T) {
		t.Parallel()
		raw := `{"content":[{"type":"text","text":"hello"},{"type":"image","data":"aGk=","mimeType":"image/png"}],"isError":false}`
		var result tether.ToolResult
		require.NoError(t, json.Unmarshal([]byte(raw), &result))

		require.Len(t, result.Content, 2)
		assert.Equal(t, tether.TextBlock{Text: "hello"}, result.Content[0])
		img, ok := result.Content[1].(tether.ImageBlock)
		require.True(t, ok)
		assert.Equal(t, "image/png", img.MimeType)
		assert.Equal(t, []byte("hi"), img.Data)
		assert.False(t, result.IsError)
	})

	t.Run("tool-reported error", func(t *testing.T) {
		t.Parallel()
		raw := `{"content":[{"type":"text","text":"file not found"}],"isError":true}`
		var result tether.ToolResult
		require.NoError(t, json.Unmarshal([]byte(raw), &result))
		assert.True(t, result.IsError)
	})

	t.Run("unknown block type degrades to text", func(t *testing.T) {
		t.Parallel()
		raw := `{"content":[{"type":"resource","text":"inline"},{"type":"audio","uri":"x"}]}`
		var result tether.ToolResult
		require.NoError(t, json.Unmarshal([]byte(raw), &result))

		require.Len(t, result.Content, 2)
		assert.Equal(t, tether.TextBlock{Text: "inline"}, result.Content[0])
		_, ok := result.Content[1].(tether.TextBlock)
		assert.True(t, ok)
	})
}

func TestToolResult_Text(t *testing.T) {
	t.Parallel()

	result := tether.ToolResult{Content: []tether.ContentBlock{
		tether.TextBlock{Text: "one"},
		tether.ImageBlock{MimeType: "image/png"},
		tether.TextBlock{Text: "two"},
	}}
	assert.Equal(t, "one\ntwo", result.Text())
}
