// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/lmchat/internal/model"
)

func sampleConversation() *model.Conversation {
	conv := model.NewConversation(1)
	conv.AddMessage(model.NewImageMessage("What breed is this?", model.Image{
		Name:     "dog.png",
		DataURL:  "data:image/png;base64,AAAA",
		MimeType: "image/png",
		Size:     2048,
	}))
	conv.AddMessage(model.NewAssistantMessage("Looks like a **corgi**.", &model.Metric{
		Elapsed: 1500 * time.Millisecond,
		Deltas:  4,
		Model:   "llava-v1.5-7b",
	}))
	return conv
}

func TestForFormat(t *testing.T) {
	tests := map[string]string{
		"md":       ".md",
		"Markdown": ".md",
		"":         ".md",
		"json":     ".json",
		"yaml":     ".yaml",
		"yml":      ".yaml",
	}
	for format, ext := range tests {
		e, err := ForFormat(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, e.FileExtension(), format)
	}

	_, err := ForFormat("html", nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleConversation())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "Conversation: What breed is this?...")
	assert.Contains(t, md, "- llava-v1.5-7b")
	assert.Contains(t, md, "### You")
	assert.Contains(t, md, "### Assistant")
	assert.Contains(t, md, "> Image: dog.png (image/png, 2.0 kB)")
	assert.Contains(t, md, "Looks like a **corgi**.")
	assert.Contains(t, md, "<sub>Time: 1.50s</sub>")
	assert.NotContains(t, md, "base64", "markdown never embeds image data")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	e := NewMarkdownExporter(&Options{})
	out, err := e.Export(sampleConversation())
	require.NoError(t, err)

	assert.False(t, strings.HasPrefix(string(out), "---"))
	assert.NotContains(t, string(out), "Time:")
	assert.Contains(t, string(out), "### You\n")
}

func TestMarkdownExporter_Empty(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(model.NewConversation(2))
	require.NoError(t, err)
	assert.Contains(t, string(out), "# Conversation 2")
	assert.Contains(t, string(out), "No messages yet")

	_, err = NewMarkdownExporter(nil).Export(nil)
	assert.ErrorIs(t, err, ErrNilConversation)
}

func TestJSONExporter(t *testing.T) {
	conv := sampleConversation()

	out, err := NewJSONExporter(nil).Export(conv)
	require.NoError(t, err)

	var doc document
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, conv.ID, doc.ID)
	assert.Equal(t, "lmchat", doc.Generator)
	require.Len(t, doc.Messages, 2)
	assert.Empty(t, doc.Messages[0].Image.DataURL, "image data stripped by default")
	assert.Equal(t, "dog.png", doc.Messages[0].Image.Name)
	assert.Equal(t, 1500*time.Millisecond, doc.Messages[1].Metric.Elapsed)

	// The source conversation is untouched.
	assert.Equal(t, "data:image/png;base64,AAAA", conv.Messages[0].Image.DataURL)

	out, err = NewJSONExporter(&Options{IncludeImageData: true}).Export(conv)
	require.NoError(t, err)
	assert.Contains(t, string(out), "data:image/png;base64,AAAA")
}

func TestYAMLExporter(t *testing.T) {
	out, err := NewYAMLExporter(nil).Export(sampleConversation())
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "lmchat", doc["generator"])
	messages, ok := doc["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 2)
	assert.NotContains(t, string(out), "base64")
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	conv := sampleConversation()

	path, err := ExportToFile(conv, NewMarkdownExporter(nil), &Options{OutputDir: dir, IncludeMetadata: true})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "conversation_What_breed_is_this-_"))
	assert.True(t, strings.HasSuffix(path, ".md"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "corgi")

	_, err = ExportToFile(nil, NewMarkdownExporter(nil), nil)
	assert.ErrorIs(t, err, ErrNilConversation)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename("a/b:c d"))
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.Equal(t, "Conversation_3", sanitizeFilename("Conversation 3"))
	assert.LessOrEqual(t, len([]rune(sanitizeFilename(strings.Repeat("x", 200)))), 50)
}
