// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReply = "Here is some Go:\n\n" +
	"```go\npackage main\n\nfunc main() {}\n```\n\n" +
	"And a shell line:\n\n" +
	"```\necho hi\n```\n\n" +
	"    indented block\n"

func TestCodeBlocks(t *testing.T) {
	blocks := CodeBlocks(sampleReply)

	require.Len(t, blocks, 3)
	assert.Equal(t, "go", blocks[0].Language)
	assert.Equal(t, "package main\n\nfunc main() {}", blocks[0].Code)
	assert.Equal(t, "", blocks[1].Language)
	assert.Equal(t, "echo hi", blocks[1].Code)
	assert.Equal(t, "indented block", blocks[2].Code)
}

func TestCodeBlocks_None(t *testing.T) {
	assert.Empty(t, CodeBlocks("just `inline` code and *text*"))
	assert.Empty(t, CodeBlocks(""))
}

func TestCodeBlocks_Unterminated(t *testing.T) {
	// A reply cut off mid-stream still yields its open block.
	blocks := CodeBlocks("```python\nprint(1)\n")
	require.Len(t, blocks, 1)
	assert.Equal(t, "python", blocks[0].Language)
	assert.Equal(t, "print(1)", blocks[0].Code)
}

func TestHighlight(t *testing.T) {
	out := Highlight("func main() {}", "go")
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "main")

	// Unknown language falls back without losing content.
	out = Highlight("plain words", "no-such-language")
	assert.Contains(t, out, "plain words")
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, "dark", StyleFor("dark"))
	assert.Equal(t, "light", StyleFor(" LIGHT "))
	assert.Equal(t, "notty", StyleFor("plain"))
	assert.Contains(t, []string{"dark", "light"}, StyleFor("auto"))
}

func TestRenderer_Markdown(t *testing.T) {
	r := NewRenderer(ThemePlain, 60)

	out := r.Markdown("# Title\n\nSome **bold** text.")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")

	assert.Equal(t, "", r.Markdown(""))
}

func TestRenderer_Width(t *testing.T) {
	r := NewRenderer(ThemePlain, 0)
	assert.Equal(t, defaultWidth, r.Width())

	r.SetWidth(5)
	assert.Equal(t, minWidth, r.Width())

	r.SetWidth(40)
	out := r.Markdown(strings.Repeat("word ", 40))
	assert.Greater(t, strings.Count(out, "\n"), 1, "long text wraps")
}
