// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"errors"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/atotto/clipboard"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrClipboardUnavailable is returned when no clipboard tool is present.
var ErrClipboardUnavailable = errors.New("clipboard is not available")

// =============================================================================
// CODE BLOCKS
// =============================================================================

// CodeBlock is one code block found in a reply.
type CodeBlock struct {
	Language string
	Code     string
}

// CodeBlocks returns the fenced and indented code blocks of a markdown
// document in document order.
func CodeBlocks(content string) []CodeBlock {
	source := []byte(content)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var blocks []CodeBlock
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			blocks = append(blocks, CodeBlock{
				Language: string(node.Language(source)),
				Code:     linesOf(node, source),
			})
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			blocks = append(blocks, CodeBlock{Code: linesOf(node, source)})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

func linesOf(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// Highlight colors code for a 256-color terminal. Unknown languages are
// guessed from the content; any failure returns the code unchanged.
func Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// =============================================================================
// CLIPBOARD
// =============================================================================

// CopyToClipboard places text on the system clipboard.
func CopyToClipboard(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	return clipboard.WriteAll(text)
}
