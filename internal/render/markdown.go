// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"log"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// Theme names accepted in configuration.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemePlain = "plain"
)

const (
	defaultWidth = 80
	minWidth     = 20
)

// StyleFor maps a configured theme to a glamour standard style.
// "auto" asks the terminal for its background color.
func StyleFor(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case ThemeDark:
		return "dark"
	case ThemeLight:
		return "light"
	case ThemePlain:
		return "notty"
	default:
		if !termenv.HasDarkBackground() {
			return "light"
		}
		return "dark"
	}
}

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Renderer formats markdown replies for the terminal. It rebuilds its
// glamour renderer when the width changes. Safe for concurrent use.
type Renderer struct {
	mu    sync.Mutex
	style string
	width int
	tr    *glamour.TermRenderer
}

// NewRenderer creates a renderer for theme at width columns.
func NewRenderer(theme string, width int) *Renderer {
	r := &Renderer{style: StyleFor(theme)}
	r.setWidthLocked(width)
	return r
}

// SetWidth changes the wrap width.
func (r *Renderer) SetWidth(width int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setWidthLocked(width)
}

// SetTheme switches the style.
func (r *Renderer) SetTheme(theme string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	style := StyleFor(theme)
	if style == r.style && r.tr != nil {
		return
	}
	r.style = style
	r.tr = nil
	r.setWidthLocked(r.width)
}

// Width returns the current wrap width.
func (r *Renderer) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width
}

func (r *Renderer) setWidthLocked(width int) {
	if width <= 0 {
		width = defaultWidth
	}
	if width < minWidth {
		width = minWidth
	}
	if width == r.width && r.tr != nil {
		return
	}
	r.width = width

	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Printf("RENDER_INIT_FAILED | style=%s error=%v", r.style, err)
		r.tr = nil
		return
	}
	r.tr = tr
}

// Markdown renders content. On any failure the raw content is returned
// so a reply is never lost to a rendering problem.
func (r *Renderer) Markdown(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tr == nil {
		return content
	}
	out, err := r.tr.Render(content)
	if err != nil {
		log.Printf("RENDER_FAILED | error=%v", err)
		return content
	}
	return strings.Trim(out, "\n")
}
