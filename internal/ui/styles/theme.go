// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme. They match the ui.theme config values.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemePlain = "plain"
)

// Theme holds all the styled components for the chat screen.
type Theme struct {
	// Terminal capabilities
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderInfo  lipgloss.Style

	// ==========================================================================
	// SIDEBAR STYLES
	// ==========================================================================

	Sidebar           lipgloss.Style
	SidebarTitle      lipgloss.Style
	SidebarItem       lipgloss.Style
	SidebarItemActive lipgloss.Style
	SidebarMeta       lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel        lipgloss.Style
	UserMessage      lipgloss.Style
	AssistantLabel   lipgloss.Style
	AssistantMessage lipgloss.Style
	MessageMeta      lipgloss.Style
	ImageBadge       lipgloss.Style
	EmptyTranscript  lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	InputDisabled  lipgloss.Style
	StatusBar      lipgloss.Style
	Connected      lipgloss.Style
	Disconnected   lipgloss.Style
	NoticeInfo     lipgloss.Style
	NoticeError    lipgloss.Style
	Spinner        lipgloss.Style
	ThinkingTime   lipgloss.Style
	ShortcutKey    lipgloss.Style
	ShortcutDesc   lipgloss.Style
}

// NewTheme applies name to the lipgloss renderer and builds the styles.
// "dark" and "light" override background detection, "plain" drops colors
// and anything else detects the terminal background.
func NewTheme(name string) *Theme {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case ThemeDark:
		lipgloss.SetHasDarkBackground(true)
	case ThemeLight:
		lipgloss.SetHasDarkBackground(false)
	case ThemePlain:
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		name = ThemeAuto
	}

	t := &Theme{
		Name:         name,
		IsDark:       lipgloss.HasDarkBackground(),
		ColorProfile: lipgloss.ColorProfile(),
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderInfo = lipgloss.NewStyle().
		Foreground(TextSecondary)

	// Sidebar
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)

	t.SidebarTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		MarginBottom(1)

	t.SidebarItem = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.SidebarItemActive = lipgloss.NewStyle().
		Background(SelectionBg).
		Foreground(Purple).
		Bold(true)

	t.SidebarMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Messages
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(UserLabel)

	t.UserMessage = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBorder).
		PaddingLeft(1)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(AssistantLabel)

	t.AssistantMessage = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBorder)

	t.MessageMeta = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.ImageBadge = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.EmptyTranscript = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Padding(1, 2)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.InputDisabled = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.Connected = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.Disconnected = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.NoticeInfo = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.NoticeError = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.ThinkingTime = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, sidebar hidden
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
