// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat screen.
type KeyMap struct {
	Send          key.Binding
	NewChat       key.Binding
	DeleteChat    key.Binding
	PrevChat      key.Binding
	NextChat      key.Binding
	AttachImage   key.Binding
	CopyReply     key.Binding
	ToggleSidebar key.Binding
	PageUp        key.Binding
	PageDown      key.Binding
	Cancel        key.Binding
	Help          key.Binding
	Quit          key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		DeleteChat: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "delete chat"),
		),
		PrevChat: key.NewBinding(
			key.WithKeys("ctrl+up"),
			key.WithHelp("C-up", "previous chat"),
		),
		NextChat: key.NewBinding(
			key.WithKeys("ctrl+down"),
			key.WithHelp("C-down", "next chat"),
		),
		AttachImage: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "attach image"),
		),
		CopyReply: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("C-y", "copy reply"),
		),
		ToggleSidebar: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("C-b", "sidebar"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop reply"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.NewChat, k.AttachImage, k.CopyReply, k.Help, k.Quit}
}

// FullHelp returns the bindings grouped for the help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		// Conversations
		{k.NewChat, k.DeleteChat, k.PrevChat, k.NextChat},
		// Messages
		{k.Send, k.Cancel, k.AttachImage, k.CopyReply},
		// View
		{k.PageUp, k.PageDown, k.ToggleSidebar, k.Help, k.Quit},
	}
}
