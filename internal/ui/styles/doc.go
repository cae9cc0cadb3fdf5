// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the lmchat terminal UI.

All colors use Lip Gloss AdaptiveColor so one palette serves light and dark
terminals. NewTheme applies the configured ui.theme before the styles are
built:

	auto   detect the terminal background
	dark   force the dark variants
	light  force the light variants
	plain  no colors at all

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(msg.Width, msg.Height)
	if theme.GetLayoutMode() == styles.LayoutNarrow {
		// hide the sidebar
	}
	label := theme.AssistantLabel.Render("Assistant")
*/
package styles
