// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/util"
)

const sidebarTitle = "Conversations"

// renderSidebar draws the conversation list into width x height cells,
// border included.
func (m Model) renderSidebar(width, height int) string {
	inner := width - 2 // border and padding
	if inner < 4 || height < 1 {
		return ""
	}

	lines := []string{m.theme.SidebarTitle.Render(util.TruncateWidth(sidebarTitle, inner))}
	rowsHeight := height - 2 // title and its margin
	if rowsHeight < 1 {
		rowsHeight = 1
	}

	convs := m.state.Conversations
	start, end := visibleRange(len(convs), activeIndex(convs, m.state.ActiveID), rowsHeight)
	for i := start; i < end; i++ {
		conv := convs[i]
		label := util.PadRight(sidebarLabel(conv, m.state.PendingConvID == conv.ID), inner)
		if conv.ID == m.state.ActiveID {
			lines = append(lines, m.theme.SidebarItemActive.Render(label))
		} else {
			lines = append(lines, m.theme.SidebarItem.Render(label))
		}
	}
	if len(convs) > end-start {
		more := fmt.Sprintf("%d of %d", end-start, len(convs))
		lines = append(lines, m.theme.SidebarMeta.Render(util.TruncateWidth(more, inner)))
	}

	return m.theme.Sidebar.
		Width(width - 1).
		Height(height).
		MaxHeight(height).
		Render(strings.Join(lines, "\n"))
}

// sidebarLabel is the row text of conv. A conversation receiving a reply
// is marked.
func sidebarLabel(conv *model.Conversation, streaming bool) string {
	name := conv.Name
	if streaming {
		name = "* " + name
	}
	return name
}

func activeIndex(convs []*model.Conversation, id string) int {
	for i, c := range convs {
		if c.ID == id {
			return i
		}
	}
	return 0
}

// visibleRange returns the half-open window of rows to draw so that the
// active row stays visible when there are more rows than height.
func visibleRange(n, active, height int) (int, int) {
	if height <= 0 || n == 0 {
		return 0, 0
	}
	if n <= height {
		return 0, n
	}
	// Leave a line for the "x of y" marker.
	if height > 1 {
		height--
	}
	start := active - height/2
	if start < 0 {
		start = 0
	}
	if start+height > n {
		start = n - height
	}
	return start, start + height
}
