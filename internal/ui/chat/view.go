// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lmchat/internal/attach"
	"github.com/jeranaias/lmchat/internal/ui/styles"
	"github.com/jeranaias/lmchat/internal/util"
)

const brand = "lmchat"

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}

	body := m.viewport.View()
	if sw := m.sidebarWidth(); sw > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderSidebar(sw, m.viewport.Height),
			body,
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatus(),
		m.renderInput(),
		m.help.View(m.keys),
	)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	status := m.theme.Disconnected.Render(styles.StatusIndicators.Error + " disconnected")
	if m.state.Connected {
		status = m.theme.Connected.Render(styles.StatusIndicators.Success + " connected")
	}

	info := m.state.BaseURL
	if m.state.Model != "" {
		info += "  " + m.state.Model
	}

	left := m.theme.HeaderBrand.Render(brand)
	room := m.width - lipgloss.Width(left) - lipgloss.Width(status) - 6
	if room > 0 {
		left += "  " + m.theme.HeaderInfo.Render(util.TruncateWidth(info, room))
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(status) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + status)
}

// =============================================================================
// STATUS LINE
// =============================================================================

// renderStatus shows the reply progress or the latest notice, and the
// attached image.
func (m Model) renderStatus() string {
	var parts []string

	switch {
	case m.busy():
		elapsed := time.Duration(0)
		if !m.sentAt.IsZero() {
			elapsed = time.Since(m.sentAt)
		}
		parts = append(parts, m.spinner.View()+" "+
			m.theme.ThinkingTime.Render("Thinking "+styles.FormatElapsed(elapsed)))
	case m.notice != "":
		if m.noticeError {
			parts = append(parts, m.theme.NoticeError.Render(m.notice))
		} else {
			parts = append(parts, m.theme.NoticeInfo.Render(m.notice))
		}
	}

	if img := m.state.PendingImage; img != nil {
		parts = append(parts, m.theme.ImageBadge.Render("[image] "+attach.Label(img)))
	}

	line := strings.Join(parts, "  ")
	return m.theme.StatusBar.Width(m.width).MaxHeight(statusHeight).
		Render(util.TruncateWidth(line, m.width-2))
}

// =============================================================================
// INPUT
// =============================================================================

func (m Model) renderInput() string {
	view := m.input.View()
	if m.busy() && m.mode == modeChat {
		view = m.theme.InputDisabled.Render(view)
	}
	return m.theme.InputContainer.Width(m.width).Render(view)
}
