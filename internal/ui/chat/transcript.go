// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/jeranaias/lmchat/internal/attach"
	"github.com/jeranaias/lmchat/internal/model"
)

const (
	emptyConnected    = "No messages yet. Type below and press enter."
	emptyDisconnected = "Not connected. Use /connect [URL] once LM Studio is running."
)

// renderTranscript draws the active conversation and the pending reply.
func (m *Model) renderTranscript() string {
	conv := m.state.Active()
	width := m.viewport.Width - 1
	if width < 10 {
		width = 10
	}

	pending := m.state.InFlight && conv != nil && m.state.PendingConvID == conv.ID
	if conv == nil || (conv.IsEmpty() && !pending) {
		text := emptyConnected
		if !m.state.Connected {
			text = emptyDisconnected
		}
		return m.theme.EmptyTranscript.Width(width).Render(text)
	}

	var b strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg, width))
	}

	if pending {
		if len(conv.Messages) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderPending())
	}
	return b.String()
}

// renderMessage draws one finalized message. Assistant markdown is cached
// by message ID.
func (m *Model) renderMessage(msg *model.Message, width int) string {
	switch msg.Role {
	case model.RoleAssistant:
		body, ok := m.rendered[msg.ID]
		if !ok {
			body = m.renderer.Markdown(msg.Content)
			m.rendered[msg.ID] = body
		}
		lines := []string{
			m.theme.AssistantLabel.Render(msg.Role.DisplayName()),
			m.theme.AssistantMessage.Render(body),
		}
		if meta := msg.Metric.Format(); meta != "" {
			lines = append(lines, m.theme.MessageMeta.Render(meta))
		}
		return strings.Join(lines, "\n")

	default:
		body := msg.Content
		style := m.theme.UserMessage
		if m.cfg.UI.WordWrap {
			style = style.Width(width - 2)
		}
		lines := []string{m.theme.UserLabel.Render(msg.Role.DisplayName())}
		if msg.Image != nil {
			lines = append(lines, m.theme.ImageBadge.Render("[image] "+attach.Label(msg.Image)))
		}
		lines = append(lines, style.Render(body))
		return strings.Join(lines, "\n")
	}
}

// renderPending draws the reply being streamed. It is rendered as
// markdown on every refresh, which the limiter keeps in bounds.
func (m *Model) renderPending() string {
	label := m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName())
	content := m.state.PendingContent
	if strings.TrimSpace(content) == "" {
		return label + "\n" + m.theme.ThinkingTime.Render("...")
	}
	return label + "\n" + m.theme.AssistantMessage.Render(m.renderer.Markdown(content))
}
