// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/app"
	"github.com/jeranaias/lmchat/internal/attach"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case EventMsg:
		return m.handleEvent(msg.Event)

	case renderTickMsg:
		m.tickPending = false
		m.refresh()
		return m, nil

	case connectDoneMsg:
		m.refresh()
		return m, nil

	case sendDoneMsg:
		return m.handleSendDone(msg)

	case statusMsg:
		if msg.err != nil {
			m.setNotice("Error: "+msg.err.Error(), true)
		} else {
			m.setNotice(msg.text, false)
		}
		return m, nil

	case ConfigReloadedMsg:
		if msg.Err != nil {
			log.Printf("CONFIG_RELOAD_FAILED | error=%v", msg.Err)
			m.setNotice("Error: configuration not reloaded: "+msg.Err.Error(), true)
			return m, nil
		}
		m.applyConfig(msg.Config)
		m.setNotice("Configuration reloaded.", false)
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.theme.SetSize(m.width, m.height)
	m.layout()
	m.refresh()
	m.viewport.GotoBottom()
	return m, nil
}

// Rows taken by everything except the transcript.
const (
	headerHeight = 1
	statusHeight = 1
	inputHeight  = 3
	helpHeight   = 1
)

// layout sizes the viewport, the input and the renderer to the window.
func (m *Model) layout() {
	if !m.ready {
		return
	}

	reserved := headerHeight + statusHeight + inputHeight + helpHeight
	if m.help.ShowAll {
		reserved += m.fullHelpRows() - 1
	}
	vpHeight := m.height - reserved
	if vpHeight < 1 {
		vpHeight = 1
	}

	vpWidth := m.width - m.sidebarWidth()
	if vpWidth < 10 {
		vpWidth = 10
	}

	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight

	inputWidth := m.width - 4 - len(m.input.Prompt)
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth
	m.help.Width = m.width

	// Without word wrap replies keep the renderer's default width.
	if wrap := vpWidth - 2; m.cfg.UI.WordWrap && wrap != m.renderer.Width() {
		m.renderer.SetWidth(wrap)
		m.clearCache()
	}
}

func (m Model) fullHelpRows() int {
	rows := 0
	for _, col := range m.keys.FullHelp() {
		if len(col) > rows {
			rows = len(col)
		}
	}
	return rows
}

// sidebarWidth is the width the sidebar takes, border included. Narrow
// windows hide it.
func (m Model) sidebarWidth() int {
	if !m.showSidebar || m.width < 60 {
		return 0
	}
	w := m.cfg.UI.SidebarWidth
	if w <= 0 {
		return 0
	}
	if w > m.width/2 {
		w = m.width / 2
	}
	return w + 1
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.ToggleSidebar):
		m.showSidebar = !m.showSidebar
		m.layout()
		m.clearCache()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		return m.handleCancel()
	}

	if m.mode == modeAttach {
		return m.handleAttachKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.NewChat):
		m.ctrl.NewConversation()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.DeleteChat):
		if err := m.ctrl.DeleteConversation(m.state.ActiveID); err != nil {
			m.setNotice(errorNotice(err), true)
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PrevChat):
		m.switchConversation(-1)
		return m, nil

	case key.Matches(msg, m.keys.NextChat):
		m.switchConversation(1)
		return m, nil

	case key.Matches(msg, m.keys.CopyReply):
		return m, m.copyReplyCmd()
	}

	// Everything below edits or submits the input line.
	if m.busy() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.AttachImage):
		m.draft = m.input.Value()
		m.input.Reset()
		m.mode = modeAttach
		m.updateInput()
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleCancel leaves attach mode or stops the reply in flight.
func (m Model) handleCancel() (tea.Model, tea.Cmd) {
	if m.mode == modeAttach {
		m.leaveAttachMode()
		return m, nil
	}
	if m.cancel.cancel() {
		log.Printf("REPLY_CANCEL | conversation=%s", m.state.PendingConvID)
	}
	return m, nil
}

func (m Model) handleAttachKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Send) {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	path := strings.TrimSpace(m.input.Value())
	if path == "" {
		m.leaveAttachMode()
		return m, nil
	}
	img, err := m.ctrl.AttachImage(path)
	if err != nil {
		m.setNotice(errorNotice(err), true)
		return m, nil
	}
	m.setNotice("Image attached: "+attach.Label(img), false)
	m.leaveAttachMode()
	m.refresh()
	return m, nil
}

func (m *Model) leaveAttachMode() {
	m.mode = modeChat
	m.input.SetValue(m.draft)
	m.input.CursorEnd()
	m.draft = ""
	m.updateInput()
	m.layout()
}

// submit runs a slash command or sends the input as a message.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}
	if text == "" && m.state.PendingImage == nil {
		return m, nil
	}

	ctx, cancel := m.replyContext()
	m.cancel.set(cancel)
	m.input.Reset()
	m.sending = true
	m.sentAt = time.Now()
	m.notice = ""
	m.updateInput()
	return m, tea.Batch(m.sendCmd(ctx, cancel, text), m.spinner.Tick)
}

func (m Model) handleSendDone(msg sendDoneMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	m.cancel.cancel()
	if msg.err != nil {
		// Failures during streaming already produced a notice.
		switch {
		case errors.Is(msg.err, app.ErrNotConnected),
			errors.Is(msg.err, app.ErrEmptyMessage),
			errors.Is(msg.err, app.ErrBusy):
			m.setNotice(errorNotice(msg.err), true)
		}
	}
	m.refresh()
	return m, nil
}

// switchConversation moves the selection by delta, clamped to the list.
func (m *Model) switchConversation(delta int) {
	convs := m.state.Conversations
	if len(convs) == 0 {
		return
	}
	idx := 0
	for i, c := range convs {
		if c.ID == m.state.ActiveID {
			idx = i
			break
		}
	}
	idx += delta
	if idx < 0 || idx >= len(convs) {
		return
	}
	m.ctrl.SelectConversation(convs[idx].ID)
	m.refresh()
	m.viewport.GotoBottom()
}

// copyReplyCmd copies the last reply of the active conversation.
func (m Model) copyReplyCmd() tea.Cmd {
	conv := m.state.Active()
	if conv == nil {
		return nil
	}
	last := conv.LastAssistantMessage()
	if last == nil {
		return func() tea.Msg { return statusMsg{text: "No reply to copy."} }
	}
	copyFn := m.copy
	content := last.Content
	return func() tea.Msg {
		if err := copyFn(content); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Reply copied to clipboard."}
	}
}

// =============================================================================
// CONTROLLER EVENTS
// =============================================================================

func (m Model) handleEvent(e app.Event) (tea.Model, tea.Cmd) {
	switch e := e.(type) {
	case app.DeltaEvent:
		if m.limiter.Allow() {
			m.refresh()
			return m, nil
		}
		if m.tickPending {
			return m, nil
		}
		m.tickPending = true
		return m, tea.Tick(m.renderDelay(), func(time.Time) tea.Msg { return renderTickMsg{} })

	case app.NoticeEvent:
		m.setNotice(e.Text, e.Level == app.NoticeError)
		m.refresh()
		return m, nil

	case app.ErrorEvent:
		log.Printf("UI_ERROR_EVENT | error=%v", e.Err)
		return m, nil

	case app.CompletedEvent:
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case app.MessageAddedEvent:
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	}

	m.refresh()
	return m, nil
}

// renderDelay is one frame at the limiter's rate.
func (m Model) renderDelay() time.Duration {
	limit := float64(m.limiter.Limit())
	if limit <= 0 {
		return time.Second / defaultMaxFPS
	}
	return time.Duration(float64(time.Second) / limit)
}

// errorNotice formats err for the status line.
func errorNotice(err error) string {
	return "Error: " + err.Error()
}
