// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/export"
	"github.com/jeranaias/lmchat/internal/render"
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// commandHandler runs one slash command with its trimmed argument.
type commandHandler func(m Model, arg string) (Model, tea.Cmd)

type command struct {
	usage   string
	handler commandHandler
}

// commands maps each slash command and its aliases to a handler.
var commands map[string]command

func init() {
	commands = map[string]command{
		"/new":         {"/new", cmdNew},
		"/delete":      {"/delete", cmdDelete},
		"/rename":      {"/rename NAME", cmdRename},
		"/model":       {"/model [ID]", cmdModel},
		"/models":      {"/models", cmdModels},
		"/image":       {"/image PATH", cmdImage},
		"/clear-image": {"/clear-image", cmdClearImage},
		"/copy":        {"/copy [N]", cmdCopy},
		"/export":      {"/export [md|json|yaml]", cmdExport},
		"/connect":     {"/connect [URL]", cmdConnect},
		"/disconnect":  {"/disconnect", cmdDisconnect},
		"/help":        {"/help", cmdHelp},
		"/quit":        {"/quit", cmdQuit},
	}
	commands["/h"] = commands["/help"]
	commands["/?"] = commands["/help"]
	commands["/q"] = commands["/quit"]
	commands["/exit"] = commands["/quit"]
}

// runCommand dispatches a line that starts with "/".
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	c, ok := commands[name]
	if !ok {
		m.setNotice(fmt.Sprintf("Error: unknown command %s (try /help)", name), true)
		return m, nil
	}
	m.notice = ""
	m, cmd := c.handler(m, arg)
	return m, cmd
}

// =============================================================================
// HANDLERS
// =============================================================================

func cmdNew(m Model, _ string) (Model, tea.Cmd) {
	m.ctrl.NewConversation()
	m.refresh()
	return m, nil
}

func cmdDelete(m Model, _ string) (Model, tea.Cmd) {
	if err := m.ctrl.DeleteConversation(m.state.ActiveID); err != nil {
		m.setNotice(errorNotice(err), true)
	}
	m.refresh()
	return m, nil
}

func cmdRename(m Model, arg string) (Model, tea.Cmd) {
	if arg == "" {
		m.setNotice("Usage: "+commands["/rename"].usage, true)
		return m, nil
	}
	if err := m.ctrl.RenameConversation(m.state.ActiveID, arg); err != nil {
		m.setNotice(errorNotice(err), true)
	}
	m.refresh()
	return m, nil
}

func cmdModel(m Model, arg string) (Model, tea.Cmd) {
	if arg == "" {
		current := m.state.Model
		if current == "" {
			current = "(none)"
		}
		m.setNotice("Model: "+current, false)
		return m, nil
	}
	ctrl := m.ctrl
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := ctrl.SelectModel(ctx, arg); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Model changed to " + arg + "."}
	}
}

func cmdModels(m Model, _ string) (Model, tea.Cmd) {
	ctrl := m.ctrl
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		ids, err := ctrl.RefreshModels(ctx)
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Models: " + strings.Join(ids, ", ")}
	}
}

func cmdImage(m Model, arg string) (Model, tea.Cmd) {
	if arg == "" {
		m.draft = m.input.Value()
		m.mode = modeAttach
		m.updateInput()
		return m, nil
	}
	if _, err := m.ctrl.AttachImage(arg); err != nil {
		m.setNotice(errorNotice(err), true)
	}
	m.refresh()
	return m, nil
}

func cmdClearImage(m Model, _ string) (Model, tea.Cmd) {
	if m.ctrl.ClearImage() {
		m.setNotice("Image removed.", false)
	} else {
		m.setNotice("No image attached.", false)
	}
	m.refresh()
	return m, nil
}

func cmdCopy(m Model, arg string) (Model, tea.Cmd) {
	if arg == "" {
		return m, m.copyReplyCmd()
	}

	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		m.setNotice("Usage: "+commands["/copy"].usage, true)
		return m, nil
	}
	conv := m.state.Active()
	if conv == nil || conv.LastAssistantMessage() == nil {
		m.setNotice("No reply to copy.", false)
		return m, nil
	}
	blocks := render.CodeBlocks(conv.LastAssistantMessage().Content)
	if n > len(blocks) {
		m.setNotice(fmt.Sprintf("Error: the last reply has %d code block(s)", len(blocks)), true)
		return m, nil
	}

	copyFn := m.copy
	code := blocks[n-1].Code
	return m, func() tea.Msg {
		if err := copyFn(code); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: fmt.Sprintf("Code block %d copied to clipboard.", n)}
	}
}

func cmdExport(m Model, arg string) (Model, tea.Cmd) {
	conv := m.state.Active()
	if conv == nil {
		m.setNotice("No conversation to export.", false)
		return m, nil
	}
	opts := export.DefaultOptions()
	opts.OutputDir = m.exportDir
	exporter, err := export.ForFormat(arg, opts)
	if err != nil {
		m.setNotice(errorNotice(err), true)
		return m, nil
	}
	return m, func() tea.Msg {
		path, err := export.ExportToFile(conv, exporter, opts)
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Exported to " + path}
	}
}

func cmdConnect(m Model, arg string) (Model, tea.Cmd) {
	url := arg
	if url == "" {
		url = m.state.BaseURL
	}
	m.setNotice("Connecting to "+url+"...", false)
	return m, m.connectCmd(url)
}

func cmdDisconnect(m Model, _ string) (Model, tea.Cmd) {
	m.ctrl.Disconnect()
	m.refresh()
	return m, nil
}

func cmdHelp(m Model, _ string) (Model, tea.Cmd) {
	names := make([]string, 0, len(commands))
	for _, c := range orderedCommands() {
		names = append(names, c.usage)
	}
	m.help.ShowAll = true
	m.layout()
	m.setNotice("Commands: "+strings.Join(names, "  "), false)
	return m, nil
}

func cmdQuit(m Model, _ string) (Model, tea.Cmd) {
	m.cancel.cancel()
	return m, tea.Quit
}

// orderedCommands lists each command once in a stable order.
func orderedCommands() []command {
	order := []string{
		"/new", "/delete", "/rename", "/model", "/models", "/image",
		"/clear-image", "/copy", "/export", "/connect", "/disconnect",
		"/help", "/quit",
	}
	out := make([]command, 0, len(order))
	for _, name := range order {
		out = append(out, commands[name])
	}
	return out
}
