// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for the lmchat CLI.
//
// Command: chat
// Short:   Chat with the server from the shell
//
// Examples:
//
//	lmchat chat
//	lmchat chat --url http://gpu-box:1234 --model llava-v1.5-7b
//
// Interactive Commands (during chat):
//
//	/new                Start a new conversation
//	/list               List conversations
//	/switch N           Make conversation N active
//	/delete [N]         Delete conversation N (default: active)
//	/rename NAME        Rename the active conversation
//	/model [ID]         Show or switch the model
//	/models             List the server's models
//	/image PATH         Attach an image to the next message
//	/clear-image        Drop the attached image
//	/copy [N]           Copy the last reply, or its N-th code block
//	/export [FORMAT]    Write the conversation to md, json or yaml
//	/connect [URL]      Connect, or reconnect to another server
//	/disconnect         Drop the connection
//	/help, /quit
//	Ctrl+C              Cancel the reply being streamed
//	Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/lmchat/internal/app"
	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/export"
	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/render"
	"github.com/jeranaias/lmchat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlashCommand)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// completeSlashCommand completes command names after a leading slash.
func completeSlashCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c.name, line) {
			out = append(out, c.name)
		}
	}
	return out
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession is one interactive chat. It prints controller events as
// they arrive, so a streamed reply appears delta by delta.
type ChatSession struct {
	Controller *app.Controller
	Config     *config.Config

	out    io.Writer
	errOut io.Writer

	// ExportDir receives /export files.
	ExportDir string

	// Copy places text on the clipboard.
	Copy func(string) error

	mu        sync.Mutex
	cancel    context.CancelFunc
	streaming bool
}

// NewChatSession creates a session printing to out and errOut.
func NewChatSession(cfg *config.Config, out, errOut io.Writer) *ChatSession {
	s := &ChatSession{
		Config:    cfg,
		out:       out,
		errOut:    errOut,
		ExportDir: ".",
		Copy:      render.CopyToClipboard,
	}
	s.Controller = NewController(cfg, s.observe)
	return s
}

// observe prints controller events.
func (s *ChatSession) observe(e app.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := e.(type) {
	case app.DeltaEvent:
		if !s.streaming {
			fmt.Fprintf(s.out, "\n%s\n", AssistantStyle.Render(model.RoleAssistant.DisplayName()))
			s.streaming = true
		}
		fmt.Fprint(s.out, ev.Delta)

	case app.CompletedEvent:
		if s.streaming {
			fmt.Fprintln(s.out)
		}
		s.streaming = false
		if ev.Message.Metric != nil {
			fmt.Fprintln(s.out, DimStyle.Render(ev.Message.Metric.Format()))
		}
		fmt.Fprintln(s.out)

	case app.NoticeEvent:
		if s.streaming {
			fmt.Fprintln(s.out)
			s.streaming = false
		}
		if ev.Level == app.NoticeError {
			fmt.Fprintln(s.errOut, ErrorStyle.Render(ev.Text))
		} else {
			fmt.Fprintln(s.out, DimStyle.Render(ev.Text))
		}
	}
}

// setCancel records the cancel func of the reply in flight.
func (s *ChatSession) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// CancelReply cancels the reply being streamed. It reports whether there was one.
func (s *ChatSession) CancelReply() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChatCommand runs the interactive chat loop.
func HandleChatCommand(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	closeLog, err := SetupLogging(cfg, args)
	if err != nil {
		return err
	}
	defer closeLog()

	session := NewChatSession(cfg, os.Stdout, os.Stderr)
	printWelcome(session)

	// A failed connect leaves the session usable; /connect retries.
	_ = session.Controller.Connect(context.Background(), cfg.Server.URL)
	fmt.Println()

	input := NewChatCLI()
	defer input.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if session.CancelReply() {
				fmt.Fprintln(os.Stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		line, err := input.ReadInput(PromptStyle.Render("lmchat> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin.
			fmt.Println()
			return nil
		}

		quit, err := session.HandleLine(context.Background(), line)
		if err != nil {
			DisplayError(os.Stderr, err)
		}
		if quit {
			return nil
		}
	}
}

// HandleLine processes one line of input. It reports whether the user
// asked to quit.
func (s *ChatSession) HandleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.handleSlashCommand(ctx, line)
	}
	if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
		return true, nil
	}
	return false, s.send(ctx, line)
}

// send streams a reply. Stream failures are reported through notices,
// so only errors raised before the request started are returned.
func (s *ChatSession) send(parent context.Context, text string) error {
	ctx, cancel := replyContext(parent, s.Config)
	s.setCancel(cancel)
	defer s.CancelReply()

	_, err := s.Controller.Send(ctx, text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrNotConnected):
		return fmt.Errorf("%w (use /connect)", err)
	case errors.Is(err, app.ErrEmptyMessage), errors.Is(err, app.ErrBusy):
		return err
	default:
		return nil
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

type slashCommand struct {
	name string
	args string
	desc string
}

var slashCommands = []slashCommand{
	{"/new", "", "Start a new conversation"},
	{"/list", "", "List conversations"},
	{"/switch", "N", "Make conversation N active"},
	{"/delete", "[N]", "Delete conversation N (default: active)"},
	{"/rename", "NAME", "Rename the active conversation"},
	{"/model", "[ID]", "Show or switch the model"},
	{"/models", "", "List the server's models"},
	{"/image", "PATH", "Attach an image to the next message"},
	{"/clear-image", "", "Drop the attached image"},
	{"/copy", "[N]", "Copy the last reply, or its N-th code block"},
	{"/export", "[md|json|yaml]", "Write the conversation to a file"},
	{"/connect", "[URL]", "Connect to the server"},
	{"/disconnect", "", "Drop the connection"},
	{"/help", "", "Show this help"},
	{"/quit", "", "Exit chat"},
}

// handleSlashCommand runs one command. It reports whether to quit.
func (s *ChatSession) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	command, rest, _ := strings.Cut(line, " ")
	command = strings.ToLower(command)
	rest = strings.TrimSpace(rest)

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()

	case "/quit", "/q", "/exit":
		return true, nil

	case "/new", "/n":
		conv := s.Controller.NewConversation()
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("[OK]"), conv.Name)

	case "/list", "/ls":
		s.printConversations()

	case "/switch", "/sw":
		id, err := s.conversationArg(rest, false)
		if err != nil {
			return false, err
		}
		s.Controller.SelectConversation(id)
		s.printActive()

	case "/delete", "/del":
		id, err := s.conversationArg(rest, true)
		if err != nil {
			return false, err
		}
		if err := s.Controller.DeleteConversation(id); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%s Conversation deleted\n", SuccessStyle.Render("[OK]"))
		s.printActive()

	case "/rename":
		if rest == "" {
			return false, ErrMissingArgument("name", "/rename Trip planning")
		}
		active := s.Controller.ActiveConversation()
		if active == nil {
			return false, ErrNotFound("conversation", "active")
		}
		if err := s.Controller.RenameConversation(active.ID, rest); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%s Renamed to %s\n", SuccessStyle.Render("[OK]"), rest)

	case "/model", "/m":
		if rest == "" {
			s.printModels()
			return false, nil
		}
		return false, s.Controller.SelectModel(ctx, rest)

	case "/models":
		if _, err := s.Controller.RefreshModels(ctx); err != nil {
			return false, err
		}
		s.printModels()

	case "/image", "/img":
		if rest == "" {
			return false, ErrMissingArgument("path", "/image ~/Pictures/cat.png")
		}
		_, err := s.Controller.AttachImage(rest)
		return false, err

	case "/clear-image":
		if s.Controller.ClearImage() {
			fmt.Fprintf(s.out, "%s Image removed\n", SuccessStyle.Render("[OK]"))
		} else {
			fmt.Fprintln(s.out, DimStyle.Render("No image attached"))
		}

	case "/copy", "/cp":
		return false, s.copyReply(rest)

	case "/export":
		return false, s.exportConversation(rest)

	case "/connect":
		url := rest
		if url == "" {
			url = s.Controller.Snapshot().BaseURL
		}
		// The controller reports the outcome as a notice.
		if err := s.Controller.Connect(ctx, url); errors.Is(err, app.ErrInvalidURL) {
			return false, nil
		}

	case "/disconnect":
		if !s.Controller.Connected() {
			fmt.Fprintln(s.out, DimStyle.Render("Not connected"))
		}
		s.Controller.Disconnect()

	default:
		if hint := SuggestSlashCommand(command); hint != "" {
			return false, fmt.Errorf("unknown command: %s (did you mean %s?)", command, hint)
		}
		return false, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return false, nil
}

// conversationArg resolves a 1-based index. An empty argument means the
// active conversation when allowActive is set.
func (s *ChatSession) conversationArg(arg string, allowActive bool) (string, error) {
	if arg == "" && allowActive {
		if active := s.Controller.ActiveConversation(); active != nil {
			return active.ID, nil
		}
		return "", ErrNotFound("conversation", "active")
	}
	n, err := ParseIndex(arg, "conversation number")
	if err != nil {
		return "", err
	}
	id, ok := s.Controller.ConversationAt(n)
	if !ok {
		return "", ErrNotFound("conversation", arg)
	}
	return id, nil
}

// copyReply copies the last reply of the active conversation, or one of
// its code blocks.
func (s *ChatSession) copyReply(arg string) error {
	conv := s.Controller.ActiveConversation()
	var reply *model.Message
	if conv != nil {
		reply = conv.LastAssistantMessage()
	}
	if reply == nil {
		return ErrNotFound("reply", "last")
	}

	text := reply.Content
	what := "reply"
	if arg != "" {
		n, err := ParseIndex(arg, "code block")
		if err != nil {
			return err
		}
		blocks := render.CodeBlocks(reply.Content)
		if n > len(blocks) {
			return ErrNotFound("code block", arg)
		}
		block := blocks[n-1]
		text = block.Code
		what = fmt.Sprintf("code block %d", n)
		if ColorsEnabled() {
			fmt.Fprintln(s.out, render.Highlight(block.Code, block.Language))
		} else {
			fmt.Fprintln(s.out, block.Code)
		}
	}

	if err := s.Copy(text); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s Copied %s (%d characters)\n", SuccessStyle.Render("[OK]"), what, util.RuneLen(text))
	return nil
}

// exportConversation writes the active conversation to ExportDir.
func (s *ChatSession) exportConversation(format string) error {
	conv := s.Controller.ActiveConversation()
	if conv == nil {
		return ErrNotFound("conversation", "active")
	}
	opts := export.DefaultOptions()
	opts.OutputDir = s.ExportDir

	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return NewValidationError("format", format, "use md, json or yaml")
	}
	path, err := export.ExportToFile(conv, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(s *ChatSession) {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, TitleStyle.Render("lmchat interactive chat"))
	fmt.Fprintln(s.out, RenderSeparator(30))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Server:"), ValueStyle.Render(s.Config.Server.URL))
	if s.Config.Chat.Model != "" {
		fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Preferred model:"), ValueStyle.Render(s.Config.Chat.Model))
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
}

// printHelp prints available commands.
func (s *ChatSession) printHelp() {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(s.out, RenderSeparator(20))
	for _, c := range slashCommands {
		usage := c.name
		if c.args != "" {
			usage += " " + c.args
		}
		fmt.Fprintf(s.out, "  %s  %s\n", HighlightStyle.Render(util.PadRight(usage, 24)), DimStyle.Render(c.desc))
	}
	fmt.Fprintln(s.out)
}

// printConversations lists conversations with the active one marked.
func (s *ChatSession) printConversations() {
	st := s.Controller.Snapshot()
	if len(st.Conversations) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("No conversations yet"))
		return
	}
	width := GetTerminalWidth() - 16
	for i, conv := range st.Conversations {
		name := util.TruncateWidth(conv.Name, width)
		count := DimStyle.Render(fmt.Sprintf("(%d)", conv.MessageCount()))
		if conv.ID == st.ActiveID {
			fmt.Fprintf(s.out, "* %2d  %s %s\n", i+1, HighlightStyle.Render(name), count)
		} else {
			fmt.Fprintf(s.out, "  %2d  %s %s\n", i+1, name, count)
		}
	}
}

// printActive shows the active conversation's name.
func (s *ChatSession) printActive() {
	if conv := s.Controller.ActiveConversation(); conv != nil {
		fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Active conversation:"), HighlightStyle.Render(conv.Name))
	}
}

// printModels lists the server's models with the current one marked.
func (s *ChatSession) printModels() {
	st := s.Controller.Snapshot()
	if !st.Connected {
		fmt.Fprintln(s.out, DimStyle.Render("Not connected"))
		return
	}
	for _, id := range st.Models {
		if id == st.Model {
			fmt.Fprintf(s.out, "* %s\n", HighlightStyle.Render(id))
		} else {
			fmt.Fprintf(s.out, "  %s\n", id)
		}
	}
}
