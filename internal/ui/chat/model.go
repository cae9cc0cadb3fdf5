// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/jeranaias/lmchat/internal/app"
	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/render"
	"github.com/jeranaias/lmchat/internal/ui/styles"
)

// =============================================================================
// INPUT MODE
// =============================================================================

// inputMode selects what the input line is collecting.
type inputMode int

const (
	modeChat inputMode = iota
	modeAttach
)

const (
	chatPrompt        = "> "
	attachPrompt      = "img> "
	chatPlaceholder   = "Type a message or /help"
	attachPlaceholder = "Path to an image (enter attaches, esc cancels)"
	busyPlaceholder   = "Waiting for the reply (esc stops it)"
	connectTimeout    = 30 * time.Second
	defaultMaxFPS     = 30
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configure the chat screen.
type Options struct {
	Controller *app.Controller
	Config     *config.Config

	// Copy writes text to the clipboard. Defaults to render.CopyToClipboard.
	Copy func(string) error

	// SettingsFor converts a reloaded config into request settings.
	SettingsFor func(*config.Config) app.Settings

	// ExportDir receives /export files. Defaults to the working directory.
	ExportDir string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen. All state it shows is
// read from the controller's snapshot; the model itself only holds view
// state.
type Model struct {
	ctrl        *app.Controller
	cfg         *config.Config
	settingsFor func(*config.Config) app.Settings
	copy        func(string) error
	exportDir   string

	theme    *styles.Theme
	renderer *render.Renderer
	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// limiter throttles re-rendering of a streaming reply.
	limiter     *rate.Limiter
	tickPending bool

	state       app.State
	mode        inputMode
	draft       string
	showSidebar bool
	sending     bool
	sentAt      time.Time
	notice      string
	noticeError bool

	width  int
	height int
	ready  bool

	cancel *cancelManager

	// rendered caches markdown output by message ID. Finalized messages
	// never change, so entries stay valid until the width or theme does.
	rendered map[string]string
}

// New creates the chat screen for opts.Controller.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	copyFn := opts.Copy
	if copyFn == nil {
		copyFn = render.CopyToClipboard
	}
	exportDir := opts.ExportDir
	if exportDir == "" {
		exportDir = "."
	}

	theme := styles.NewTheme(cfg.UI.Theme)

	input := textinput.New()
	input.Prompt = chatPrompt
	input.Placeholder = chatPlaceholder
	input.PromptStyle = theme.InputPrompt
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = styles.ThinkingSpinner
	sp.Style = theme.Spinner

	h := help.New()
	h.Styles.ShortKey = theme.ShortcutKey
	h.Styles.ShortDesc = theme.ShortcutDesc
	h.Styles.FullKey = theme.ShortcutKey
	h.Styles.FullDesc = theme.ShortcutDesc

	m := Model{
		ctrl:        opts.Controller,
		cfg:         cfg,
		settingsFor: opts.SettingsFor,
		copy:        copyFn,
		exportDir:   exportDir,
		theme:       theme,
		renderer:    render.NewRenderer(cfg.UI.Theme, 0),
		keys:        DefaultKeyMap(),
		help:        h,
		viewport:    viewport.New(0, 0),
		input:       input,
		spinner:     sp,
		limiter:     newLimiter(cfg.UI.MaxFPS),
		showSidebar: true,
		cancel:      newCancelManager(),
		rendered:    make(map[string]string),
	}
	m.state = m.ctrl.Snapshot()
	return m
}

func newLimiter(fps int) *rate.Limiter {
	if fps <= 0 {
		fps = defaultMaxFPS
	}
	return rate.NewLimiter(rate.Limit(fps), 1)
}

// Init starts the cursor blink and the first connection attempt.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.connectCmd(m.state.BaseURL))
}

// =============================================================================
// COMMANDS
// =============================================================================

// connectCmd connects in the background. The outcome arrives as events.
func (m Model) connectCmd(url string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return connectDoneMsg{err: ctrl.Connect(ctx, url)}
	}
}

// sendCmd streams one reply. It owns ctx and releases it when Send returns.
func (m Model) sendCmd(ctx context.Context, cancel context.CancelFunc, text string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		defer cancel()
		_, err := ctrl.Send(ctx, text)
		return sendDoneMsg{err: err}
	}
}

// replyContext bounds one reply by the configured timeout.
func (m Model) replyContext() (context.Context, context.CancelFunc) {
	if d := m.cfg.ReplyTimeout(); d > 0 {
		return context.WithTimeout(context.Background(), d)
	}
	return context.WithCancel(context.Background())
}

// =============================================================================
// STATE
// =============================================================================

// busy reports whether a reply is being produced.
func (m Model) busy() bool {
	return m.sending || m.state.InFlight
}

// refresh reloads the snapshot and the transcript.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.state = m.ctrl.Snapshot()
	m.updateInput()
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if atBottom || m.state.InFlight {
		m.viewport.GotoBottom()
	}
}

// updateInput reflects the busy state and the mode in the input line.
func (m *Model) updateInput() {
	switch {
	case m.mode == modeAttach:
		m.input.Prompt = attachPrompt
		m.input.Placeholder = attachPlaceholder
		m.input.Focus()
	case m.busy():
		m.input.Prompt = chatPrompt
		m.input.Placeholder = busyPlaceholder
		m.input.Blur()
	default:
		m.input.Prompt = chatPrompt
		m.input.Placeholder = chatPlaceholder
		m.input.Focus()
	}
}

func (m *Model) setNotice(text string, isError bool) {
	m.notice = text
	m.noticeError = isError
}

// applyConfig takes over a reloaded configuration.
func (m *Model) applyConfig(cfg *config.Config) {
	old := m.cfg
	m.cfg = cfg
	if m.settingsFor != nil {
		m.ctrl.UpdateSettings(m.settingsFor(cfg))
	}
	if old == nil || old.UI.Theme != cfg.UI.Theme {
		m.theme = styles.NewTheme(cfg.UI.Theme)
		m.theme.SetSize(m.width, m.height)
		m.input.PromptStyle = m.theme.InputPrompt
		m.spinner.Style = m.theme.Spinner
		m.renderer.SetTheme(cfg.UI.Theme)
	}
	m.limiter.SetLimit(rate.Limit(fpsOrDefault(cfg.UI.MaxFPS)))
	m.clearCache()
	m.layout()
	log.Printf("CONFIG_APPLIED | theme=%s sidebar=%d fps=%d", cfg.UI.Theme, cfg.UI.SidebarWidth, cfg.UI.MaxFPS)
}

func fpsOrDefault(fps int) int {
	if fps <= 0 {
		return defaultMaxFPS
	}
	return fps
}

func (m *Model) clearCache() {
	for k := range m.rendered {
		delete(m.rendered, k)
	}
}
