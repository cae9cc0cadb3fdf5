// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/lmchat/internal/attach"
	"github.com/jeranaias/lmchat/internal/lmstudio"
	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/transcript"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrInvalidURL   = errors.New("invalid server URL")
	ErrNotConnected = errors.New("not connected to a server")
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a request is already in progress")
	ErrUnknownModel = errors.New("model is not available on the server")
)

// =============================================================================
// OPTIONS
// =============================================================================

// InferenceClient is the part of the server API the controller uses.
type InferenceClient interface {
	ListModels(ctx context.Context) ([]lmstudio.ModelInfo, error)
	ChatStream(ctx context.Context, request lmstudio.ChatRequest, fn lmstudio.DeltaFunc) (string, error)
	EjectModel(ctx context.Context, model string) error
}

// ClientFactory builds a client for a base URL.
type ClientFactory func(baseURL string) InferenceClient

// Settings are the request parameters that may change at runtime.
type Settings struct {
	Temperature   float64
	MaxTokens     int
	Prompts       transcript.Prompts
	MaxImageBytes int64
}

// DefaultSettings returns the request parameters of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Temperature:   lmstudio.DefaultTemperature,
		MaxTokens:     lmstudio.DefaultMaxTokens,
		Prompts:       transcript.DefaultPrompts(),
		MaxImageBytes: attach.DefaultMaxBytes,
	}
}

// Options configure a Controller.
type Options struct {
	// BaseURL is the server the front ends offer by default.
	BaseURL string

	// PreferredModel is selected on connect when the server offers it.
	PreferredModel string

	// RequestTimeout bounds non-streaming requests.
	RequestTimeout time.Duration

	Settings Settings

	// NewClient overrides how clients are built (tests).
	NewClient ClientFactory

	Observer Observer
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the application state and performs every user action.
// Front ends call its methods and render from Snapshot and events.
type Controller struct {
	mu sync.Mutex

	store     *transcript.Store
	newClient ClientFactory
	observer  Observer
	preferred string

	client       InferenceClient
	baseURL      string
	connected    bool
	models       []string
	currentModel string

	settings     Settings
	pendingImage *model.Image
	pending      *model.PendingMessage
	pendingConv  string
	inFlight     bool
}

// NewController creates a disconnected controller with an empty store.
func NewController(opts Options) *Controller {
	newClient := opts.NewClient
	if newClient == nil {
		timeout := opts.RequestTimeout
		newClient = func(baseURL string) InferenceClient {
			return lmstudio.NewClient(&lmstudio.ClientConfig{BaseURL: baseURL, Timeout: timeout})
		}
	}

	settings := opts.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	if settings.MaxImageBytes <= 0 {
		settings.MaxImageBytes = attach.DefaultMaxBytes
	}

	return &Controller{
		store:     transcript.NewStore(),
		newClient: newClient,
		observer:  opts.Observer,
		preferred: opts.PreferredModel,
		baseURL:   strings.TrimSpace(opts.BaseURL),
		settings:  settings,
	}
}

// SetObserver replaces the event observer.
func (c *Controller) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

func (c *Controller) emit(events ...Event) {
	c.mu.Lock()
	o := c.observer
	c.mu.Unlock()
	if o == nil {
		return
	}
	for _, e := range events {
		o(e)
	}
}

func notice(level NoticeLevel, text string) NoticeEvent {
	return NoticeEvent{Level: level, Text: text}
}

// =============================================================================
// CONNECTION
// =============================================================================

// Connect lists the models at baseURL and selects the preferred or first
// one. On failure the controller is left disconnected.
func (c *Controller) Connect(ctx context.Context, baseURL string) error {
	baseURL = strings.TrimSpace(baseURL)
	if err := validateURL(baseURL); err != nil {
		c.emit(ErrorEvent{Err: err}, notice(NoticeError, "Error: "+err.Error()))
		return err
	}

	client := c.newClient(baseURL)
	models, err := client.ListModels(ctx)
	if err == nil && len(models) == 0 {
		err = lmstudio.ErrNoModels
	}
	if err != nil {
		c.mu.Lock()
		wasConnected := c.connected
		c.resetConnectionLocked()
		c.mu.Unlock()

		log.Printf("CONNECT_FAILED | url=%s error=%v", baseURL, err)
		text := NoticeConnectFailed
		if lmstudio.IsNoModels(err) {
			text = NoticeNoModels
		}
		events := []Event{ErrorEvent{Err: err}, notice(NoticeError, text)}
		if wasConnected {
			events = append(events, DisconnectedEvent{Reason: err.Error()})
		}
		c.emit(events...)
		return err
	}

	ids := lmstudio.ModelIDs(models)
	current := ids[0]
	for _, id := range ids {
		if id == c.preferred {
			current = id
			break
		}
	}

	c.mu.Lock()
	c.client = client
	c.baseURL = baseURL
	c.connected = true
	c.models = ids
	c.currentModel = current
	c.mu.Unlock()

	if c.store.ActiveID() == "" {
		c.store.CreateConversation()
	}

	log.Printf("CONNECT | url=%s models=%d model=%s", baseURL, len(ids), current)
	c.emit(
		ConnectedEvent{BaseURL: baseURL, Models: append([]string(nil), ids...), Model: current},
		ConversationsChangedEvent{ActiveID: c.store.ActiveID()},
		notice(NoticeInfo, NoticeConnected),
	)
	return nil
}

// Disconnect forgets the server connection and the current model.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	wasConnected := c.connected
	c.resetConnectionLocked()
	c.mu.Unlock()

	if wasConnected {
		log.Printf("DISCONNECT | reason=user")
		c.emit(DisconnectedEvent{Reason: "user"}, notice(NoticeInfo, NoticeDisconnected))
	}
}

func (c *Controller) resetConnectionLocked() {
	c.connected = false
	c.currentModel = ""
	c.models = nil
}

// SelectModel switches the current model. The previous model is ejected
// first; an eject failure is logged and does not block the switch.
func (c *Controller) SelectModel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrBusy
	}
	if !contains(c.models, id) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	previous := c.currentModel
	client := c.client
	c.mu.Unlock()

	if previous == id {
		return nil
	}

	if previous != "" {
		if err := client.EjectModel(ctx, previous); err != nil {
			log.Printf("EJECT_FAILED | model=%s error=%v", previous, err)
		} else {
			log.Printf("EJECT | model=%s", previous)
		}
	}

	c.mu.Lock()
	c.currentModel = id
	c.mu.Unlock()

	log.Printf("MODEL_CHANGED | from=%s to=%s", previous, id)
	c.emit(
		ModelChangedEvent{Previous: previous, Current: id},
		notice(NoticeInfo, "Model changed to "+id+"."),
	)
	return nil
}

// RefreshModels lists the server's models again without changing the
// current model unless it disappeared.
func (c *Controller) RefreshModels(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	client := c.client
	c.mu.Unlock()

	models, err := client.ListModels(ctx)
	if err == nil && len(models) == 0 {
		err = lmstudio.ErrNoModels
	}
	if err != nil {
		return nil, err
	}
	ids := lmstudio.ModelIDs(models)

	c.mu.Lock()
	c.models = ids
	if !contains(ids, c.currentModel) {
		c.currentModel = ids[0]
	}
	c.mu.Unlock()
	return append([]string(nil), ids...), nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// NewConversation creates an empty conversation and makes it active.
func (c *Controller) NewConversation() *model.Conversation {
	conv := c.store.CreateConversation()
	c.emit(ConversationsChangedEvent{ActiveID: conv.ID})
	return conv
}

// SelectConversation makes id active. Unknown ids are ignored.
func (c *Controller) SelectConversation(id string) bool {
	if !c.store.SelectConversation(id) {
		return false
	}
	c.emit(ConversationsChangedEvent{ActiveID: id})
	return true
}

// DeleteConversation removes id. The conversation a reply is streaming
// into cannot be deleted until the reply is done.
func (c *Controller) DeleteConversation(id string) error {
	c.mu.Lock()
	if c.inFlight && c.pendingConv == id {
		c.mu.Unlock()
		return ErrBusy
	}
	deleted := c.store.DeleteConversation(id)
	c.mu.Unlock()

	if !deleted {
		return transcript.ErrConversationNotFound
	}
	c.emit(ConversationsChangedEvent{ActiveID: c.store.ActiveID()})
	return nil
}

// RenameConversation gives id an explicit name.
func (c *Controller) RenameConversation(id, name string) error {
	if err := c.store.RenameConversation(id, name); err != nil {
		return err
	}
	c.emit(ConversationsChangedEvent{ActiveID: c.store.ActiveID()})
	return nil
}

// ConversationAt returns the id of the 1-based n-th conversation.
func (c *Controller) ConversationAt(n int) (string, bool) {
	return c.store.IDAt(n)
}

// Conversations returns copies of all conversations in creation order.
func (c *Controller) Conversations() []*model.Conversation {
	return c.store.List()
}

// ActiveConversation returns a copy of the active conversation, or nil.
func (c *Controller) ActiveConversation() *model.Conversation {
	return c.store.Active()
}

// =============================================================================
// IMAGES
// =============================================================================

// AttachImage loads path as the image for the next message, replacing
// any image attached before.
func (c *Controller) AttachImage(path string) (*model.Image, error) {
	c.mu.Lock()
	limit := c.settings.MaxImageBytes
	c.mu.Unlock()

	img, err := attach.LoadImage(path, limit)
	if err != nil {
		return nil, err
	}
	c.SetImage(img)
	return img, nil
}

// SetImage makes img the image for the next message.
func (c *Controller) SetImage(img *model.Image) {
	c.mu.Lock()
	c.pendingImage = img
	c.mu.Unlock()

	log.Printf("IMAGE_ATTACHED | mime=%s size=%d", img.MimeType, img.Size)
	c.emit(ImageChangedEvent{Image: img}, notice(NoticeInfo, "Image attached: "+attach.Label(img)))
}

// ClearImage drops the pending image. It reports whether there was one.
func (c *Controller) ClearImage() bool {
	c.mu.Lock()
	had := c.pendingImage != nil
	c.pendingImage = nil
	c.mu.Unlock()

	if had {
		c.emit(ImageChangedEvent{})
	}
	return had
}

// =============================================================================
// SENDING
// =============================================================================

// Send appends the user's message to the active conversation and streams
// the reply. Deltas reach the Observer as DeltaEvents while the call
// blocks. The reply is committed only when the stream ends cleanly.
func (c *Controller) Send(ctx context.Context, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if text == "" && c.pendingImage == nil {
		c.mu.Unlock()
		return nil, ErrEmptyMessage
	}

	convID := c.store.ActiveID()
	if convID == "" {
		convID = c.store.CreateConversation().ID
	}

	var userMsg *model.Message
	if c.pendingImage != nil {
		userMsg = model.NewImageMessage(text, *c.pendingImage)
		c.pendingImage = nil
	} else {
		userMsg = model.NewUserMessage(text)
	}

	if err := c.store.AppendMessage(convID, userMsg); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	settings := c.settings
	history, err := c.store.BuildRequestHistory(convID, settings.Prompts)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	modelID := c.currentModel
	client := c.client
	pending := model.NewPendingMessage(modelID)
	c.pending = pending
	c.pendingConv = convID
	c.inFlight = true
	hadImage := userMsg.Image != nil
	c.mu.Unlock()

	events := []Event{
		MessageAddedEvent{ConversationID: convID, Message: userMsg.Clone()},
		ConversationsChangedEvent{ActiveID: c.store.ActiveID()},
	}
	if hadImage {
		events = append(events, ImageChangedEvent{})
	}
	c.emit(events...)

	request := lmstudio.ChatRequest{
		Model:       modelID,
		Messages:    history,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}

	_, err = client.ChatStream(ctx, request, func(delta string) {
		pending.Append(delta)
		c.emit(DeltaEvent{ConversationID: convID, Delta: delta})
	})

	if err != nil {
		return nil, c.failSend(convID, err)
	}

	reply := pending.Finalize()

	// The conversation stays protected from DeleteConversation until the
	// reply is stored.
	c.mu.Lock()
	err = c.store.AppendMessage(convID, reply)
	c.inFlight = false
	c.pending = nil
	c.pendingConv = ""
	c.mu.Unlock()

	if err != nil {
		log.Printf("REPLY_DROPPED | conversation=%s error=%v", convID, err)
		c.emit(ErrorEvent{Err: err}, notice(NoticeError, NoticeReplyDropped))
		return reply, err
	}

	log.Printf("REPLY | conversation=%s model=%s deltas=%d elapsed=%s",
		convID, modelID, reply.Metric.Deltas, reply.Metric.Elapsed.Round(time.Millisecond))
	c.emit(CompletedEvent{ConversationID: convID, Message: reply.Clone()})
	return reply, nil
}

// failSend clears the in-flight state after a stream error. Connectivity
// failures also disconnect; a server error event or a cancellation only
// produces a notice.
func (c *Controller) failSend(convID string, err error) error {
	disconnect := !lmstudio.IsServerEvent(err) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)

	c.mu.Lock()
	c.inFlight = false
	c.pending = nil
	c.pendingConv = ""
	if disconnect {
		c.resetConnectionLocked()
	}
	c.mu.Unlock()

	log.Printf("SEND_FAILED | conversation=%s disconnect=%v error=%v", convID, disconnect, err)

	var text string
	switch {
	case lmstudio.IsServerEvent(err):
		text = NoticeServerEvent
	case errors.Is(err, context.Canceled):
		text = NoticeCancelled
	default:
		text = NoticeResponseFailed
	}

	events := []Event{ErrorEvent{Err: err}, notice(NoticeError, text)}
	if disconnect {
		events = append(events, DisconnectedEvent{Reason: err.Error()})
	}
	c.emit(events...)
	return err
}

// Pending returns the text of the reply being streamed, and whether a
// reply is in flight.
func (c *Controller) Pending() (string, bool) {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()
	if p == nil {
		return "", false
	}
	return p.Content(), true
}

// =============================================================================
// SETTINGS AND SNAPSHOT
// =============================================================================

// UpdateSettings replaces the request parameters for later sends.
func (c *Controller) UpdateSettings(s Settings) {
	if s.MaxImageBytes <= 0 {
		s.MaxImageBytes = attach.DefaultMaxBytes
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	log.Printf("SETTINGS_UPDATED | temperature=%.2f max_tokens=%d", s.Temperature, s.MaxTokens)
}

// Settings returns the current request parameters.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// State is a point-in-time copy of the controller state for rendering.
type State struct {
	BaseURL        string
	Connected      bool
	Models         []string
	Model          string
	PendingImage   *model.Image
	InFlight       bool
	PendingContent string
	PendingConvID  string
	PendingElapsed time.Duration
	ActiveID       string
	Conversations  []*model.Conversation
	Settings       Settings
}

// Active returns the active conversation from the snapshot, or nil.
func (s State) Active() *model.Conversation {
	for _, conv := range s.Conversations {
		if conv.ID == s.ActiveID {
			return conv
		}
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	st := State{
		BaseURL:       c.baseURL,
		Connected:     c.connected,
		Models:        append([]string(nil), c.models...),
		Model:         c.currentModel,
		InFlight:      c.inFlight,
		PendingConvID: c.pendingConv,
		Settings:      c.settings,
	}
	if c.pendingImage != nil {
		img := *c.pendingImage
		st.PendingImage = &img
	}
	pending := c.pending
	c.mu.Unlock()

	if pending != nil {
		st.PendingContent = pending.Content()
		st.PendingElapsed = pending.Elapsed()
	}
	st.ActiveID = c.store.ActiveID()
	st.Conversations = c.store.List()
	return st
}

// Connected reports whether a server connection is established.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Model returns the current model id.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentModel
}

// Models returns the model ids offered by the server.
func (c *Controller) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.models...)
}

// =============================================================================
// HELPERS
// =============================================================================

func validateURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
