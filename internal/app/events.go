// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import "github.com/jeranaias/lmchat/internal/model"

// Observer receives controller events. It is called from whichever
// goroutine caused the event, including the one streaming a reply, and
// never while the controller holds its lock.
type Observer func(Event)

// Event is implemented by every value passed to an Observer.
type Event interface {
	event()
}

// NoticeLevel grades a user-facing notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// ConnectedEvent reports a successful connection.
type ConnectedEvent struct {
	BaseURL string
	Models  []string
	Model   string
}

// DisconnectedEvent reports that the controller is no longer connected.
type DisconnectedEvent struct {
	Reason string
}

// ModelChangedEvent reports a switch of the current model.
type ModelChangedEvent struct {
	Previous string
	Current  string
}

// MessageAddedEvent reports the user's message entering a conversation.
type MessageAddedEvent struct {
	ConversationID string
	Message        *model.Message
}

// DeltaEvent carries one streamed fragment of the pending reply.
type DeltaEvent struct {
	ConversationID string
	Delta          string
}

// CompletedEvent reports a reply committed to its conversation.
type CompletedEvent struct {
	ConversationID string
	Message        *model.Message
}

// ErrorEvent reports a failed action.
type ErrorEvent struct {
	Err error
}

// NoticeEvent is display-only text; it never enters a transcript.
type NoticeEvent struct {
	Level NoticeLevel
	Text  string
}

// ConversationsChangedEvent reports that the list or the selection changed.
type ConversationsChangedEvent struct {
	ActiveID string
}

// ImageChangedEvent reports a new or cleared pending image.
type ImageChangedEvent struct {
	Image *model.Image
}

func (ConnectedEvent) event()            {}
func (DisconnectedEvent) event()         {}
func (ModelChangedEvent) event()         {}
func (MessageAddedEvent) event()         {}
func (DeltaEvent) event()                {}
func (CompletedEvent) event()            {}
func (ErrorEvent) event()                {}
func (NoticeEvent) event()               {}
func (ConversationsChangedEvent) event() {}
func (ImageChangedEvent) event()         {}

// User-facing notice texts.
const (
	NoticeConnected      = "Connected to LM Studio server. You can start chatting."
	NoticeConnectFailed  = "Error: unable to connect to the server. Check the URL and make sure the server is running."
	NoticeNoModels       = "Error: the server has no models available. Load a model and connect again."
	NoticeResponseFailed = "Error: unable to get a response from the server. Please try again."
	NoticeServerEvent    = "Error: received error event from server"
	NoticeDisconnected   = "Disconnected from LM Studio server."
	NoticeCancelled      = "Request cancelled."
	NoticeReplyDropped   = "Error: the reply could not be saved because its conversation is gone."
)
