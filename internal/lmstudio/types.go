// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lmstudio

import (
	"encoding/json"
	"errors"
)

// =============================================================================
// ROLES AND PART TYPES
// =============================================================================

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ImageURL references an image by URL. Local images travel as data URLs.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multi-part message content array.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// NewTextPart creates a text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// NewImagePart creates an image reference content part.
func NewImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// ChatMessage is one entry of the messages array.
// When Parts is non-empty the content is sent as an array, otherwise as Text.
type ChatMessage struct {
	Role  string
	Text  string
	Parts []ContentPart
}

// NewTextMessage creates a message with plain string content.
func NewTextMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Text: text}
}

// NewMultipartMessage creates a message with array content.
func NewMultipartMessage(role string, parts ...ContentPart) ChatMessage {
	return ChatMessage{Role: role, Parts: parts}
}

// IsMultipart reports whether the content is sent as an array.
func (m ChatMessage) IsMultipart() bool {
	return len(m.Parts) > 0
}

type wireTextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wirePartsMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// MarshalJSON encodes the message in the wire shape the server expects.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	if m.IsMultipart() {
		return json.Marshal(wirePartsMessage{Role: m.Role, Content: m.Parts})
	}
	return json.Marshal(wireTextMessage{Role: m.Role, Content: m.Text})
}

// UnmarshalJSON accepts both string and array content.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Text = ""
	m.Parts = nil

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	switch raw.Content[0] {
	case '"':
		return json.Unmarshal(raw.Content, &m.Text)
	case '[':
		return json.Unmarshal(raw.Content, &m.Parts)
	default:
		return errors.New("message content must be a string or an array")
	}
}

// ChatRequest is the request body for /v1/chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"` // -1 leaves the length to the server
	Stream      bool          `json:"stream"`
}

// Defaults for ChatRequest fields.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = -1
)

// EjectRequest is the request body for /v1/model/eject.
type EjectRequest struct {
	Model string `json:"model"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ModelInfo is one entry of the /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ListModelsResponse is the response from /v1/models.
type ListModelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// ModelIDs returns the identifiers of the given models in order.
func ModelIDs(models []ModelInfo) []string {
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	return ids
}
