// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// IMAGE AND METRIC
// =============================================================================

// DefaultImagePrompt is sent alongside an image when the user typed nothing.
const DefaultImagePrompt = "What's in this image?"

// Image is an attachment carried inline as a data URL.
type Image struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	DataURL  string `json:"data_url,omitempty" yaml:"data_url,omitempty"`
	Prompt   string `json:"prompt" yaml:"prompt"`
	MimeType string `json:"mime_type" yaml:"mime_type"`
	Size     int    `json:"size" yaml:"size"`
}

// Metric records how a reply was produced.
type Metric struct {
	Elapsed time.Duration `json:"elapsed_ns" yaml:"elapsed"`
	Deltas  int           `json:"deltas" yaml:"deltas"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
}

// Format renders the elapsed time the way the transcript shows it.
func (m *Metric) Format() string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("Time: %.2fs", m.Elapsed.Seconds())
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one finalized turn. It is never mutated after creation.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Image     *Image    `json:"image,omitempty" yaml:"image,omitempty"`
	Metric    *Metric   `json:"metric,omitempty" yaml:"metric,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewImageMessage creates a user message carrying img. Empty text falls
// back to DefaultImagePrompt, which then becomes both the content and the
// prompt sent with the image.
func NewImageMessage(text string, img Image) *Message {
	if text == "" {
		text = DefaultImagePrompt
	}
	img.Prompt = text
	msg := NewMessage(RoleUser, text)
	msg.Image = &img
	return msg
}

// NewAssistantMessage creates a finalized assistant reply.
func NewAssistantMessage(content string, metric *Metric) *Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Metric = metric
	return msg
}

// HasImage reports whether the message carries an attachment.
func (m *Message) HasImage() bool {
	return m.Image != nil && m.Image.DataURL != ""
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Image != nil {
		img := *m.Image
		c.Image = &img
	}
	if m.Metric != nil {
		metric := *m.Metric
		c.Metric = &metric
	}
	return &c
}
