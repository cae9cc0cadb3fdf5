// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// nameWords is how many words of a message feed the derived name.
	nameWords = 7

	derivedNamePrefix = "Conversation: "
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is one chat thread with its own message history.
type Conversation struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Messages  []*Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`

	// placeholder is true while Name is still the generated default.
	placeholder bool
}

// DefaultName is the placeholder name of the ordinal-th conversation (1-based).
func DefaultName(ordinal int) string {
	return "Conversation " + strconv.Itoa(ordinal)
}

// NewConversation creates an empty conversation with a placeholder name.
func NewConversation(ordinal int) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:          uuid.NewString(),
		Name:        DefaultName(ordinal),
		Messages:    make([]*Message, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
		placeholder: true,
	}
}

// IsDefaultName reports whether the name is still the placeholder.
func (c *Conversation) IsDefaultName() bool {
	return c.placeholder
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends msg. While the placeholder name is in place, the
// first message with usable content names the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()

	if c.placeholder {
		if name, ok := DeriveName(msg.Content); ok {
			c.Name = name
			c.placeholder = false
		}
	}
}

// Rename sets a user-chosen name. Blank names are ignored.
func (c *Conversation) Rename(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	c.Name = name
	c.placeholder = false
	c.UpdatedAt = time.Now()
	return true
}

// HasImage reports whether any message carries an image.
func (c *Conversation) HasImage() bool {
	for _, msg := range c.Messages {
		if msg.HasImage() {
			return true
		}
	}
	return false
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastAssistantMessage returns the most recent assistant message.
func (c *Conversation) LastAssistantMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i]
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clone returns a deep copy that shares nothing with c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}

// =============================================================================
// NAMING
// =============================================================================

// DeriveName builds a conversation name from the first words of content.
// It returns false when content has no words.
func DeriveName(content string) (string, bool) {
	words := strings.Fields(content)
	if len(words) == 0 {
		return "", false
	}
	if len(words) > nameWords {
		words = words[:nameWords]
	}
	return derivedNamePrefix + strings.Join(words, " ") + "...", true
}
