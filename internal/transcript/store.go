// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"log"
	"sync"

	"github.com/jeranaias/lmchat/internal/lmstudio"
	"github.com/jeranaias/lmchat/internal/model"
)

// ErrConversationNotFound is returned for ids the store does not hold.
var ErrConversationNotFound = errors.New("conversation not found")

// =============================================================================
// SYSTEM PROMPTS
// =============================================================================

// Prompts are the system instructions placed in front of a request.
type Prompts struct {
	// Text is used when no message in the conversation carries an image.
	Text string

	// Image is used as soon as one message carries an image.
	Image string
}

const (
	DefaultTextPrompt  = "You are an intelligent assistant. You always provide well-reasoned answers that are both correct and helpful."
	DefaultImagePrompt = "You are an AI assistant that analyzes images."
)

// DefaultPrompts returns the built-in system instructions.
func DefaultPrompts() Prompts {
	return Prompts{Text: DefaultTextPrompt, Image: DefaultImagePrompt}
}

// withDefaults fills blank prompts from DefaultPrompts.
func (p Prompts) withDefaults() Prompts {
	if p.Text == "" {
		p.Text = DefaultTextPrompt
	}
	if p.Image == "" {
		p.Image = DefaultImagePrompt
	}
	return p
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the conversations and the active selection.
// Getters return copies, so callers never race with later appends.
// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	conversations []*model.Conversation
	activeID      string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		conversations: make([]*model.Conversation, 0),
	}
}

// CreateConversation appends an empty conversation and makes it active.
func (s *Store) CreateConversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked().Clone()
}

func (s *Store) createLocked() *model.Conversation {
	conv := model.NewConversation(len(s.conversations) + 1)
	s.conversations = append(s.conversations, conv)
	s.activeID = conv.ID
	log.Printf("CONVERSATION_CREATED | id=%s name=%q", conv.ID, conv.Name)
	return conv
}

// SelectConversation makes id active. Unknown ids leave the selection
// untouched and return false.
func (s *Store) SelectConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return false
	}
	s.activeID = id
	return true
}

// DeleteConversation removes id. When the active conversation goes away
// the first remaining one takes over; an emptied store gets a fresh
// conversation so one is always active.
func (s *Store) DeleteConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}

	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	log.Printf("CONVERSATION_DELETED | id=%s remaining=%d", id, len(s.conversations))

	if s.activeID != id {
		return true
	}
	if len(s.conversations) > 0 {
		s.activeID = s.conversations[0].ID
	} else {
		s.createLocked()
	}
	return true
}

// AppendMessage pushes a finalized message onto conversation id. A
// conversation that still has its placeholder name is named after the
// message content.
func (s *Store) AppendMessage(id string, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return ErrConversationNotFound
	}
	conv.AddMessage(msg)
	return nil
}

// RenameConversation gives id an explicit name.
func (s *Store) RenameConversation(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.Rename(name) {
		return errors.New("conversation name cannot be empty")
	}
	return nil
}

// =============================================================================
// REQUEST HISTORY
// =============================================================================

// BuildRequestHistory turns conversation id into request messages. The
// system instruction comes first and depends on whether any message has
// an image; image messages become a text part plus an image part.
func (s *Store) BuildRequestHistory(id string, prompts Prompts) ([]lmstudio.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.findLocked(id)
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	prompts = prompts.withDefaults()
	system := prompts.Text
	if conv.HasImage() {
		system = prompts.Image
	}

	history := make([]lmstudio.ChatMessage, 0, len(conv.Messages)+1)
	history = append(history, lmstudio.NewTextMessage(lmstudio.RoleSystem, system))

	for _, msg := range conv.Messages {
		if msg.HasImage() {
			history = append(history, lmstudio.NewMultipartMessage(msg.Role.String(),
				lmstudio.NewTextPart(imagePrompt(msg)),
				lmstudio.NewImagePart(msg.Image.DataURL),
			))
			continue
		}
		history = append(history, lmstudio.NewTextMessage(msg.Role.String(), msg.Content))
	}

	return history, nil
}

func imagePrompt(msg *model.Message) string {
	if msg.Image.Prompt != "" {
		return msg.Image.Prompt
	}
	if msg.Content != "" {
		return msg.Content
	}
	return model.DefaultImagePrompt
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Active returns a copy of the active conversation, or nil when empty.
func (s *Store) Active() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.activeID).Clone()
}

// ActiveID returns the id of the active conversation, or "" when empty.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Get returns a copy of conversation id.
func (s *Store) Get(id string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv := s.findLocked(id)
	if conv == nil {
		return nil, false
	}
	return conv.Clone(), true
}

// List returns copies of all conversations in creation order.
func (s *Store) List() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*model.Conversation, len(s.conversations))
	for i, conv := range s.conversations {
		list[i] = conv.Clone()
	}
	return list
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// IDAt returns the id of the conversation at the 1-based position n.
func (s *Store) IDAt(n int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 1 || n > len(s.conversations) {
		return "", false
	}
	return s.conversations[n-1].ID, true
}

func (s *Store) indexLocked(id string) int {
	for i, conv := range s.conversations {
		if conv.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) findLocked(id string) *model.Conversation {
	if i := s.indexLocked(id); i >= 0 {
		return s.conversations[i]
	}
	return nil
}
