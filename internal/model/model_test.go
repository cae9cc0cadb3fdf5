// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"testing"
	"time"
)

// =============================================================================
// NAMING TESTS
// =============================================================================

func TestDeriveName(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"short", "Hello there", "Conversation: Hello there...", true},
		{"exactly seven", "one two three four five six seven", "Conversation: one two three four five six seven...", true},
		{"long", "one two three four five six seven eight nine", "Conversation: one two three four five six seven...", true},
		{"collapses whitespace", "  a\n\tb   c ", "Conversation: a b c...", true},
		{"empty", "", "", false},
		{"blank", "   \n ", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DeriveName(tc.content)
			if ok != tc.ok || got != tc.want {
				t.Errorf("DeriveName(%q) = (%q, %v), want (%q, %v)", tc.content, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestConversation_NamedByFirstMessage(t *testing.T) {
	conv := NewConversation(3)
	if conv.Name != "Conversation 3" || !conv.IsDefaultName() {
		t.Fatalf("new conversation name = %q default=%v", conv.Name, conv.IsDefaultName())
	}

	conv.AddMessage(NewUserMessage(""))
	if !conv.IsDefaultName() {
		t.Error("empty content must keep the placeholder")
	}

	conv.AddMessage(NewUserMessage("What is the capital of France?"))
	if conv.Name != "Conversation: What is the capital of France?..." {
		t.Errorf("Name = %q", conv.Name)
	}

	conv.AddMessage(NewAssistantMessage("Paris is the capital.", nil))
	if conv.Name != "Conversation: What is the capital of France?..." {
		t.Errorf("name must not change once derived, got %q", conv.Name)
	}
}

func TestConversation_Rename(t *testing.T) {
	conv := NewConversation(1)

	if conv.Rename("   ") {
		t.Error("blank rename should be rejected")
	}
	if !conv.Rename(" Trip planning ") {
		t.Fatal("rename failed")
	}
	if conv.Name != "Trip planning" || conv.IsDefaultName() {
		t.Errorf("Name = %q default=%v", conv.Name, conv.IsDefaultName())
	}

	conv.AddMessage(NewUserMessage("hello"))
	if conv.Name != "Trip planning" {
		t.Errorf("explicit name overwritten: %q", conv.Name)
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewImageMessage(t *testing.T) {
	img := Image{DataURL: "data:image/png;base64,AAAA", MimeType: "image/png", Size: 3}

	msg := NewImageMessage("", img)
	if msg.Content != DefaultImagePrompt || msg.Image.Prompt != DefaultImagePrompt {
		t.Errorf("default prompt not applied: content=%q prompt=%q", msg.Content, msg.Image.Prompt)
	}
	if !msg.HasImage() || msg.Role != RoleUser {
		t.Error("expected a user message with an image")
	}

	msg = NewImageMessage("Describe the chart", img)
	if msg.Image.Prompt != "Describe the chart" {
		t.Errorf("Prompt = %q", msg.Image.Prompt)
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("héllo wörld")
	if got := msg.Preview(20); got != "héllo wörld" {
		t.Errorf("Preview(20) = %q", got)
	}
	if got := msg.Preview(8); got != "héllo..." {
		t.Errorf("Preview(8) = %q", got)
	}
}

func TestMetric_Format(t *testing.T) {
	m := &Metric{Elapsed: 1234 * time.Millisecond}
	if got := m.Format(); got != "Time: 1.23s" {
		t.Errorf("Format() = %q", got)
	}
	var nilMetric *Metric
	if got := nilMetric.Format(); got != "" {
		t.Errorf("nil Format() = %q", got)
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" || RoleAssistant.DisplayName() != "Assistant" {
		t.Error("unexpected display names")
	}
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation(1)
	conv.AddMessage(NewImageMessage("look", Image{DataURL: "data:image/png;base64,AA"}))

	clone := conv.Clone()
	clone.Messages[0].Image.Prompt = "changed"
	clone.Messages = append(clone.Messages, NewUserMessage("more"))

	if conv.Messages[0].Image.Prompt != "look" {
		t.Error("clone shares image with original")
	}
	if conv.MessageCount() != 1 {
		t.Error("clone shares message slice with original")
	}
	if clone.IsDefaultName() != conv.IsDefaultName() {
		t.Error("clone lost placeholder state")
	}
}

func TestConversation_HasImage(t *testing.T) {
	conv := NewConversation(1)
	conv.AddMessage(NewUserMessage("text"))
	if conv.HasImage() {
		t.Error("text-only conversation reports an image")
	}
	conv.AddMessage(NewImageMessage("", Image{DataURL: "data:image/jpeg;base64,AA"}))
	if !conv.HasImage() {
		t.Error("image not detected")
	}
}

// =============================================================================
// PENDING MESSAGE TESTS
// =============================================================================

func TestPendingMessage(t *testing.T) {
	p := NewPendingMessage("llama")
	p.Append("Hel")
	p.Append("")
	p.Append("lo")

	if p.Content() != "Hello" || p.Deltas() != 2 {
		t.Fatalf("Content=%q Deltas=%d", p.Content(), p.Deltas())
	}

	msg := p.Finalize()
	if msg.Role != RoleAssistant || msg.Content != "Hello" {
		t.Errorf("finalized = %+v", msg)
	}
	if msg.Metric == nil || msg.Metric.Deltas != 2 || msg.Metric.Model != "llama" {
		t.Errorf("metric = %+v", msg.Metric)
	}

	p.Append("ignored")
	if p.Content() != "Hello" {
		t.Error("append after finalize changed content")
	}
}

func TestPendingMessage_ConcurrentReads(t *testing.T) {
	p := NewPendingMessage("m")
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			p.Append("x")
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = p.Content()
			}
		}()
	}
	wg.Wait()

	if len(p.Content()) != 500 {
		t.Errorf("len = %d, want 500", len(p.Content()))
	}
}
