// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: Chat thread with an ordered message history and a name
//   - Message: Finalized turn with role, content, optional image and metric
//   - PendingMessage: Assistant reply still being streamed
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
//	conv := model.NewConversation(1)
//	conv.AddMessage(model.NewUserMessage("Hello there"))
//	fmt.Println(conv.Name) // Conversation: Hello there...
//
//	pending := model.NewPendingMessage("llama-3.2-3b")
//	pending.Append("Hi")
//	conv.AddMessage(pending.Finalize())
package model
