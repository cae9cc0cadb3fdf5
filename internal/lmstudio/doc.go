// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lmstudio provides the HTTP client for an OpenAI-compatible local
// inference server such as LM Studio.
//
// # Key Types
//
//   - Client: HTTP client for the /v1 API (models, chat completions, eject)
//   - ChatMessage: request entry whose content is plain text or a list of parts
//   - ChatRequest: body for /v1/chat/completions
//   - StreamReader: incremental reader turning a streamed body into text deltas
//
// # Usage
//
//	client := lmstudio.NewClient(&lmstudio.ClientConfig{BaseURL: "http://localhost:1234"})
//	models, err := client.ListModels(ctx)
//	content, err := client.ChatStream(ctx, lmstudio.ChatRequest{
//	    Model:    models[0].ID,
//	    Messages: []lmstudio.ChatMessage{lmstudio.NewTextMessage("user", "Hello")},
//	}, func(delta string) {
//	    fmt.Print(delta)
//	})
//
// # Stream format
//
// The completions endpoint answers with newline-delimited records. A record
// of the form "data: <json>" carries choices[0].delta.content, "data: [DONE]"
// ends the response and "event: error" aborts it. StreamReader yields the
// same deltas no matter how the body is split into chunks.
package lmstudio
