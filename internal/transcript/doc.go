// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript keeps the in-memory conversations of a session and
// turns them into request history for the inference server.
//
// Exactly one conversation is active whenever the store is non-empty.
// Deleting the last conversation creates a fresh one in its place.
package transcript
