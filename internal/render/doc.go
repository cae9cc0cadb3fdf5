// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns assistant replies into terminal output.
//
// Markdown goes through glamour, code blocks are pulled out with goldmark
// so they can be copied on their own, and Highlight colors a single
// block with chroma.
package render
