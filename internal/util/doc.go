// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the front ends.
//
//   - String helpers that respect rune boundaries and terminal column width
//   - AtomicWriteFile for config and export files
package util
