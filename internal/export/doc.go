// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation to a file for the user to keep.
//
// Exports are one way: nothing in lmchat reads them back.
//
// # Supported Formats
//
//   - Markdown: Human-readable, images summarized as a label
//   - JSON: Machine-readable with metrics
//   - YAML: Same document as JSON
//
// # Usage
//
//	exporter, err := export.ForFormat("md", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(conv, exporter, nil)
package export
