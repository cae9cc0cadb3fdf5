// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"os"
)

// outputJSON outputs data as JSON on stdout.
func outputJSON(data interface{}) error {
	return writeJSON(os.Stdout, data)
}

// writeJSON writes data as indented JSON.
func writeJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
