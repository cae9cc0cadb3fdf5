// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/util"
)

// generator names the program in export metadata.
const generator = "lmchat"

var (
	// ErrNilConversation is returned when there is nothing to export.
	ErrNilConversation = errors.New("conversation is nil")

	// ErrUnknownFormat is returned by ForFormat for unsupported names.
	ErrUnknownFormat = errors.New("unknown export format")
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format and returns the content.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata adds a metadata header and per-reply metrics.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool

	// IncludeImageData keeps the base64 data URL of attachments in JSON
	// and YAML output. Markdown always summarizes images.
	IncludeImageData bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// ForFormat returns the exporter for "md"/"markdown", "json" or "yaml"/"yml".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "yaml", "yml":
		return NewYAMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (use md, json or yaml)", ErrUnknownFormat, format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports conv with exporter and writes the result atomically
// into opts.OutputDir. It returns the path of the written file.
func ExportToFile(conv *model.Conversation, exporter Exporter, opts *Options) (string, error) {
	if conv == nil {
		return "", ErrNilConversation
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.Name),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(dir, filename)

	if err := util.AtomicWriteFile(outputPath, content, 0600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// document is the structured form shared by the JSON and YAML exporters.
type document struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
	Exported  time.Time        `json:"exported" yaml:"exported"`
	Generator string           `json:"generator" yaml:"generator"`
	Messages  []*model.Message `json:"messages" yaml:"messages"`
}

func newDocument(conv *model.Conversation, opts *Options) document {
	clone := conv.Clone()
	if !opts.IncludeImageData {
		for _, msg := range clone.Messages {
			if msg.Image != nil {
				msg.Image.DataURL = ""
			}
		}
	}
	return document{
		ID:        clone.ID,
		Name:      clone.Name,
		CreatedAt: clone.CreatedAt,
		UpdatedAt: clone.UpdatedAt,
		Exported:  time.Now(),
		Generator: generator,
		Messages:  clone.Messages,
	}
}

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimPrefix(s, "Conversation: "), 50)
	s = strings.TrimSuffix(s, "...")

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
