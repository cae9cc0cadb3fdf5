// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/lmchat/internal/attach"
	"github.com/jeranaias/lmchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

type frontmatter struct {
	Title     string   `yaml:"title"`
	Date      string   `yaml:"date"`
	Updated   string   `yaml:"updated"`
	Messages  int      `yaml:"messages"`
	Models    []string `yaml:"models,omitempty"`
	Exported  string   `yaml:"exported"`
	Generator string   `yaml:"generator"`
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := yaml.Marshal(frontmatter{
			Title:     conv.Name,
			Date:      conv.CreatedAt.Format(time.RFC3339),
			Updated:   conv.UpdatedAt.Format(time.RFC3339),
			Messages:  len(conv.Messages),
			Models:    modelsUsed(conv),
			Exported:  time.Now().Format(time.RFC3339),
			Generator: generator,
		})
		if err != nil {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(conv.Name)))

	if e.options.IncludeMetadata {
		sb.WriteString(fmt.Sprintf("- **Created**: %s\n", formatTimestamp(conv.CreatedAt)))
		sb.WriteString(fmt.Sprintf("- **Messages**: %d\n\n", len(conv.Messages)))
	}

	if len(conv.Messages) == 0 {
		sb.WriteString("*No messages yet.*\n")
		return []byte(sb.String()), nil
	}

	for i, msg := range conv.Messages {
		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n",
				msg.Role.DisplayName(), formatShortTimestamp(msg.Timestamp)))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", msg.Role.DisplayName()))
		}

		if msg.Image != nil {
			sb.WriteString(fmt.Sprintf("> Image: %s\n\n", attach.Label(msg.Image)))
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if msg.Metric != nil && e.options.IncludeMetadata {
			sb.WriteString(fmt.Sprintf("<sub>%s</sub>\n\n", msg.Metric.Format()))
		}

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// modelsUsed lists the distinct models that produced replies.
func modelsUsed(conv *model.Conversation) []string {
	var models []string
	seen := make(map[string]bool)
	for _, msg := range conv.Messages {
		if msg.Metric == nil || msg.Metric.Model == "" || seen[msg.Metric.Model] {
			continue
		}
		seen[msg.Metric.Model] = true
		models = append(models, msg.Metric.Model)
	}
	return models
}

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}
