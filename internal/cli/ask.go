// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command for the lmchat CLI.
//
// Command: ask
// Short:   Ask a single question and stream the answer to stdout
//
// Examples:
//
//	lmchat ask "What is a goroutine?"
//	lmchat ask "Describe this picture" --image ~/Pictures/cat.png
//	echo "Summarize: ..." | lmchat ask -
//
// Flags:
//
//	-i, --image PATH    Attach an image to the question
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jeranaias/lmchat/internal/app"
	"github.com/jeranaias/lmchat/internal/config"
)

// maxStdinQuestion bounds a question read from stdin.
const maxStdinQuestion = 1 << 20

// HandleAskCommand handles the "ask" command.
func HandleAskCommand(args Args) error {
	question := args.Query
	if question == "-" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinQuestion))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		question = string(data)
	}
	if strings.TrimSpace(question) == "" && args.Image == "" {
		return ErrMissingArgument("question", `lmchat ask "What is a goroutine?"`)
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	closeLog, err := SetupLogging(cfg, args)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return Ask(ctx, cfg, question, args.Image, os.Stdout, os.Stderr)
}

// Ask connects, sends one question and streams the reply to out. Timing
// and notices go to errOut so that out holds only the answer.
func Ask(ctx context.Context, cfg *config.Config, question, imagePath string, out, errOut io.Writer) error {
	var wrote bool
	ctrl := NewController(cfg, func(e app.Event) {
		switch ev := e.(type) {
		case app.DeltaEvent:
			fmt.Fprint(out, ev.Delta)
			wrote = true
		case app.CompletedEvent:
			if ev.Message.Metric != nil {
				fmt.Fprintln(errOut, DimStyle.Render(ev.Message.Metric.Format()))
			}
		}
	})

	if err := ctrl.Connect(ctx, cfg.Server.URL); err != nil {
		return err
	}
	if imagePath != "" {
		if _, err := ctrl.AttachImage(imagePath); err != nil {
			return err
		}
	}

	sendCtx, cancel := replyContext(ctx, cfg)
	defer cancel()

	reply, err := ctrl.Send(sendCtx, question)
	if wrote && (reply == nil || !strings.HasSuffix(reply.Content, "\n")) {
		fmt.Fprintln(out)
	}
	return err
}
