// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - Shared start-up for the lmchat commands: configuration,
// logging and the controller.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/lmchat/internal/app"
	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/transcript"
	"github.com/jeranaias/lmchat/internal/util"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// LoadConfig loads the file named by --config, or the default locations,
// then applies --url and --model. A file that fails validation is an error;
// an unreadable default file only produces a warning.
func LoadConfig(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(util.ExpandHome(args.ConfigPath))
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			var verrs config.ValidateErrors
			if errors.As(err, &verrs) {
				return nil, err
			}
			fmt.Fprintf(os.Stderr, "%s %v (using defaults)\n", WarningStyle.Render("Warning:"), err)
		}
	}

	applyFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// applyFlags overlays command-line flags on the loaded config.
func applyFlags(cfg *config.Config, args Args) {
	if args.URL != "" {
		cfg.Server.URL = args.URL
	}
	if args.Model != "" {
		cfg.Chat.Model = args.Model
	}
	if args.NoColor {
		DisableColors()
	}
}

// ConfigFilePath returns the file config commands read and write.
func ConfigFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return util.ExpandHome(args.ConfigPath), nil
	}
	return config.ConfigPathTOML()
}

// DisableColors turns off styling for this process.
func DisableColors() {
	ForceColorsEnabled(false)
	lipgloss.SetColorProfile(termenv.Ascii)
}

// =============================================================================
// LOGGING
// =============================================================================

// SetupLogging routes the standard logger for the shell commands. Logs
// are discarded unless --verbose or log.verbose is set; then they go to
// log.file, or stderr when no file is configured. The returned func closes
// the file.
func SetupLogging(cfg *config.Config, args Args) (func(), error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("lmchat ")

	if !args.Verbose && !cfg.Log.Verbose {
		log.SetOutput(io.Discard)
		return func() {}, nil
	}
	if cfg.Log.File == "" {
		log.SetOutput(os.Stderr)
		return func() {}, nil
	}

	path, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.Printf("LOG_STARTED | version=%s", Version)
	return func() { f.Close() }, nil
}

// =============================================================================
// CONTROLLER
// =============================================================================

// ControllerSettings converts the chat section into request settings.
func ControllerSettings(cfg *config.Config) app.Settings {
	return app.Settings{
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
		Prompts: transcript.Prompts{
			Text:  cfg.Chat.TextSystemPrompt,
			Image: cfg.Chat.ImageSystemPrompt,
		},
		MaxImageBytes: cfg.Chat.MaxImageBytes,
	}
}

// NewController builds a controller for cfg. observer may be nil.
func NewController(cfg *config.Config, observer app.Observer) *app.Controller {
	return app.NewController(app.Options{
		BaseURL:        cfg.Server.URL,
		PreferredModel: cfg.Chat.Model,
		Settings:       ControllerSettings(cfg),
		Observer:       observer,
	})
}

// replyContext bounds one reply by the configured timeout.
func replyContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if d := cfg.ReplyTimeout(); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}
