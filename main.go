// lmchat - A terminal chat client for models served by LM Studio.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/cli"
	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/render"
	"github.com/jeranaias/lmchat/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdTUI:
		err = runTUI(args)
	case cli.CmdChat:
		err = cli.HandleChatCommand(args)
	case cli.CmdAsk:
		err = cli.HandleAskCommand(args)
	case cli.CmdModels:
		err = cli.HandleModels(args)
	case cli.CmdEject:
		err = cli.HandleEject(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		err = cli.HandleVersion(args)
	case cli.CmdHelp:
		err = cli.HandleHelp(args)
	}

	if err != nil {
		cli.DisplayError(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

// runTUI starts the full-screen interface.
func runTUI(args cli.Args) error {
	cfg, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}
	if args.NoColor {
		cfg.UI.Theme = render.ThemePlain
	}

	// The alternate screen owns the terminal, so logs always go to a file.
	logPath, err := cfg.LogPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := tea.LogToFile(logPath, "lmchat ")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("TUI_START | version=%s url=%s", Version, cfg.Server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := chat.NewBridge()
	ctrl := cli.NewController(cfg, bridge.Observe)

	m := chat.New(chat.Options{
		Controller:  ctrl,
		Config:      cfg,
		SettingsFor: cli.ControllerSettings,
	})

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
		tea.WithContext(ctx),
	)

	go bridge.Run(ctx, p.Send)

	// Live reload is best effort: without a config directory there is
	// nothing to watch.
	if path, err := cli.ConfigFilePath(args); err == nil {
		err = config.Watch(ctx, path, func(reloaded *config.Config, err error) {
			p.Send(chat.ConfigReloadedMsg{Config: reloaded, Err: err})
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_DISABLED | path=%s error=%v", path, err)
		}
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running lmchat: %w", err)
	}
	log.Printf("TUI_EXIT")
	return nil
}
