// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the shell commands for lmchat.
//
// The full-screen interface lives in the ui packages; everything that runs
// in a plain terminal or a pipe lives here.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: parsed global and command-specific flags
//   - ArgParser: small flag parser shared by the commands
//   - ChatSession: the line-oriented chat loop behind "lmchat chat"
//
// # Usage
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdChat:
//	    err = cli.HandleChatCommand(args)
//	case cli.CmdAsk:
//	    err = cli.HandleAskCommand(args)
//	// ...
//	}
//	if err != nil {
//	    cli.DisplayError(os.Stderr, err)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands Overview
//
//   - tui: full-screen chat (default)
//   - chat: interactive chat with slash commands and history
//   - ask: one question, answer streamed to stdout
//   - models, eject: model management on the server
//   - config: show, get, set and locate the configuration file
//   - version, help
//
// # Exit Codes
//
// GetExitCode maps errors to stable exit codes: 2 for usage errors, 3 for
// invalid configuration, 5 when the server cannot be reached, 7 for
// unknown models or conversations, 8 for timeouts and 9 for server errors.
package cli
