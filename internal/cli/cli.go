// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing and usage for lmchat.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdModels
	CmdEject
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name as typed.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdModels:
		return "models"
	case CmdEject:
		return "eject"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	URL        string // --url: server base URL
	Model      string // --model: preferred model
	ConfigPath string // --config: explicit config file
	Verbose    bool   // --verbose: log to stderr or the configured file
	NoColor    bool   // --no-color: disable styling
	JSON       bool   // --json: machine-readable output (models, config show)

	// Command-specific
	Query      string // ask: the question
	Image      string // ask: --image path
	Subcommand string // config: show|get|set|path
	ConfigKey  string
	ConfigVal  string
	Target     string // eject: model id

	// Raw args (remaining after the command name)
	Raw []string
}

const usageText = `lmchat - chat with models served by LM Studio

Usage:
  lmchat                         Start the terminal UI (default)
  lmchat tui                     Start the terminal UI
  lmchat chat                    Interactive chat in the shell
  lmchat ask "question"          Ask a single question and stream the answer
    --image, -i PATH             Attach an image to the question
  lmchat models                  List the models the server offers
  lmchat eject <model>           Unload a model from the server
  lmchat config [show]           Show the current configuration
  lmchat config get <key>        Print one value (e.g. chat.temperature)
  lmchat config set <key> <val>  Change a value and save it
  lmchat config path             Show the configuration file location
  lmchat version                 Show version information
  lmchat help                    Show this help

Global flags:
  --url URL                      LM Studio server (default http://localhost:1234)
  --model, -m ID                 Preferred model
  --config PATH                  Use this configuration file
  --verbose                      Write debug logs
  --no-color                     Disable colors
  --json                         JSON output for models and config show

Chat commands (inside "lmchat chat"):
  /new  /list  /switch N  /delete N  /rename NAME
  /model [ID]  /models  /image PATH  /clear-image
  /copy [N]  /export md|json|yaml  /connect [URL]  /disconnect
  /help  /quit

Environment:
  LMCHAT_SERVER_URL, LMCHAT_MODEL, LMCHAT_TEMPERATURE,
  LMCHAT_MAX_TOKENS, LMCHAT_THEME, NO_COLOR

Configuration file: ~/.lmchat/config.toml
`

// PrintUsage prints the usage text.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("lmchat %s (commit %s, built %s, %s %s/%s)\n",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv without the program name. Unknown commands fall
// back to the help command.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	// If no remaining args, default to TUI
	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui", "ui":
		return CmdTUI, parsedArgs

	case "chat", "repl":
		return CmdChat, parsedArgs

	case "ask", "a":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "models", "ls":
		return CmdModels, parsedArgs

	case "eject", "unload":
		if len(remaining) > 0 {
			parsedArgs.Target = strings.Join(remaining, " ")
		}
		return CmdEject, parsedArgs

	case "config", "cfg":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Global flags may appear before or after the command.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	takeValue := func(i *int, dst *string) {
		if *i+1 < len(args) {
			*i++
			*dst = args[*i]
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--verbose":
			parsedArgs.Verbose = true
		case "--no-color":
			parsedArgs.NoColor = true
		case "--json":
			parsedArgs.JSON = true
		case "--url":
			takeValue(&i, &parsedArgs.URL)
		case "--model", "-m":
			takeValue(&i, &parsedArgs.Model)
		case "--config":
			takeValue(&i, &parsedArgs.ConfigPath)
		default:
			switch {
			case strings.HasPrefix(arg, "--url="):
				parsedArgs.URL = strings.TrimPrefix(arg, "--url=")
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	parser := NewArgParser(remaining)
	args.Image = parser.Flag("image")
	if args.Image == "" {
		args.Image = parser.Flag("i")
	}
	args.Query = strings.Join(parser.PositionalFrom(0), " ")
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	parser := NewArgParser(remaining)
	args.Subcommand = strings.ToLower(parser.Positional(0))
	args.ConfigKey = parser.Positional(1)
	if parser.PositionalCount() > 2 {
		args.ConfigVal = strings.Join(parser.PositionalFrom(2), " ")
	}
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleVersion handles the "version" command.
func HandleVersion(args Args) error {
	if args.JSON {
		return outputJSON(map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"go_version": runtime.Version(),
		})
	}
	PrintVersion()
	return nil
}

// HandleHelp handles the "help" command. An unknown command is reported
// as a usage error after the help text, with a suggestion when one is close.
func HandleHelp(args Args) error {
	PrintUsage()
	if len(args.Raw) > 0 && !isKnownCommand(args.Raw[0]) {
		reason := "unknown command"
		if hint := SuggestCommand(args.Raw[0]); hint != "" {
			reason += ", did you mean " + hint + "?"
		}
		return NewValidationError("command", args.Raw[0], reason)
	}
	return nil
}
