// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for lmchat.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//
//	show (default)      Display current configuration
//	get <key>           Print one value
//	set <key> <value>   Set a value and save the file
//	path                Show configuration file path
//
// Examples:
//
//	lmchat config
//	lmchat config show --json
//	lmchat config get chat.temperature
//	lmchat config set server.url http://gpu-box:1234
//	lmchat config set chat.max_tokens 1024
//	lmchat config set ui.theme light
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/lmchat/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	path, err := ConfigFilePath(args)
	if err != nil {
		return err
	}
	return RunConfig(args, path, os.Stdout)
}

// RunConfig runs a config subcommand against the file at path.
func RunConfig(args Args, path string, out io.Writer) error {
	switch args.Subcommand {
	case "", "show", "list":
		cfg, err := loadConfigFile(path)
		if err != nil {
			return err
		}
		if args.JSON {
			return writeJSON(out, cfg)
		}
		showConfig(cfg, path, out)
		return nil

	case "get":
		if args.ConfigKey == "" {
			return ErrMissingArgument("key", "lmchat config get chat.temperature")
		}
		cfg, err := loadConfigFile(path)
		if err != nil {
			return err
		}
		v, err := cfg.Get(args.ConfigKey)
		if err != nil {
			return NewValidationError("key", args.ConfigKey, err.Error())
		}
		fmt.Fprintln(out, v)
		return nil

	case "set":
		if args.ConfigKey == "" || args.ConfigVal == "" {
			return ErrMissingArgument("key and value", "lmchat config set ui.theme dark")
		}
		return setConfigValue(path, args.ConfigKey, args.ConfigVal, out)

	case "path":
		fmt.Fprintln(out, path)
		return nil

	default:
		return NewValidationError("subcommand", args.Subcommand, "use show, get, set or path")
	}
}

// loadConfigFile loads path when it exists and the defaults otherwise,
// so that "config show" works before the first "config set".
func loadConfigFile(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := config.Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return config.LoadFromPath(path)
}

// setConfigValue changes one key and saves the file. The file itself is
// read without environment overrides so they are never persisted.
func setConfigValue(path, key, value string, out io.Writer) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if strings.HasSuffix(strings.ToLower(path), ".json") {
			err = config.LoadJSON(cfg, path)
		} else {
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return err
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var err error
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		err = config.SaveJSON(cfg, path)
	} else {
		err = config.SaveTOML(cfg, path)
	}
	if err != nil {
		return err
	}

	v, _ := cfg.Get(key)
	fmt.Fprintf(out, "%s %s = %v\n", SuccessStyle.Render("[OK]"), key, v)
	return nil
}

// showConfig prints every key grouped by section.
func showConfig(cfg *config.Config, path string, out io.Writer) {
	fmt.Fprintln(out, TitleStyle.Render("lmchat configuration"))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("file"), DimStyle.Render(path))

	section := ""
	for _, key := range config.GetAllKeys() {
		sec, name, _ := strings.Cut(key, ".")
		if sec != section {
			section = sec
			fmt.Fprintf(out, "\n%s\n", TitleStyle.Render("["+sec+"]"))
		}
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		text := fmt.Sprint(v)
		if s, ok := v.(string); ok {
			if s == "" {
				text = DimStyle.Render("(not set)")
			} else {
				text = ValueStyle.Render(firstLineWithEllipsis(s, 60))
			}
		}
		fmt.Fprintf(out, "%s%s\n", RenderLabel(name), text)
	}
}

func firstLineWithEllipsis(s string, max int) string {
	line := strings.SplitN(s, "\n", 2)[0]
	runes := []rune(line)
	if len(runes) > max || line != s {
		if len(runes) > max {
			runes = runes[:max]
		}
		return string(runes) + "..."
	}
	return line
}
