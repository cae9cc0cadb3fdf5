// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lmchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and live reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: LM Studio endpoint and request timeout
//   - ChatConfig: Sampling parameters and system prompts
//   - UIConfig: Theme, sidebar and render rate
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the cli package)
//   - Environment variables (LMCHAT_*)
//   - ~/.lmchat/config.toml
//   - ~/.lmchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	temp, _ := cfg.Get("chat.temperature")
package config
