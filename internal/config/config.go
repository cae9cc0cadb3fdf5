// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Unified configuration management for lmchat.
//
// Provides TOML-based configuration with JSON fallback, sensible defaults,
// environment variable overrides and validation.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/lmchat/internal/attach"
	"github.com/jeranaias/lmchat/internal/lmstudio"
	"github.com/jeranaias/lmchat/internal/transcript"
	"github.com/jeranaias/lmchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the main configuration structure for lmchat.
type Config struct {
	// Server is the LM Studio endpoint.
	Server ServerConfig `toml:"server" json:"server"`

	// Chat holds the request parameters sent with every completion.
	Chat ChatConfig `toml:"chat" json:"chat"`

	// UI configures the terminal front ends.
	UI UIConfig `toml:"ui" json:"ui"`

	// Log configures the debug log.
	Log LogConfig `toml:"log" json:"log"`
}

// ServerConfig contains connection settings.
type ServerConfig struct {
	// URL is the LM Studio base URL (e.g., "http://localhost:1234").
	URL string `toml:"url" json:"url"`

	// RequestTimeoutSecs bounds a whole streamed reply. 0 means no limit.
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
}

// ChatConfig contains sampling settings and system prompts.
type ChatConfig struct {
	// Model is the preferred model id, selected on connect when loaded.
	Model string `toml:"model" json:"model"`

	// Temperature is the sampling temperature (0.0 - 2.0).
	Temperature float64 `toml:"temperature" json:"temperature"`

	// MaxTokens caps the reply length. -1 lets the server decide.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`

	// TextSystemPrompt is sent for conversations without images.
	TextSystemPrompt string `toml:"text_system_prompt" json:"text_system_prompt"`

	// ImageSystemPrompt is sent once a conversation contains an image.
	ImageSystemPrompt string `toml:"image_system_prompt" json:"image_system_prompt"`

	// MaxImageBytes rejects larger attachments.
	MaxImageBytes int64 `toml:"max_image_bytes" json:"max_image_bytes"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is the markdown style: "auto", "dark", "light" or "plain".
	Theme string `toml:"theme" json:"theme"`

	// WordWrap wraps rendered replies to the window width.
	WordWrap bool `toml:"word_wrap" json:"word_wrap"`

	// SidebarWidth is the conversation list width in cells.
	SidebarWidth int `toml:"sidebar_width" json:"sidebar_width"`

	// MaxFPS limits how often a streaming reply is re-rendered.
	MaxFPS int `toml:"max_fps" json:"max_fps"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// File receives debug logs. Empty means ~/.lmchat/lmchat.log for the TUI.
	File string `toml:"file" json:"file"`

	// Verbose also enables logging in the REPL and one-shot commands.
	Verbose bool `toml:"verbose" json:"verbose"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Limits enforced by Validate.
const (
	MinSidebarWidth = 12
	MaxSidebarWidth = 60
	MaxFPSLimit     = 120
	MaxTemperature  = 2.0
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:                lmstudio.DefaultBaseURL,
			RequestTimeoutSecs: 0,
		},
		Chat: ChatConfig{
			Model:             "",
			Temperature:       lmstudio.DefaultTemperature,
			MaxTokens:         lmstudio.DefaultMaxTokens,
			TextSystemPrompt:  transcript.DefaultTextPrompt,
			ImageSystemPrompt: transcript.DefaultImagePrompt,
			MaxImageBytes:     attach.DefaultMaxBytes,
		},
		UI: UIConfig{
			Theme:        "auto",
			WordWrap:     true,
			SidebarWidth: 28,
			MaxFPS:       30,
		},
		Log: LogConfig{
			File:    "",
			Verbose: false,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// ConfigDir returns the lmchat configuration directory (~/.lmchat).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".lmchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultLogPath returns ~/.lmchat/lmchat.log.
func DefaultLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lmchat.log"), nil
}

// LogPath returns the configured log file, or DefaultLogPath when unset.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return util.ExpandHome(c.Log.File), nil
	}
	return DefaultLogPath()
}

// ReplyTimeout returns the limit for one streamed reply, or 0 for none.
func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		loadErr = err
		break
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid config: %w", err)
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// fillDefaults restores values a file set to empty.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if strings.TrimSpace(cfg.Server.URL) == "" {
		cfg.Server.URL = defaults.Server.URL
	}
	if strings.TrimSpace(cfg.Chat.TextSystemPrompt) == "" {
		cfg.Chat.TextSystemPrompt = defaults.Chat.TextSystemPrompt
	}
	if strings.TrimSpace(cfg.Chat.ImageSystemPrompt) == "" {
		cfg.Chat.ImageSystemPrompt = defaults.Chat.ImageSystemPrompt
	}
	if cfg.Chat.MaxImageBytes == 0 {
		cfg.Chat.MaxImageBytes = defaults.Chat.MaxImageBytes
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.SidebarWidth == 0 {
		cfg.UI.SidebarWidth = defaults.UI.SidebarWidth
	}
	if cfg.UI.MaxFPS == 0 {
		cfg.UI.MaxFPS = defaults.UI.MaxFPS
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path with a short header.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "# lmchat configuration file")
	fmt.Fprintln(&buf, "# Generated by lmchat - edit with care")
	fmt.Fprintln(&buf, "#")
	fmt.Fprintln(&buf, "# Environment overrides: LMCHAT_SERVER_URL, LMCHAT_MODEL,")
	fmt.Fprintln(&buf, "# LMCHAT_TEMPERATURE, LMCHAT_MAX_TOKENS, LMCHAT_THEME")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration to path as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validThemes = map[string]bool{"auto": true, "dark": true, "light": true, "plain": true}

// Validate validates the configuration and returns ValidateErrors when
// anything is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := ValidateURL(c.Server.URL); err != nil {
		errs = append(errs, ValidationError{Field: "server.url", Message: err.Error()})
	}
	if c.Server.RequestTimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.request_timeout_secs",
			Message: "must be 0 (no limit) or positive",
		})
	}

	if c.Chat.Temperature < 0 || c.Chat.Temperature > MaxTemperature {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between 0 and %.1f, got %g", MaxTemperature, c.Chat.Temperature),
		})
	}
	if c.Chat.MaxTokens == 0 || c.Chat.MaxTokens < -1 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_tokens",
			Message: fmt.Sprintf("must be -1 (unlimited) or positive, got %d", c.Chat.MaxTokens),
		})
	}
	if c.Chat.MaxImageBytes < 0 {
		errs = append(errs, ValidationError{Field: "chat.max_image_bytes", Message: "must be positive"})
	}

	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme %q (must be auto, dark, light, or plain)", c.UI.Theme),
		})
	}
	if c.UI.SidebarWidth < MinSidebarWidth || c.UI.SidebarWidth > MaxSidebarWidth {
		errs = append(errs, ValidationError{
			Field:   "ui.sidebar_width",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinSidebarWidth, MaxSidebarWidth, c.UI.SidebarWidth),
		})
	}
	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > MaxFPSLimit {
		errs = append(errs, ValidationError{
			Field:   "ui.max_fps",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxFPSLimit, c.UI.MaxFPS),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies LMCHAT_* environment variables. Values that do
// not parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	// LMCHAT_SERVER_URL
	if v := os.Getenv("LMCHAT_SERVER_URL"); v != "" {
		c.Server.URL = v
	}

	// LMCHAT_MODEL
	if v := os.Getenv("LMCHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}

	// LMCHAT_TEMPERATURE
	if v := os.Getenv("LMCHAT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Chat.Temperature = f
		}
	}

	// LMCHAT_MAX_TOKENS
	if v := os.Getenv("LMCHAT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.MaxTokens = n
		}
	}

	// LMCHAT_THEME
	if v := os.Getenv("LMCHAT_THEME"); v != "" {
		c.UI.Theme = strings.ToLower(v)
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.temperature").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.theme").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if field.Kind() == reflect.Struct {
		return fmt.Errorf("cannot set section %q, name a key inside it", key)
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tag or field name.
func (c *Config) lookup(key string) (reflect.Value, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i], "."))
		}
		field, ok := fieldByKey(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return v, nil
}

// fieldByKey matches a toml tag first, then the normalized Go field name.
func fieldByKey(v reflect.Value, part string) (reflect.Value, bool) {
	t := v.Type()
	normalized := normalizeFieldName(part)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("toml"), ",")[0]
		if strings.EqualFold(tag, part) || strings.EqualFold(f.Name, normalized) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			switch strings.ToLower(strings.TrimSpace(strVal)) {
			case "1", "true", "yes", "on":
				field.SetBool(true)
			case "0", "false", "no", "off":
				field.SetBool(false)
			default:
				return fmt.Errorf("invalid boolean value: %q", strVal)
			}
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("cannot assign nil")
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := strings.Split(section.Tag.Get("toml"), ",")[0]
		st := section.Type
		for j := 0; j < st.NumField(); j++ {
			keys = append(keys, prefix+"."+strings.Split(st.Field(j).Tag.Get("toml"), ",")[0])
		}
	}
	return keys
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as TOML for display.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
