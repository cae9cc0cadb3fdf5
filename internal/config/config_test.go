// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LMCHAT_SERVER_URL", "LMCHAT_MODEL", "LMCHAT_TEMPERATURE", "LMCHAT_MAX_TOKENS", "LMCHAT_THEME"} {
		t.Setenv(k, "")
	}
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:1234", cfg.Server.URL)
	assert.Equal(t, 0.7, cfg.Chat.Temperature)
	assert.Equal(t, -1, cfg.Chat.MaxTokens)
	assert.Equal(t, "auto", cfg.UI.Theme)
}

func TestLoadFromPath_TOMLPartial(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
url = "http://gpu-box:1234"

[chat]
model = "llama-3-8b"
temperature = 0.2
`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:1234", cfg.Server.URL)
	assert.Equal(t, "llama-3-8b", cfg.Chat.Model)
	assert.Equal(t, 0.2, cfg.Chat.Temperature)
	// Unset keys keep defaults.
	assert.Equal(t, -1, cfg.Chat.MaxTokens)
	assert.Equal(t, Default().Chat.TextSystemPrompt, cfg.Chat.TextSystemPrompt)
	assert.True(t, cfg.UI.WordWrap)
}

func TestLoadFromPath_JSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ui": {"theme": "light", "sidebar_width": 20}}`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.Equal(t, 20, cfg.UI.SidebarWidth)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[server\nurl="), 0600))
	_, err := LoadFromPath(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("[chat]\ntemperature = 5.0\n"), 0600))
	_, err = LoadFromPath(invalid)
	require.Error(t, err)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "chat.temperature", verrs[0].Field)

	_, err = LoadFromPath(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_FromHome(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Server.URL, cfg.Server.URL)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".lmchat"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".lmchat", "config.toml"),
		[]byte("[chat]\nmax_tokens = 512\n"), 0600))

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Chat.MaxTokens)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Chat.Model = "qwen2-vl"
	cfg.UI.MaxFPS = 60
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# lmchat configuration file"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "ftp://host"
	cfg.Chat.MaxTokens = 0
	cfg.UI.Theme = "neon"
	cfg.UI.MaxFPS = 0

	err := cfg.Validate()
	require.Error(t, err)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"server.url", "chat.max_tokens", "ui.theme", "ui.max_fps"}, fields)
	assert.Contains(t, err.Error(), "ui.theme")
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("http://localhost:1234"))
	assert.NoError(t, ValidateURL("https://example.com/lm"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("localhost:1234"))
	assert.Error(t, ValidateURL("http://"))
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LMCHAT_SERVER_URL", "http://10.0.0.5:1234")
	t.Setenv("LMCHAT_MODEL", "phi-3")
	t.Setenv("LMCHAT_TEMPERATURE", "1.1")
	t.Setenv("LMCHAT_MAX_TOKENS", "256")
	t.Setenv("LMCHAT_THEME", "DARK")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "http://10.0.0.5:1234", cfg.Server.URL)
	assert.Equal(t, "phi-3", cfg.Chat.Model)
	assert.Equal(t, 1.1, cfg.Chat.Temperature)
	assert.Equal(t, 256, cfg.Chat.MaxTokens)
	assert.Equal(t, "dark", cfg.UI.Theme)
}

func TestApplyEnvOverrides_IgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("LMCHAT_TEMPERATURE", "warm")
	t.Setenv("LMCHAT_MAX_TOKENS", "lots")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 0.7, cfg.Chat.Temperature)
	assert.Equal(t, -1, cfg.Chat.MaxTokens)
}

// =============================================================================
// GET / SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("chat.temperature")
	require.NoError(t, err)
	assert.Equal(t, 0.7, v)

	require.NoError(t, cfg.Set("chat.temperature", "0.3"))
	assert.Equal(t, 0.3, cfg.Chat.Temperature)

	require.NoError(t, cfg.Set("chat.max_tokens", "1024"))
	assert.Equal(t, 1024, cfg.Chat.MaxTokens)

	require.NoError(t, cfg.Set("ui.word_wrap", "off"))
	assert.False(t, cfg.UI.WordWrap)

	require.NoError(t, cfg.Set("server.url", "http://box:1234"))
	assert.Equal(t, "http://box:1234", cfg.Server.URL)

	require.NoError(t, cfg.Set("ui.sidebar_width", 30))
	assert.Equal(t, 30, cfg.UI.SidebarWidth)

	// Go field names resolve too.
	v, err = cfg.Get("UI.SidebarWidth")
	require.NoError(t, err)
	assert.Equal(t, 30, v)
}

func TestGetSet_Errors(t *testing.T) {
	cfg := Default()

	_, err := cfg.Get("")
	assert.Error(t, err)
	_, err = cfg.Get("chat.nope")
	assert.Error(t, err)
	_, err = cfg.Get("chat.model.deeper")
	assert.Error(t, err)

	assert.Error(t, cfg.Set("chat", "x"))
	assert.Error(t, cfg.Set("chat.max_tokens", "many"))
	assert.Error(t, cfg.Set("ui.word_wrap", "maybe"))
	assert.Error(t, cfg.Set("chat.temperature", nil))
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	assert.Contains(t, keys, "server.url")
	assert.Contains(t, keys, "chat.image_system_prompt")
	assert.Contains(t, keys, "ui.max_fps")
	assert.Contains(t, keys, "log.verbose")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Chat.Model = "other"
	assert.Empty(t, cfg.Chat.Model)
	assert.Contains(t, cfg.String(), "[chat]")
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	require.NoError(t, WatchWithDebounce(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			got <- cfg
		}
	}))

	cfg := Default()
	cfg.Chat.Temperature = 1.5
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case reloaded := <-got:
		assert.Equal(t, 1.5, reloaded.Chat.Temperature)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.toml"), func(*Config, error) {})
	assert.Error(t, err)
}

// =============================================================================
// GLOBAL
// =============================================================================

// TestConfig_ConcurrentAccess tests that Global() and SetGlobal() can be
// called concurrently without race conditions.
func TestConfig_ConcurrentAccess(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Chat.Model = "test-model"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestReloadGlobal(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	SetGlobal(&Config{})
	require.NoError(t, ReloadGlobal())
	assert.Equal(t, Default().Server.URL, Global().Server.URL)
}
