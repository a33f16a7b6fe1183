package config

import (
	"os"
	"path/filepath"
	"testing"

	"go-lora-manager/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadConfig_OverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
BaseURL = "https://comfy.local:8443"
PageSize = 0
DefaultModelType = "checkpoints"
LogApiRequests = true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://comfy.local:8443", cfg.BaseURL)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, "checkpoints", cfg.DefaultModelType)
	assert.True(t, cfg.LogApiRequests)
	assert.Equal(t, DefaultStoragePath, cfg.StoragePath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"relative base url", `BaseURL = "comfy.local"`},
		{"bad ws url", `WebSocketURL = "http://x"`},
		{"unknown model type", `DefaultModelType = "vae"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_MalformedToml(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "BaseURL = "))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestWebSocketBase(t *testing.T) {
	tests := []struct {
		cfg  models.Config
		want string
	}{
		{models.Config{BaseURL: "http://127.0.0.1:8188/"}, "ws://127.0.0.1:8188"},
		{models.Config{BaseURL: "https://host"}, "wss://host"},
		{models.Config{BaseURL: "http://a", WebSocketURL: "wss://b/"}, "wss://b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WebSocketBase(tt.cfg))
	}
}
