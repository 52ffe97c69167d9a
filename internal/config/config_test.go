package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"GROQ_API_KEY", "DOCLING_API_ADDR", "DOCLING_API_TEMP_DIR", "LOG_LEVEL", "LOG_FORMAT",
	"DOCLING_SERVE_URL", "DOCLING_SERVE_API_KEY", "DOCLING_SERVE_TIMEOUT", "PICTURE_DESCRIPTION_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "DOCLING_API_CACHE",
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddress, cfg.BasicConfig.ServerAddress)
	assert.Equal(t, DefaultDoclingURL, cfg.Docling.BaseURL)
	assert.Equal(t, DefaultPictureEndpoint, cfg.PictureDescription.URL)
	assert.Equal(t, 90*time.Second, cfg.PictureTimeout())
	assert.Zero(t, cfg.DoclingTimeout())
	assert.Empty(t, cfg.PictureDescription.APIKey)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, DefaultTempFileTTL, cfg.TempFileTTL())
	assert.Equal(t, DefaultTempCleanInterval, cfg.TempCleanInterval())
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"basic_config": {"server_address": ":9000", "temp_dir": "uploads", "temp_file_ttl": 5},
		"docling": {"base_url": "http://docling:5001", "request_timeout": 600},
		"picture_description": {"prompt": "Describe charts only.", "timeout": 30},
		"cache": {"enabled": true, "ttl": 60}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "uploads"), cfg.BasicConfig.TempDir)
	assert.Equal(t, 5*time.Minute, cfg.TempFileTTL())
	assert.Equal(t, "http://docling:5001", cfg.Docling.BaseURL)
	assert.Equal(t, 10*time.Minute, cfg.DoclingTimeout())
	assert.Equal(t, "Describe charts only.", cfg.PictureDescription.Prompt)
	assert.Equal(t, 30*time.Second, cfg.PictureTimeout())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
}

func TestCredentialNeverComesFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"picture_description": {"APIKey": "from-file", "api_key": "from-file"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.PictureDescription.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "  gsk_env  ")
	t.Setenv("DOCLING_API_ADDR", "127.0.0.1:8080")
	t.Setenv("DOCLING_SERVE_URL", "http://serve:5001")
	t.Setenv("DOCLING_SERVE_API_KEY", "serve-key")
	t.Setenv("DOCLING_SERVE_TIMEOUT", "120")
	t.Setenv("PICTURE_DESCRIPTION_URL", "http://vlm/v1/chat/completions")
	t.Setenv("REDIS_ADDR", "cache.internal:6380")
	t.Setenv("DOCLING_API_CACHE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gsk_env", cfg.PictureDescription.APIKey)
	assert.Equal(t, "127.0.0.1:8080", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, "http://serve:5001", cfg.Docling.BaseURL)
	assert.Equal(t, "serve-key", cfg.Docling.APIKey)
	assert.Equal(t, 2*time.Minute, cfg.DoclingTimeout())
	assert.Equal(t, "http://vlm/v1/chat/completions", cfg.PictureDescription.URL)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.BasicConfig.LogLevel)
}

func TestEnvErrors(t *testing.T) {
	cases := map[string]string{
		"DOCLING_SERVE_TIMEOUT": "soon",
		"REDIS_ADDR":            "no-port",
		"DOCLING_API_CACHE":     "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DOCLING_SERVE_API_KEY=from-dotenv\n"), 0o600))
	// godotenv does not override variables that are already set, even to ""
	require.NoError(t, os.Unsetenv("DOCLING_SERVE_API_KEY"))
	t.Cleanup(func() { os.Unsetenv("DOCLING_SERVE_API_KEY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-dotenv", os.Getenv("DOCLING_SERVE_API_KEY"))
}
