package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// isolate убирает переменные окружения, влияющие на конфиг, и уходит
// в пустую директорию, чтобы не подхватить чужой .env.
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{
		"PORT", "HTTP_ADDR", "LOG_LEVEL", "UPLOADS_DIR", "CORS_ALLOWED_ORIGIN",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_DEFAULT_MODEL", "OPENAI_MAX_TOKENS",
		"OPENAI_TEMPERATURE", "UPSTREAM_HEADER_TIMEOUT",
		"STORE_BACKEND", "STORE_PATH", "REDIS_URL", "REDIS_TTL",
	} {
		unsetEnv(t, k)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	prev, ok := os.LookupEnv(key)
	os.Unsetenv(key)
	t.Cleanup(func() {
		if ok {
			os.Setenv(key, prev)
		}
	})
}

func TestLoadRequiresAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "   ")

	_, err := Load()
	require.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":5000", cfg.HTTPAddr)
	require.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAI.DefaultModel)
	require.Equal(t, 500, cfg.OpenAI.MaxTokens)
	require.InDelta(t, 0.7, cfg.OpenAI.Temperature, 1e-9)
	require.Equal(t, 60*time.Second, cfg.OpenAI.HeaderTimeout)
	require.Equal(t, "memory", cfg.Store.Backend)
	require.Equal(t, "*", cfg.CORSAllowedOrigin)
}

func TestLoadOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "8080")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1/")
	t.Setenv("STORE_BACKEND", "FILE")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "http://localhost:11434/v1", cfg.OpenAI.BaseURL)
	require.Equal(t, "file", cfg.Store.Backend)
}

func TestLoadRedisNeedsURL(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORE_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("STORE_BACKEND", "mongo")
	_, err = Load()
	require.ErrorContains(t, err, "unknown STORE_BACKEND")
}
