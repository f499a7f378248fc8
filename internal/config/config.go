package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrMissingAPIKey возвращается, если ключ upstream API не задан.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

type Config struct {
	Port       string `envconfig:"PORT" default:"5000"`
	HTTPAddr   string `envconfig:"HTTP_ADDR"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	UploadsDir string `envconfig:"UPLOADS_DIR"`
	// Фронтенд обычно живёт на другом порту, поэтому по умолчанию "*".
	CORSAllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"*"`

	OpenAI OpenAIConfig
	Store  StoreConfig
}

type OpenAIConfig struct {
	APIKey       string  `envconfig:"OPENAI_API_KEY"`
	BaseURL      string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	DefaultModel string  `envconfig:"OPENAI_DEFAULT_MODEL" default:"gpt-4o-mini"`
	MaxTokens    int     `envconfig:"OPENAI_MAX_TOKENS" default:"500"`
	Temperature  float64 `envconfig:"OPENAI_TEMPERATURE" default:"0.7"`
	// HeaderTimeout ограничивает только ожидание заголовков ответа, сам стрим не ограничен.
	HeaderTimeout time.Duration `envconfig:"UPSTREAM_HEADER_TIMEOUT" default:"60s"`
}

type StoreConfig struct {
	Backend  string        `envconfig:"STORE_BACKEND" default:"memory"`
	Path     string        `envconfig:"STORE_PATH" default:"data/conversations.json"`
	RedisURL string        `envconfig:"REDIS_URL"`
	RedisTTL time.Duration `envconfig:"REDIS_TTL" default:"0s"`
}

// Load читает .env (если есть) и переменные окружения.
// Без OPENAI_API_KEY возвращает ErrMissingAPIKey: сервер не должен стартовать.
func Load() (Config, error) {
	// .env необязателен: в проде переменные приходят из окружения.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	cfg.OpenAI.APIKey = strings.TrimSpace(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		return Config{}, ErrMissingAPIKey
	}
	cfg.OpenAI.BaseURL = strings.TrimSuffix(cfg.OpenAI.BaseURL, "/")

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":" + cfg.Port
	}

	switch strings.ToLower(cfg.Store.Backend) {
	case "memory", "file":
	case "redis":
		if cfg.Store.RedisURL == "" {
			return Config{}, fmt.Errorf("STORE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)

	return cfg, nil
}

// LoadClient читает только то, что нужно CLI-клиенту: ключ upstream ему не нужен.
func LoadClient() ClientConfig {
	_ = godotenv.Load()
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		cfg.ServerURL = "http://localhost:5000/api"
	}
	return cfg
}

type ClientConfig struct {
	ServerURL string `envconfig:"FOODRELAY_SERVER" default:"http://localhost:5000/api"`
	DataFile  string `envconfig:"FOODRELAY_DATA"`
}
