package llm

import (
	"context"
	"net/http"
)

// Client минимальный интерфейс upstream chat completions API.
// При успехе возвращает ответ с открытым телом — закрывает вызывающий.
// Не-2xx статус возвращается как *UpstreamError, тело уже прочитано.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (*http.Response, error)
}

// Message — сообщение в формате OpenAI chat completions.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest тело запроса POST /chat/completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}
