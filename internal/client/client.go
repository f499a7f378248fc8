// Package client — Go-клиент для HTTP API relay: проверка готовности,
// диалог со стримингом ответа и очистка истории.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"foodrelay/internal/apierr"
	"foodrelay/internal/conversation"
	"foodrelay/internal/llm"
	"foodrelay/internal/restaurant"
	"foodrelay/internal/retry"
)

const headerConversationID = "X-Conversation-Id"

// ErrKeyNotLoaded — сервер отвечает, но ключ upstream у него не загружен.
var ErrKeyNotLoaded = errors.New("backend is up but OpenAI key is not loaded")

type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

type Option func(*Client)

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New создаёт клиент; baseURL указывает на префикс API, например http://localhost:5000/api.
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		policy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Health struct {
	Status              string `json:"status"`
	OpenAIKeyLoaded     bool   `json:"openaiKeyLoaded"`
	ConversationsActive int    `json:"conversationsActive"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.getJSON(ctx, "/health", &h)
	return h, err
}

// WaitHealthy ждёт, пока сервер ответит на /health с загруженным ключом.
func (c *Client) WaitHealthy(ctx context.Context) (Health, error) {
	var last Health
	err := retry.Poll(ctx, c.policy, c.logger, func(ctx context.Context) (bool, error) {
		h, err := c.Health(ctx)
		if err != nil {
			return false, err
		}
		last = h
		if !h.OpenAIKeyLoaded {
			return false, ErrKeyNotLoaded
		}
		return true, nil
	})
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return last, cerr
		}
		return last, err
	}
	return last, nil
}

type ChatInput struct {
	ConversationID string
	Messages       []llm.Message
	Restaurants    []restaurant.Record
	Model          string
	MaxTokens      int
	Temperature    *float64
}

type ChatOutput struct {
	ConversationID string
	Text           string
}

type chatBody struct {
	Messages       []llm.Message       `json:"messages"`
	ConversationID string              `json:"conversationId,omitempty"`
	RestaurantData []restaurant.Record `json:"restaurantData"`
	Stream         bool                `json:"stream"`
	Model          string              `json:"model,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    *float64            `json:"temperature,omitempty"`
}

// Chat отправляет ход диалога в режиме стриминга. onToken получает текст по мере прихода,
// итоговый текст и id диалога возвращаются в ChatOutput.
func (c *Client) Chat(ctx context.Context, in ChatInput, onToken func(string)) (ChatOutput, error) {
	records := in.Restaurants
	if records == nil {
		records = []restaurant.Record{}
	}
	payload, err := json.Marshal(chatBody{
		Messages:       in.Messages,
		ConversationID: in.ConversationID,
		RestaurantData: records,
		Stream:         true,
		Model:          in.Model,
		MaxTokens:      in.MaxTokens,
		Temperature:    in.Temperature,
	})
	if err != nil {
		return ChatOutput{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return ChatOutput{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatOutput{}, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChatOutput{}, decodeAPIError(resp)
	}

	out := ChatOutput{ConversationID: resp.Header.Get(headerConversationID)}
	if out.ConversationID == "" {
		out.ConversationID = in.ConversationID
	}

	parser := llm.NewStreamParser()
	emit := func(deltas []llm.Delta) {
		if onToken == nil {
			return
		}
		for _, d := range deltas {
			if d.Content != "" {
				onToken(d.Content)
			}
		}
	}

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			emit(parser.Feed(buf[:n]))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Text = parser.Text()
			return out, unreachable(readErr)
		}
	}
	emit(parser.Close())

	out.Text = parser.Text()
	if parser.Skipped() > 0 && c.logger != nil {
		c.logger.Debug("skipped stream fragments", slog.Int("count", parser.Skipped()))
	}
	return out, nil
}

// Clear удаляет историю диалога на сервере; вызывающий сбрасывает свой id.
func (c *Client) Clear(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/conversation/"+conversationID, nil)
	if err != nil {
		return fmt.Errorf("build clear request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) Conversations(ctx context.Context) ([]conversation.Summary, error) {
	var list []conversation.Summary
	err := c.getJSON(ctx, "/conversations", &list)
	return list, err
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &Error{Category: CategoryServer, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func unreachable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Category: CategoryUnreachable, Message: err.Error(), Err: err}
}

// decodeAPIError читает конверт ошибки; без конверта категория выводится из статуса.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env apierr.Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		return &Error{
			Category: categoryFor(env.Error.Code),
			Code:     env.Error.Code,
			Status:   resp.StatusCode,
			Message:  env.Error.Message,
		}
	}

	code := apierr.CodeInternal
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		code = apierr.CodeBadRequest
	case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable:
		code = apierr.CodeUpstreamUnavailable
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Category: categoryFor(code), Code: code, Status: resp.StatusCode, Message: msg}
}
