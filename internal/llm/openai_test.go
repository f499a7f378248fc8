package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"foodrelay/internal/config"

	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Complete(t *testing.T) {
	var (
		got        ChatRequest
		gotPath    string
		gotAuthHdr string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuthHdr = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(server.Close)

	client := NewOpenAIClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"}, server.Client(), nil)
	resp, err := client.Complete(context.Background(), ChatRequest{
		Model:       "gpt-4o-mini",
		Messages:    []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "hi"}},
		MaxTokens:   500,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	completion, err := ParseCompletion(body)
	require.NoError(t, err)
	require.NotNil(t, completion.Message)
	require.Equal(t, "ok", completion.Message.Content)

	require.Equal(t, "/v1/chat/completions", gotPath)
	require.Equal(t, "Bearer sk-test", gotAuthHdr)
	require.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, 500, got.MaxTokens)
	require.False(t, got.Stream)
}

func TestOpenAIClient_UpstreamErrorPassesBodyVerbatim(t *testing.T) {
	const upstreamBody = `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(upstreamBody))
	}))
	t.Cleanup(server.Close)

	client := NewOpenAIClient(config.OpenAIConfig{APIKey: "bad", BaseURL: server.URL}, server.Client(), nil)
	_, err := client.Complete(context.Background(), ChatRequest{Model: "m"})

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	require.Equal(t, http.StatusUnauthorized, upstreamErr.StatusCode)
	require.Equal(t, upstreamBody, string(upstreamErr.Body))
}

func TestOpenAIClient_RequiresModel(t *testing.T) {
	client := NewOpenAIClient(config.OpenAIConfig{BaseURL: "http://unused"}, http.DefaultClient, nil)
	_, err := client.Complete(context.Background(), ChatRequest{})
	require.ErrorIs(t, err, ErrInvalidModel)
}

func TestCompletion_WithFieldKeepsUpstreamFields(t *testing.T) {
	completion, err := ParseCompletion([]byte(`{"id":"x","usage":{"total_tokens":3},"choices":[]}`))
	require.NoError(t, err)
	require.Nil(t, completion.Message)

	out, err := completion.WithField("conversationId", "conv_1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"x","usage":{"total_tokens":3},"choices":[],"conversationId":"conv_1"}`, string(out))
}
