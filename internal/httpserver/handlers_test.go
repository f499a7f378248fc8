package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"foodrelay/internal/apierr"
	"foodrelay/internal/conversation"
	"foodrelay/internal/llm"
	"foodrelay/internal/metrics"
	"foodrelay/internal/relay"

	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	last     relay.Request
	complete func(req relay.Request) (relay.Result, error)
	stream   func(req relay.Request, sink relay.StreamSink) error
}

func (f *fakeRelay) Complete(ctx context.Context, req relay.Request) (relay.Result, error) {
	f.last = req
	return f.complete(req)
}

func (f *fakeRelay) Stream(ctx context.Context, req relay.Request, sink relay.StreamSink) error {
	f.last = req
	return f.stream(req, sink)
}

func newTestRouter(t *testing.T, rl ChatRelay, store conversation.Store) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	return NewRouter(RouterDeps{
		Logger: logger,
		API: NewHandlers(HandlersDeps{
			Relay:     rl,
			Store:     store,
			Metrics:   m,
			Logger:    logger,
			KeyLoaded: true,
		}),
		Metrics:    m.Handler(),
		CORSOrigin: "*",
	})
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apierr.Body {
	t.Helper()
	var env apierr.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env.Error
}

func TestChat_NonStreamingPassesBody(t *testing.T) {
	rl := &fakeRelay{complete: func(req relay.Request) (relay.Result, error) {
		return relay.Result{ConversationID: "conv_1", Body: []byte(`{"id":"x","conversationId":"conv_1"}`)}, nil
	}}
	h := newTestRouter(t, rl, conversation.NewMemoryStore())

	rr := do(h, http.MethodPost, "/api/chat",
		`{"messages":[{"role":"user","content":"hi"}],"conversationId":" conv_1 ","temperature":0,"max_tokens":100,
		  "restaurantData":[{"restaurant":"Pho 10","stars":4.5,"foodMenu":"['Pho']"}]}`)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"id":"x","conversationId":"conv_1"}`, rr.Body.String())
	require.Equal(t, "conv_1", rr.Header().Get("X-Conversation-Id"))

	require.Equal(t, "conv_1", rl.last.ConversationID)
	require.Equal(t, 100, rl.last.MaxTokens)
	require.NotNil(t, rl.last.Temperature)
	require.Equal(t, 0.0, *rl.last.Temperature)
	require.Len(t, rl.last.Restaurants, 1)
	require.Equal(t, []string{"Pho"}, []string(rl.last.Restaurants[0].FoodMenu))
}

func TestChat_RootPathAlsoServed(t *testing.T) {
	rl := &fakeRelay{complete: func(req relay.Request) (relay.Result, error) {
		return relay.Result{ConversationID: "c", Body: []byte(`{}`)}, nil
	}}
	h := newTestRouter(t, rl, conversation.NewMemoryStore())

	rr := do(h, http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestChat_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   apierr.Code
	}{
		{"no message", relay.ErrNoMessage, http.StatusBadRequest, apierr.CodeBadRequest},
		{"upstream auth", &llm.UpstreamError{StatusCode: 401, Body: []byte(`{"error":"bad key"}`)}, 401, apierr.CodeUpstreamAuth},
		{"upstream rate", &llm.UpstreamError{StatusCode: 429, Body: []byte(`slow down`)}, 429, apierr.CodeUpstreamRateLimited},
		{"unreachable", errors.Join(relay.ErrUpstreamUnreachable, errors.New("dial tcp")), http.StatusBadGateway, apierr.CodeUpstreamUnavailable},
		{"store", &relay.StoreError{Op: "get history", Err: errors.New("redis down")}, http.StatusInternalServerError, apierr.CodeStoreError},
		{"other", errors.New("boom"), http.StatusInternalServerError, apierr.CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rl := &fakeRelay{complete: func(relay.Request) (relay.Result, error) { return relay.Result{}, tc.err }}
			h := newTestRouter(t, rl, conversation.NewMemoryStore())

			rr := do(h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
			require.Equal(t, tc.status, rr.Code)
			body := decodeError(t, rr)
			require.Equal(t, tc.code, body.Code)
			require.Equal(t, tc.status, body.Status)
		})
	}
}

func TestChat_UpstreamErrorKeepsBodyInDetails(t *testing.T) {
	rl := &fakeRelay{complete: func(relay.Request) (relay.Result, error) {
		return relay.Result{}, &llm.UpstreamError{StatusCode: 400, Body: []byte(`{"error":{"message":"bad model"}}`)}
	}}
	h := newTestRouter(t, rl, conversation.NewMemoryStore())

	rr := do(h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	body := decodeError(t, rr)
	require.Equal(t, "OpenAI API Error: 400", body.Message)
	require.Equal(t, `{"error":{"message":"bad model"}}`, body.Details)
	require.Equal(t, apierr.CodeUpstreamError, body.Code)
}

func TestChat_MalformedBody(t *testing.T) {
	h := newTestRouter(t, &fakeRelay{}, conversation.NewMemoryStore())

	rr := do(h, http.MethodPost, "/api/chat", `{"messages":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, apierr.CodeBadRequest, decodeError(t, rr).Code)
}

func TestChat_StreamHeadersAndBody(t *testing.T) {
	raw := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"
	rl := &fakeRelay{stream: func(req relay.Request, sink relay.StreamSink) error {
		sink.Start("conv_s")
		_, _ = sink.Write([]byte(raw))
		sink.Flush()
		return nil
	}}
	h := newTestRouter(t, rl, conversation.NewMemoryStore())

	rr := do(h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	require.Equal(t, "keep-alive", rr.Header().Get("Connection"))
	require.Equal(t, "conv_s", rr.Header().Get("X-Conversation-Id"))
	require.Equal(t, raw, rr.Body.String())
	require.True(t, rr.Flushed)
	require.True(t, rl.last.Stream)
}

func TestChat_StreamErrorBeforeStartIsJSON(t *testing.T) {
	rl := &fakeRelay{stream: func(relay.Request, relay.StreamSink) error {
		return &llm.UpstreamError{StatusCode: 503, Body: []byte("down")}
	}}
	h := newTestRouter(t, rl, conversation.NewMemoryStore())

	rr := do(h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, apierr.CodeUpstreamUnavailable, decodeError(t, rr).Code)
}

func TestChat_StreamErrorAfterStartKeepsStream(t *testing.T) {
	rl := &fakeRelay{stream: func(req relay.Request, sink relay.StreamSink) error {
		sink.Start("conv_s")
		_, _ = sink.Write([]byte("data: {}\n\n"))
		return errors.New("connection reset")
	}}
	h := newTestRouter(t, rl, conversation.NewMemoryStore())

	rr := do(h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "data: {}\n\n", rr.Body.String())
}

func TestConversationEndpoints(t *testing.T) {
	ctx := context.Background()
	store := conversation.NewMemoryStore()
	require.NoError(t, store.Append(ctx, "conv_a",
		conversation.Message{Role: conversation.RoleUser, Content: "hi"},
		conversation.Message{Role: conversation.RoleAssistant, Content: "hello there"},
	))
	h := newTestRouter(t, &fakeRelay{}, store)

	rr := do(h, http.MethodGet, "/api/conversation/conv_a", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var conv conversationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conv))
	require.Equal(t, "conv_a", conv.ConversationID)
	require.Equal(t, 2, conv.MessageCount)
	require.Equal(t, "hello there", conv.Messages[1].Content)

	rr = do(h, http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[{"id":"conv_a","messageCount":2,"lastMessage":"hello there..."}]`, rr.Body.String())

	rr = do(h, http.MethodGet, "/api/health", "")
	require.JSONEq(t, `{"status":"Backend running successfully!","openaiKeyLoaded":true,"conversationsActive":1}`, rr.Body.String())

	rr = do(h, http.MethodDelete, "/api/conversation/conv_a", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"message":"Conversation cleared"}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/api/conversation/conv_a", "")
	require.JSONEq(t, `{"conversationId":"conv_a","messages":[],"messageCount":0}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/api/conversations", "")
	require.JSONEq(t, `[]`, rr.Body.String())
}

func TestPingAndMetrics(t *testing.T) {
	h := newTestRouter(t, &fakeRelay{}, conversation.NewMemoryStore())

	rr := do(h, http.MethodGet, "/ping", "")
	require.Equal(t, "pong", rr.Body.String())

	rr = do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "foodrelay_stream_bytes_relayed_total")
}
