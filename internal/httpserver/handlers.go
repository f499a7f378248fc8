package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"foodrelay/internal/apierr"
	"foodrelay/internal/conversation"
	"foodrelay/internal/llm"
	"foodrelay/internal/metrics"
	"foodrelay/internal/relay"
	"foodrelay/internal/restaurant"

	"github.com/go-chi/chi/v5"
)

const healthStatus = "Backend running successfully!"

// ChatRelay — то, что нужно хендлерам от relay.Service.
type ChatRelay interface {
	Complete(ctx context.Context, req relay.Request) (relay.Result, error)
	Stream(ctx context.Context, req relay.Request, sink relay.StreamSink) error
}

type HandlersDeps struct {
	Relay     ChatRelay
	Store     conversation.Store
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	KeyLoaded bool
}

type Handlers struct {
	relay     ChatRelay
	store     conversation.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
	keyLoaded bool
}

func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		relay:     deps.Relay,
		store:     deps.Store,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		keyLoaded: deps.KeyLoaded,
	}
}

// Mount регистрирует маршруты API.
func (h *Handlers) Mount(r chi.Router) {
	r.Post("/chat", h.chat)
	r.Get("/conversation/{id}", h.getConversation)
	r.Delete("/conversation/{id}", h.deleteConversation)
	r.Get("/conversations", h.listConversations)
	r.Get("/health", h.health)
}

type chatRequest struct {
	Messages       []llm.Message       `json:"messages"`
	ConversationID string              `json:"conversationId"`
	RestaurantData []restaurant.Record `json:"restaurantData"`
	Stream         bool                `json:"stream"`
	MaxTokens      int                 `json:"max_tokens"`
	Temperature    *float64            `json:"temperature"`
	Model          string              `json:"model"`
}

func (h *Handlers) chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.metrics.ChatRequest(false, "bad_request")
		WriteJSONError(w, http.StatusBadRequest, apierr.CodeBadRequest, "cannot parse chat request")
		return
	}

	req := relay.Request{
		Messages:       body.Messages,
		ConversationID: strings.TrimSpace(body.ConversationID),
		Restaurants:    body.RestaurantData,
		Stream:         body.Stream,
		Model:          body.Model,
		MaxTokens:      body.MaxTokens,
		Temperature:    body.Temperature,
	}

	if req.Stream {
		h.chatStream(w, r, req)
		return
	}

	res, err := h.relay.Complete(r.Context(), req)
	if err != nil {
		h.metrics.ChatRequest(false, h.writeRelayError(w, r, err))
		return
	}
	h.metrics.ChatRequest(false, "ok")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerConversationID, res.ConversationID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

func (h *Handlers) chatStream(w http.ResponseWriter, r *http.Request, req relay.Request) {
	sink := newHTTPSink(w)
	err := h.relay.Stream(r.Context(), req, sink)
	switch {
	case err == nil:
		h.metrics.ChatRequest(true, "ok")
	case !sink.started:
		h.metrics.ChatRequest(true, h.writeRelayError(w, r, err))
	default:
		// Заголовки уже ушли: ответить ошибкой нельзя, просто обрываем стрим.
		h.metrics.ChatRequest(true, "aborted")
		h.logger.Warn("stream aborted",
			slog.String("conversation_id", sink.conversationID),
			slog.String("error", err.Error()),
		)
	}
}

// writeRelayError пишет ошибку relay в едином формате и возвращает исход для метрик.
func (h *Handlers) writeRelayError(w http.ResponseWriter, r *http.Request, err error) string {
	if r.Context().Err() != nil {
		h.logger.Info("client went away", slog.String("error", err.Error()))
		return "canceled"
	}

	var upstreamErr *llm.UpstreamError
	var storeErr *relay.StoreError
	switch {
	case errors.Is(err, relay.ErrNoMessage):
		WriteJSONError(w, http.StatusBadRequest, apierr.CodeBadRequest, err.Error())
		return "bad_request"
	case errors.As(err, &upstreamErr):
		writeError(w, upstreamErr.StatusCode, apierr.Body{
			Code:    apierr.UpstreamCode(upstreamErr.StatusCode),
			Message: fmt.Sprintf("OpenAI API Error: %d", upstreamErr.StatusCode),
			Details: string(upstreamErr.Body),
		})
		return "upstream_error"
	case errors.Is(err, relay.ErrUpstreamUnreachable):
		h.logger.Error("upstream unreachable", slog.String("error", err.Error()))
		WriteJSONError(w, http.StatusBadGateway, apierr.CodeUpstreamUnavailable, "upstream API is unreachable")
		return "upstream_unreachable"
	case errors.As(err, &storeErr):
		h.logger.Error("store error", slog.String("error", err.Error()))
		WriteJSONError(w, http.StatusInternalServerError, apierr.CodeStoreError, "conversation store unavailable")
		return "store_error"
	default:
		h.logger.Error("chat failed", slog.String("error", err.Error()))
		WriteJSONError(w, http.StatusInternalServerError, apierr.CodeInternal, err.Error())
		return "internal"
	}
}

type conversationResponse struct {
	ConversationID string                 `json:"conversationId"`
	Messages       []conversation.Message `json:"messages"`
	MessageCount   int                    `json:"messageCount"`
}

func (h *Handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messages, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeFailure(w, "get conversation", err)
		return
	}
	if messages == nil {
		messages = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{
		ConversationID: id,
		Messages:       messages,
		MessageCount:   len(messages),
	})
}

func (h *Handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeFailure(w, "delete conversation", err)
		return
	}
	if n, err := h.store.Count(r.Context()); err == nil {
		h.metrics.ActiveConversations(n)
	}
	h.logger.Info("conversation cleared", slog.String("conversation_id", id))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation cleared"})
}

func (h *Handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.storeFailure(w, "list conversations", err)
		return
	}
	if list == nil {
		list = []conversation.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

type healthResponse struct {
	Status              string `json:"status"`
	OpenAIKeyLoaded     bool   `json:"openaiKeyLoaded"`
	ConversationsActive int    `json:"conversationsActive"`
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		h.storeFailure(w, "count conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              healthStatus,
		OpenAIKeyLoaded:     h.keyLoaded,
		ConversationsActive: n,
	})
}

func (h *Handlers) storeFailure(w http.ResponseWriter, op string, err error) {
	h.logger.Error("store failure", slog.String("op", op), slog.String("error", err.Error()))
	WriteJSONError(w, http.StatusInternalServerError, apierr.CodeStoreError, "conversation store unavailable")
}
