package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"foodrelay/internal/conversation"
	"foodrelay/internal/llm"
	"foodrelay/internal/metrics"
	"foodrelay/internal/restaurant"
)

var (
	// ErrNoMessage — в запросе нет ни одного сообщения, кроме системных.
	ErrNoMessage = errors.New("messages must contain at least one non-system message")
	// ErrUpstreamUnreachable — до upstream не удалось достучаться (сеть, DNS, таймаут заголовков).
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// StoreError — хранилище истории не ответило до запроса в upstream.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("conversation store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Defaults — параметры генерации, если клиент их не передал.
type Defaults struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Request — один ход диалога от клиента.
type Request struct {
	Messages       []llm.Message
	ConversationID string
	Restaurants    []restaurant.Record
	Stream         bool
	Model          string
	MaxTokens      int
	Temperature    *float64
}

// Result — ответ в не-стриминговом режиме: JSON upstream с добавленным conversationId.
type Result struct {
	ConversationID string
	Body           []byte
}

// StreamSink принимает байты стрима. Start вызывается ровно один раз,
// после успешного ответа upstream и до первой записи.
type StreamSink interface {
	Start(conversationID string)
	Write(p []byte) (int, error)
	Flush()
}

// Service собирает контекст диалога, ходит в upstream и обновляет историю.
type Service struct {
	client   llm.Client
	store    conversation.Store
	locker   *conversation.Locker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	defaults Defaults
	now      func() time.Time
}

type Config struct {
	Client   llm.Client
	Store    conversation.Store
	Locker   *conversation.Locker
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Defaults Defaults
}

func NewService(cfg Config) *Service {
	locker := cfg.Locker
	if locker == nil {
		locker = conversation.NewLocker()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:   cfg.Client,
		store:    cfg.Store,
		locker:   locker,
		metrics:  cfg.Metrics,
		logger:   logger,
		defaults: cfg.Defaults,
		now:      time.Now,
	}
}

// exchange — подготовленный ход: запрос в upstream и сообщение пользователя для истории.
type exchange struct {
	id      string
	upReq   llm.ChatRequest
	userMsg llm.Message
	unlock  func()
}

// prepare блокирует диалог, читает историю и собирает полный список сообщений:
// system + история + новые сообщения клиента без system.
func (s *Service) prepare(ctx context.Context, req Request) (*exchange, error) {
	incoming := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == conversation.RoleSystem {
			continue
		}
		incoming = append(incoming, m)
	}
	if len(incoming) == 0 {
		return nil, ErrNoMessage
	}

	id := req.ConversationID
	if id == "" {
		id = conversation.NewID(s.now())
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}

	history, err := s.store.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, &StoreError{Op: "get history", Err: err}
	}

	messages := make([]llm.Message, 0, len(history)+len(incoming)+1)
	messages = append(messages, llm.Message{Role: conversation.RoleSystem, Content: SystemPrompt(req.Restaurants)})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, incoming...)

	s.logger.Info("chat exchange",
		slog.String("conversation_id", id),
		slog.Int("history", len(history)),
		slog.Int("restaurants", len(req.Restaurants)),
		slog.Int("upstream_messages", len(messages)),
		slog.Bool("stream", req.Stream),
	)

	return &exchange{
		id:      id,
		upReq:   s.buildRequest(req, messages),
		userMsg: incoming[len(incoming)-1],
		unlock:  unlock,
	}, nil
}

func (s *Service) buildRequest(req Request, messages []llm.Message) llm.ChatRequest {
	out := llm.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: s.defaults.Temperature,
	}
	if out.Model == "" {
		out.Model = s.defaults.Model
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = s.defaults.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	return out
}

// Complete выполняет не-стриминговый ход.
// Ошибка upstream (*llm.UpstreamError) возвращается как есть, история не меняется.
func (s *Service) Complete(ctx context.Context, req Request) (Result, error) {
	req.Stream = false
	ex, err := s.prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}
	defer ex.unlock()

	resp, err := s.call(ctx, ex)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read upstream response: %w", err)
	}
	completion, err := llm.ParseCompletion(body)
	if err != nil {
		return Result{}, err
	}

	if completion.Message != nil {
		s.save(ctx, ex, *completion.Message)
	}

	out, err := completion.WithField("conversationId", ex.id)
	if err != nil {
		return Result{}, err
	}
	return Result{ConversationID: ex.id, Body: out}, nil
}

func (s *Service) call(ctx context.Context, ex *exchange) (*http.Response, error) {
	resp, err := s.client.Complete(ctx, ex.upReq)
	var upstreamErr *llm.UpstreamError
	switch {
	case errors.As(err, &upstreamErr):
		s.metrics.UpstreamStatus(upstreamErr.StatusCode)
		s.logger.Error("upstream error",
			slog.String("conversation_id", ex.id),
			slog.Int("status", upstreamErr.StatusCode),
			slog.String("body", string(upstreamErr.Body)),
		)
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}
	s.metrics.UpstreamStatus(resp.StatusCode)
	return resp, nil
}

// save дописывает пользователя и ассистента в историю и обрезает её до MaxHistory.
// Ответ клиент уже получил, поэтому ошибки хранилища только логируются.
func (s *Service) save(ctx context.Context, ex *exchange, assistant llm.Message) {
	if assistant.Role == "" {
		assistant.Role = conversation.RoleAssistant
	}
	now := s.now()
	err := s.store.Append(ctx, ex.id,
		conversation.Message{Role: ex.userMsg.Role, Content: ex.userMsg.Content, Timestamp: now},
		conversation.Message{Role: assistant.Role, Content: assistant.Content, Timestamp: now},
	)
	if err == nil {
		err = s.store.Trim(ctx, ex.id, conversation.MaxHistory)
	}
	if err != nil {
		s.logger.Error("failed to save conversation history",
			slog.String("conversation_id", ex.id),
			slog.String("error", err.Error()),
		)
		return
	}

	if n, err := s.store.Count(ctx); err == nil {
		s.metrics.ActiveConversations(n)
	}
	s.logger.Info("conversation saved", slog.String("conversation_id", ex.id))
}
