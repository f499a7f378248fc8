package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// conversationData содержит историю диалога и метаданные.
type conversationData struct {
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
	LastTouched time.Time `json:"lastTouched"`
}

// MemoryStore потокобезопасное in-memory хранилище диалогов.
// Всё хранится в памяти процесса и теряется при перезапуске.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]conversationData
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]conversationData),
		now:           time.Now,
	}
}

// Get возвращает копию истории, чтобы вызывающий код не менял её снаружи.
func (s *MemoryStore) Get(ctx context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.conversations[id]
	if !ok || len(data.Messages) == 0 {
		return nil, nil
	}
	messages := make([]Message, len(data.Messages))
	copy(messages, data.Messages)
	return messages, nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(id, messages)
	return nil
}

func (s *MemoryStore) appendLocked(id string, messages []Message) {
	now := s.now()
	data, ok := s.conversations[id]
	if !ok {
		data = conversationData{
			Messages:  make([]Message, 0, len(messages)),
			CreatedAt: now,
		}
	}
	data.Messages = append(data.Messages, messages...)
	data.LastTouched = now
	s.conversations[id] = data
}

func (s *MemoryStore) Trim(ctx context.Context, id string, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimLocked(id, max)
	return nil
}

func (s *MemoryStore) trimLocked(id string, max int) {
	data, ok := s.conversations[id]
	if !ok {
		return
	}
	data.Messages = trimTail(data.Messages, max)
	s.conversations[id] = data
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
	return nil
}

// List возвращает диалоги в порядке создания.
func (s *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.orderedIDsLocked()
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		out = append(out, summarize(id, s.conversations[id].Messages))
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations), nil
}

func (s *MemoryStore) orderedIDsLocked() []string {
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.conversations[ids[i]], s.conversations[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return ids[i] < ids[j]
	})
	return ids
}

var _ Store = (*MemoryStore)(nil)
