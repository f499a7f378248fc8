package conversation

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locker сериализует обмены внутри одного диалога: пока идёт запрос
// к модели, второй запрос с тем же id ждёт, а не перемешивает историю.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocker() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

// Lock блокирует диалог id. Возвращает функцию разблокировки
// или ошибку контекста, если ожидание было прервано.
func (l *Locker) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		l.slots[id] = s
	}
	s.refs++
	l.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		l.release(id, s, false)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(id, s, true) })
	}, nil
}

func (l *Locker) release(id string, s *slot, acquired bool) {
	if acquired {
		s.sem.Release(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

// Len возвращает число диалогов, по которым сейчас кто-то держит или ждёт блокировку.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
