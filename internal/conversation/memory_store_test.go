package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_GetEmpty(t *testing.T) {
	store := NewMemoryStore()

	messages, err := store.Get(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history, got: %v", messages)
	}
}

func TestMemoryStore_AppendAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Append(ctx, "conv1", Message{Role: RoleUser, Content: "Xin chào"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "conv1", Message{Role: RoleAssistant, Content: "Chào bạn"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	messages, err := store.Get(ctx, "conv1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got: %d", len(messages))
	}
	if messages[0].Role != RoleUser || messages[1].Role != RoleAssistant {
		t.Fatalf("unexpected order: %v", messages)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Append(ctx, "conv1", Message{Role: RoleUser, Content: "original"})

	messages, _ := store.Get(ctx, "conv1")
	messages[0].Content = "changed"

	again, _ := store.Get(ctx, "conv1")
	if again[0].Content != "original" {
		t.Fatalf("store was mutated through returned slice: %q", again[0].Content)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Append(ctx, "conv1", Message{Role: RoleUser, Content: "Test"})
	if err := store.Delete(ctx, "conv1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	messages, err := store.Get(ctx, "conv1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history after delete, got: %v", messages)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("expected 0 conversations, got %d", n)
	}
}

func TestMemoryStore_TrimKeepsNewest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_ = store.Append(ctx, "conv1", Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	if err := store.Trim(ctx, "conv1", MaxHistory); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}

	messages, _ := store.Get(ctx, "conv1")
	if len(messages) != MaxHistory {
		t.Fatalf("expected %d messages, got %d", MaxHistory, len(messages))
	}
	// Удаляются самые старые, порядок остальных сохраняется.
	for i, m := range messages {
		want := fmt.Sprintf("m%d", i+5)
		if m.Content != want {
			t.Fatalf("message %d: expected %s, got %s", i, want, m.Content)
		}
	}
}

func TestMemoryStore_ListInCreationOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	_ = store.Append(ctx, "b", Message{Role: RoleUser, Content: "first"})
	_ = store.Append(ctx, "a", Message{Role: RoleUser, Content: strings.Repeat("phở ", 20)})

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(list))
	}
	if list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("expected creation order [b a], got [%s %s]", list[0].ID, list[1].ID)
	}
	if list[0].LastMessage != "first..." {
		t.Fatalf("unexpected preview: %q", list[0].LastMessage)
	}
	if got := []rune(list[1].LastMessage); len(got) != 53 {
		t.Fatalf("expected 50 runes + ellipsis, got %d", len(got))
	}
}

func TestMemoryStore_Concurrency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	iterations := 100

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			convID := string(rune('A' + id))
			for j := 0; j < iterations; j++ {
				if err := store.Append(ctx, convID, Message{Role: RoleUser, Content: "msg"}); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if _, err := store.List(ctx); err != nil {
					t.Errorf("List failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		convID := string(rune('A' + i))
		messages, _ := store.Get(ctx, convID)
		if len(messages) != iterations {
			t.Fatalf("expected %d messages for %s, got: %d", iterations, convID, len(messages))
		}
	}
}
