package conversation

import "context"

// Store хранит историю диалогов по идентификатору.
// Реализации: MemoryStore (по умолчанию), FileStore, RedisStore.
type Store interface {
	// Get возвращает историю диалога; для неизвестного id — пустой срез без ошибки.
	Get(ctx context.Context, id string) ([]Message, error)

	// Append добавляет сообщения в конец истории, создавая диалог при первом обращении.
	Append(ctx context.Context, id string, messages ...Message) error

	// Trim оставляет только последние max сообщений.
	Trim(ctx context.Context, id string, max int) error

	// Delete удаляет диалог целиком.
	Delete(ctx context.Context, id string) error

	// List возвращает краткую сводку по всем диалогам.
	List(ctx context.Context) ([]Summary, error)

	// Count возвращает количество активных диалогов.
	Count(ctx context.Context) (int, error)
}
