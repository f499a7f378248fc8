package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "foodrelay:conversation"

// RedisStore хранит историю в Redis: список сообщений на диалог
// и sorted set с идентификаторами (score — время создания) для List.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore создаёт хранилище. ttl == 0 — диалоги не истекают;
// иначе TTL продлевается при каждой записи.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: defaultRedisPrefix, ttl: ttl, now: time.Now}
}

// NewRedisClient разбирает URL, проверяет соединение и возвращает клиента.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

func (s *RedisStore) messagesKey(id string) string {
	return fmt.Sprintf("%s:%s:messages", s.prefix, id)
}

func (s *RedisStore) idsKey() string {
	return s.prefix + ":ids"
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]Message, error) {
	rows, err := s.rdb.LRange(ctx, s.messagesKey(id), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load conversation %s", id)
	}
	return decodeMessages(id, rows)
}

func (s *RedisStore) Append(ctx context.Context, id string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return errors.Wrap(err, "marshal message")
		}
		values = append(values, b)
	}

	key := s.messagesKey(id)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.ZAddNX(ctx, s.idsKey(), redis.Z{Score: float64(s.now().UnixMilli()), Member: id})
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "append to conversation %s", id)
	}
	return nil
}

func (s *RedisStore) Trim(ctx context.Context, id string, max int) error {
	if max <= 0 {
		return s.Delete(ctx, id)
	}
	if err := s.rdb.LTrim(ctx, s.messagesKey(id), int64(-max), -1).Err(); err != nil {
		return errors.Wrapf(err, "trim conversation %s", id)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.messagesKey(id))
		pipe.ZRem(ctx, s.idsKey(), id)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	return nil
}

// List возвращает диалоги в порядке создания. Истёкшие по TTL
// идентификаторы лениво вычищаются из индекса.
func (s *RedisStore) List(ctx context.Context) ([]Summary, error) {
	ids, err := s.rdb.ZRange(ctx, s.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list conversation ids")
	}

	out := make([]Summary, 0, len(ids))
	var stale []any
	for _, id := range ids {
		key := s.messagesKey(id)
		n, err := s.rdb.LLen(ctx, key).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "count conversation %s", id)
		}
		if n == 0 {
			stale = append(stale, id)
			continue
		}
		last, err := s.rdb.LIndex(ctx, key, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(err, "read last message of %s", id)
		}
		summary := Summary{ID: id, MessageCount: int(n), LastMessage: "Empty"}
		var m Message
		if last != "" && json.Unmarshal([]byte(last), &m) == nil {
			summary.LastMessage = preview(m.Content)
		}
		out = append(out, summary)
	}

	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, s.idsKey(), stale...).Err(); err != nil {
			return nil, errors.Wrap(err, "prune expired conversation ids")
		}
	}
	return out, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func decodeMessages(id string, rows []string) ([]Message, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	msgs := make([]Message, 0, len(rows))
	for i, row := range rows {
		var m Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			return nil, errors.Wrapf(err, "unmarshal message %d of %s", i, id)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

var _ Store = (*RedisStore)(nil)
