package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore держит диалоги в памяти и синхронизирует их с JSON-файлом на диске.
// Формат файла: JSON-объект map[conversationID]conversationData.
type FileStore struct {
	mem    *MemoryStore
	path   string
	logger *slog.Logger
}

// NewFileStore создает FileStore и загружает данные из указанного файла.
// Битый файл не мешает старту: логируем и начинаем с пустой карты.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("filestore path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fs := &FileStore{
		mem:    NewMemoryStore(),
		path:   path,
		logger: logger,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *FileStore) Get(ctx context.Context, id string) ([]Message, error) {
	return s.mem.Get(ctx, id)
}

// Append добавляет сообщения и атомарно записывает состояние на диск.
func (s *FileStore) Append(ctx context.Context, id string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	s.mem.appendLocked(id, messages)
	return s.persistLocked()
}

func (s *FileStore) Trim(ctx context.Context, id string, max int) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	before := len(s.mem.conversations[id].Messages)
	s.mem.trimLocked(id, max)
	if len(s.mem.conversations[id].Messages) == before {
		return nil
	}
	return s.persistLocked()
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if _, ok := s.mem.conversations[id]; !ok {
		return nil
	}
	delete(s.mem.conversations, id)
	return s.persistLocked()
}

func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	return s.mem.List(ctx)
}

func (s *FileStore) Count(ctx context.Context) (int, error) {
	return s.mem.Count(ctx)
}

func (s *FileStore) load() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create store dir")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		s.logger.Warn("filestore: read failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var raw map[string]conversationData
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("filestore: unmarshal failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return nil
	}

	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	for id, conv := range raw {
		s.mem.conversations[id] = conv
	}
	return nil
}

func (s *FileStore) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create store dir")
	}

	data, err := json.MarshalIndent(s.mem.conversations, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal conversations")
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

var _ Store = (*FileStore)(nil)
