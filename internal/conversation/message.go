package conversation

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Роли сообщений в формате chat completions.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxHistory — сколько последних сообщений (10 обменов) хранится на диалог.
const MaxHistory = 20

const previewRunes = 50

// Message представляет одно сообщение в истории диалога.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary — краткое описание диалога для списка.
type Summary struct {
	ID           string `json:"id"`
	MessageCount int    `json:"messageCount"`
	LastMessage  string `json:"lastMessage"`
}

// NewID генерирует идентификатор вида conv_<unix ms>_<9 символов>.
func NewID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "conv_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + random
}

func summarize(id string, messages []Message) Summary {
	s := Summary{ID: id, MessageCount: len(messages), LastMessage: "Empty"}
	if len(messages) > 0 {
		s.LastMessage = preview(messages[len(messages)-1].Content)
	}
	return s
}

func preview(content string) string {
	if utf8.RuneCountInString(content) > previewRunes {
		content = string([]rune(content)[:previewRunes])
	}
	return content + "..."
}

// trimTail оставляет последние max сообщений, сохраняя порядок.
func trimTail(messages []Message, max int) []Message {
	if max < 0 {
		max = 0
	}
	if len(messages) <= max {
		return messages
	}
	out := make([]Message, max)
	copy(out, messages[len(messages)-max:])
	return out
}
