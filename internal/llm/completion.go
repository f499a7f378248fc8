package llm

import (
	"encoding/json"
	"fmt"
)

// Completion — не-стриминговый ответ upstream. Raw сохраняет все поля
// как есть, чтобы вернуть их клиенту без потерь.
type Completion struct {
	Raw     map[string]json.RawMessage
	Message *Message
}

// ParseCompletion разбирает тело ответа и достаёт choices[0].message, если он есть.
func ParseCompletion(body []byte) (Completion, error) {
	var c Completion
	if err := json.Unmarshal(body, &c.Raw); err != nil {
		return Completion{}, fmt.Errorf("decode completion: %w", err)
	}

	var parsed struct {
		Choices []struct {
			Message *Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
		c.Message = parsed.Choices[0].Message
	}
	return c, nil
}

// WithField возвращает JSON ответа с добавленным полем key.
func (c Completion) WithField(key string, value any) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Raw)+1)
	for k, v := range c.Raw {
		out[k] = v
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	out[key] = encoded
	return json.Marshal(out)
}
