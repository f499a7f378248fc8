package llm

import (
	"errors"
	"fmt"
)

var ErrInvalidModel = errors.New("model is required")

// UpstreamError — upstream ответил не-2xx. Статус и тело пробрасываются клиенту как есть.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, string(e.Body))
}
