package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"foodrelay/internal/conversation"
	"foodrelay/internal/llm"
)

const streamBufferSize = 4 * 1024

// Stream выполняет стриминговый ход: каждый кусок upstream уходит в sink
// байт в байт и параллельно разбирается, чтобы собрать ответ для истории.
// Если ошибка возникла до sink.Start, вызывающий ещё может ответить ошибкой.
func (s *Service) Stream(ctx context.Context, req Request, sink StreamSink) error {
	req.Stream = true
	ex, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}
	defer ex.unlock()

	resp, err := s.call(ctx, ex)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sink.Start(ex.id)

	parser := llm.NewStreamParser()
	buf := make([]byte, streamBufferSize)
	relayed := 0
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := sink.Write(chunk); err != nil {
				s.metrics.StreamBytes(relayed)
				return fmt.Errorf("write to client: %w", err)
			}
			sink.Flush()
			relayed += n
			parser.Feed(chunk)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			s.metrics.StreamBytes(relayed)
			s.metrics.SkippedFragments(parser.Skipped())
			return fmt.Errorf("read upstream stream: %w", readErr)
		}
	}
	parser.Close()

	s.metrics.StreamBytes(relayed)
	s.metrics.SkippedFragments(parser.Skipped())
	if parser.Skipped() > 0 {
		s.logger.Warn("skipped undecodable stream fragments",
			slog.String("conversation_id", ex.id),
			slog.Int("skipped", parser.Skipped()),
		)
	}

	if text := parser.Text(); text != "" {
		s.save(ctx, ex, llm.Message{Role: conversation.RoleAssistant, Content: text})
	}
	return nil
}
