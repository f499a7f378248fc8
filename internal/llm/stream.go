package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

const streamDone = "[DONE]"

// Delta — кусок текста ассистента, извлечённый из одного события стрима.
type Delta struct {
	Content      string
	FinishReason string
}

// StreamParser инкрементально разбирает SSE-поток chat completions.
// Байты можно подавать произвольными кусками: незавершённая строка
// ждёт следующего Feed. Битые JSON-фрагменты пропускаются, стрим не прерывается.
type StreamParser struct {
	pending []byte
	text    strings.Builder
	skipped int
	done    bool
}

func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Feed добавляет байты и возвращает дельты из всех завершённых строк.
func (p *StreamParser) Feed(chunk []byte) []Delta {
	p.pending = append(p.pending, chunk...)

	var out []Delta
	for {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx < 0 {
			break
		}
		line := p.pending[:idx]
		p.pending = p.pending[idx+1:]
		if d, ok := p.parseLine(line); ok {
			out = append(out, d)
		}
	}
	// Буфер не растёт бесконечно: пустой хвост отпускаем.
	if len(p.pending) == 0 {
		p.pending = nil
	}
	return out
}

// Close разбирает хвост без завершающего перевода строки.
func (p *StreamParser) Close() []Delta {
	if len(p.pending) == 0 {
		return nil
	}
	line := p.pending
	p.pending = nil
	if d, ok := p.parseLine(line); ok {
		return []Delta{d}
	}
	return nil
}

// Text — весь накопленный текст ассистента.
func (p *StreamParser) Text() string {
	return p.text.String()
}

// Done сообщает, пришёл ли маркер [DONE].
func (p *StreamParser) Done() bool {
	return p.done
}

// Skipped — сколько data-строк не удалось разобрать.
func (p *StreamParser) Skipped() int {
	return p.skipped
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *StreamParser) parseLine(line []byte) (Delta, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte("data:")) {
		return Delta{}, false
	}
	payload := bytes.TrimSpace(line[len("data:"):])
	if len(payload) == 0 {
		return Delta{}, false
	}
	if string(payload) == streamDone {
		p.done = true
		return Delta{}, false
	}

	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		p.skipped++
		return Delta{}, false
	}
	if len(chunk.Choices) == 0 {
		return Delta{}, false
	}

	d := Delta{Content: chunk.Choices[0].Delta.Content}
	if fr := chunk.Choices[0].FinishReason; fr != nil {
		d.FinishReason = *fr
	}
	if d.Content == "" && d.FinishReason == "" {
		return Delta{}, false
	}
	p.text.WriteString(d.Content)
	return d, true
}
