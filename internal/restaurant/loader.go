package restaurant

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile читает записи из YAML или JSON файла (JSON — подмножество YAML).
// Записи без названия отбрасываются.
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read restaurant file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]Record, error) {
	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode restaurant records: %w", err)
	}

	out := records[:0]
	for _, r := range records {
		if strings.TrimSpace(r.Restaurant) == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
