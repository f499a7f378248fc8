package restaurant

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record — данные о заведении, которые клиент присылает вместе с вопросом.
// На сервере не хранятся: используются только для системного промпта.
type Record struct {
	Restaurant string   `json:"restaurant" yaml:"restaurant"`
	Location   string   `json:"location" yaml:"location"`
	FoodType   FlexList `json:"foodType,omitempty" yaml:"foodType,omitempty"`
	FoodMenu   FlexList `json:"foodMenu" yaml:"foodMenu"`
	Stars      Rating   `json:"stars" yaml:"stars"`
	Reviews    FlexList `json:"reviews" yaml:"reviews"`
}

// FlexList — список строк, терпимый к кривым данным.
// Принимает массив, строку с JSON-массивом (в том числе с одинарными кавычками)
// или просто строку; если строку не удалось разобрать, получается список из одного элемента.
type FlexList []string

func (l *FlexList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = flexFromAny(raw)
	return nil
}

func (l *FlexList) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*l = flexFromAny(raw)
	return nil
}

func flexFromAny(raw any) FlexList {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make(FlexList, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, scalarString(item))
		}
		return out
	case string:
		return parseListString(v)
	default:
		return FlexList{scalarString(v)}
	}
}

func parseListString(s string) FlexList {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []any
		if err := json.Unmarshal([]byte(strings.ReplaceAll(trimmed, "'", `"`)), &items); err == nil {
			return flexFromAny(items)
		}
	}
	return FlexList{s}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Rating — оценка заведения; в данных встречается и числом, и строкой.
type Rating string

func (r *Rating) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ratingFromAny(raw)
	return nil
}

func (r *Rating) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*r = ratingFromAny(raw)
	return nil
}

// MarshalJSON отдаёт число, если оценка числовая.
func (r Rating) MarshalJSON() ([]byte, error) {
	if f, err := strconv.ParseFloat(string(r), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return json.Marshal(f)
	}
	return json.Marshal(string(r))
}

func ratingFromAny(raw any) Rating {
	switch v := raw.(type) {
	case nil:
		return ""
	case int:
		return Rating(strconv.Itoa(v))
	default:
		return Rating(strings.TrimSpace(scalarString(v)))
	}
}
