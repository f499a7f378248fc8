package restaurant

import (
	"fmt"
	"strings"
)

const maxReviews = 2

// FormatContext строит текстовый блок для системного промпта: одна строка на заведение.
func FormatContext(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, formatRecord(r))
	}
	return strings.Join(lines, "\n")
}

func formatRecord(r Record) string {
	reviews := r.Reviews
	if len(reviews) > maxReviews {
		reviews = reviews[:maxReviews]
	}
	return fmt.Sprintf("%s (%s): %s - %s⭐ - Reviews: %s",
		r.Restaurant,
		r.Location,
		strings.Join(r.FoodMenu, ", "),
		r.Stars,
		strings.Join(reviews, "; "),
	)
}
