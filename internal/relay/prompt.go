package relay

import (
	"strings"

	"foodrelay/internal/restaurant"
)

const personaPrompt = `You are a food recommender for locals and tourists in Hanoi, Vietnam. Please answer user questions about food in an energetic, friendly and useful way.`

const responseFormat = `Response format:
- Short and concise answers.  
- Use suitable emojis.
- Give specific and as much as possible recommendations from the data.
- Include the restaurant name, address, star ratings and menus.
- If the user asks about food or restaurant not in the data, recommend similar ones from the data.
- Be friendly and response in the user language.
- Remember and reference previous conversations for the best answers`

// SystemPrompt собирает системный промпт: персона + блок с данными о заведениях.
// Блок опускается, если записей нет.
func SystemPrompt(records []restaurant.Record) string {
	var b strings.Builder
	b.WriteString(personaPrompt)
	b.WriteString("\n\n")
	if data := restaurant.FormatContext(records); data != "" {
		b.WriteString("Current food data:\n")
		b.WriteString(data)
		b.WriteString("\n")
	}
	b.WriteString("\n\n")
	b.WriteString(responseFormat)
	return b.String()
}
