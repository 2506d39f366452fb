package llm

import (
	"encoding/json"
	"log"
	"strings"
)

// ParseJSONResponse parses a JSON response from an LLM, handling markdown code blocks.
func ParseJSONResponse(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		log.Printf("Failed to parse LLM response as JSON: %v", err)
		return nil
	}

	return result
}

// StripEnclosingQuotes removes one pair of matching quote characters that
// wraps the whole text. Models occasionally return the reply quoted.
func StripEnclosingQuotes(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return text
	}
	first, last := text[0], text[len(text)-1]
	if first == last && (first == '"' || first == '\'') {
		return strings.TrimSpace(text[1 : len(text)-1])
	}
	// Curly quote pair.
	if strings.HasPrefix(text, "“") && strings.HasSuffix(text, "”") {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "“"), "”"))
	}
	return text
}
