package utils

import (
	"regexp"
	"strings"
)

var (
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
	jsonArrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
)

// StripCodeFence removes a surrounding Markdown code fence (``` or ```json)
// from model output.
func StripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

// ExtractJSONObject returns the span from the first '{' to the last '}' of
// text, or the trimmed text unchanged when it holds no braces.
func ExtractJSONObject(text string) string {
	if match := jsonObjectRe.FindString(text); match != "" {
		return match
	}
	return strings.TrimSpace(text)
}

// ExtractJSONArray returns the span from the first '[' to the last ']' of
// text, or the trimmed text unchanged when it holds no brackets.
func ExtractJSONArray(text string) string {
	if match := jsonArrayRe.FindString(text); match != "" {
		return match
	}
	return strings.TrimSpace(text)
}
