package ai

import "strings"

// StripFences removes markdown code fence markers (```json and ```) that
// models often wrap around JSON answers.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
