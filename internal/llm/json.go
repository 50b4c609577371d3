package llm

import "strings"

// ExtractJSON pulls a JSON payload out of a language model response,
// unwrapping ```json ... ``` or bare ``` ... ``` code fences if
// present, or returning the trimmed input unchanged otherwise. Models
// routinely wrap structured output in prose or markdown even when
// asked not to.
func ExtractJSON(s string) string {
	if start := strings.Index(s, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if start := strings.Index(s, "```"); start != -1 {
		start += len("```")
		if end := strings.Index(s[start:], "```"); end != -1 {
			// Drop whatever follows the opening fence on its own line
			// (a language tag, or nothing) before trimming.
			content := s[start : start+end]
			if idx := strings.Index(content, "\n"); idx != -1 {
				content = content[idx+1:]
			}
			return strings.TrimSpace(content)
		}
	}
	return strings.TrimSpace(s)
}
