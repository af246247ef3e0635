package llm

import "strings"

// ExtractJSON pulls a JSON object out of a model response. Models wrap their
// JSON in markdown fences or surround it with prose often enough that every
// structured-response caller needs the same unwrapping. Returns "" when no
// object can be located.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if body, ok := fencedBlock(response, "```json"); ok {
		return body
	}
	if body, ok := fencedBlock(response, "```"); ok && strings.HasPrefix(body, "{") {
		return body
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}
	return balancedObject(response, start)
}

// fencedBlock returns the trimmed content of the first code fence opened by
// marker, when the response also closes it.
func fencedBlock(s, marker string) (string, bool) {
	start := strings.Index(s, marker)
	if start == -1 {
		return "", false
	}
	start += len(marker)
	end := strings.Index(s[start:], "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(s[start : start+end]), true
}

// balancedObject returns the object whose opening brace sits at start.
// String literals are tracked so braces and escaped quotes inside them do
// not count toward nesting. Returns "" when the braces never balance.
func balancedObject(s string, start int) string {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// TruncateString shortens s to maxLen for log previews, marking the cut
// with "...".
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
