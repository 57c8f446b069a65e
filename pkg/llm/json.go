package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches a leading <think>...</think> block some reasoning models emit.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ExtractJSON returns the first valid JSON object in an LLM response. It
// tolerates a leading <think> block, markdown fences and surrounding prose.
// Objects that fail to parse are skipped in favour of later candidates.
func ExtractJSON(response string) (string, error) {
	cleaned := strings.TrimSpace(thinkTagPattern.ReplaceAllString(response, ""))
	if cleaned == "" {
		return "", fmt.Errorf("empty response")
	}

	if json.Valid([]byte(cleaned)) && strings.HasPrefix(cleaned, "{") {
		return cleaned, nil
	}

	for offset := 0; offset < len(cleaned); {
		start := strings.IndexByte(cleaned[offset:], '{')
		if start < 0 {
			break
		}
		start += offset
		end, ok := balancedEnd(cleaned, start)
		if !ok {
			break
		}
		candidate := cleaned[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
		offset = start + 1
	}

	return "", fmt.Errorf("no valid JSON object found in response")
}

// balancedEnd returns the index of the brace closing the object opened at start.
// Braces inside string literals are ignored.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
