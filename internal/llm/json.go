package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSONResponse removes markdown code fences around a JSON response.
func CleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	if strings.HasPrefix(resp, "```") {
		if nl := strings.Index(resp, "\n"); nl >= 0 {
			resp = resp[nl+1:]
		} else {
			resp = strings.TrimPrefix(resp, "```json")
			resp = strings.TrimPrefix(resp, "```")
		}
		resp = strings.TrimSuffix(strings.TrimSpace(resp), "```")
	}
	return strings.TrimSpace(resp)
}

// ExtractJSON returns the first balanced JSON object or array in s, or ""
// when none is found. String literals are honoured when matching brackets.
func ExtractJSON(s string) string {
	s = CleanJSONResponse(s)
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}
	open, close := s[start], byte('}')
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// DecodeJSON extracts the first JSON value from a model response and
// unmarshals it into v.
func DecodeJSON(resp string, v interface{}) error {
	raw := ExtractJSON(resp)
	if raw == "" {
		return fmt.Errorf("no JSON found in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}
