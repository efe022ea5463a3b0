package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// StripCodeFences removes a surrounding ``` fence (with optional language tag).
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeJSON reads the first JSON value delimited by open/close from a model
// reply into dst. Prose around the value is ignored.
func DecodeJSON(op, raw string, open, close byte, dst any) error {
	body := StripCodeFences(raw)
	start := strings.IndexByte(body, open)
	end := strings.LastIndexByte(body, close)
	if start < 0 || end <= start {
		return &FormatError{Op: op, Raw: raw, Err: errors.New("no JSON value found")}
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), dst); err != nil {
		return &FormatError{Op: op, Raw: raw, Err: err}
	}
	return nil
}
