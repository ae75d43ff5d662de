// Package jsonx holds helpers for pulling JSON out of loosely formatted text
// such as LLM replies and scraped HTML.
package jsonx

import (
	"bytes"
	"strings"
)

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the opening fence line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// FirstObject returns the first balanced top-level {...} block in data.
// Braces inside JSON strings are ignored. It returns false when no complete
// object is found.
func FirstObject(data []byte) ([]byte, bool) {
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return nil, false
	}

	end, ok := objectEnd(data[start:])
	if !ok {
		return nil, false
	}

	return data[start : start+end], true
}

// LeadingObject returns the balanced object that data starts with, ignoring
// leading whitespace. Trailing bytes such as "; var x = ..." are discarded.
func LeadingObject(data []byte) ([]byte, bool) {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}

	end, ok := objectEnd(data)
	if !ok {
		return nil, false
	}

	return data[:end], true
}

// objectEnd returns the length of the object starting at data[0].
func objectEnd(data []byte) (int, bool) {
	var (
		depth    int
		inString bool
		escaped  bool
	)

	for i, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true

		case '{':
			depth++

		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}

	return 0, false
}
