package summary

import (
	"encoding/json"
	"strings"

	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/jsonx"
)

// Truncate shortens text to at most limit characters. When text is longer
// it prefers to cut just after the last sentence terminator that lies
// beyond 90% of limit, so the prompt ends on a whole sentence. The second
// return value reports whether anything was cut.
func Truncate(text string, limit int) (string, bool) {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text, false
	}

	window := runes[:limit]
	floor := limit * 9 / 10

	for i := len(window) - 1; i >= floor; i-- {
		switch window[i] {
		case '.', '!', '?':
			return string(window[:i+1]), true
		}
	}

	return string(window), true
}

// ParseResponse decodes a model reply into a Result. It first tries the
// whole reply as JSON, then the first {...} block inside it. A reply with
// no recoverable JSON object is a parse error; nothing is guessed.
func ParseResponse(raw string) (Result, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Result{}, err
	}

	return normalize(obj), nil
}

// decodeObject extracts a JSON object from raw.
func decodeObject(raw string) (map[string]any, error) {
	text := jsonx.StripFences(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}

	block, ok := jsonx.FirstObject([]byte(text))
	if !ok {
		return nil, apperr.New(apperr.KindParse,
			"model reply contains no JSON object").
			WithDetail("reply: %.200q", raw)
	}

	if err := json.Unmarshal(block, &obj); err != nil {
		return nil, apperr.Wrap(apperr.KindParse,
			"model reply JSON is malformed", err).
			WithDetail("block: %.200q", string(block))
	}

	return obj, nil
}

// normalize fills in a partially shaped object. A missing summary becomes
// FallbackSummary and non-array lists become empty; it never fails.
func normalize(obj map[string]any) Result {
	summary, _ := obj["summary"].(string)
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = FallbackSummary
	}

	return Result{
		Summary:   summary,
		Takeaways: stringList(obj["takeaways"], MaxTakeaways),
		Actions:   stringList(obj["actions"], MaxActions),
	}
}

// stringList keeps the non-blank string elements of v, up to limit. Any
// non-array value yields an empty, non-nil slice.
func stringList(v any, limit int) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}

		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		out = append(out, s)
		if len(out) == limit {
			break
		}
	}

	return out
}
