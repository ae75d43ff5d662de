package plan

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/roasbeef/learnhub/internal/apperr"
)

// maxEnvelopeDepth bounds how many array or string wrappers are peeled off
// before giving up.
const maxEnvelopeDepth = 4

// decodeEnvelope turns a raw callback body into the payload object. The top
// level may be an object or a one-element array; a `body` field wrapping the
// real payload is unwrapped once.
func decodeEnvelope(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperr.Validation("callback body is not valid JSON").
			WithDetail("%v", err)
	}

	payload, err := asObject(v, maxEnvelopeDepth)
	if err != nil {
		return nil, err
	}

	if _, ok := payload["learningData"]; ok {
		return payload, nil
	}

	if body, ok := payload["body"]; ok && body != nil {
		return asObject(body, maxEnvelopeDepth)
	}

	return payload, nil
}

// asObject accepts an object, a one-element array holding one, or a JSON
// string encoding either.
func asObject(v any, depth int) (map[string]any, error) {
	if depth == 0 {
		return nil, apperr.Validation("callback payload is nested " +
			"too deeply")
	}

	switch t := v.(type) {
	case map[string]any:
		return t, nil

	case []any:
		if len(t) != 1 {
			return nil, apperr.Validation("callback payload must "+
				"hold exactly one plan, got %d", len(t))
		}

		return asObject(t[0], depth-1)

	case string:
		var inner any
		err := json.Unmarshal([]byte(strings.TrimSpace(t)), &inner)
		if err != nil {
			return nil, apperr.Validation("callback payload string " +
				"is not JSON")
		}

		return asObject(inner, depth-1)

	default:
		return nil, apperr.Validation("callback payload must be a " +
			"JSON object")
	}
}

// learningData extracts the required learningData object.
func learningData(payload map[string]any) (map[string]any, error) {
	v, ok := payload["learningData"]
	if !ok || v == nil {
		return nil, apperr.Validation("learningData is required")
	}

	data, err := asObject(v, maxEnvelopeDepth)
	if err != nil {
		return nil, apperr.Validation("learningData must be an object")
	}

	return data, nil
}

// path walks nested objects by key and returns the value at the end.
func path(obj map[string]any, keys ...string) (any, bool) {
	var cur any = obj
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// firstField returns the first of keys present in obj with a non-null
// value.
func firstField(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}

	return nil, false
}

// text renders scalar JSON values as trimmed strings. Objects, arrays and
// null yield "".
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)

	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)

	case bool:
		if t {
			return "true"
		}
		return "false"

	default:
		return ""
	}
}

// firstText returns the first non-blank text among keys, or fallback.
func firstText(obj map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		if s := text(obj[k]); s != "" {
			return s
		}
	}

	return fallback
}
