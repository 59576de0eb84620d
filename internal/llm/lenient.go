package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var reOuterObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseProducts turns the interpretation service's raw response text into a
// list of candidate maps. The service promises JSON but does not always
// deliver: responses get truncated mid-array, wrapped in markdown fences, or
// prefixed with prose. The strategy is strict decode first, then a
// brace-balance repair for truncated output, then a best-effort salvage of
// any decodable object in the text. Only when all three fail does the caller
// get an error; ParseProducts itself never panics on malformed input.
func ParseProducts(raw string) ([]map[string]any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, errors.New("empty response")
	}

	if products, ok := decodeProducts([]byte(text)); ok {
		return products, nil
	}

	// Truncated output: cut at the point where brace nesting returns to
	// zero, dropping whatever incomplete tail follows.
	if !strings.HasSuffix(text, "}") {
		if cut, ok := repairTruncated(text); ok {
			if products, ok := decodeProducts([]byte(cut)); ok {
				return products, nil
			}
		}
	}

	// Salvage: the greedy outer-brace match strips prose and code fences
	// around an otherwise valid object.
	for _, match := range reOuterObject.FindAllString(text, -1) {
		if products, ok := decodeProducts([]byte(match)); ok {
			return products, nil
		}
	}

	return nil, errors.New("response contains no parsable products payload")
}

// decodeProducts accepts either {"products": [...]} or a bare list of
// objects, and reports whether data held one of those shapes.
func decodeProducts(data []byte) ([]map[string]any, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		list, ok := t["products"].([]any)
		if !ok {
			return nil, false
		}
		return asMaps(list), true
	case []any:
		return asMaps(t), true
	}
	return nil, false
}

func asMaps(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// repairTruncated scans from the first opening brace tracking nesting depth
// and cuts the string at the position where depth returns to zero.
func repairTruncated(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
