package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var errMalformedOutput = errors.New("malformed label output")

var firstArrayPattern = regexp.MustCompile(`(?s)\[.*?\]`)

// parseLabels recovers a label list from free-form model output. The first
// bracketed substring wins when it decodes to a list of strings; otherwise the
// whole response must decode to a list, whose elements are coerced to strings.
func parseLabels(raw string) ([]string, error) {
	cleaned := strings.TrimSpace(raw)

	if match := firstArrayPattern.FindString(cleaned); match != "" {
		var items []any
		if err := json.Unmarshal([]byte(match), &items); err == nil {
			if labels, ok := allStrings(items); ok {
				return normalize(labels)
			}
		}
	}

	var whole any
	if err := json.Unmarshal([]byte(cleaned), &whole); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedOutput, err)
	}
	items, ok := whole.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: response is %T, not a list", errMalformedOutput, whole)
	}
	labels := make([]string, 0, len(items))
	for _, item := range items {
		labels = append(labels, coerceString(item))
	}
	return normalize(labels)
}

func allStrings(items []any) ([]string, bool) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func coerceString(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return "null"
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

// normalize trims labels, drops empty and duplicate entries, and clips to the
// maximum candidate count. An empty result is a parse failure.
func normalize(labels []string) ([]string, error) {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
		if len(out) == maxLabels {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no labels", errMalformedOutput)
	}
	return out, nil
}
