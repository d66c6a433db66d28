package metadata

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// textValue renders scalars as trimmed NFC text. Anything else is "".
func textValue(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(val, 10)
	case int:
		s = strconv.Itoa(val)
	default:
		return ""
	}
	return norm.NFC.String(strings.TrimSpace(s))
}

// listValue accepts an array or a string split on any rune in seps and
// returns the non-empty trimmed entries in source order.
func listValue(v any, seps string) []string {
	out := []string{}
	switch val := v.(type) {
	case nil:
		return out
	case []any:
		for _, elem := range val {
			if s := textValue(elem); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, elem := range val {
			if s := textValue(elem); s != "" {
				out = append(out, s)
			}
		}
	default:
		s := textValue(val)
		if s == "" {
			return out
		}
		parts := []string{s}
		if seps != "" {
			parts = strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
		}
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// identifiersValue accepts an object or a "type:value,type:value" string.
// Keys are lower-cased; entries with empty keys or values are dropped.
func identifiersValue(v any) map[string]string {
	out := map[string]string{}
	switch val := v.(type) {
	case map[string]any:
		for k, raw := range val {
			key := strings.ToLower(strings.TrimSpace(k))
			value := textValue(raw)
			if key != "" && value != "" {
				out[key] = value
			}
		}
	case string:
		for _, pair := range strings.Split(val, ",") {
			k, value, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(k))
			value = textValue(value)
			if key != "" && value != "" {
				out[key] = value
			}
		}
	}
	return out
}

// presentValue reports whether a field holds something: not absent, not
// null, not an empty string, not false.
func presentValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case bool:
		return val
	default:
		return true
	}
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

// sortedSet returns a sorted copy of values without duplicates.
func sortedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
