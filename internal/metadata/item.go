package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// QueryFields are the fields requested from the catalog tool for every item.
var QueryFields = []string{
	"id", "title", "authors", "publisher", "pubdate", "languages", "formats",
	"isbn", "identifiers", "tags", "comments", "cover", "last_modified",
}

// Item is one catalog record as returned by the catalog tool.
type Item struct {
	ID     int64
	Fields map[string]any
}

// ParseItems decodes the catalog tool's JSON array of records.
func ParseItems(data []byte) ([]Item, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode catalog records: %w", err)
	}
	items := make([]Item, 0, len(records))
	for i, record := range records {
		id, ok := intValue(record["id"])
		if !ok {
			return nil, fmt.Errorf("catalog record %d has no usable id", i)
		}
		items = append(items, Item{ID: id, Fields: record})
	}
	return items, nil
}

// Title returns the trimmed title or "".
func (it Item) Title() string {
	return textValue(it.Fields["title"])
}

// Languages returns the normalized language list.
func (it Item) Languages() []string {
	return lowerAll(listValue(it.Fields["languages"], ","))
}

// Formats returns lower-cased format names. Entries that are file paths
// (local libraries list paths) are reduced to their extension.
func (it Item) Formats() []string {
	raw := listValue(it.Fields["formats"], ",;")
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		f = strings.ToLower(f)
		if strings.ContainsAny(f, `/\.`) {
			ext := strings.TrimPrefix(path.Ext(strings.ReplaceAll(f, `\`, "/")), ".")
			if ext == "" {
				continue
			}
			f = ext
		}
		out = append(out, f)
	}
	return out
}

// HasAnyFormat reports whether the item carries at least one target format.
func (it Item) HasAnyFormat(targets []string) bool {
	if len(targets) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	for _, f := range it.Formats() {
		if _, ok := want[f]; ok {
			return true
		}
	}
	return false
}

func intValue(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		if f, err := val.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case float64:
		if val == float64(int64(val)) {
			return int64(val), true
		}
	case int64:
		return val, true
	case int:
		return int64(val), true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
