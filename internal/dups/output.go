package dups

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// Format selects the report rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" or "json". Empty means text.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want text or json)", value)
	}
}

// Write renders report to w in the requested format.
func Write(w io.Writer, report Report, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, report)
	}
	return WriteText(w, report)
}

// WriteText renders a human-readable report.
func WriteText(w io.Writer, report Report) error {
	var b strings.Builder
	if len(report.Groups) == 0 {
		b.WriteString("No duplicates found (by full-file BLAKE2b hash).\n")
	} else {
		fmt.Fprintf(&b, "Duplicate groups: %d (%s reclaimable)\n\n",
			len(report.Groups), humanize.IBytes(uint64(report.Wasted())))
		for i, g := range report.Groups {
			fmt.Fprintf(&b, "== Group %d: %d files | %s each | blake2b %s ==\n",
				i+1, len(g.Files), humanize.IBytes(uint64(g.Bytes)), g.Hash)
			for _, path := range g.Files {
				fmt.Fprintf(&b, "  - %s\n", path)
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders the groups as an indented JSON array.
func WriteJSON(w io.Writer, report Report) error {
	groups := report.Groups
	if groups == nil {
		groups = []Group{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(groups)
}
