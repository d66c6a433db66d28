package runner

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most max runes, marking the cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i] + "…"
		}
		count++
	}
	return s
}

// DisplayCommand renders args for logs, quoting where needed and hiding the
// value that follows --password.
func DisplayCommand(args []string) string {
	parts := make([]string, 0, len(args))
	redactNext := false
	for _, arg := range args {
		if redactNext {
			parts = append(parts, "***")
			redactNext = false
			continue
		}
		if arg == "--password" {
			redactNext = true
		}
		if strings.HasPrefix(arg, "--password=") {
			parts = append(parts, "--password=***")
			continue
		}
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			parts = append(parts, strconv.Quote(arg))
			continue
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}
