// internal/util/util.go
// Package util holds small text-formatting helpers shared by the CLI and TUI renderers.
package util

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// WrapToWidth wraps text on word boundaries to width runes per line. Words longer
// than width are split. Blank lines are preserved.
func WrapToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	var cur []string
	curLen := 0
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
			cur, curLen = nil, 0
		}
	}
	for _, w := range words {
		wLen := utf8.RuneCountInString(w)
		sep := 0
		if len(cur) > 0 {
			sep = 1
		}
		if curLen+sep+wLen <= width {
			cur = append(cur, w)
			curLen += sep + wLen
			continue
		}
		flush()
		if wLen <= width {
			cur, curLen = []string{w}, wLen
			continue
		}
		r := []rune(w)
		for start := 0; start < len(r); start += width {
			lines = append(lines, string(r[start:min(start+width, len(r))]))
		}
	}
	flush()
	return lines
}

// FormatMs renders a millisecond value with two decimals.
func FormatMs(ms float64) string {
	return fmt.Sprintf("%.2f ms", ms)
}

// FormatMB renders a megabyte value with three decimals.
func FormatMB(mb float64) string {
	return fmt.Sprintf("%.3f MB", mb)
}

// FormatShape renders a tensor shape as "[2,256,256]".
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
