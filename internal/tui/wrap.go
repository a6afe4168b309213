package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapText breaks s on spaces so no line exceeds width display cells.
// Words wider than a line are hard-split.
func wrapText(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	var line strings.Builder
	lineWidth := 0
	for _, word := range words {
		for runewidth.StringWidth(word) > width {
			head, tail := splitAtWidth(word, width)
			if lineWidth > 0 {
				lines = append(lines, line.String())
				line.Reset()
				lineWidth = 0
			}
			lines = append(lines, head)
			word = tail
		}
		w := runewidth.StringWidth(word)
		if w == 0 {
			continue
		}
		if lineWidth > 0 && lineWidth+1+w > width {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			line.WriteByte(' ')
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += w
	}
	if lineWidth > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func splitAtWidth(s string, width int) (string, string) {
	used := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if used+rw > width {
			if i == 0 {
				// A single rune wider than the line still has to go somewhere.
				n := len(string(r))
				return s[:n], s[n:]
			}
			return s[:i], s[i:]
		}
		used += rw
	}
	return s, ""
}
