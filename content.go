package main

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// paragraphs lays out post content for the terminal. Blank lines separate
// paragraphs, single newlines are kept, and lines are wrapped to width
// with indent in front. Escape sequences in the content are removed.
func paragraphs(s string, width int, indent string) string {
	s = ansi.Strip(strings.ReplaceAll(s, "\r\n", "\n"))

	var result []string
	for _, p := range strings.Split(s, "\n\n") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}

		var lines []string
		for _, line := range strings.Split(p, "\n") {
			if limit := width - len(indent); width > 0 && limit > 0 {
				line = ansi.Wordwrap(line, limit, "")
			}
			for _, l := range strings.Split(line, "\n") {
				lines = append(lines, indent+l)
			}
		}
		result = append(result, strings.Join(lines, "\n"))
	}

	return strings.Join(result, "\n\n")
}
