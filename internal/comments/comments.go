// Package comments removes LaTeX line comments before tokenization.
package comments

import (
	"strings"
	"unicode"
)

const (
	// Marker starts a comment that runs to the end of the line.
	Marker = '%'
	// Escape placed directly before Marker makes it literal text.
	Escape = '\\'
)

// StripLine returns line with everything from the first unescaped '%' removed.
// An escaped "\%" is kept together with its backslash.
func StripLine(line string) string {
	if pos := findUnescapedMarker(line); pos >= 0 {
		return line[:pos]
	}
	return line
}

// findUnescapedMarker returns the byte offset of the first '%' whose
// preceding byte is not a backslash, or -1.
func findUnescapedMarker(line string) int {
	i := 0
	for i < len(line) {
		idx := strings.IndexByte(line[i:], Marker)
		if idx == -1 {
			return -1
		}
		pos := i + idx
		if pos > 0 && line[pos-1] == Escape {
			i = pos + 1
			continue
		}
		return pos
	}
	return -1
}

// Strip applies StripLine to every line of content, rejoins the lines with
// "\n" and trims trailing whitespace from the result.
func Strip(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = StripLine(line)
	}
	return strings.TrimRightFunc(strings.Join(lines, "\n"), unicode.IsSpace)
}

// HasComment reports whether line contains an unescaped comment marker.
func HasComment(line string) bool {
	return findUnescapedMarker(line) >= 0
}
