// Package translator runs the external transformation step over a tokenized
// document, one paragraph at a time.
package translator

import (
	"regexp"
	"strings"
)

// paragraphBreak matches a run of two or more newlines.
var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// Split cuts text at paragraph breaks. The breaks are kept as parts of their
// own so that concatenating the result yields text again.
func Split(text string) []string {
	locs := paragraphBreak.FindAllStringIndex(text, -1)
	parts := make([]string, 0, 2*len(locs)+1)
	prev := 0
	for _, loc := range locs {
		parts = append(parts, text[prev:loc[0]], text[loc[0]:loc[1]])
		prev = loc[1]
	}
	return append(parts, text[prev:])
}

// IsParagraph reports whether part carries text worth translating, as
// opposed to a break or whitespace.
func IsParagraph(part string) bool {
	return strings.TrimSpace(part) != "" && !strings.HasPrefix(part, "\n")
}
