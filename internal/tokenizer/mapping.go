package tokenizer

import (
	"fmt"
	"regexp"
	"strconv"

	"texguard/internal/types"
)

var placeholderPattern = regexp.MustCompile(`#(\d+)#`)

// FormatPlaceholder returns the token for counter value n.
func FormatPlaceholder(n int) string {
	return "#" + strconv.Itoa(n) + "#"
}

// ParsePlaceholder extracts N from a "#N#" token.
func ParsePlaceholder(token string) (int, bool) {
	m := placeholderPattern.FindStringSubmatch(token)
	if m == nil || m[0] != token {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FindPlaceholders returns every placeholder-shaped token in text, in order.
func FindPlaceholders(text string) []string {
	return placeholderPattern.FindAllString(text, -1)
}

// Entry 占位符记录: one protected substring.
type Entry struct {
	Placeholder string `json:"placeholder"`
	Substring   string `json:"substring"`
	// Category is known only for entries produced in this process.
	Category Category `json:"-"`
}

// Mapping is the ordered list of entries produced by one Encode call.
// Position i holds placeholder #i#.
type Mapping []Entry

// Placeholders returns the placeholder keys in counter order.
func (m Mapping) Placeholders() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Placeholder
	}
	return keys
}

// Validate checks that entries are numbered 0..len-1 without gaps, in order.
func (m Mapping) Validate() error {
	for i, e := range m {
		if _, ok := ParsePlaceholder(e.Placeholder); !ok {
			return types.NewAppErrorWithDetails(types.ErrMapping, "malformed placeholder",
				fmt.Sprintf("entry %d: %q", i, e.Placeholder), nil)
		}
		if e.Placeholder != FormatPlaceholder(i) {
			return types.NewAppErrorWithDetails(types.ErrMapping, "placeholder out of sequence",
				fmt.Sprintf("entry %d holds %s", i, e.Placeholder), nil)
		}
	}
	return nil
}

// CountByCategory tallies entries per category. Entries loaded from disk
// carry no category and are not counted.
func (m Mapping) CountByCategory() map[Category]int {
	counts := make(map[Category]int)
	for _, e := range m {
		if e.Category != "" {
			counts[e.Category]++
		}
	}
	return counts
}
