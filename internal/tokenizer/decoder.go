package tokenizer

import (
	"strings"

	"texguard/internal/logger"
)

// DecodeReport summarises a Decode call. A missing placeholder leaves the
// text unchanged at that point; it is reported here instead of failing the
// whole restoration.
type DecodeReport struct {
	Total    int
	Restored int
	// Missing lists placeholders that no longer occur in the text, ascending.
	Missing []string
	// Duplicated lists placeholders that still occur after their first
	// occurrence was restored, ascending.
	Duplicated []string
}

// OK reports whether every placeholder was restored exactly once.
func (r *DecodeReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Duplicated) == 0
}

// Decode substitutes each placeholder of mapping back with its substring.
// Only the first remaining occurrence of each token is replaced.
//
// Entries are visited from the highest number down: a later rule may have
// matched text that already held an earlier placeholder, and that inner
// token only reappears once the outer one is expanded.
//
// A literal '#' in the document can join a digit and the '#' of a
// neighbouring token into a string that reads like a placeholder, as in
// "#1#0#" for "#1" followed by #0#. An occurrence is therefore skipped when
// it overlaps the only occurrence of another placeholder still expected in
// the text.
func Decode(text string, mapping Mapping) (string, *DecodeReport) {
	report := &DecodeReport{Total: len(mapping)}
	d := newDecoder(mapping)
	work := text

	for n := len(mapping) - 1; n >= 0; n-- {
		entry := mapping[n]
		idx := d.locate(work, n, 0)
		if idx < 0 {
			report.Missing = append(report.Missing, entry.Placeholder)
			continue
		}
		work = work[:idx] + entry.Substring + work[idx+len(entry.Placeholder):]
		report.Restored++

		if d.locate(work, n, idx+len(entry.Substring)) >= 0 {
			report.Duplicated = append(report.Duplicated, entry.Placeholder)
		}
	}

	reverse(report.Missing)
	reverse(report.Duplicated)

	if len(report.Missing) > 0 {
		logger.Warn("placeholders missing from text",
			logger.Int("missingCount", len(report.Missing)),
			logger.Strings("missing", report.Missing))
	}
	if len(report.Duplicated) > 0 {
		logger.Warn("placeholders duplicated in text",
			logger.Int("duplicatedCount", len(report.Duplicated)),
			logger.Strings("duplicated", report.Duplicated))
	}

	return work, report
}

type decoder struct {
	mapping Mapping
	index   map[string]int // placeholder -> entry
	parent  []int          // entry whose substring holds the placeholder, or -1
	maxLen  int
}

func newDecoder(mapping Mapping) *decoder {
	d := &decoder{
		mapping: mapping,
		index:   make(map[string]int, len(mapping)),
		parent:  make([]int, len(mapping)),
	}
	for i, e := range mapping {
		d.index[e.Placeholder] = i
		d.parent[i] = -1
		d.maxLen = max(d.maxLen, len(e.Placeholder))
	}
	for j, e := range mapping {
		for _, p := range FindPlaceholders(e.Substring) {
			if k, ok := d.index[p]; ok && k < j && d.parent[k] < 0 {
				d.parent[k] = j
			}
		}
	}
	return d
}

// visible reports whether entry k is expected in the text while entry n is
// being restored: it is lower, and not still nested in an unrestored entry.
func (d *decoder) visible(k, n int) bool {
	return k < n && (d.parent[k] < 0 || d.parent[k] > n)
}

// locate returns the offset of the first acceptable occurrence of entry n's
// placeholder at or after from, or -1.
func (d *decoder) locate(text string, n, from int) int {
	token := d.mapping[n].Placeholder
	for off := from; off <= len(text); {
		i := strings.Index(text[off:], token)
		if i < 0 {
			return -1
		}
		start := off + i
		if d.acceptable(text, n, start, start+len(token)) {
			return start
		}
		off = start + 1
	}
	return -1
}

// acceptable reports whether taking text[s:e] for entry n leaves every
// overlapping visible placeholder another occurrence elsewhere.
func (d *decoder) acceptable(text string, n, s, e int) bool {
	for a := max(0, s-d.maxLen+1); a < e; a++ {
		if text[a] != '#' {
			continue
		}
		b := a + 1
		for b < len(text) && text[b] >= '0' && text[b] <= '9' {
			b++
		}
		if b == a+1 || b >= len(text) || text[b] != '#' {
			continue
		}
		b++
		if b <= s || (a == s && b == e) {
			continue
		}
		k, ok := d.index[text[a:b]]
		if !ok || !d.visible(k, n) {
			continue
		}
		if !occursOutside(text, text[a:b], s, e) {
			return false
		}
	}
	return true
}

// occursOutside reports whether token occurs in text without overlapping
// text[s:e].
func occursOutside(text, token string, s, e int) bool {
	for off := 0; off <= len(text); {
		i := strings.Index(text[off:], token)
		if i < 0 {
			return false
		}
		start := off + i
		if start+len(token) <= s || start >= e {
			return true
		}
		off = start + 1
	}
	return false
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
