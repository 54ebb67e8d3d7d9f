package tokenizer

import (
	"strings"

	"texguard/internal/logger"
)

// Encoder applies an ordered rule list to documents. It holds no per-call
// state, so one Encoder may serve many documents.
type Encoder struct {
	rules []Rule
}

// NewEncoder creates an Encoder over rules. A nil or empty list selects the
// built-in rules.
func NewEncoder(rules []Rule) *Encoder {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Encoder{rules: rules}
}

// Rules returns the rule list in application order.
func (e *Encoder) Rules() []Rule {
	return e.rules
}

// Encode replaces every match of every rule with a numbered placeholder and
// returns the tokenized text together with the mapping needed to undo it.
//
// Rules run in order over the current working copy. Within one rule the
// matches come from a single left-to-right scan and are replaced by their
// byte spans, so identical substrings are numbered in the order they appear.
// Placeholder text never matches a compiled rule, so later rules cannot
// split a region an earlier rule already claimed.
func (e *Encoder) Encode(document string) (string, Mapping) {
	work := document
	mapping := Mapping{}
	counter := 0

	for i, rule := range e.rules {
		locs := rule.Pattern.FindAllStringIndex(work, -1)
		if len(locs) == 0 {
			continue
		}

		var sb strings.Builder
		sb.Grow(len(work))
		prev := 0
		replaced := 0
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			if start == end {
				continue
			}
			placeholder := FormatPlaceholder(counter)
			sb.WriteString(work[prev:start])
			sb.WriteString(placeholder)
			mapping = append(mapping, Entry{
				Placeholder: placeholder,
				Substring:   work[start:end],
				Category:    rule.Category,
			})
			counter++
			replaced++
			prev = end
		}
		sb.WriteString(work[prev:])
		work = sb.String()

		logger.Debug("applied rule",
			logger.Int("rule", i),
			logger.String("category", string(rule.Category)),
			logger.Int("replaced", replaced))
	}

	logger.Debug("encoded document",
		logger.Int("inputLength", len(document)),
		logger.Int("outputLength", len(work)),
		logger.Int("placeholders", counter))

	return work, mapping
}
