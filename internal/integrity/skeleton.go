// Package integrity compares a restored document with its source.
//
// Translation may rewrite prose but must leave markup alone, so the restored
// document has to keep the brace, environment and math-delimiter skeleton of
// the comment-stripped source. Whether that skeleton is well-formed LaTeX is
// not checked.
package integrity

import (
	"fmt"
	"strings"

	"texguard/internal/logger"
	"texguard/internal/tokenizer"
)

// Severity of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one difference between source and restored document
type Issue struct {
	Severity Severity
	Message  string
	Details  string
}

// Report contains the results of a comparison
type Report struct {
	Issues []Issue
}

// Valid reports whether no issue is an error.
func (r *Report) Valid() bool {
	return r.Count(SeverityError) == 0
}

// Count returns the number of issues with severity s.
func (r *Report) Count(s Severity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

func (r *Report) add(s Severity, message, details string) {
	r.Issues = append(r.Issues, Issue{Severity: s, Message: message, Details: details})
}

// Summary is a one-line description of r.
func (r *Report) Summary() string {
	errs, warns := r.Count(SeverityError), r.Count(SeverityWarning)
	switch {
	case errs == 0 && warns == 0:
		return "structure preserved"
	case errs > 0:
		return fmt.Sprintf("structure changed: %d error(s), %d warning(s)", errs, warns)
	default:
		return fmt.Sprintf("structure preserved with %d warning(s)", warns)
	}
}

// skeleton is the markup that translation must not alter.
type skeleton struct {
	openBraces   int
	closeBraces  int
	environments []string // "\begin{x}" and "\end{x}" in document order
	dollars      int
}

// Compare checks restored against original, the comment-stripped source it
// was encoded from.
func Compare(original, restored string) *Report {
	r := &Report{}
	before, after := scan(original), scan(restored)

	if before.openBraces != after.openBraces || before.closeBraces != after.closeBraces {
		r.add(SeverityError, "Brace count changed",
			fmt.Sprintf("source has %d/%d, restored has %d/%d opening/closing braces",
				before.openBraces, before.closeBraces, after.openBraces, after.closeBraces))
	}
	if i, ok := firstDifference(before.environments, after.environments); ok {
		r.add(SeverityError, "Environment sequence changed",
			fmt.Sprintf("first difference at position %d: source %s, restored %s",
				i+1, at(before.environments, i), at(after.environments, i)))
	}
	if before.dollars != after.dollars {
		r.add(SeverityError, "Math delimiter count changed",
			fmt.Sprintf("source has %d, restored has %d unescaped $", before.dollars, after.dollars))
	}
	if extra := len(tokenizer.FindPlaceholders(restored)) - len(tokenizer.FindPlaceholders(original)); extra > 0 {
		r.add(SeverityWarning, "Placeholder text left in document",
			fmt.Sprintf("%d unresolved #N# token(s)", extra))
	}

	logger.Debug("structure compared",
		logger.Bool("valid", r.Valid()),
		logger.Int("issues", len(r.Issues)))
	return r
}

func firstDifference(a, b []string) (int, bool) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i, true
		}
	}
	if len(a) != len(b) {
		return n, true
	}
	return 0, false
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return "(none)"
}

// scan collects the skeleton, skipping escaped characters and comments.
func scan(content string) skeleton {
	var sk skeleton
	for _, line := range strings.Split(content, "\n") {
		line = codePart(line)
		for i := 0; i < len(line); i++ {
			switch line[i] {
			case '\\':
				if env, n := environmentAt(line[i:]); n > 0 {
					sk.environments = append(sk.environments, env)
				}
				i++
			case '{':
				sk.openBraces++
			case '}':
				sk.closeBraces++
			case '$':
				sk.dollars++
			}
		}
	}
	return sk
}

func codePart(line string) string {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '%':
			return line[:i]
		}
	}
	return line
}

// environmentAt returns "\begin{name}" or "\end{name}" found at the start
// of s and its length.
func environmentAt(s string) (string, int) {
	for _, prefix := range []string{`\begin{`, `\end{`} {
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		end := strings.IndexByte(s[len(prefix):], '}')
		if end < 0 {
			return "", 0
		}
		n := len(prefix) + end + 1
		return s[:n], n
	}
	return "", 0
}

// FormatIssues formats issues for display
func FormatIssues(issues []Issue) string {
	if len(issues) == 0 {
		return "No issues found"
	}

	var sb strings.Builder
	for i, issue := range issues {
		fmt.Fprintf(&sb, "[%s] %s", strings.ToUpper(string(issue.Severity)), issue.Message)
		if issue.Details != "" {
			fmt.Fprintf(&sb, "\n  Details: %s", issue.Details)
		}
		if i < len(issues)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
