package integrity

import (
	"strings"
	"testing"
)

const source = `\documentclass{article}
\begin{document}
Intro with $a+b$ and \cite{knuth}.
\begin{itemize}
\item first \{literal\} at 50\% and \$3
\end{itemize}
\end{document}`

func TestCompare_TranslatedProseIsPreserved(t *testing.T) {
	restored := strings.Replace(source, "Intro with", "Introducción con", 1)
	r := Compare(source, restored)
	if !r.Valid() || len(r.Issues) != 0 {
		t.Errorf("Expected no issues, got: %s", FormatIssues(r.Issues))
	}
	if r.Summary() != "structure preserved" {
		t.Errorf("Unexpected summary %q", r.Summary())
	}
}

func TestCompare_DetectsDamage(t *testing.T) {
	tests := []struct {
		name     string
		restored string
		message  string
		severity Severity
	}{
		{"dropped citation", strings.Replace(source, `\cite{knuth}`, "", 1), "Brace count changed", SeverityError},
		{"renamed environment", strings.ReplaceAll(source, "itemize", "enumerate"), "Environment sequence changed", SeverityError},
		{"dropped environment", strings.Replace(source, "\\end{itemize}\n", "", 1), "Environment sequence changed", SeverityError},
		{"dropped math", strings.Replace(source, "$a+b$", "a+b", 1), "Math delimiter count changed", SeverityError},
		{"leftover placeholder", source + " #12#", "Placeholder text left in document", SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compare(source, tt.restored)
			found := false
			for _, issue := range r.Issues {
				if issue.Message == tt.message && issue.Severity == tt.severity {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected %s %q, got: %s", tt.severity, tt.message, FormatIssues(r.Issues))
			}
		})
	}
}

func TestCompare_MalformedSourceIsNotJudged(t *testing.T) {
	// unbalanced in the source and kept that way
	original := "\\begin{figure} text {open $5"
	r := Compare(original, "\\begin{figure} texto {abierto $5")
	if len(r.Issues) != 0 {
		t.Errorf("Expected no issues, got: %s", FormatIssues(r.Issues))
	}
}

func TestCompare_IgnoresEscapesAndComments(t *testing.T) {
	r := Compare("a \\{ b", "a b % { $ \\begin{x}")
	if len(r.Issues) != 0 {
		t.Errorf("Expected no issues, got: %s", FormatIssues(r.Issues))
	}
}

func TestFormatIssues(t *testing.T) {
	issues := []Issue{
		{Severity: SeverityError, Message: "Brace count changed", Details: "source has 1/1, restored has 0/0 opening/closing braces"},
		{Severity: SeverityWarning, Message: "Placeholder text left in document"},
	}
	want := "[ERROR] Brace count changed\n  Details: source has 1/1, restored has 0/0 opening/closing braces\n[WARNING] Placeholder text left in document"
	if got := FormatIssues(issues); got != want {
		t.Errorf("FormatIssues() =\n%s\nwant\n%s", got, want)
	}
	if FormatIssues(nil) != "No issues found" {
		t.Error("Expected placeholder text for no issues")
	}
}

func TestReportSummary(t *testing.T) {
	r := &Report{}
	r.add(SeverityWarning, "w", "")
	if r.Summary() != "structure preserved with 1 warning(s)" {
		t.Errorf("Unexpected summary %q", r.Summary())
	}
	r.add(SeverityError, "e", "")
	if r.Summary() != "structure changed: 1 error(s), 1 warning(s)" {
		t.Errorf("Unexpected summary %q", r.Summary())
	}
}
