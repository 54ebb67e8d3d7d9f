package tokenizer

import (
	"math/rand"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texguard/internal/types"
)

func TestEncode_EquationClaimedAsOneBlock(t *testing.T) {
	doc := `\begin{equation} x=1 \end{equation}`

	tokenized, mapping := NewEncoder(nil).Encode(doc)

	require.Len(t, mapping, 1)
	assert.Equal(t, "#0#", tokenized)
	assert.Equal(t, doc, mapping[0].Substring)
	assert.Equal(t, CategoryEquation, mapping[0].Category)
}

func TestEncode_SimpleDocument(t *testing.T) {
	doc := "\\documentclass{article}\n\\begin{document}\nHello $x$ world \\textbf{bold} text.\n\\end{document}"

	tokenized, mapping := NewEncoder(nil).Encode(doc)

	assert.Equal(t, "#0#\nHello #1# world #2# text.\n#3#", tokenized)
	assert.Equal(t, Mapping{
		{Placeholder: "#0#", Substring: "\\documentclass{article}\n\\begin{document}", Category: CategoryDocument},
		{Placeholder: "#1#", Substring: "$x$", Category: CategoryMathDollar},
		{Placeholder: "#2#", Substring: `\textbf{bold}`, Category: CategoryCommandArg},
		{Placeholder: "#3#", Substring: `\end{document}`, Category: CategoryCommandArg},
	}, mapping)
}

func TestEncode_IdenticalSubstringsNumberedInOrder(t *testing.T) {
	tokenized, mapping := NewEncoder(nil).Encode("$x$ and $x$")

	assert.Equal(t, "#0# and #1#", tokenized)
	require.Len(t, mapping, 2)
	assert.Equal(t, "$x$", mapping[0].Substring)
	assert.Equal(t, "$x$", mapping[1].Substring)
}

func TestEncode_InlineMathBeforeCommands(t *testing.T) {
	tokenized, mapping := NewEncoder(nil).Encode(`Let \(\frac{a}{b}\) be \emph{small}.`)

	assert.Equal(t, "Let #0# be #1#.", tokenized)
	assert.Equal(t, `\(\frac{a}{b}\)`, mapping[0].Substring)
	assert.Equal(t, `\emph{small}`, mapping[1].Substring)
}

func TestEncode_BareCommandsAndBraces(t *testing.T) {
	tokenized, mapping := NewEncoder(nil).Encode("\\noindent\nSome {grouped} \\par text")

	// \noindent\n is a newline-terminated command; "{grouped}" has no command
	// so only its braces are protected; \par is a bare command.
	assert.Equal(t, "#0#Some #2#grouped#3# #1# text", tokenized)
	assert.Equal(t, "\\noindent\n", mapping[0].Substring)
	assert.Equal(t, `\par`, mapping[1].Substring)
	assert.Equal(t, "{", mapping[2].Substring)
	assert.Equal(t, "}", mapping[3].Substring)
}

func TestEncode_NestedPlaceholderRoundTrip(t *testing.T) {
	doc := "A \\begin{\n$x$ } B"

	tokenized, mapping := NewEncoder(nil).Encode(doc)

	require.Len(t, mapping, 2)
	assert.Equal(t, "A #1# B", tokenized)
	assert.Equal(t, "\\begin{\n#0# }", mapping[1].Substring)

	restored, report := Decode(tokenized, mapping)
	assert.Equal(t, doc, restored)
	assert.True(t, report.OK())
}

func TestEncode_EmptyDocument(t *testing.T) {
	tokenized, mapping := NewEncoder(nil).Encode("")
	assert.Equal(t, "", tokenized)
	assert.Empty(t, mapping)
}

func TestEncode_ProseOnly(t *testing.T) {
	tokenized, mapping := NewEncoder(nil).Encode("just words, nothing else")
	assert.Equal(t, "just words, nothing else", tokenized)
	assert.Empty(t, mapping)
}

func TestEncode_SkipsEmptyMatches(t *testing.T) {
	rules, err := CompileRules([]RuleSpec{{Category: "maybe", Pattern: `x*`}})
	require.NoError(t, err)

	tokenized, mapping := NewEncoder(rules).Encode("axxb")

	assert.Equal(t, "a#0#b", tokenized)
	require.Len(t, mapping, 1)
	assert.Equal(t, "xx", mapping[0].Substring)
}

func TestEncode_RuleOrderChangesOutput(t *testing.T) {
	doc := `\begin{equation} x=1 \end{equation}`
	specs := DefaultRuleSpecs()

	var withoutEquation []RuleSpec
	for _, s := range specs {
		if s.Category != CategoryEquation {
			withoutEquation = append(withoutEquation, s)
		}
	}
	rules, err := CompileRules(withoutEquation)
	require.NoError(t, err)

	_, mapping := NewEncoder(rules).Encode(doc)
	require.Len(t, mapping, 2)
	assert.Equal(t, `\begin{equation}`, mapping[0].Substring)
	assert.Equal(t, `\end{equation}`, mapping[1].Substring)
}

func TestDecode_MissingPlaceholderTolerated(t *testing.T) {
	mapping := Mapping{
		{Placeholder: "#0#", Substring: "$x$"},
		{Placeholder: "#1#", Substring: `\cite{k}`},
	}

	restored, report := Decode("Value #0# is known.", mapping)

	assert.Equal(t, "Value $x$ is known.", restored)
	assert.Equal(t, []string{"#1#"}, report.Missing)
	assert.Equal(t, 1, report.Restored)
	assert.False(t, report.OK())
}

func TestDecode_DuplicatedPlaceholderReported(t *testing.T) {
	mapping := Mapping{{Placeholder: "#0#", Substring: "$y$"}}

	restored, report := Decode("#0# and again #0#", mapping)

	assert.Equal(t, "$y$ and again #0#", restored)
	assert.Equal(t, []string{"#0#"}, report.Duplicated)
	assert.Empty(t, report.Missing)
}

func TestDecode_TokenBoundaries(t *testing.T) {
	mapping := Mapping{
		{Placeholder: "#0#", Substring: "A"},
		{Placeholder: "#1#", Substring: "B"},
		{Placeholder: "#2#", Substring: "C"},
	}

	// the only "#2#" is built from the edges of #0# and #1#
	restored, report := Decode("#0#2#1#", mapping)

	assert.Equal(t, "A2B", restored)
	assert.Equal(t, []string{"#2#"}, report.Missing)
}

func TestDecode_LiteralHashBeforePlaceholder(t *testing.T) {
	mapping := Mapping{
		{Placeholder: "#0#", Substring: `\cite{a}`},
		{Placeholder: "#1#", Substring: `\emph{b}`},
	}

	// "#1" from the document followed by #0# reads as "#1#0#"
	restored, report := Decode("#1#0# #1#", mapping)

	assert.True(t, report.OK())
	assert.Equal(t, `#1\cite{a} \emph{b}`, restored)
}

func TestRoundTrip_LiteralHashes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"macro parameter", `\renewcommand{\x}[1]{#1}`},
		{"escaped hash", `Rank \#1\cite{foo} here`},
		{"body level newcommand", "Intro \\newcommand{\\x}[1]{#1} and \\x{y}.\n\nMore #2 text."},
		{"hash before command", `#1\cite{a} \emph{b}`},
		{"digits after command", `\cite{a}1#\emph{b}`},
		{"percent and hash", `50\% of \#3 items {#1}`},
	}
	enc := NewEncoder(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenized, mapping := enc.Encode(tt.doc)
			restored, report := Decode(tokenized, mapping)
			assert.True(t, report.OK(), "tokenized=%q report=%+v", tokenized, report)
			assert.Equal(t, tt.doc, restored, "tokenized=%q", tokenized)
		})
	}
}

func TestDecode_EmptyMapping(t *testing.T) {
	restored, report := Decode("unchanged", nil)
	assert.Equal(t, "unchanged", restored)
	assert.True(t, report.OK())
	assert.Zero(t, report.Total)
}

// uppercaseProse simulates a translation step that rewrites only the text
// between placeholder tokens.
func uppercaseProse(text string) string {
	locs := placeholderPattern.FindAllStringIndex(text, -1)
	var sb strings.Builder
	prev := 0
	for _, loc := range locs {
		sb.WriteString(strings.ToUpper(text[prev:loc[0]]))
		sb.WriteString(text[loc[0]:loc[1]])
		prev = loc[1]
	}
	sb.WriteString(strings.ToUpper(text[prev:]))
	return sb.String()
}

func TestRoundTrip_ExternalStepOpacity(t *testing.T) {
	doc := "\\section{Intro}\nThis is $a$ test.\n\nSecond \\emph{para} here."

	tokenized, mapping := NewEncoder(nil).Encode(doc)
	require.Equal(t, "#1#\nThis is #0# test.\n\nSecond #2# here.", tokenized)

	restored, report := Decode(uppercaseProse(tokenized), mapping)

	require.True(t, report.OK())
	assert.Equal(t, "\\section{Intro}\nTHIS IS $a$ TEST.\n\nSECOND \\emph{para} HERE.", restored)
	for _, e := range mapping {
		assert.Contains(t, restored, e.Substring)
	}
}

var docPieces = []string{
	"word", " ", "\n", "\n\n", "1", "x",
	"$", "{", "}", `\(`, `\)`,
	`\cmd`, `\Cmd`, `\emph{`, `\begin{`, `\end{`,
	`\begin{equation}`, `\end{equation}`, `\begin{figure}`, `\end{figure}`,
	`\begin{document}`, `\begin{tikz}`, `\end{tikz}`,
	"#", "#1", `\#`, "%", `\newcommand{\x}[1]{#1}`,
}

// reservedSyntax reports whether doc already holds "#N#" text, which is
// reserved for placeholders.
func reservedSyntax(doc string) bool {
	return placeholderPattern.MatchString(doc)
}

func randomDocument(r *rand.Rand) string {
	var sb strings.Builder
	for i := 0; i < r.Intn(60); i++ {
		sb.WriteString(docPieces[r.Intn(len(docPieces))])
	}
	return sb.String()
}

func quickConfig() *quick.Config {
	return &quick.Config{
		MaxCount: 300,
		Rand:     rand.New(rand.NewSource(42)),
	}
}

func TestProperty_RoundTrip(t *testing.T) {
	enc := NewEncoder(nil)
	property := func(seed int64) bool {
		doc := randomDocument(rand.New(rand.NewSource(seed)))
		if reservedSyntax(doc) {
			return true
		}
		tokenized, mapping := enc.Encode(doc)
		restored, report := Decode(tokenized, mapping)
		if restored != doc || !report.OK() {
			t.Logf("doc=%q tokenized=%q restored=%q", doc, tokenized, restored)
			return false
		}
		return true
	}
	if err := quick.Check(property, quickConfig()); err != nil {
		t.Error(err)
	}
}

func TestProperty_PlaceholdersUniqueAndGapless(t *testing.T) {
	enc := NewEncoder(nil)
	property := func(seed int64) bool {
		doc := randomDocument(rand.New(rand.NewSource(seed)))
		if reservedSyntax(doc) {
			return true
		}
		tokenized, mapping := enc.Encode(doc)
		if mapping.Validate() != nil {
			return false
		}

		// literal hashes make a plain scan ambiguous; decoding must still
		// place every entry exactly once
		if strings.Contains(doc, "#") {
			_, report := Decode(tokenized, mapping)
			return report.OK() && report.Restored == len(mapping)
		}

		// every placeholder occurs exactly once, either in the tokenized
		// text or nested inside a later entry
		seen := make(map[string]int)
		for _, p := range FindPlaceholders(tokenized) {
			seen[p]++
		}
		for _, e := range mapping {
			for _, p := range FindPlaceholders(e.Substring) {
				seen[p]++
			}
		}
		if len(seen) != len(mapping) {
			return false
		}
		for _, e := range mapping {
			if seen[e.Placeholder] != 1 {
				return false
			}
		}
		return true
	}
	if err := quick.Check(property, quickConfig()); err != nil {
		t.Error(err)
	}
}

func TestCompileRules_InvalidPatternIsConfigError(t *testing.T) {
	_, err := CompileRules([]RuleSpec{{Category: "bad", Pattern: `\begin{(`}})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestCompileRules_RejectsPatternsMatchingPlaceholders(t *testing.T) {
	_, err := CompileRules([]RuleSpec{{Category: "digits", Pattern: `\d+`}})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestCompileRules_EmptyList(t *testing.T) {
	_, err := CompileRules(nil)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestDefaultRules_Order(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 17)
	assert.Equal(t, CategoryDocument, rules[0].Category)
	assert.Equal(t, CategoryMathParen, rules[9].Category)
	assert.Equal(t, CategoryCommandArg, rules[11].Category)
	assert.Equal(t, CategoryBrace, rules[len(rules)-1].Category)
}

func TestMapping_Validate(t *testing.T) {
	assert.NoError(t, Mapping{{Placeholder: "#0#"}, {Placeholder: "#1#"}}.Validate())
	assert.Error(t, Mapping{{Placeholder: "#1#"}}.Validate())
	assert.Error(t, Mapping{{Placeholder: "0"}}.Validate())
	assert.Error(t, Mapping{{Placeholder: "#00#"}}.Validate())
}

func TestParsePlaceholder(t *testing.T) {
	n, ok := ParsePlaceholder("#42#")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = ParsePlaceholder("#42")
	assert.False(t, ok)
	_, ok = ParsePlaceholder("x#1#")
	assert.False(t, ok)
}
