// Package tokenizer carves LaTeX markup out of a document into numbered
// placeholders and restores it afterwards.
//
// Encoding applies an ordered list of pattern rules to a working copy of the
// document. Every match of a rule is replaced by a token of the form #N#,
// where N comes from a counter owned by the call, and the matched text is
// appended to a Mapping. Decoding puts the recorded text back. Rule order is
// significant: large structural blocks are claimed before the generic
// command and brace patterns could split them.
package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"texguard/internal/types"
)

// Category labels the kind of markup a rule protects.
type Category string

const (
	CategoryDocument    Category = "document"
	CategoryFigure      Category = "figure"
	CategoryEquation    Category = "equation"
	CategoryAlign       Category = "align"
	CategoryEquationAst Category = "equation*"
	CategoryTable       Category = "table"
	CategoryTabular     Category = "tabular"
	CategoryFloat       Category = "float"
	CategoryTikz        Category = "tikz"
	CategoryMathParen   Category = "inline-math-paren"
	CategoryMathDollar  Category = "inline-math-dollar"
	CategoryCommandArg  Category = "command-arg"
	CategoryCommandEOL  Category = "command-eol"
	CategoryBegin       Category = "begin"
	CategoryEnd         Category = "end"
	CategoryCommand     Category = "command"
	CategoryBrace       Category = "brace"
)

// RuleSpec is the uncompiled form of a rule, as read from a rules file.
type RuleSpec struct {
	Category Category `yaml:"category" json:"category"`
	Pattern  string   `yaml:"pattern" json:"pattern"`
}

// Rule is a compiled pattern together with its category.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
}

// RulesFile is the YAML layout accepted by LoadRules.
type RulesFile struct {
	Version string     `yaml:"version"`
	Rules   []RuleSpec `yaml:"rules"`
}

// DefaultRuleSpecs returns the built-in rule list, broad to narrow to catchall.
func DefaultRuleSpecs() []RuleSpec {
	env := func(name string) string {
		n := regexp.QuoteMeta(name)
		return `(?s)\\begin\{` + n + `\}.*?\\end\{` + n + `\}`
	}
	return []RuleSpec{
		{CategoryDocument, `(?s).*?\\begin\{document\}`},
		{CategoryFigure, env("figure")},
		{CategoryEquation, env("equation")},
		{CategoryAlign, env("align")},
		{CategoryEquationAst, env("equation*")},
		{CategoryTable, env("table")},
		{CategoryTabular, env("tabular")},
		{CategoryFloat, env("float")},
		{CategoryTikz, env("tikz")},
		{CategoryMathParen, `\\\(.*?\\\)`},
		{CategoryMathDollar, `\$.*?\$`},
		{CategoryCommandArg, `\\[a-zA-Z]*?\{.*?\}`},
		{CategoryCommandEOL, `\\[a-zA-Z]*?\n`},
		{CategoryBegin, `(?s)\\begin\{.*\}`},
		{CategoryEnd, `(?s)\\end\{.*\}`},
		{CategoryCommand, `(?s)\\[a-z]*`},
		{CategoryBrace, `[{}]`},
	}
}

// DefaultRules compiles DefaultRuleSpecs. The built-in patterns are known to
// compile, so a failure here is a programming error.
func DefaultRules() []Rule {
	rules, err := CompileRules(DefaultRuleSpecs())
	if err != nil {
		panic(err)
	}
	return rules
}

// CompileRules compiles specs in order. Any pattern that fails to compile, or
// that can match a placeholder token, is reported as a configuration error.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	if len(specs) == 0 {
		return nil, types.NewAppError(types.ErrConfig, "rule list is empty", nil)
	}

	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.Pattern) == "" {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "empty rule pattern",
				fmt.Sprintf("rule %d (%s)", i, spec.Category), nil)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "invalid rule pattern",
				fmt.Sprintf("rule %d (%s)", i, spec.Category), err)
		}
		if matchesInside(re, FormatPlaceholder(0)) || matchesInside(re, FormatPlaceholder(12)) {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "rule pattern matches placeholder tokens",
				fmt.Sprintf("rule %d (%s): %s", i, spec.Category, spec.Pattern), nil)
		}
		category := spec.Category
		if category == "" {
			category = Category(fmt.Sprintf("rule-%d", i))
		}
		rules = append(rules, Rule{Category: category, Pattern: re})
	}
	return rules, nil
}

// matchesInside reports whether re has a non-empty match within token.
func matchesInside(re *regexp.Regexp, token string) bool {
	for _, loc := range re.FindAllStringIndex(token, -1) {
		if loc[1] > loc[0] {
			return true
		}
	}
	return false
}

// LoadRules reads a YAML rules file and compiles it. An empty path selects
// the built-in rules.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "rules file not found", path, err)
		}
		return nil, types.NewAppErrorWithDetails(types.ErrConfig, "failed to read rules file", path, err)
	}

	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrConfig, "failed to parse rules file", path, err)
	}
	return CompileRules(file.Rules)
}

// MarshalRules renders specs in the rules file format.
func MarshalRules(specs []RuleSpec) ([]byte, error) {
	return yaml.Marshal(RulesFile{Version: "1", Rules: specs})
}
