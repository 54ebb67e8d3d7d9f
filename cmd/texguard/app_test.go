package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texguard/internal/config"
	"texguard/internal/types"
)

const doc = `\documentclass{article}
\begin{document}
Intro with $a+b$ and \cite{knuth}. % note

Second paragraph \emph{here}.
\end{document}
`

type harness struct {
	dir    string
	input  string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{dir: t.TempDir()}
	h.input = filepath.Join(h.dir, "paper.tex")
	require.NoError(t, os.WriteFile(h.input, []byte(doc), 0644))
	return h
}

func (h *harness) run(stdin string, args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()
	cmd := rootCmd()
	cmd.SetArgs(append(args,
		"--config", filepath.Join(h.dir, "texguard-config.json"),
		"--workdir", h.dir))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&h.stdout)
	cmd.SetErr(&h.stderr)
	return cmd.Execute()
}

func TestRun_DryFullRunRestoresDocument(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("", "run", "-f", h.input, "-n", "-R"))

	restored, err := os.ReadFile(filepath.Join(h.dir, "paper", "paper_translated.tex"))
	require.NoError(t, err)
	want := "\\documentclass{article}\n\\begin{document}\nIntro with $a+b$ and \\cite{knuth}. \n\nSecond paragraph \\emph{here}.\n\\end{document}"
	assert.Equal(t, want, string(restored))
	assert.Contains(t, h.stdout.String(), "restored")
}

func TestEncodeThenDecode(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("", "encode", "-f", h.input))
	assert.Contains(t, h.stdout.String(), "placeholders")

	ws := filepath.Join(h.dir, "paper")
	for _, name := range []string{"paper.tex", "paper.CODED.tex", "paper_placeholders.json"} {
		assert.FileExists(t, filepath.Join(ws, name))
	}

	// the operator's translator returns the coded text untouched
	coded, err := os.ReadFile(filepath.Join(ws, "paper.CODED.tex"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "paper.TRANSLATED.tex"), coded, 0644))

	out := filepath.Join(h.dir, "final")
	require.NoError(t, h.run("", "decode", "-f", h.input, "-o", out))
	assert.FileExists(t, out+".tex")
	assert.NotContains(t, h.stdout.String(), "missing")
}

func TestTranslate_InteractiveDryRun(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("", "encode", "-f", h.input))

	require.NoError(t, h.run("y\nn\n", "translate", "-f", h.input, "-n"))

	out := h.stdout.String()
	assert.Contains(t, out, "Do you want to translate this paragraph? (y/n)")
	assert.Contains(t, out, "English -> Spanish")
	assert.FileExists(t, filepath.Join(h.dir, "paper", "paper.TRANSLATED.tex"))
}

func TestTranslate_MissingAPIKeyIsConfigError(t *testing.T) {
	t.Setenv(config.EnvOpenAIAPIKey, "")
	h := newHarness(t)
	require.NoError(t, h.run("", "encode", "-f", h.input))

	err := h.run("", "translate", "-f", h.input, "-R")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestBadRulesFileIsConfigError(t *testing.T) {
	h := newHarness(t)
	rules := filepath.Join(h.dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("rules:\n  - category: broken\n    pattern: '(['\n"), 0644))

	err := h.run("", "encode", "-f", h.input, "--rules", rules)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.NoDirExists(t, filepath.Join(h.dir, "paper"))
}

func TestBadLanguageIsConfigError(t *testing.T) {
	h := newHarness(t)
	err := h.run("", "encode", "-f", h.input, "--target", "not a tag!")
	assert.Equal(t, 2, exitCode(err))
}

func TestOutputWithSeveralInputs(t *testing.T) {
	h := newHarness(t)
	other := filepath.Join(h.dir, "other.tex")
	require.NoError(t, os.WriteFile(other, []byte(doc), 0644))

	err := h.run("", "run", "-f", filepath.Join(h.dir, "*.tex"), "-n", "-R", "-o", "x.tex")
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
	assert.Equal(t, 1, exitCode(err))
}

func TestRun_GlobProcessesEveryInput(t *testing.T) {
	h := newHarness(t)
	other := filepath.Join(h.dir, "other.tex")
	require.NoError(t, os.WriteFile(other, []byte(doc), 0644))

	require.NoError(t, h.run("", "run", "-f", filepath.Join(h.dir, "*.tex"), "-n", "-R"))
	assert.FileExists(t, filepath.Join(h.dir, "paper", "paper_translated.tex"))
	assert.FileExists(t, filepath.Join(h.dir, "other", "other_translated.tex"))
}

func TestMetricsFile(t *testing.T) {
	h := newHarness(t)
	metricsFile := filepath.Join(h.dir, "texguard.prom")

	require.NoError(t, h.run("", "run", "-f", h.input, "-n", "-R", "--metrics-file", metricsFile))

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "texguard_documents_encoded_total 1")
	assert.Contains(t, string(data), "texguard_documents_decoded_total 1")
}

func TestRulesCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("", "rules"))

	out := h.stdout.String()
	assert.Contains(t, out, "category: document")
	assert.Contains(t, out, "category: brace")
	assert.Equal(t, 17, strings.Count(out, "category:"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(types.NewAppError(types.ErrConfig, "x", nil)))
	assert.Equal(t, 1, exitCode(types.NewAppError(types.ErrMapping, "x", nil)))
	assert.Equal(t, 1, exitCode(errors.New("plain")))
}

func TestFailuresLedger(t *testing.T) {
	h := newHarness(t)

	// nothing encoded yet, so the translate stage cannot read its input
	require.Error(t, h.run("", "translate", "-f", h.input, "-n", "-R"))

	require.NoError(t, h.run("", "failures"))
	out := h.stdout.String()
	assert.Contains(t, out, h.input)
	assert.Contains(t, out, "\ttranslate\t"+string(types.ErrFileNotFound))

	list := filepath.Join(h.dir, "retry.txt")
	require.NoError(t, h.run("", "failures", "--export", list))
	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, h.input+"\n", string(data))

	require.NoError(t, h.run("", "run", "-f", h.input, "-n", "-R"))
	require.NoError(t, h.run("", "failures"))
	assert.Empty(t, h.stdout.String())
}

func TestFailuresClear(t *testing.T) {
	h := newHarness(t)
	require.Error(t, h.run("", "decode", "-f", h.input))

	require.NoError(t, h.run("", "failures", "--clear"))
	require.NoError(t, h.run("", "failures"))
	assert.Empty(t, h.stdout.String())
	assert.NoFileExists(t, filepath.Join(h.dir, "texguard-failures.json"))
}

func TestCheckCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("", "run", "-f", h.input, "-n", "-R"))

	require.NoError(t, h.run("", "check", "-f", h.input))
	assert.Contains(t, h.stdout.String(), "structure preserved")

	out := filepath.Join(h.dir, "paper", "paper_translated.tex")
	restored, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(out, []byte(strings.Replace(string(restored), `\emph{here}`, "here", 1)), 0644))

	err = h.run("", "check", "-f", h.input)
	assert.True(t, types.IsCode(err, types.ErrTranslation))
	assert.Contains(t, h.stdout.String(), "Brace count changed")
}
