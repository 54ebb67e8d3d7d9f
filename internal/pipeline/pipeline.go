// Package pipeline drives a document through encode, translate and decode,
// persisting every intermediate result in its workspace.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"texguard/internal/comments"
	"texguard/internal/integrity"
	"texguard/internal/logger"
	"texguard/internal/metrics"
	"texguard/internal/tokenizer"
	"texguard/internal/translator"
	"texguard/internal/types"
	"texguard/internal/workspace"
)

// Options configures a Runner.
type Options struct {
	WorkDir  string // parent of the per-document workspaces; empty means "."
	Rules    []tokenizer.Rule
	Engine   *translator.Engine
	Metrics  *metrics.Metrics
	Debounce time.Duration // WatchDecode only
}

// Runner executes pipeline stages for one or more documents.
type Runner struct {
	runID    string
	workDir  string
	encoder  *tokenizer.Encoder
	engine   *translator.Engine
	metrics  *metrics.Metrics
	debounce time.Duration
}

// EncodeResult describes one encode stage.
type EncodeResult struct {
	CodedPath   string
	MappingPath string
	Entries     int
}

// Result describes a full run.
type Result struct {
	Encode     *EncodeResult
	Translate  *translator.Summary
	Decode     *tokenizer.DecodeReport
	OutputPath string
}

// NewRunner creates a Runner. Missing options get defaults: built-in rules,
// a dry engine, and a private metrics registry.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		runID:    uuid.NewString(),
		workDir:  opts.WorkDir,
		encoder:  tokenizer.NewEncoder(opts.Rules),
		engine:   opts.Engine,
		metrics:  opts.Metrics,
		debounce: opts.Debounce,
	}
	if r.engine == nil {
		r.engine = translator.NewEngine(translator.Options{DryRun: true})
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.debounce <= 0 {
		r.debounce = 300 * time.Millisecond
	}
	return r
}

// RunID identifies the process in logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Metrics returns the counters updated by the runner.
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Workspace returns the workspace of input.
func (r *Runner) Workspace(input string) *workspace.Workspace {
	return workspace.New(r.workDir, input)
}

// Encode strips comments from input, tokenizes it and writes the coded text
// and the mapping into the workspace.
func (r *Runner) Encode(ctx context.Context, input string) (_ *EncodeResult, err error) {
	start := time.Now()
	defer r.observe(types.StageEncode, start)
	defer func() { err = wrapStage(types.StageEncode, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ws := r.Workspace(input)
	if err := ws.Ensure(); err != nil {
		return nil, err
	}
	if err := workspace.CopyFile(input, ws.InputCopyPath()); err != nil {
		return nil, err
	}

	doc, err := workspace.ReadDocument(input)
	if err != nil {
		return nil, err
	}
	tokenized, mapping := r.encoder.Encode(comments.Strip(doc))

	if err := workspace.SaveMapping(ws.MappingPath(), mapping); err != nil {
		return nil, err
	}
	if err := workspace.WriteText(ws.CodedPath(), tokenized); err != nil {
		return nil, err
	}

	r.metrics.DocumentsEncoded.Inc()
	for category, n := range mapping.CountByCategory() {
		r.metrics.PlaceholdersCreated.WithLabelValues(string(category)).Add(float64(n))
	}
	logger.Info("document encoded",
		logger.String("run", r.runID),
		logger.String("input", input),
		logger.String("coded", ws.CodedPath()),
		logger.Int("placeholders", len(mapping)))

	return &EncodeResult{CodedPath: ws.CodedPath(), MappingPath: ws.MappingPath(), Entries: len(mapping)}, nil
}

// Translate runs the translation engine over the coded text of input and
// writes the TRANSLATED file.
func (r *Runner) Translate(ctx context.Context, input string) (_ *translator.Summary, err error) {
	start := time.Now()
	defer r.observe(types.StageTranslate, start)
	defer func() { err = wrapStage(types.StageTranslate, err) }()

	ws := r.Workspace(input)
	coded, err := workspace.ReadDocument(ws.CodedPath())
	if err != nil {
		return nil, err
	}

	translated, summary, err := r.engine.Translate(ctx, coded)
	if summary != nil {
		r.metrics.ParagraphsTranslated.Add(float64(summary.Translated))
		r.metrics.PlaceholdersLost.Add(float64(len(summary.Lost)))
		r.metrics.TranslationErrors.Add(float64(summary.Failed))
	}
	if err != nil {
		return summary, err
	}

	if err := workspace.WriteText(ws.TranslatedPath(), translated); err != nil {
		return summary, err
	}
	logger.Info("document translated",
		logger.String("run", r.runID),
		logger.String("input", input),
		logger.String("translated", ws.TranslatedPath()))
	return summary, nil
}

// Decode restores the TRANSLATED file of input with its mapping and writes
// the result to output, or to the workspace default when output is empty.
// Missing and duplicated placeholders are reported, not returned as errors.
func (r *Runner) Decode(ctx context.Context, input, output string) (_ *tokenizer.DecodeReport, _ string, err error) {
	start := time.Now()
	defer r.observe(types.StageDecode, start)
	defer func() { err = wrapStage(types.StageDecode, err) }()

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	ws := r.Workspace(input)
	mapping, err := workspace.LoadMapping(ws.MappingPath())
	if err != nil {
		return nil, "", err
	}
	text, err := workspace.ReadDocument(ws.TranslatedPath())
	if err != nil {
		return nil, "", err
	}

	restored, report := tokenizer.Decode(text, mapping)
	outPath := OutputPath(ws, output)
	if err := workspace.WriteText(outPath, restored); err != nil {
		return report, "", err
	}

	r.metrics.DocumentsDecoded.Inc()
	r.metrics.PlaceholdersMissing.Add(float64(len(report.Missing)))
	r.metrics.PlaceholdersDuplicate.Add(float64(len(report.Duplicated)))
	logger.Info("document decoded",
		logger.String("run", r.runID),
		logger.String("input", input),
		logger.String("output", outPath),
		logger.Int("restored", report.Restored),
		logger.Int("missing", len(report.Missing)),
		logger.Int("duplicated", len(report.Duplicated)))

	if structure, err := r.compare(ws, restored); err != nil {
		logger.Debug("structure check skipped", logger.String("input", input), logger.Err(err))
	} else if len(structure.Issues) > 0 {
		logger.Warn("restored document differs in structure",
			logger.String("input", input),
			logger.String("summary", structure.Summary()))
	}
	return report, outPath, nil
}

// Check compares the restored document of input with the source copy kept
// in its workspace.
func (r *Runner) Check(ctx context.Context, input, output string) (*integrity.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ws := r.Workspace(input)
	restored, err := workspace.ReadDocument(OutputPath(ws, output))
	if err != nil {
		return nil, err
	}
	return r.compare(ws, restored)
}

// compare checks restored against the comment-stripped workspace copy of
// the source and counts the issues.
func (r *Runner) compare(ws *workspace.Workspace, restored string) (*integrity.Report, error) {
	source, err := workspace.ReadDocument(ws.InputCopyPath())
	if err != nil {
		return nil, err
	}
	report := integrity.Compare(comments.Strip(source), restored)
	for _, issue := range report.Issues {
		r.metrics.StructureIssues.WithLabelValues(string(issue.Severity)).Inc()
	}
	return report, nil
}

// Run executes all three stages.
func (r *Runner) Run(ctx context.Context, input, output string) (*Result, error) {
	res := &Result{}
	var err error
	if res.Encode, err = r.Encode(ctx, input); err != nil {
		return res, err
	}
	if res.Translate, err = r.Translate(ctx, input); err != nil {
		return res, err
	}
	res.Decode, res.OutputPath, err = r.Decode(ctx, input, output)
	return res, err
}

// OutputPath resolves the restored document path. An explicit output always
// ends in ".tex".
func OutputPath(ws *workspace.Workspace, output string) string {
	if output == "" {
		return ws.RestoredPath()
	}
	ext := filepath.Ext(output)
	if ext == ".tex" {
		return output
	}
	return strings.TrimSuffix(output, ext) + ".tex"
}

// StageError attributes a failure to the stage that produced it.
type StageError struct {
	Stage types.Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage recorded in err's chain.
func StageOf(err error) (types.Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func wrapStage(stage types.Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

func (r *Runner) observe(stage types.Stage, start time.Time) {
	r.metrics.ObserveStage(stage, time.Since(start).Seconds())
}
