package translator

import (
	"context"
	"strings"

	"texguard/internal/logger"
	"texguard/internal/tokenizer"
	"texguard/internal/types"
)

// Summary describes one Engine.Translate call.
type Summary struct {
	Paragraphs int      // parts that carry text
	Selected   int      // paragraphs the selector accepted
	Translated int      // paragraphs the backend returned
	Failed     int      // paragraphs kept in the source language after a backend error
	Lost       []string // placeholders present in a paragraph but absent from its translation
}

// Options configures an Engine.
type Options struct {
	Backend        Backend
	Selector       Selector
	DryRun         bool // selected paragraphs are kept as they are
	SourceLanguage string
	TargetLanguage string
}

// Engine splits tokenized text into paragraphs and sends the selected ones
// to a backend.
type Engine struct {
	backend  Backend
	selector Selector
	dryRun   bool
	source   string
	target   string
}

// NewEngine creates an Engine. A nil backend means IdentityBackend and a nil
// selector means SelectAll.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		backend:  opts.Backend,
		selector: opts.Selector,
		dryRun:   opts.DryRun,
		source:   opts.SourceLanguage,
		target:   opts.TargetLanguage,
	}
	if e.backend == nil {
		e.backend = IdentityBackend{}
	}
	if e.selector == nil {
		e.selector = SelectAll
	}
	return e
}

// Translate processes text paragraph by paragraph and returns the
// reassembled result. A paragraph whose translation fails keeps its source
// text and is counted in Summary.Failed; only cancellation and selector
// errors abort the call.
func (e *Engine) Translate(ctx context.Context, text string) (string, *Summary, error) {
	parts := Split(text)
	summary := &Summary{}
	var out strings.Builder
	out.Grow(len(text))

	for _, part := range parts {
		if !IsParagraph(part) {
			out.WriteString(part)
			continue
		}
		index := summary.Paragraphs
		summary.Paragraphs++

		selected, err := e.selector.Select(index, part)
		if err != nil {
			return "", summary, types.NewAppError(types.ErrInvalidInput, "failed to read paragraph selection", err)
		}
		if !selected || e.dryRun {
			if selected {
				summary.Selected++
			}
			out.WriteString(part)
			continue
		}
		summary.Selected++

		if err := ctx.Err(); err != nil {
			return "", summary, err
		}
		translated, err := e.backend.Translate(ctx, part, e.source, e.target)
		if err != nil {
			if ctx.Err() != nil {
				return "", summary, ctx.Err()
			}
			summary.Failed++
			logger.Error("paragraph translation failed, keeping source text", err, logger.Int("paragraph", index))
			out.WriteString(part)
			continue
		}
		summary.Translated++

		if lost := lostPlaceholders(part, translated); len(lost) > 0 {
			summary.Lost = append(summary.Lost, lost...)
			logger.Warn("translation dropped placeholders",
				logger.Int("paragraph", index),
				logger.Strings("placeholders", lost))
		}
		out.WriteString(translated)
	}

	logger.Info("translation finished",
		logger.Int("paragraphs", summary.Paragraphs),
		logger.Int("selected", summary.Selected),
		logger.Int("translated", summary.Translated),
		logger.Int("failed", summary.Failed),
		logger.Int("lost", len(summary.Lost)),
		logger.Bool("dryRun", e.dryRun))
	return out.String(), summary, nil
}

// lostPlaceholders lists placeholders of in that do not occur in out.
func lostPlaceholders(in, out string) []string {
	present := make(map[string]bool)
	for _, p := range tokenizer.FindPlaceholders(out) {
		present[p] = true
	}
	var lost []string
	seen := make(map[string]bool)
	for _, p := range tokenizer.FindPlaceholders(in) {
		if !present[p] && !seen[p] {
			seen[p] = true
			lost = append(lost, p)
		}
	}
	return lost
}
