package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"texguard/internal/config"
	"texguard/internal/failures"
	"texguard/internal/integrity"
	"texguard/internal/logger"
	"texguard/internal/metrics"
	"texguard/internal/pipeline"
	"texguard/internal/tokenizer"
	"texguard/internal/translator"
	"texguard/internal/types"
	"texguard/internal/workspace"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	rulesFile   string
	workDir     string
	logLevel    string
	metricsFile string
	source      string
	target      string
}

// stageFlags are the per-stage options.
type stageFlags struct {
	files   []string
	output  string
	dryRun  bool
	fullRun bool
	watch   bool
}

// app is the wired process: configuration, logger, rules, runner and the
// failure ledger.
type app struct {
	cfg    *config.ConfigManager
	runner *pipeline.Runner
	ledger *failures.Ledger
	out    io.Writer
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Reversible LaTeX placeholder protection for translation",
		Long: `texguard replaces LaTeX markup with numbered #N# placeholders so that a
document can pass through a prose translator, then restores the markup.

Each input paper.tex gets its own workspace directory paper/ holding the
coded text, the placeholder mapping, the translated text and the restored
document.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file path (JSON), default ~/.config/texguard/"+config.DefaultConfigFileName)
	pf.StringVar(&g.rulesFile, "rules", "", "YAML rule list replacing the built-in rules")
	pf.StringVar(&g.workDir, "workdir", "", "Parent directory of the per-document workspaces")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	pf.StringVar(&g.source, "source", "", "Source language (BCP 47)")
	pf.StringVar(&g.target, "target", "", "Target language (BCP 47)")

	cmd.AddCommand(
		encodeCmd(g),
		translateCmd(g),
		decodeCmd(g),
		runCmd(g),
		checkCmd(g),
		rulesCmd(g),
		failuresCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func addFileFlags(cmd *cobra.Command, s *stageFlags) {
	cmd.Flags().StringArrayVarP(&s.files, "file", "f", nil, "Input .tex file or glob pattern (repeatable, ** allowed)")
	_ = cmd.MarkFlagRequired("file")
}

func addTranslateFlags(cmd *cobra.Command, s *stageFlags) {
	cmd.Flags().BoolVarP(&s.dryRun, "dry-run", "n", false, "Keep paragraphs unchanged instead of calling the translation API")
	cmd.Flags().BoolVarP(&s.fullRun, "full-run", "R", false, "Translate every paragraph without asking")
}

func encodeCmd(g *globalFlags) *cobra.Command {
	s := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Strip comments and replace markup with placeholders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, s, func(ctx context.Context, a *app, input string) error {
				res, err := a.runner.Encode(ctx, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: %d placeholders -> %s\n", input, res.Entries, res.CodedPath)
				return nil
			})
		},
	}
	addFileFlags(cmd, s)
	return cmd
}

func translateCmd(g *globalFlags) *cobra.Command {
	s := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate the coded text paragraph by paragraph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, s, func(ctx context.Context, a *app, input string) error {
				summary, err := a.runner.Translate(ctx, input)
				if err != nil {
					return err
				}
				printSummary(a.out, input, summary)
				return nil
			})
		},
	}
	addFileFlags(cmd, s)
	addTranslateFlags(cmd, s)
	return cmd
}

func decodeCmd(g *globalFlags) *cobra.Command {
	s := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Restore markup from the placeholder mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, s, func(ctx context.Context, a *app, input string) error {
				if s.watch {
					return a.runner.WatchDecode(ctx, input, s.output, func(report *tokenizer.DecodeReport, out string) {
						printReport(a.out, out, report)
					})
				}
				report, out, err := a.runner.Decode(ctx, input, s.output)
				if err != nil {
					return err
				}
				printReport(a.out, out, report)
				return nil
			})
		},
	}
	addFileFlags(cmd, s)
	cmd.Flags().StringVarP(&s.output, "output", "o", "", "Restored document path (single input only)")
	cmd.Flags().BoolVar(&s.watch, "watch", false, "Decode again whenever the TRANSLATED file changes")
	return cmd
}

func runCmd(g *globalFlags) *cobra.Command {
	s := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Encode, translate and decode in one go",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, s, func(ctx context.Context, a *app, input string) error {
				res, err := a.runner.Run(ctx, input, s.output)
				if res != nil && res.Translate != nil {
					printSummary(a.out, input, res.Translate)
				}
				if err != nil {
					return err
				}
				printReport(a.out, res.OutputPath, res.Decode)
				return nil
			})
		},
	}
	addFileFlags(cmd, s)
	addTranslateFlags(cmd, s)
	cmd.Flags().StringVarP(&s.output, "output", "o", "", "Restored document path (single input only)")
	return cmd
}

func checkCmd(g *globalFlags) *cobra.Command {
	s := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the structure of the restored document with its source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, s, func(ctx context.Context, a *app, input string) error {
				report, err := a.runner.Check(ctx, input, s.output)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: %s\n", input, report.Summary())
				if len(report.Issues) > 0 {
					fmt.Fprintln(a.out, integrity.FormatIssues(report.Issues))
				}
				if !report.Valid() {
					return types.NewAppErrorWithDetails(types.ErrTranslation,
						"restored document changed structure", input, nil)
				}
				return nil
			})
		},
	}
	addFileFlags(cmd, s)
	cmd.Flags().StringVarP(&s.output, "output", "o", "", "Restored document path, as given to decode")
	return cmd
}

func rulesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective ordered rule list as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			rules, err := tokenizer.LoadRules(cfg.GetConfig().RulesFile)
			if err != nil {
				return err
			}
			specs := make([]tokenizer.RuleSpec, len(rules))
			for i, r := range rules {
				specs[i] = tokenizer.RuleSpec{Category: r.Category, Pattern: r.Pattern.String()}
			}
			data, err := tokenizer.MarshalRules(specs)
			if err != nil {
				return types.NewAppError(types.ErrInternal, "failed to render rules", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func failuresCmd(g *globalFlags) *cobra.Command {
	var clearAll bool
	var export string
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List documents whose last run failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			ledger, err := failures.Open(cfg.GetWorkDirectory())
			if err != nil {
				return err
			}
			if export != "" {
				if err := ledger.ExportInputs(export); err != nil {
					return err
				}
			}
			if clearAll {
				return ledger.Clear()
			}

			w := cmd.OutOrStdout()
			for _, r := range ledger.List() {
				code := string(r.Code)
				if code == "" {
					code = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\tretries=%d\t%s\n",
					r.Input, r.Stage, code, r.RetryCount, r.ErrorMsg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Forget every recorded failure")
	cmd.Flags().StringVar(&export, "export", "", "Write the failed inputs to this file, one per line")
	return cmd
}

func loadConfig(g *globalFlags) (*config.ConfigManager, error) {
	cfg, err := config.NewConfigManager(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Apply(config.Overrides{
		SourceLanguage: g.source,
		TargetLanguage: g.target,
		RulesFile:      g.rulesFile,
		WorkDirectory:  g.workDir,
		LogLevel:       g.logLevel,
		MetricsFile:    g.metricsFile,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp wires the process, resolves the inputs and calls fn for each one.
// Configuration faults are reported before any document is read.
func withApp(cmd *cobra.Command, g *globalFlags, s *stageFlags, fn func(context.Context, *app, string) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cmd, g, s)
	if err != nil {
		return err
	}
	defer logger.Close()

	inputs, err := workspace.ResolveInputs(s.files)
	if err != nil {
		return err
	}
	if s.output != "" && len(inputs) > 1 {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "--output needs a single input",
			fmt.Sprintf("%d inputs matched", len(inputs)), nil)
	}
	if s.watch && len(inputs) > 1 {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "--watch needs a single input",
			fmt.Sprintf("%d inputs matched", len(inputs)), nil)
	}

	logger.Info("run started",
		logger.String("run", a.runner.RunID()),
		logger.String("command", cmd.Name()),
		logger.Int("inputs", len(inputs)))

	var failed []string
	for _, input := range inputs {
		err := fn(ctx, a, input)
		if ctx.Err() != nil {
			a.flushMetrics()
			return err
		}
		a.track(cmd, input, err)
		if err != nil {
			if len(inputs) == 1 {
				a.flushMetrics()
				return err
			}
			logger.Error("document failed", err, logger.String("input", input))
			failed = append(failed, input)
		}
	}
	a.flushMetrics()

	if len(failed) > 0 {
		return types.NewAppErrorWithDetails(types.ErrInternal,
			fmt.Sprintf("%d of %d documents failed", len(failed), len(inputs)),
			strings.Join(failed, ", "), nil)
	}
	return nil
}

func newApp(ctx context.Context, cmd *cobra.Command, g *globalFlags, s *stageFlags) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	c := cfg.GetConfig()

	level, _ := logger.ParseLevel(c.LogLevel)
	if err := logger.Init(&logger.Config{
		LogFilePath: c.LogFile,
		MaxFileSize: 10 * 1024 * 1024,
		MaxBackups:  5,
		Level:       level,
		Console:     cmd.ErrOrStderr(),
	}); err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to initialise logger", err)
	}

	rules, err := tokenizer.LoadRules(c.RulesFile)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(ctx, cmd, cfg, s)
	if err != nil {
		return nil, err
	}

	ledger, err := failures.Open(cfg.GetWorkDirectory())
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(pipeline.Options{
		WorkDir: cfg.GetWorkDirectory(),
		Rules:   rules,
		Engine:  engine,
		Metrics: metrics.New(),
	})
	return &app{cfg: cfg, runner: runner, ledger: ledger, out: cmd.OutOrStdout()}, nil
}

// newEngine picks the selector and backend. A dry run never needs an API key.
func newEngine(ctx context.Context, cmd *cobra.Command, cfg *config.ConfigManager, s *stageFlags) (*translator.Engine, error) {
	c := cfg.GetConfig()
	source := config.LanguageName(c.SourceLanguage)
	target := config.LanguageName(c.TargetLanguage)

	var selector translator.Selector = translator.SelectAll
	if !s.fullRun {
		selector = translator.NewInteractiveSelector(cmd.InOrStdin(), cmd.OutOrStdout(), source+" -> "+target)
	}

	var backend translator.Backend = translator.IdentityBackend{}
	if !s.dryRun && isTranslating(cmd) {
		b, err := translator.NewOpenAIBackend(ctx, translator.OpenAIConfig{
			APIKey:     cfg.GetAPIKey(),
			BaseURL:    cfg.GetBaseURL(),
			Model:      cfg.GetModel(),
			Timeout:    cfg.GetTimeout(),
			MaxRetries: cfg.GetMaxRetries(),
		})
		if err != nil {
			return nil, err
		}
		backend = b
	}

	return translator.NewEngine(translator.Options{
		Backend:        backend,
		Selector:       selector,
		DryRun:         s.dryRun,
		SourceLanguage: source,
		TargetLanguage: target,
	}), nil
}

func isTranslating(cmd *cobra.Command) bool {
	return cmd.Name() == "translate" || cmd.Name() == "run"
}

// track updates the failure ledger with the outcome of input.
func (a *app) track(cmd *cobra.Command, input string, err error) {
	var lerr error
	if err == nil {
		lerr = a.ledger.Resolve(input)
	} else {
		stage, ok := pipeline.StageOf(err)
		if !ok {
			stage = commandStage(cmd)
		}
		lerr = a.ledger.Record(input, stage, err)
	}
	if lerr != nil {
		logger.Warn("failure ledger not updated", logger.String("input", input), logger.Err(lerr))
	}
}

func commandStage(cmd *cobra.Command) types.Stage {
	switch cmd.Name() {
	case "translate":
		return types.StageTranslate
	case "decode", "check":
		return types.StageDecode
	default:
		return types.StageEncode
	}
}

func (a *app) flushMetrics() {
	if err := a.runner.Metrics().WriteTextfile(a.cfg.GetConfig().MetricsFile); err != nil {
		logger.Warn("metrics not written", logger.Err(err))
	}
}

func printSummary(w io.Writer, input string, s *translator.Summary) {
	fmt.Fprintf(w, "%s: %d paragraphs, %d selected, %d translated, %d failed\n",
		input, s.Paragraphs, s.Selected, s.Translated, s.Failed)
	if len(s.Lost) > 0 {
		fmt.Fprintf(w, "  placeholders dropped by translation: %s\n", strings.Join(s.Lost, " "))
	}
}

func printReport(w io.Writer, output string, r *tokenizer.DecodeReport) {
	fmt.Fprintf(w, "%s: restored %d of %d placeholders\n", output, r.Restored, r.Total)
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "  missing: %s\n", strings.Join(r.Missing, " "))
	}
	if len(r.Duplicated) > 0 {
		fmt.Fprintf(w, "  duplicated: %s\n", strings.Join(r.Duplicated, " "))
	}
}
