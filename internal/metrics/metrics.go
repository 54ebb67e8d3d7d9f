// Package metrics collects per-run counters and exports them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"texguard/internal/logger"
	"texguard/internal/types"
)

const namespace = "texguard"

// Metrics holds the counters of one process.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsEncoded      prometheus.Counter
	DocumentsDecoded      prometheus.Counter
	PlaceholdersCreated   *prometheus.CounterVec // label: category
	PlaceholdersMissing   prometheus.Counter
	PlaceholdersDuplicate prometheus.Counter
	ParagraphsTranslated  prometheus.Counter
	PlaceholdersLost      prometheus.Counter
	TranslationErrors     prometheus.Counter
	StructureIssues       *prometheus.CounterVec   // label: severity
	StageDuration         *prometheus.HistogramVec // label: stage
}

// New registers all counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocumentsEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_encoded_total",
			Help: "Documents tokenized.",
		}),
		DocumentsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_decoded_total",
			Help: "Documents restored from placeholders.",
		}),
		PlaceholdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "placeholders_created_total",
			Help: "Placeholders created, by rule category.",
		}, []string{"category"}),
		PlaceholdersMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "placeholders_missing_total",
			Help: "Placeholders not found in the text at decode time.",
		}),
		PlaceholdersDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "placeholders_duplicated_total",
			Help: "Placeholders that occurred more than once at decode time.",
		}),
		ParagraphsTranslated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "paragraphs_translated_total",
			Help: "Paragraphs returned by the translation backend.",
		}),
		PlaceholdersLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "placeholders_lost_total",
			Help: "Placeholders dropped by the translation backend.",
		}),
		TranslationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "translation_errors_total",
			Help: "Paragraphs whose translation failed.",
		}),
		StructureIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "structure_issues_total",
			Help: "Structural differences between restored and source documents, by severity.",
		}, []string{"severity"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Wall time of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
	}

	m.registry.MustRegister(
		m.DocumentsEncoded,
		m.DocumentsDecoded,
		m.PlaceholdersCreated,
		m.PlaceholdersMissing,
		m.PlaceholdersDuplicate,
		m.ParagraphsTranslated,
		m.PlaceholdersLost,
		m.TranslationErrors,
		m.StructureIssues,
		m.StageDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long stage took.
func (m *Metrics) ObserveStage(stage types.Stage, seconds float64) {
	m.StageDuration.WithLabelValues(string(stage)).Observe(seconds)
}

// WriteTextfile writes the registry to path. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to write metrics", path, err)
	}
	logger.Debug("metrics written", logger.String("path", path))
	return nil
}
