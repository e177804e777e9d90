// Package telemetry records pipeline metrics in a prometheus registry.
package telemetry

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// Recorder owns a registry and the pipeline's collectors. A nil *Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	Fragments      prometheus.Histogram
	RulesTotal     *prometheus.CounterVec
	ConflictsTotal *prometheus.CounterVec
	FallbacksTotal *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	f := promauto.With(r.registry)

	r.RunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odrlfrag_runs_total",
			Help: "Pipeline runs by strategy, mode and outcome",
		},
		[]string{"strategy", "mode", "status"},
	)
	r.StageDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odrlfrag_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"stage"},
	)
	r.Fragments = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "odrlfrag_fragments_per_run",
			Help:    "Number of fragments produced per run",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)
	r.RulesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odrlfrag_rules_total",
			Help: "Generated rules by type and origin",
		},
		[]string{"type", "origin"},
	)
	r.ConflictsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odrlfrag_conflicts_total",
			Help: "Detected conflicts by kind",
		},
		[]string{"kind"},
	)
	r.FallbacksTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odrlfrag_generation_fallbacks_total",
			Help: "Activities whose llm generation fell back to templates, by reason",
		},
		[]string{"reason"},
	)
	return r
}

// Registry returns the underlying registry, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRun counts one finished run.
func (r *Recorder) RecordRun(strategy model.Strategy, mode model.Mode, status string) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(string(strategy), string(mode), status).Inc()
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordFragments observes the fragment count of a run.
func (r *Recorder) RecordFragments(n int) {
	if r == nil {
		return
	}
	r.Fragments.Observe(float64(n))
}

// RecordRules counts rules by type and origin.
func (r *Recorder) RecordRules(rules []model.FragmentRules) {
	if r == nil {
		return
	}
	for _, fr := range rules {
		for _, rule := range fr.Rules {
			r.RulesTotal.WithLabelValues(string(rule.Type), string(rule.Origin)).Inc()
		}
	}
}

// RecordConflicts counts findings by kind.
func (r *Recorder) RecordConflicts(findings []model.ConflictFinding) {
	if r == nil {
		return
	}
	for _, f := range findings {
		r.ConflictsTotal.WithLabelValues(string(f.Kind)).Inc()
	}
}

// RecordFallbacks counts fallback provenance entries.
func (r *Recorder) RecordFallbacks(prov []model.Provenance) {
	if r == nil {
		return
	}
	for _, p := range prov {
		if p.Fallback() {
			r.FallbacksTotal.WithLabelValues(FallbackClass(p.FallbackReason)).Inc()
		}
	}
}

// FallbackClass maps a free-text fallback reason to a bounded label value.
func FallbackClass(reason string) string {
	switch {
	case strings.HasPrefix(reason, "no rule-generation collaborator"):
		return "unconfigured"
	case strings.Contains(reason, "timed out"):
		return "timeout"
	case strings.Contains(reason, "panicked"):
		return "panic"
	case strings.HasPrefix(reason, "malformed"), strings.Contains(reason, "returned no rules"):
		return "malformed"
	case strings.Contains(reason, "cancelled"):
		return "cancelled"
	}
	return "error"
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return errors.New("telemetry: nil recorder")
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
