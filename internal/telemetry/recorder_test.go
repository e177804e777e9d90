package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.RecordRun(model.StrategyGateway, model.ModeTemplate, "success")
	r.RecordRun(model.StrategyGateway, model.ModeTemplate, "success")
	r.RecordRules([]model.FragmentRules{{Rules: []model.PolicyRule{
		{Type: model.RulePermission, Origin: model.OriginTemplate},
		{Type: model.RulePermission, Origin: model.OriginTemplate},
		{Type: model.RuleProhibition, Origin: model.OriginDependency},
	}}})
	r.RecordConflicts([]model.ConflictFinding{{Kind: model.ConflictSameActivity}})
	r.RecordFallbacks([]model.Provenance{
		{Requested: model.ModeLLM, Actual: model.SourceTemplate, FallbackReason: "collaborator timed out after 30s"},
		{Requested: model.ModeLLM, Actual: model.SourceLLM},
	})
	r.ObserveStage("fragment", 3*time.Millisecond)

	runs, err := r.RunsTotal.GetMetricWithLabelValues("gateway", "template", "success")
	if err != nil {
		t.Fatal(err)
	}
	if got := counterValue(t, runs); got != 2 {
		t.Errorf("runs = %v, want 2", got)
	}

	perms, _ := r.RulesTotal.GetMetricWithLabelValues("permission", "template")
	if got := counterValue(t, perms); got != 2 {
		t.Errorf("permission rules = %v, want 2", got)
	}

	timeouts, _ := r.FallbacksTotal.GetMetricWithLabelValues("timeout")
	if got := counterValue(t, timeouts); got != 1 {
		t.Errorf("timeout fallbacks = %v, want 1", got)
	}

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Error("registry gathered no metric families")
	}
}

func TestFallbackClass(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"no rule-generation collaborator configured", "unconfigured"},
		{"collaborator timed out after 30s", "timeout"},
		{"collaborator panicked: boom", "panic"},
		{"malformed collaborator output: candidate 0: invalid", "malformed"},
		{"collaborator call cancelled: context canceled", "cancelled"},
		{"collaborator failed: connection refused", "error"},
	}
	for _, tt := range tests {
		if got := FallbackClass(tt.reason); got != tt.want {
			t.Errorf("FallbackClass(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.RecordRun(model.StrategyActivity, model.ModeLLM, "failure")
	r.ObserveStage("check", time.Second)
	r.RecordRules(nil)
	if r.Registry() != nil {
		t.Error("nil recorder returned a registry")
	}
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err == nil {
		t.Error("expected error from nil recorder")
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordRun(model.StrategyHybrid, model.ModeTemplate, "success")
	path := filepath.Join(t.TempDir(), "odrlfrag.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `odrlfrag_runs_total{mode="template",status="success",strategy="hybrid"} 1`) {
		t.Errorf("textfile missing run counter:\n%s", data)
	}
}
