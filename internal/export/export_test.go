package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/model/modeltest"
	"github.com/alfredjeanlab/odrlfrag/internal/pipeline"
)

func approvalResult(t *testing.T) *pipeline.Result {
	t.Helper()
	res, err := pipeline.Run(context.Background(), modeltest.ApprovalProcess(), pipeline.Options{
		Strategy: model.StrategyGateway,
		BPPolicy: "generate:standard",
	})
	if err != nil {
		t.Fatalf("pipeline.Run: %v", err)
	}
	return res
}

func TestExportJSONL(t *testing.T) {
	res := approvalResult(t)

	var buf bytes.Buffer
	if err := ExportJSONL("run-abcdefghijkl", res, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	want := 1 + len(res.Fragments) + len(res.Dependencies) + res.Metrics.TotalRules +
		len(res.Provenance) + len(res.Conflicts) + len(res.Warnings) + 1
	if len(lines) != want {
		t.Fatalf("expected %d lines, got %d:\n%s", want, len(lines), buf.String())
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != FormatVersion || h.Type != "header" || h.RunID != "run-abcdefghijkl" {
		t.Fatalf("unexpected header: %+v", h)
	}
	if h.ProcessID != res.Process.ID || h.FragmentCount != 3 || h.RuleCount != res.Metrics.TotalRules {
		t.Fatalf("header counts: %+v", h)
	}

	// Records appear grouped in a fixed order.
	order := map[string]int{
		TypeFragment: 1, TypeDependency: 2, TypeRule: 3, TypeProvenance: 4,
		TypeConflict: 5, TypeWarning: 6, TypeMetrics: 7, TypeReconstruction: 8,
	}
	counts := map[string]int{}
	last := 0
	for i, line := range lines[1:] {
		var rec struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal line %d: %v", i+1, err)
		}
		pos, ok := order[rec.Type]
		if !ok {
			t.Fatalf("line %d: unknown record type %q", i+1, rec.Type)
		}
		if pos < last {
			t.Fatalf("line %d: %s record after a later group", i+1, rec.Type)
		}
		last = pos
		counts[rec.Type]++

		if rec.Type == TypeRule {
			var rr ruleRecord
			if err := json.Unmarshal(rec.Data, &rr); err != nil {
				t.Fatalf("unmarshal rule: %v", err)
			}
			if rr.FragmentID == "" || rr.Rule.TargetActivityID == "" {
				t.Fatalf("rule record missing fields: %s", line)
			}
		}
	}
	if counts[TypeDependency] != 2 || counts[TypeMetrics] != 1 || counts[TypeReconstruction] != 0 {
		t.Errorf("record counts = %v", counts)
	}
}

func TestExportJSONL_Reconstruction(t *testing.T) {
	res, err := pipeline.Run(context.Background(), modeltest.ApprovalProcess(), pipeline.Options{
		Strategy:    model.StrategyActivity,
		BPPolicy:    "generate:standard",
		Reconstruct: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := ExportJSONL("run-1", res, &buf); err != nil {
		t.Fatal(err)
	}
	lines := nonEmptyLines(buf.String())
	if !strings.HasPrefix(lines[len(lines)-1], `{"type":"reconstruction"`) {
		t.Errorf("last line = %s, want reconstruction record", lines[len(lines)-1])
	}
}

func TestExportJSONL_NilResult(t *testing.T) {
	if err := ExportJSONL("run-1", nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for nil result")
	}
}

func TestKey(t *testing.T) {
	for _, tc := range []struct {
		prefix, process, run, want string
	}{
		{"odrlfrag/", "approval", "run-1", "odrlfrag/approval/run-1.jsonl"},
		{"", "approval", "run-1", "approval/run-1.jsonl"},
	} {
		if got := Key(tc.prefix, tc.process, tc.run); got != tc.want {
			t.Errorf("Key(%q, %q, %q) = %q, want %q", tc.prefix, tc.process, tc.run, got, tc.want)
		}
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
