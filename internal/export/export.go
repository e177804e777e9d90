// Package export writes analysis results as JSONL and ships them to
// destinations (local directory, S3-compatible bucket, git repository).
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/pipeline"
)

// FormatVersion is written in every header record.
const FormatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string         `json:"version"`
	Type          string         `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	RunID         string         `json:"run_id"`
	ProcessID     string         `json:"process_id"`
	ProcessName   string         `json:"process_name"`
	Strategy      model.Strategy `json:"strategy"`
	Mode          model.Mode     `json:"mode"`
	FragmentCount int            `json:"fragment_count"`
	RuleCount     int            `json:"rule_count"`
	ConflictCount int            `json:"conflict_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ruleRecord carries a rule together with the fragment that owns it.
type ruleRecord struct {
	FragmentID string           `json:"fragment_id"`
	Rule       model.PolicyRule `json:"rule"`
}

// Record types, in the order they appear after the header.
const (
	TypeFragment       = "fragment"
	TypeDependency     = "dependency"
	TypeRule           = "rule"
	TypeProvenance     = "provenance"
	TypeConflict       = "conflict"
	TypeWarning        = "warning"
	TypeMetrics        = "metrics"
	TypeReconstruction = "reconstruction"
)

// ExportJSONL writes res as JSONL to w: a header, then fragments,
// dependencies, rules, provenance, conflicts, warnings, the metrics summary
// and, when present, the reconstruction.
func ExportJSONL(runID string, res *pipeline.Result, w io.Writer) error {
	if res == nil {
		return fmt.Errorf("export: nil result")
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       FormatVersion,
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		RunID:         runID,
		ProcessID:     res.Process.ID,
		ProcessName:   res.Process.Name,
		Strategy:      res.Strategy,
		Mode:          res.Mode,
		FragmentCount: len(res.Fragments),
		RuleCount:     res.Metrics.TotalRules,
		ConflictCount: len(res.Conflicts),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	emit := func(typ string, data any) error {
		if err := enc.Encode(record{Type: typ, Data: data}); err != nil {
			return fmt.Errorf("encode %s: %w", typ, err)
		}
		return nil
	}

	for _, f := range res.Fragments {
		if err := emit(TypeFragment, f); err != nil {
			return err
		}
	}
	for _, d := range res.Dependencies {
		if err := emit(TypeDependency, d); err != nil {
			return err
		}
	}
	for _, fr := range res.Rules {
		for _, r := range fr.Rules {
			if err := emit(TypeRule, ruleRecord{FragmentID: fr.FragmentID, Rule: r}); err != nil {
				return err
			}
		}
	}
	for _, p := range res.Provenance {
		if err := emit(TypeProvenance, p); err != nil {
			return err
		}
	}
	for _, c := range res.Conflicts {
		if err := emit(TypeConflict, c); err != nil {
			return err
		}
	}
	for _, wn := range res.Warnings {
		if err := emit(TypeWarning, wn); err != nil {
			return err
		}
	}
	if err := emit(TypeMetrics, res.Metrics); err != nil {
		return err
	}
	if res.Reconstruction != nil {
		if err := emit(TypeReconstruction, res.Reconstruction); err != nil {
			return err
		}
	}
	return nil
}

// Key returns the object key for a run: <prefix><process id>/<run id>.jsonl.
func Key(prefix, processID, runID string) string {
	return prefix + path.Join(processID, runID+".jsonl")
}
