// Package store persists the latest analysis of each process.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/pipeline"
)

// Analysis is the stored form of a run. Only the most recent analysis of a
// process is kept; saving again replaces it.
type Analysis struct {
	ProcessID   string          `json:"process_id"`
	ProcessName string          `json:"process_name"`
	RunID       string          `json:"run_id"`
	Strategy    model.Strategy  `json:"strategy"`
	Mode        model.Mode      `json:"mode"`
	Fragments   int             `json:"fragments"`
	Rules       int             `json:"rules"`
	Conflicts   int             `json:"conflicts"`
	Fallbacks   int             `json:"fallbacks"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewAnalysis builds the stored form of res for runID.
func NewAnalysis(runID string, res *pipeline.Result) (*Analysis, error) {
	if res == nil {
		return nil, fmt.Errorf("store: nil result")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	fallbacks := 0
	for _, p := range res.Provenance {
		if p.Fallback() {
			fallbacks++
		}
	}
	return &Analysis{
		ProcessID:   res.Process.ID,
		ProcessName: res.Process.Name,
		RunID:       runID,
		Strategy:    res.Strategy,
		Mode:        res.Mode,
		Fragments:   len(res.Fragments),
		Rules:       res.Metrics.TotalRules,
		Conflicts:   len(res.Conflicts),
		Fallbacks:   fallbacks,
		Result:      data,
	}, nil
}

// DecodeResult decodes the stored result document.
func (a *Analysis) DecodeResult() (*pipeline.Result, error) {
	if len(a.Result) == 0 {
		return nil, fmt.Errorf("analysis %s has no stored result", a.ProcessID)
	}
	var res pipeline.Result
	if err := json.Unmarshal(a.Result, &res); err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", a.ProcessID, err)
	}
	return &res, nil
}

// AnalysisFilter narrows ListAnalyses. Sort names a column, "-" prefixed
// for descending order; the default is most recently updated first.
type AnalysisFilter struct {
	Strategy model.Strategy
	Mode     model.Mode
	Sort     string
	Limit    int
	Offset   int
}

// Store defines the persistence interface for analyses. Lookups of a
// missing process return sql.ErrNoRows.
type Store interface {
	// SaveAnalysis inserts or replaces the analysis for a.ProcessID and
	// fills in its timestamps.
	SaveAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysis(ctx context.Context, processID string) (*Analysis, error)
	// ListAnalyses returns summaries without the result document, and the
	// total count ignoring Limit and Offset.
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*Analysis, int, error)
	DeleteAnalysis(ctx context.Context, processID string) error

	Close() error
}
