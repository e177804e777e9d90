package postgres

import (
	"encoding/json"

	"github.com/alfredjeanlab/odrlfrag/internal/store"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// summaryDest returns scan targets for summaryColumns, in order.
func summaryDest(a *store.Analysis) []any {
	return []any{
		&a.ProcessID,
		&a.ProcessName,
		&a.RunID,
		&a.Strategy,
		&a.Mode,
		&a.Fragments,
		&a.Rules,
		&a.Conflicts,
		&a.Fallbacks,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

// scanAnalysis scans a row in analysisColumns order.
func scanAnalysis(row scannable) (*store.Analysis, error) {
	var (
		a      store.Analysis
		result []byte
	)
	if err := row.Scan(append(summaryDest(&a), &result)...); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		a.Result = json.RawMessage(result)
	}
	return &a, nil
}

// scanSummaryWithTotal scans a list row: total_count then summaryColumns.
func scanSummaryWithTotal(row scannable) (*store.Analysis, int, error) {
	var (
		a     store.Analysis
		total int
	)
	if err := row.Scan(append([]any{&total}, summaryDest(&a)...)...); err != nil {
		return nil, 0, err
	}
	return &a, total, nil
}

func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	return []byte(m)
}
