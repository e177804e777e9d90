package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/odrlfrag/internal/store"
)

// summaryColumns is the column list for listing; it leaves out the result
// document.
const summaryColumns = `process_id, process_name, run_id, strategy, mode,
	fragments, rules, conflicts, fallbacks, created_at, updated_at`

// analysisColumns adds the result document to summaryColumns.
const analysisColumns = summaryColumns + `, result`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querySaveAnalysis upserts by process id. created_at survives a replace.
func querySaveAnalysis(ctx context.Context, db executor, a *store.Analysis) error {
	if a.ProcessID == "" {
		return fmt.Errorf("save analysis: empty process id")
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO analyses (
			process_id, process_name, run_id, strategy, mode,
			fragments, rules, conflicts, fallbacks, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (process_id) DO UPDATE SET
			process_name = EXCLUDED.process_name,
			run_id = EXCLUDED.run_id,
			strategy = EXCLUDED.strategy,
			mode = EXCLUDED.mode,
			fragments = EXCLUDED.fragments,
			rules = EXCLUDED.rules,
			conflicts = EXCLUDED.conflicts,
			fallbacks = EXCLUDED.fallbacks,
			result = EXCLUDED.result,
			updated_at = now()
		RETURNING created_at, updated_at`,
		a.ProcessID,
		a.ProcessName,
		a.RunID,
		string(a.Strategy),
		string(a.Mode),
		a.Fragments,
		a.Rules,
		a.Conflicts,
		a.Fallbacks,
		jsonbBytes(a.Result),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func queryGetAnalysis(ctx context.Context, db executor, processID string) (*store.Analysis, error) {
	row := db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE process_id = $1`, processID)
	return scanAnalysis(row)
}

func queryListAnalyses(ctx context.Context, db executor, filter store.AnalysisFilter) ([]*store.Analysis, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Strategy != "" {
		whereClauses = append(whereClauses, "strategy = "+nextArg())
		args = append(args, string(filter.Strategy))
	}
	if filter.Mode != "" {
		whereClauses = append(whereClauses, "mode = "+nextArg())
		args = append(args, string(filter.Mode))
	}

	query := `SELECT COUNT(*) OVER() AS total_count, ` + summaryColumns + ` FROM analyses`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY " + parseSortClause(filter.Sort)

	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var (
		out   []*store.Analysis
		total int
	)
	for rows.Next() {
		a, t, err := scanSummaryWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis: %w", err)
		}
		total = t
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, total, nil
}

func queryDeleteAnalysis(ctx context.Context, db executor, processID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM analyses WHERE process_id = $1`, processID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func parseSortClause(sort string) string {
	if sort == "" {
		return "updated_at DESC"
	}
	desc := strings.HasPrefix(sort, "-")
	col := strings.TrimPrefix(sort, "-")
	allowed := map[string]bool{
		"process_id": true, "process_name": true, "created_at": true, "updated_at": true,
		"rules": true, "conflicts": true, "fragments": true,
	}
	if !allowed[col] {
		return "updated_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}
