// Package sandbox dry-runs generated SQL against an empty in-memory DuckDB
// database shaped like the catalog, so callers can see whether a statement
// binds before running it anywhere real.
package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/nlsql/nlsql/internal/catalog"
	"github.com/nlsql/nlsql/internal/observability"
)

type CheckResult struct {
	Valid      bool     `json:"valid"`
	Columns    []string `json:"columns,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

type Checker struct {
	Schema catalog.Schema
}

func NewChecker(schema catalog.Schema) *Checker {
	return &Checker{Schema: schema}
}

// Check binds sqlText against empty tables and reports the result columns.
// Rejections and DuckDB errors are reported in the result; the returned error
// is reserved for failures of the sandbox itself.
func (c *Checker) Check(ctx context.Context, sqlText string) (CheckResult, error) {
	start := time.Now()
	statement := stripTrailingSemicolons(sqlText)
	if statement == "" {
		return CheckResult{}, fmt.Errorf("sql is required")
	}
	if reason := rejectStatement(statement); reason != "" {
		return c.finish(CheckResult{Error: reason}, start), nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return CheckResult{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for _, table := range c.Schema.Tables {
		if _, err := db.ExecContext(ctx, createTableSQL(table)); err != nil {
			return CheckResult{}, fmt.Errorf("create sandbox table %q: %w", table.Name, err)
		}
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT 0", statement))
	if err != nil {
		return c.finish(CheckResult{Error: err.Error()}, start), nil
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return CheckResult{}, fmt.Errorf("query columns: %w", err)
	}
	if err := rows.Err(); err != nil {
		return c.finish(CheckResult{Error: err.Error()}, start), nil
	}
	return c.finish(CheckResult{Valid: true, Columns: columns}, start), nil
}

func (c *Checker) finish(result CheckResult, start time.Time) CheckResult {
	result.DurationMs = time.Since(start).Milliseconds()
	observability.ObserveSandboxCheck(result.Valid)
	return result
}

func rejectStatement(statement string) string {
	if strings.Contains(statement, ";") {
		return "multiple statements are not allowed"
	}
	fields := strings.Fields(statement)
	switch strings.ToLower(fields[0]) {
	case "select", "with":
		return ""
	default:
		return "only SELECT and WITH statements can be checked"
	}
}

func createTableSQL(table catalog.Table) string {
	columns := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		columns = append(columns, quoteIdent(column)+" VARCHAR")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table.Name), strings.Join(columns, ", "))
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
