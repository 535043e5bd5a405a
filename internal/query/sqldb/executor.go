package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/flowbit/invoiceql/internal/query"
)

// Executor runs one statement per call on a dedicated connection taken from
// the pool and returns fully materialized, JSON-safe rows.
type Executor struct {
	DB *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{DB: db}
}

func (e *Executor) Execute(ctx context.Context, q query.BoundQuery) ([]query.Row, error) {
	if strings.TrimSpace(q.Statement) == "" {
		return nil, query.Failed("prepare", errors.New("statement is required"))
	}
	if e.DB == nil {
		return nil, query.Failed("connect", errors.New("database is not configured"))
	}

	conn, err := e.DB.Conn(ctx)
	if err != nil {
		return nil, query.Failed("connect", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, q.Statement, q.Args...)
	if err != nil {
		return nil, query.Failed("execute", err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, query.Failed("columns", err)
	}
	names := columnKeys(columnTypes)

	result := make([]query.Row, 0)
	for rows.Next() {
		values := make([]any, len(columnTypes))
		scanTargets := make([]any, len(columnTypes))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, query.Failed("scan", err)
		}

		row := make(query.Row, len(values))
		for i, value := range values {
			row[names[i]] = normalizeValue(value, columnTypes[i].DatabaseTypeName())
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, query.Failed("rows", err)
	}
	return result, nil
}

// ExecuteAggregate runs a fixed statement expected to yield a single row.
// An empty result produces an empty Row.
func (e *Executor) ExecuteAggregate(ctx context.Context, statement string) (query.Row, error) {
	rows, err := e.Execute(ctx, query.BoundQuery{Statement: statement})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return query.Row{}, nil
	}
	return rows[0], nil
}

// columnKeys keeps row keys unique when a projection repeats a column name
// (e.g. two joined "id" columns): later duplicates get a numeric suffix.
func columnKeys(columnTypes []*sql.ColumnType) []string {
	seen := make(map[string]int, len(columnTypes))
	keys := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		name := columnType.Name()
		seen[name]++
		if count := seen[name]; count > 1 {
			name = name + "_" + strconv.Itoa(count)
		}
		keys[i] = name
	}
	return keys
}
