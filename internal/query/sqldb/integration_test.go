//go:build integration

package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowbit/invoiceql/internal/query"
	"github.com/flowbit/invoiceql/internal/testutil"
)

func TestExecuteNormalizesPostgresTypes(t *testing.T) {
	_, db := testutil.StartPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	row, err := NewExecutor(db).ExecuteAggregate(ctx, `SELECT
		CAST(119.50 AS NUMERIC(12,2)) AS invoice_total,
		DATE '2024-03-01' AS invoice_date,
		TIMESTAMP '2024-03-01 08:15:00' AS created_at,
		CAST(7 AS INTEGER) AS quantity,
		'Acme GmbH' AS vendor_name,
		CAST(NULL AS TEXT) AS customer_name`)
	if err != nil {
		t.Fatalf("ExecuteAggregate() error = %v", err)
	}

	want := query.Row{
		"invoice_total": 119.5,
		"invoice_date":  "2024-03-01",
		"created_at":    "2024-03-01T08:15:00Z",
		"quantity":      int64(7),
		"vendor_name":   "Acme GmbH",
		"customer_name": nil,
	}
	for key, value := range want {
		if row[key] != value {
			t.Fatalf("row[%q] = %#v, want %#v", key, row[key], value)
		}
	}
}

func TestExecuteBindsPositionalArgsOnPostgres(t *testing.T) {
	_, db := testutil.StartPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := NewExecutor(db).Execute(ctx, query.BoundQuery{
		Statement: `SELECT v AS vendor_name FROM (VALUES ('Acme'), ('Initech'), ('Globex')) AS t(v) WHERE v ILIKE $1 ORDER BY v LIMIT $2`,
		Args:      []any{"%e%", 5},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rows) != 3 || rows[0]["vendor_name"] != "Acme" {
		t.Fatalf("rows = %#v", rows)
	}
}

func TestExecuteReportsStatementFailureOnPostgres(t *testing.T) {
	_, db := testutil.StartPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := NewExecutor(db).Execute(ctx, query.BoundQuery{Statement: "SELECT * FROM missing_table"})
	if !errors.Is(err, query.ErrQueryFailed) {
		t.Fatalf("Execute() error = %v, want ErrQueryFailed", err)
	}
	var failed *query.FailedError
	if !errors.As(err, &failed) || failed.Stage != "execute" {
		t.Fatalf("errors.As() = %+v", failed)
	}
}
