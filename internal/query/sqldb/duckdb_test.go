package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/flowbit/invoiceql/internal/query"
)

func openDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("sql.Open(duckdb) error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExecuteNormalizesDuckDBTypes(t *testing.T) {
	db := openDuckDB(t)

	row, err := NewExecutor(db).ExecuteAggregate(context.Background(), `SELECT
		CAST(12.34 AS DECIMAL(10,2)) AS total,
		DATE '2024-01-15' AS invoice_date,
		TIMESTAMP '2024-01-15 10:30:00' AS created_at,
		CAST(42 AS BIGINT) AS n,
		'acme' AS vendor_name,
		SUM(x) AS summed
	FROM (VALUES (CAST(1 AS BIGINT)), (CAST(2 AS BIGINT))) AS t(x)`)
	if err != nil {
		t.Fatalf("ExecuteAggregate() error = %v", err)
	}

	if row["total"] != 12.34 {
		t.Fatalf("total = %#v", row["total"])
	}
	if row["invoice_date"] != "2024-01-15" {
		t.Fatalf("invoice_date = %#v", row["invoice_date"])
	}
	if row["created_at"] != "2024-01-15T10:30:00Z" {
		t.Fatalf("created_at = %#v", row["created_at"])
	}
	if row["n"] != int64(42) {
		t.Fatalf("n = %#v", row["n"])
	}
	if row["vendor_name"] != "acme" {
		t.Fatalf("vendor_name = %#v", row["vendor_name"])
	}
	if fmt.Sprint(row["summed"]) != "3" {
		t.Fatalf("summed = %#v", row["summed"])
	}
}

func TestExecuteBindsPositionalArgsOnDuckDB(t *testing.T) {
	db := openDuckDB(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE invoices (invoice_id VARCHAR, vendor VARCHAR, invoice_total DECIMAL(12,2))`); err != nil {
		t.Fatalf("create table error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO invoices VALUES ('INV-1', 'Acme Corp', 10.50), ('INV-2', 'Globex', 99.00), ('INV-3', 'ACME Ltd', 75.25)`); err != nil {
		t.Fatalf("insert error = %v", err)
	}

	rows, err := NewExecutor(db).Execute(ctx, query.BoundQuery{
		Statement: "SELECT invoice_id, invoice_total FROM invoices WHERE vendor ILIKE $1 AND invoice_total >= $2 ORDER BY invoice_id DESC LIMIT $3",
		Args:      []any{"%acme%", 50.0, 10},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %#v", rows)
	}
	if rows[0]["invoice_id"] != "INV-3" || rows[0]["invoice_total"] != 75.25 {
		t.Fatalf("row = %#v", rows[0])
	}
}

func TestExecuteReportsDuckDBStatementErrors(t *testing.T) {
	db := openDuckDB(t)
	_, err := NewExecutor(db).Execute(context.Background(), query.BoundQuery{Statement: "SELECT * FROM not_a_table"})
	assertFailedStage(t, err, "execute")
}

func TestExecuteReleasesConnectionAfterFailure(t *testing.T) {
	db := openDuckDB(t)
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE payments (payment_id VARCHAR, amount DECIMAL(12,2))`); err != nil {
		t.Fatalf("create table error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO payments VALUES ('PAY-1', 40.00)`); err != nil {
		t.Fatalf("insert error = %v", err)
	}

	executor := NewExecutor(db)
	failing := []string{
		"SELECT * FROM missing_table",
		"SELECT CAST('x' AS INTEGER) AS broken",
		"SELECT payment_id FROM payments WHERE amount = 'not a number'",
	}
	for _, statement := range failing {
		if _, err := executor.Execute(ctx, query.BoundQuery{Statement: statement}); err == nil {
			t.Fatalf("Execute(%q) error = nil", statement)
		}
		assertNoConnInUse(t, db)

		rows, err := executor.Execute(ctx, query.BoundQuery{Statement: "SELECT payment_id FROM payments"})
		if err != nil {
			t.Fatalf("Execute() after %q error = %v", statement, err)
		}
		if len(rows) != 1 || rows[0]["payment_id"] != "PAY-1" {
			t.Fatalf("rows = %#v", rows)
		}
		assertNoConnInUse(t, db)
	}
}
