package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowbit/invoiceql/internal/export"
	"github.com/flowbit/invoiceql/internal/filter"
	"github.com/flowbit/invoiceql/internal/query"
)

func TestListInvoicesBindsFilters(t *testing.T) {
	executor := &fakeExecutor{rows: []query.Row{{"id": int64(9), "invoice_id": "INV-9"}}}
	h := NewHandler(testConfig(t, nil), Dependencies{Executor: executor})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invoices?vendor=Acme&min_total=50&limit=50", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	invoices, ok := decodeBody(t, rr)["invoices"].([]any)
	if !ok || len(invoices) != 1 {
		t.Fatalf("invoices = %#v", invoices)
	}

	if len(executor.calls) != 1 {
		t.Fatalf("executor calls = %d", len(executor.calls))
	}
	call := executor.calls[0]
	if !strings.Contains(call.Statement, `v.vendor_name ILIKE $1 ESCAPE '\' AND i.invoice_total >= $2`) {
		t.Fatalf("statement = %q", call.Statement)
	}
	if strings.Contains(call.Statement, "Acme") {
		t.Fatal("filter value was interpolated into the statement")
	}
	if len(call.Args) != 3 || call.Args[0] != "%Acme%" || call.Args[1] != 50.0 || call.Args[2] != 50 {
		t.Fatalf("args = %#v", call.Args)
	}
}

func TestListInvoicesDefaultsLimitAndReturnsEmptyArray(t *testing.T) {
	executor := &fakeExecutor{}
	h := NewHandler(testConfig(t, nil), Dependencies{Executor: executor})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"invoices":[]`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
	call := executor.calls[0]
	if strings.Contains(call.Statement, "WHERE") {
		t.Fatalf("statement = %q", call.Statement)
	}
	if len(call.Args) != 1 || call.Args[0] != 100 {
		t.Fatalf("args = %#v", call.Args)
	}
}

func TestListInvoicesRejectsBadInput(t *testing.T) {
	cases := []struct {
		query string
		code  string
	}{
		{query: "limit=0", code: "INVALID_LIMIT"},
		{query: "limit=abc", code: "INVALID_LIMIT"},
		{query: "limit=1001", code: "INVALID_LIMIT"},
		{query: "date_from=2024-13-40", code: "INVALID_FILTER"},
		{query: "min_total=lots", code: "INVALID_FILTER"},
	}
	for _, tc := range cases {
		executor := &fakeExecutor{}
		h := NewHandler(testConfig(t, nil), Dependencies{Executor: executor})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invoices?"+tc.query, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", tc.query, rr.Code)
		}
		if body := decodeBody(t, rr); body["error_code"] != tc.code {
			t.Fatalf("%s: body = %v", tc.query, body)
		}
		if executor.callCount() != 0 {
			t.Fatalf("%s: executor ran", tc.query)
		}
	}
}

func TestListInvoicesQueryFailure(t *testing.T) {
	executor := &fakeExecutor{err: query.Failed("connect", errors.New("connection refused"))}
	h := NewHandler(testConfig(t, nil), Dependencies{Executor: executor})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "QUERY_FAILED" || !strings.Contains(body["details"].(string), "connection refused") {
		t.Fatalf("body = %v", body)
	}
	if body["trace_id"] == "" {
		t.Fatal("expected trace_id")
	}
}

func TestExportInvoices(t *testing.T) {
	exporter := &fakeExporter{
		maxRows: 500,
		result:  export.Result{ObjectKey: "exports/2026/02/20/x.parquet", RowCount: 3, SizeBytes: 1024},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Exporter: exporter})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/invoices/export?currency=EUR", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["object_key"] != "exports/2026/02/20/x.parquet" || body["row_count"] != 3.0 || body["size_bytes"] != 1024.0 {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["download_url"]; ok {
		t.Fatal("download_url should be omitted when empty")
	}
	if exporter.criteria.Currency != "EUR" || exporter.limit != 500 {
		t.Fatalf("exporter got %+v limit %d", exporter.criteria, exporter.limit)
	}
}

func TestExportInvoicesErrors(t *testing.T) {
	cases := []struct {
		name     string
		exporter *fakeExporter
		target   string
		status   int
		code     string
	}{
		{name: "disabled", exporter: nil, target: "/v1/invoices/export", status: http.StatusBadRequest, code: "EXPORT_NOT_CONFIGURED"},
		{name: "limit above ceiling", exporter: &fakeExporter{maxRows: 10}, target: "/v1/invoices/export?limit=11", status: http.StatusBadRequest, code: "INVALID_LIMIT"},
		{name: "query failed", exporter: &fakeExporter{maxRows: 10, err: query.Failed("execute", errors.New("boom"))}, target: "/v1/invoices/export", status: http.StatusInternalServerError, code: "QUERY_FAILED"},
		{name: "limit from exporter", exporter: &fakeExporter{maxRows: 10, err: filter.ErrInvalidLimit}, target: "/v1/invoices/export", status: http.StatusBadRequest, code: "INVALID_LIMIT"},
		{name: "upload failed", exporter: &fakeExporter{maxRows: 10, err: errors.New("upload export: bucket gone")}, target: "/v1/invoices/export", status: http.StatusInternalServerError, code: "EXPORT_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := Dependencies{}
			if tc.exporter != nil {
				deps.Exporter = tc.exporter
			}
			h := NewHandler(testConfig(t, nil), deps)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.target, nil))
			if rr.Code != tc.status {
				t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
			}
			if body := decodeBody(t, rr); body["error_code"] != tc.code {
				t.Fatalf("body = %v", body)
			}
		})
	}
}
