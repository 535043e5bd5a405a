package invoiceqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	apiKey string
	body   string
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	got := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.apiKey = r.Header.Get("X-API-Key")
		got.body = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRunStatsCommand(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"total_invoices":4}`)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "--api-key", "k1", "stats"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodGet || got.path != "/v1/stats" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if got.apiKey != "k1" {
		t.Fatalf("api key = %q", got.apiKey)
	}
	if !strings.Contains(stdout.String(), `"total_invoices": 4`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunDashboardCommandsHitTheirRoutes(t *testing.T) {
	cases := map[string]string{
		"health":         "/v1/health",
		"ready":          "/v1/ready",
		"trends":         "/v1/invoice-trends",
		"top-vendors":    "/v1/vendors/top",
		"top-customers":  "/v1/customers/top",
		"currency-spend": "/v1/currency-spend",
	}
	for command, path := range cases {
		srv, got := newRecordingServer(t, http.StatusOK, `{}`)
		if code := Run(context.Background(), []string{"--base-url", srv.URL, command}, Options{}); code != 0 {
			t.Fatalf("%s: exit code = %d", command, code)
		}
		if got.method != http.MethodGet || got.path != path {
			t.Fatalf("%s: request = %s %s", command, got.method, got.path)
		}
	}
}

func TestRunAskCommandPostsQuestion(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"question":"q","generated_sql":"SELECT 1","result":[]}`)

	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "total", "spend", "per", "vendor?"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/v1/ask" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(got.body), &payload); err != nil {
		t.Fatalf("body decode failed: %v", err)
	}
	if payload["question"] != "total spend per vendor?" {
		t.Fatalf("question = %q", payload["question"])
	}
}

func TestRunInvoicesCommandEncodesFilters(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"invoices":[]}`)

	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"invoices", "--vendor", "Acme", "--min-total", "50", "--date-from", "2024-01-01", "--limit", "5",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/v1/invoices" {
		t.Fatalf("path = %q", got.path)
	}
	if got.query != "date_from=2024-01-01&limit=5&min_total=50&vendor=Acme" {
		t.Fatalf("query = %q", got.query)
	}
}

func TestRunExportCommand(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusCreated, `{"object_key":"exports/x.parquet","row_count":2,"size_bytes":10}`)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "export", "--currency", "EUR"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/v1/invoices/export" || got.query != "currency=EUR" {
		t.Fatalf("request = %s %s?%s", got.method, got.path, got.query)
	}
	if !strings.Contains(stdout.String(), "exports/x.parquet") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunTableOutput(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	srv, _ := newRecordingServer(t, http.StatusOK, `{"vendors":[{"vendor_name":"Acme","total_spend":119.5},{"vendor_name":"Initech","total_spend":40}]}`)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "--table", "top-vendors"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	output := stdout.String()
	for _, want := range []string{"total_spend", "vendor_name", "Acme", "119.5", "Initech"} {
		if !strings.Contains(output, want) {
			t.Fatalf("table output missing %q:\n%s", want, output)
		}
	}
}

func TestRenderTableFallsBackToFields(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	rendered, err := renderTable([]byte(`{"total_invoices":2,"first_invoice_date":null}`), "")
	if err != nil {
		t.Fatalf("renderTable() error = %v", err)
	}
	if !strings.Contains(rendered, "total_invoices") || !strings.Contains(rendered, "2") {
		t.Fatalf("renderTable() = %q", rendered)
	}

	empty, err := renderTable([]byte(`{"invoices":[]}`), "invoices")
	if err != nil || empty != "(no rows)" {
		t.Fatalf("renderTable() = %q, %v", empty, err)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusForbidden, `{"error_code":"ROLE_MISSING","required_role":"invoice_reader"}`)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "stats"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 403") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"unknown"},
		{},
		{"ask"},
		{"--no-such-flag", "stats"},
		{"stats", "extra"},
	} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("Run(%q) exit code = %d, stderr=%s", args, code, stderr.String())
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%q) wrote no error", args)
		}
	}
}
