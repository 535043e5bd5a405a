package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/flowbit/invoiceql/internal/auth"
	"github.com/flowbit/invoiceql/internal/config"
	"github.com/flowbit/invoiceql/internal/export"
	"github.com/flowbit/invoiceql/internal/filter"
	"github.com/flowbit/invoiceql/internal/nl2sql"
	"github.com/flowbit/invoiceql/internal/query"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "invoiceql-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["error"] != "dependency down" {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsEndpointExposesDomainMetrics(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Executor: &fakeExecutor{}})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	for _, metric := range []string{"invoiceql_http_requests_total", "invoiceql_query_executions_total"} {
		if !strings.Contains(rr.Body.String(), metric) {
			t.Fatalf("metrics output missing %s", metric)
		}
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{"INVOICEQL_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst:invoice_reader,k2:bot:query_asker")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Executor:       &fakeExecutor{},
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/invoices", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", authResp.Code, authResp.Body.String())
	}

	wrongRoleReq := httptest.NewRequest(http.MethodGet, "/v1/invoices", nil)
	wrongRoleReq.Header.Set("X-API-Key", "k2")
	wrongRoleResp := httptest.NewRecorder()
	h.ServeHTTP(wrongRoleResp, wrongRoleReq)
	if wrongRoleResp.Code != http.StatusForbidden {
		t.Fatalf("wrong role status = %d", wrongRoleResp.Code)
	}

	healthResp := httptest.NewRecorder()
	h.ServeHTTP(healthResp, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if healthResp.Code != http.StatusOK {
		t.Fatalf("health status = %d", healthResp.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := testConfig(t, map[string]string{"INVOICEQL_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Executor: &fakeExecutor{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "AUTH_MIDDLEWARE_MISSING" {
		t.Fatalf("body = %v", body)
	}
}

func TestHandlerRecoversFromPanics(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Executor: panicExecutor{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}

	next := httptest.NewRecorder()
	h.ServeHTTP(next, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if next.Code != http.StatusOK {
		t.Fatalf("handler unusable after panic: status = %d", next.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckDatabaseAndObjectStore(t *testing.T) {
	if err := CheckDatabase(nil)(context.Background()); err == nil {
		t.Fatal("expected error for missing database")
	}
	failing := CheckDatabase(func(context.Context) error { return errors.New("refused") })
	if err := failing(context.Background()); err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("CheckDatabase() error = %v", err)
	}

	cfg := testConfig(t, map[string]string{"INVOICEQL_EXPORT_ENABLED": "true", "INVOICEQL_OBJECTSTORE_BUCKET": ""})
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected bucket error when export is enabled")
	}
	cfg.Export.Enabled = false
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckObjectStoreConfig() error = %v", err)
	}
}

func testConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	cfg, err := config.Load("invoiceql-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%q)", err, rr.Body.String())
	}
	return body
}

type fakeExecutor struct {
	mu    sync.Mutex
	rows  []query.Row
	err   error
	calls []query.BoundQuery
}

func (f *fakeExecutor) Execute(_ context.Context, q query.BoundQuery) ([]query.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if f.err != nil {
		return nil, f.err
	}
	if f.rows == nil {
		return []query.Row{}, nil
	}
	return f.rows, nil
}

func (f *fakeExecutor) ExecuteAggregate(ctx context.Context, statement string) (query.Row, error) {
	rows, err := f.Execute(ctx, query.BoundQuery{Statement: statement})
	if err != nil || len(rows) == 0 {
		return query.Row{}, err
	}
	return rows[0], nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type panicExecutor struct{}

func (panicExecutor) Execute(context.Context, query.BoundQuery) ([]query.Row, error) {
	panic("driver exploded")
}

func (panicExecutor) ExecuteAggregate(context.Context, string) (query.Row, error) {
	panic("driver exploded")
}

type fakeTranslator struct {
	text   string
	err    error
	prompt string
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.prompt = req.Question
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{Text: f.text, Provider: "fake", Model: "fake-1"}, nil
}

type fakeDashboard struct {
	stats query.Row
	rows  []query.Row
	err   error
	calls []string
}

func (f *fakeDashboard) Stats(context.Context) (query.Row, error) {
	f.calls = append(f.calls, "stats")
	return f.stats, f.err
}

func (f *fakeDashboard) InvoiceTrends(context.Context) ([]query.Row, error) {
	f.calls = append(f.calls, "trends")
	return f.rows, f.err
}

func (f *fakeDashboard) TopVendors(context.Context) ([]query.Row, error) {
	f.calls = append(f.calls, "vendors")
	return f.rows, f.err
}

func (f *fakeDashboard) TopCustomers(context.Context) ([]query.Row, error) {
	f.calls = append(f.calls, "customers")
	return f.rows, f.err
}

func (f *fakeDashboard) CurrencySpend(context.Context) ([]query.Row, error) {
	f.calls = append(f.calls, "currencies")
	return f.rows, f.err
}

type fakeExporter struct {
	maxRows  int
	result   export.Result
	err      error
	criteria filter.Criteria
	limit    int
}

func (f *fakeExporter) Export(_ context.Context, c filter.Criteria, limit int) (export.Result, error) {
	f.criteria = c
	f.limit = limit
	return f.result, f.err
}

func (f *fakeExporter) MaxRows() int {
	return f.maxRows
}

func jsonBody(payload string) io.Reader {
	return strings.NewReader(payload)
}
