package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowbit/invoiceql/internal/config"
	"github.com/flowbit/invoiceql/internal/export"
	"github.com/flowbit/invoiceql/internal/filter"
	"github.com/flowbit/invoiceql/internal/nl2sql"
	"github.com/flowbit/invoiceql/internal/observability"
	"github.com/flowbit/invoiceql/internal/query"
	"github.com/flowbit/invoiceql/internal/sqlgate"
)

type ReadinessCheck func(ctx context.Context) error

// Dashboard serves the fixed aggregations.
type Dashboard interface {
	Stats(ctx context.Context) (query.Row, error)
	InvoiceTrends(ctx context.Context) ([]query.Row, error)
	TopVendors(ctx context.Context) ([]query.Row, error)
	TopCustomers(ctx context.Context) ([]query.Row, error)
	CurrencySpend(ctx context.Context) ([]query.Row, error)
}

type Exporter interface {
	Export(ctx context.Context, c filter.Criteria, limit int) (export.Result, error)
	MaxRows() int
}

// Dependencies are resolved once at startup. A nil Translator disables the
// question endpoint and a nil Exporter disables exports.
type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Executor          query.Executor
	Dashboard         Dashboard
	Translator        nl2sql.Translator
	Gate              *sqlgate.Validator
	Exporter          Exporter
	AskLimiter        *ClientLimiter
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Gate == nil {
		deps.Gate = sqlgate.NewValidator()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]http.HandlerFunc{
		"POST /v1/ask": func(w http.ResponseWriter, r *http.Request) {
			handleAsk(cfg, deps, w, r)
		},
		"GET /v1/invoices": func(w http.ResponseWriter, r *http.Request) {
			handleListInvoices(cfg, deps, w, r)
		},
		"POST /v1/invoices/export": func(w http.ResponseWriter, r *http.Request) {
			handleExportInvoices(cfg, deps, w, r)
		},
		"GET /v1/stats": func(w http.ResponseWriter, r *http.Request) {
			handleStats(cfg, deps, w, r)
		},
		"GET /v1/invoice-trends": dashboardList(cfg, deps, "trends", Dashboard.InvoiceTrends),
		"GET /v1/vendors/top":    dashboardList(cfg, deps, "vendors", Dashboard.TopVendors),
		"GET /v1/customers/top":  dashboardList(cfg, deps, "customers", Dashboard.TopCustomers),
		"GET /v1/currency-spend": dashboardList(cfg, deps, "currencies", Dashboard.CurrencySpend),
	}
	// Legacy clients still post questions to /ask.
	routes["POST /ask"] = routes["POST /v1/ask"]

	protected := http.NewServeMux()
	for pattern, handler := range routes {
		protected.HandleFunc(pattern, handler)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			deps.Logger.Error("auth required but auth middleware missing")
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	return chain(mux,
		middleware.RealIP,
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
		observability.LoggingMiddleware(deps.Logger),
		middleware.Recoverer,
	)
}

func CheckDatabase(ping func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New("database is not configured")
		}
		if err := ping(ctx); err != nil {
			return errors.New("database is not reachable: " + err.Error())
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.Export.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func queryContext(cfg config.Config, r *http.Request) (context.Context, context.CancelFunc) {
	if cfg.Database.QueryTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), cfg.Database.QueryTimeout)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders {"error", "error_code", "retryable", "trace_id"} merged
// with extra diagnostics.
func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	body := make(map[string]any, len(extra)+4)
	for key, value := range extra {
		body[key] = value
	}
	body["error"] = message
	body["error_code"] = code
	body["retryable"] = retryable
	body["trace_id"] = observability.TraceIDFromContext(ctx)
	writeJSON(w, status, body)
}
