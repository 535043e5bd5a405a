package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flowbit/invoiceql/internal/auth"
	"github.com/flowbit/invoiceql/internal/config"
	"github.com/flowbit/invoiceql/internal/filter"
	"github.com/flowbit/invoiceql/internal/observability"
	"github.com/flowbit/invoiceql/internal/query"
)

func handleListInvoices(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !auth.RequireRole(w, r, auth.RoleInvoiceReader) {
		return
	}
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query executor is not configured", false, nil)
		return
	}

	criteria, limit, ok := parseListing(w, r, cfg.Listing.DefaultLimit, cfg.Listing.MaxLimit)
	if !ok {
		return
	}
	bound, err := filter.Build(criteria, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_BUILD_FAILED", "failed to build listing query", false, map[string]any{"details": err.Error()})
		return
	}

	ctx, cancel := queryContext(cfg, r)
	defer cancel()

	started := time.Now()
	rows, err := deps.Executor.Execute(ctx, bound)
	observability.ObserveQuery("listing", time.Since(started), err)
	if err != nil {
		writeQueryFailure(deps, w, r, "list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": rows})
}

func handleExportInvoices(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !auth.RequireRole(w, r, auth.RoleInvoiceExporter) {
		return
	}
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "EXPORT_NOT_CONFIGURED", "invoice export is not enabled", false, nil)
		return
	}

	maxRows := deps.Exporter.MaxRows()
	criteria, limit, ok := parseListing(w, r, maxRows, maxRows)
	if !ok {
		return
	}

	ctx, cancel := queryContext(cfg, r)
	defer cancel()

	result, err := deps.Exporter.Export(ctx, criteria, limit)
	if err != nil {
		switch {
		case errors.Is(err, filter.ErrInvalidLimit):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false, nil)
		case errors.Is(err, query.ErrQueryFailed):
			writeQueryFailure(deps, w, r, "export invoices", err)
		default:
			deps.Logger.ErrorContext(r.Context(), "invoice export failed",
				"trace_id", observability.TraceIDFromContext(r.Context()),
				"error", err,
			)
			writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "invoice export failed", true, map[string]any{"details": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// parseListing reads the shared filter and limit parameters, writing a 400
// and returning ok=false when they are malformed.
func parseListing(w http.ResponseWriter, r *http.Request, defaultLimit, maxLimit int) (filter.Criteria, int, bool) {
	values := r.URL.Query()
	criteria, err := filter.ParseCriteria(values)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), false, nil)
		return filter.Criteria{}, 0, false
	}
	limit, err := filter.ParseLimit(values.Get("limit"), defaultLimit, maxLimit)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", fmt.Sprintf("limit must be an integer between 1 and %d", maxLimit), false, nil)
		return filter.Criteria{}, 0, false
	}
	return criteria, limit, true
}

func writeQueryFailure(deps Dependencies, w http.ResponseWriter, r *http.Request, operation string, err error) {
	deps.Logger.ErrorContext(r.Context(), operation+" failed",
		"trace_id", observability.TraceIDFromContext(r.Context()),
		"error", err,
	)
	writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", "query execution failed", true, map[string]any{"details": err.Error()})
}

