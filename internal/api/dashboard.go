package api

import (
	"context"
	"net/http"
	"time"

	"github.com/flowbit/invoiceql/internal/auth"
	"github.com/flowbit/invoiceql/internal/config"
	"github.com/flowbit/invoiceql/internal/observability"
	"github.com/flowbit/invoiceql/internal/query"
)

func handleStats(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !dashboardReady(deps, w, r) {
		return
	}
	ctx, cancel := queryContext(cfg, r)
	defer cancel()

	started := time.Now()
	stats, err := deps.Dashboard.Stats(ctx)
	observability.ObserveQuery("stats", time.Since(started), err)
	if err != nil {
		writeQueryFailure(deps, w, r, "dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// dashboardList serves one ranked or bucketed aggregation under key.
func dashboardList(cfg config.Config, deps Dependencies, key string, fetch func(Dashboard, context.Context) ([]query.Row, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !dashboardReady(deps, w, r) {
			return
		}
		ctx, cancel := queryContext(cfg, r)
		defer cancel()

		started := time.Now()
		rows, err := fetch(deps.Dashboard, ctx)
		observability.ObserveQuery(key, time.Since(started), err)
		if err != nil {
			writeQueryFailure(deps, w, r, "dashboard "+key, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{key: rows})
	}
}

func dashboardReady(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if !auth.RequireRole(w, r, auth.RoleInvoiceReader) {
		return false
	}
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard is not configured", false, nil)
		return false
	}
	return true
}
