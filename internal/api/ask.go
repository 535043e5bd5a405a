package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowbit/invoiceql/internal/auth"
	"github.com/flowbit/invoiceql/internal/config"
	"github.com/flowbit/invoiceql/internal/nl2sql"
	"github.com/flowbit/invoiceql/internal/observability"
	"github.com/flowbit/invoiceql/internal/query"
	"github.com/flowbit/invoiceql/internal/sqlgate"
)

const maxAskBodyBytes = 64 << 10

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question     string      `json:"question"`
	GeneratedSQL string      `json:"generated_sql"`
	Result       []query.Row `json:"result"`
}

// handleAsk runs question -> model -> extract -> validate -> execute. Model
// output is untrusted; nothing reaches the database unless the gate allows it.
func handleAsk(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !auth.RequireRole(w, r, auth.RoleQueryAsker) {
		return
	}

	var req askRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxAskBodyBytes))
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "No question provided", false, nil)
		return
	}

	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "AI_NOT_CONFIGURED", "natural-language querying is not configured", false, nil)
		return
	}
	if !deps.AskLimiter.Allow(clientKey(r)) {
		observability.IncrementAskRateLimited()
		writeError(r.Context(), w, http.StatusTooManyRequests, "RATE_LIMITED", "too many questions, slow down", true, nil)
		return
	}

	started := time.Now()
	completion, err := deps.Translator.Translate(r.Context(), nl2sql.Request{Question: question})
	observability.ObserveTranslation(cfg.AI.Provider, time.Since(started), err)
	if err != nil {
		deps.Logger.ErrorContext(r.Context(), "question translation failed",
			"trace_id", observability.TraceIDFromContext(r.Context()),
			"provider", cfg.AI.Provider,
			"error", err,
		)
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSLATE_FAILED", "failed to generate SQL for the question", true, map[string]any{"details": err.Error()})
		return
	}

	candidate := sqlgate.Extract(completion.Text)
	verdict := deps.Gate.Validate(candidate)
	observability.ObserveGateVerdict(verdict.Allowed, verdict.Rule)
	if !verdict.Allowed {
		deps.Logger.WarnContext(r.Context(), "generated sql rejected",
			"trace_id", observability.TraceIDFromContext(r.Context()),
			"rule", verdict.Rule,
			"reason", verdict.Reason,
			"generated_sql", candidate,
		)
		writeError(r.Context(), w, http.StatusBadRequest, "UNSAFE_SQL", "generated SQL was rejected: "+verdict.Reason, false, map[string]any{
			"generated_sql": candidate,
			"rule":          verdict.Rule,
		})
		return
	}

	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query executor is not configured", false, nil)
		return
	}
	ctx, cancel := queryContext(cfg, r)
	defer cancel()

	started = time.Now()
	rows, err := deps.Executor.Execute(ctx, query.BoundQuery{Statement: verdict.Statement})
	observability.ObserveQuery("ask", time.Since(started), err)
	if err != nil {
		deps.Logger.ErrorContext(r.Context(), "generated sql failed",
			"trace_id", observability.TraceIDFromContext(r.Context()),
			"generated_sql", verdict.Statement,
			"error", err,
		)
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", "query execution failed", false, map[string]any{
			"details":       err.Error(),
			"generated_sql": verdict.Statement,
		})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Question:     question,
		GeneratedSQL: verdict.Statement,
		Result:       rows,
	})
}
