package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flowbit/invoiceql/internal/observability"
)

// Error codes written by this package. Clients branch on them to tell a
// missing key from a rejected one.
const (
	CodeKeyMissing  = "API_KEY_MISSING"
	CodeKeyInvalid  = "API_KEY_INVALID"
	CodeRoleMissing = "ROLE_MISSING"
)

const apiKeyHeader = "X-API-Key"

type contextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// Middleware resolves the caller's API key to an Identity. It does not check
// roles; each invoice route does that through RequireRole.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, scheme := apiKeyFrom(r)
			if apiKey == "" {
				writeAuthError(w, r, http.StatusUnauthorized, CodeKeyMissing, "an API key is required", map[string]any{
					"accepted_credentials": []string{apiKeyHeader, "Authorization: Bearer"},
				})
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				logger.WarnContext(r.Context(), "api key rejected",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("path", r.URL.Path),
					slog.String("credential", scheme),
				)
				writeAuthError(w, r, http.StatusUnauthorized, CodeKeyInvalid, "the API key is not recognized", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole lets the request through when no identity is attached (auth
// disabled) or the identity holds role. Otherwise it writes a 403 naming the
// missing role and returns false.
func RequireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	identity, ok := IdentityFromContext(r.Context())
	if !ok || identity.HasRole(role) {
		return true
	}
	writeAuthError(w, r, http.StatusForbidden, CodeRoleMissing, "principal "+identity.Principal+" lacks role "+role, map[string]any{
		"required_role": role,
		"granted_roles": identity.Roles,
	})
	return false
}

// apiKeyFrom prefers X-API-Key and falls back to a bearer token. scheme names
// where the key came from, for logs.
func apiKeyFrom(r *http.Request) (key, scheme string) {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key, "header"
	}
	kind, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(kind, "Bearer") {
		return "", ""
	}
	return strings.TrimSpace(token), "bearer"
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string, extra map[string]any) {
	body := map[string]any{
		"error":      message,
		"error_code": code,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	}
	for key, value := range extra {
		body[key] = value
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="invoiceql"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
