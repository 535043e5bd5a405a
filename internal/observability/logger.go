package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/flowbit/invoiceql/internal/config"
)

type ctxKey struct{}

// secretAttrKeys never reach a log line in clear text: the model API key,
// object store credentials and database DSNs (which may carry a password).
var secretAttrKeys = map[string]bool{
	"api_key":           true,
	"authorization":     true,
	"dsn":               true,
	"password":          true,
	"secret_access_key": true,
	"x-api-key":         true,
}

const redacted = "[redacted]"

// NewLogger builds the service logger. Every record carries the deployment
// shape (database driver, model provider, export switch) so a log line can
// be read without the environment it came from.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: redactSecrets}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	provider := "disabled"
	if cfg.AI.Enabled {
		provider = cfg.AI.Provider
	}
	return slog.New(traceHandler{handler}).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.Group("deployment",
			slog.String("db_driver", cfg.Database.Driver),
			slog.String("ai_provider", provider),
			slog.Bool("export_enabled", cfg.Export.Enabled),
			slog.Bool("auth_required", cfg.Auth.Required),
		),
	)
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	if secretAttrKeys[strings.ToLower(attr.Key)] && attr.Value.Kind() != slog.KindGroup {
		return slog.String(attr.Key, redacted)
	}
	return attr
}

// traceHandler stamps trace_id from the context onto records that do not set
// one themselves.
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, record slog.Record) error {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		explicit := false
		record.Attrs(func(attr slog.Attr) bool {
			explicit = attr.Key == "trace_id"
			return !explicit
		})
		if !explicit {
			record.AddAttrs(slog.String("trace_id", traceID))
		}
	}
	return h.Handler.Handle(ctx, record)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(ctxKey{}).(string)
	return traceID
}
