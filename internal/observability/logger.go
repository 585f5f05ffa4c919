package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/autosql/autosql/internal/config"
)

type ctxKey string

const (
	traceIDKey  ctxKey = "trace_id"
	usernameKey ctxKey = "username"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// UsernameHolder is installed by the logging middleware so handlers deeper in
// the chain can report which user a request belonged to.
type UsernameHolder struct {
	Username string
}

func contextWithUsernameHolder(ctx context.Context, holder *UsernameHolder) context.Context {
	return context.WithValue(ctx, usernameKey, holder)
}

// SetRequestUsername records the authenticated user for request logging.
func SetRequestUsername(ctx context.Context, username string) {
	holder, ok := ctx.Value(usernameKey).(*UsernameHolder)
	if !ok || holder == nil {
		return
	}
	holder.Username = username
}
