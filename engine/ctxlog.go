package engine

import (
	"context"
	"log/slog"
)

// loggerKey is an unexported type to prevent collisions with context
// keys from other packages.
type loggerKey struct{}

// withLogger returns a new context with logger embedded, so runBundle,
// which RunStep calls with that context, can pull it back out via
// LoggerFromContext instead of closing over the StencilContext's logger
// field directly.
func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext extracts the *slog.Logger embedded by RunStep. It
// panics if ctx carries no logger: every call site within this package
// is reachable only through RunStep, which always embeds one first.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	panic("engine: logger missing from context")
}
