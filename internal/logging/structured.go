package logging

import (
	"log/slog"
	"os"
)

// InitStructured reconfigures the operational logger based on format settings.
// format: "text" (default) or "json" (Loki/ELK compatible)
// level: "debug", "info", "warn", "error"
func InitStructured(format, level string) {
	SetLevelFromString(level)

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler).With("component", component)
	opLogger.Store(logger)
}

// ForNamespace returns the operational logger tagged with the tenant
// namespace a log record concerns, so a multi-tenant daemon's log lines can
// be filtered or counted per namespace without parsing the message text.
func ForNamespace(namespace string) *slog.Logger {
	return opLogger.Load().With("namespace", namespace)
}
