package logx

import (
	"context"

	"pkt.systems/pslog"
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// Or returns logger, falling back to the background context logger.
func Or(logger pslog.Logger) pslog.Logger {
	if logger != nil {
		return logger
	}
	return pslog.Ctx(context.Background())
}

// WithMethod annotates the logger with an inbound or outbound method name.
func WithMethod(log pslog.Logger, method string) pslog.Logger {
	if method != "" {
		log = log.With("method", method)
	}
	return log
}

// WithCommand annotates the logger with a command-surface command name.
func WithCommand(log pslog.Logger, command string) pslog.Logger {
	if command != "" {
		log = log.With("command", command)
	}
	return log
}

// Preview truncates text for log fields.
func Preview(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit]
}
