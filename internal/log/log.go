// Package log configures the default slog logger and carries scoped
// loggers through a context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

var (
	// Debug switches the default logger to debug level. The fetchers also
	// use it to decide whether fetched pages are written to disk.
	Debug bool
	// NoColor disables colored console output.
	NoColor bool
)

type loggerCtxKey struct{}

func GetLogLevel() slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// NewHandler returns the console handler used by the default logger.
func NewHandler(w io.Writer) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      GetLogLevel(),
		TimeFormat: time.DateTime,
		NoColor:    NoColor,
	})
}

func InitializeDefaultLogger() {
	slog.SetDefault(slog.New(NewHandler(os.Stderr)))
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
