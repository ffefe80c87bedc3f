package observability

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// root logger, JSON to stdout.
var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// Logger returns the process-wide root logger.
func Logger() *zerolog.Logger {
	return &logger
}

// SetLevel adjusts the global log level ("debug", "info", ...). Unknown
// levels leave it unchanged.
func SetLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return
	}
	zerolog.SetGlobalLevel(parsed)
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// WithRequestID stores a request-scoped logger carrying request_id in the
// context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := logger.With().Str("request_id", requestID).Logger()
	return l.WithContext(ctx)
}

// LoggerFromContext returns the request-scoped logger if one is present, the
// root logger otherwise.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &logger
	}
	return l
}
