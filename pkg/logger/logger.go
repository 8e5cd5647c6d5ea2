package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      string // json or console
	Output      io.Writer
}

// New builds the process logger and installs it as the fallback for
// zerolog.Ctx, so code holding a bare context still logs somewhere useful.
func New(opts Options) zerolog.Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	l := zerolog.New(output).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger().
		Level(opts.Level)

	zerolog.DefaultContextLogger = &l
	return l
}

func ParseLevel(value string) zerolog.Level {
	levelString := strings.ToLower(strings.TrimSpace(value))
	if levelString == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(levelString); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

// WithFields returns a context whose logger carries the given fields.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	l := zerolog.Ctx(ctx).With().Fields(fields).Logger()
	return l.WithContext(ctx)
}

// WithRequestID attaches the request id to the context logger.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := zerolog.Ctx(ctx).With().Str("request_id", requestID).Logger()
	return l.WithContext(ctx)
}

// WithUserID attaches the authenticated user id to the context logger.
func WithUserID(ctx context.Context, userID string) context.Context {
	l := zerolog.Ctx(ctx).With().Str("user_id", userID).Logger()
	return l.WithContext(ctx)
}

// Component returns the context logger tagged with a component name.
func Component(ctx context.Context, name string) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("component", name).Logger()
	return &l
}
