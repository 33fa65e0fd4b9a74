// Package logger builds the process-wide *slog.Logger from configuration and
// provides attribute helpers so ledger log lines use the same keys everywhere.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the slog handler.
type Format string

const (
	// FormatText is human readable, used outside production.
	FormatText Format = "text"
	// FormatJSON is for log aggregators.
	FormatJSON Format = "json"
)

// ParseLevel parses a level name. Unknown names fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures a logger.
type Options struct {
	Level     slog.Level
	Format    Format
	Output    io.Writer
	AddSource bool

	// Attrs are attached to every record, e.g. service name and version.
	Attrs []slog.Attr
}

// DefaultOptions returns text output at info level on stdout.
func DefaultOptions() Options {
	return Options{
		Level:  slog.LevelInfo,
		Format: FormatText,
		Output: os.Stdout,
	}
}

// New creates a logger. It does not replace slog's default logger.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatJSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	if len(opts.Attrs) > 0 {
		handler = handler.WithAttrs(opts.Attrs)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns slog's default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// RequestIDKey is a common field key for request tracing.
const RequestIDKey = "request_id"

// Ledger logging helpers.
func StudentID(id string) slog.Attr     { return slog.String("student_id", id) }
func PenaltyID(id string) slog.Attr     { return slog.String("penalty_id", id) }
func BonusID(id string) slog.Attr       { return slog.String("bonus_id", id) }
func PenaltyType(t string) slog.Attr    { return slog.String("penalty_type", t) }
func BonusType(t string) slog.Attr      { return slog.String("bonus_type", t) }
func Points(n int) slog.Attr            { return slog.Int("points", n) }
func Balance(n int) slog.Attr           { return slog.Int("balance", n) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Operation(name string) slog.Attr   { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }

// Err returns an error attribute. A nil error yields an empty attribute,
// which slog omits.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
