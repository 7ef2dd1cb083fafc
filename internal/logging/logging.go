package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging surface used across the project. Methods
// take a message and alternating key/value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type Options struct {
	Level  string // debug, info, warn, error (default info)
	Format string // text or json (default text)
}

func NewLogger(opts Options) (Logger, error) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var out io.Writer
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case "json":
		out = os.Stderr
	default:
		return nil, fmt.Errorf("unsupported log format: %q", opts.Format)
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}, nil
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, kv ...any) { emit(l.zl.Debug(), msg, kv) }
func (l *zerologLogger) Info(msg string, kv ...any)  { emit(l.zl.Info(), msg, kv) }
func (l *zerologLogger) Warn(msg string, kv ...any)  { emit(l.zl.Warn(), msg, kv) }
func (l *zerologLogger) Error(msg string, kv ...any) { emit(l.zl.Error(), msg, kv) }

func emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

// Nop discards everything. FromContext falls back to it so callers never need
// a nil check.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}

type ctxKey struct{}

func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(ctxKey{}).(Logger); ok && logger != nil {
		return logger
	}
	return Nop{}
}
