package internal

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var logLevel = new(slog.LevelVar)

var logOutput atomic.Pointer[io.Writer]

// SetLogLevel sets the level shared by every logger created by [NewLogger].
// Unknown names fall back to info.
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}

// SetLogOutput redirects every logger created afterwards to w.
// Tests use it to silence or capture output. A nil w restores the default output.
func SetLogOutput(w io.Writer) {
	if w == nil {
		logOutput.Store(nil)
		return
	}
	logOutput.Store(&w)
}

func newHandler() slog.Handler {
	if w := logOutput.Load(); w != nil {
		return tint.NewHandler(*w, &tint.Options{Level: logLevel, NoColor: true})
	}

	if runtime.GOOS == "windows" {
		w := colorable.NewColorableStdout()
		return tint.NewHandler(w, &tint.Options{Level: logLevel})
	}

	w := os.Stderr
	return tint.NewHandler(w, &tint.Options{
		Level:   logLevel,
		NoColor: !isatty.IsTerminal(w.Fd()),
	})
}

type Logger struct {
	*slog.Logger

	kind string
	name string
}

func NewLogger(kind, name string) *Logger {
	return &Logger{
		Logger: slog.New(newHandler()),

		kind: kind,
		name: name,
	}
}

func (l *Logger) getInfo() slog.Attr {
	return slog.Group("info", slog.String("kind", l.kind), slog.String("name", l.name))
}

func (l *Logger) getArgs(args ...any) []any {
	return append([]any{l.getInfo()}, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, l.getArgs(args...)...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, l.getArgs(args...)...)
}

func (l *Logger) Error(msg string, err error, args ...any) {
	tmpArgs := append([]any{tint.Err(err)}, args...)
	l.Logger.Error(msg, l.getArgs(tmpArgs...)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, l.getArgs(args...)...)
}
