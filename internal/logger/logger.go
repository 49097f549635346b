// Package logger provides structured logging on log/slog with a colored
// console handler, an optional log file, per-component prefixes, and
// notification dispatch for monitor events.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

var eventEmoji = map[model.Event]string{
	model.EventAreaWarning:   "🟡",
	model.EventAreaCritical:  "🔴",
	model.EventAreaNormal:    "🟢",
	model.EventAlertCreated:  "🚨",
	model.EventFeedConnected: "🔌",
	model.EventFeedLost:      "📡",
	model.EventFeedFailed:    "⛔",
	model.EventScan:          "🎫",
	model.EventTest:          "🧪",
}

// NotifyFunc is a callback invoked when Event is logged.
// Implementations should be non-blocking.
type NotifyFunc func(ctx context.Context, message string, event model.Event)

// Config holds logger configuration options.
type Config struct {
	Level     slog.Level
	FileLevel slog.Level
	Colored   bool
	LogDir    string
	Component string
	NotifyFn  NotifyFunc

	// Output defaults to os.Stdout.
	Output io.Writer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		FileLevel: slog.LevelDebug,
		Colored:   true,
	}
}

// Logger wraps slog.Logger with a component prefix and notification dispatch.
type Logger struct {
	*slog.Logger
	cfg      Config
	file     io.Writer
	notifyFn *atomic.Value // stores NotifyFunc, shared with derived loggers
}

// Setup creates a new Logger with a console handler and, when LogDir is
// set, a file handler writing crowdfeed.log.
func Setup(cfg Config) (*Logger, error) {
	var file io.Writer
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", cfg.LogDir, err)
		}

		f, err := os.OpenFile(
			filepath.Join(cfg.LogDir, "crowdfeed.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND,
			0o644,
		)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f
	}

	l := &Logger{cfg: cfg, file: file, notifyFn: &atomic.Value{}}
	l.Logger = slog.New(l.handler(cfg.Component))
	if cfg.NotifyFn != nil {
		l.notifyFn.Store(cfg.NotifyFn)
	}
	return l, nil
}

// Nop returns a Logger that discards everything. Handy in tests.
func Nop() *Logger {
	l, _ := Setup(Config{Level: slog.LevelError + 1, Output: io.Discard})
	return l
}

func (l *Logger) handler(component string) slog.Handler {
	out := l.cfg.Output
	if out == nil {
		out = os.Stdout
	}

	console := newColorHandler(out, l.cfg.Level, l.cfg.Colored, component)
	if l.file == nil {
		return console
	}

	fileHandler := slog.NewTextHandler(l.file, &slog.HandlerOptions{Level: l.cfg.FileLevel})
	var h slog.Handler = fileHandler
	if component != "" {
		h = fileHandler.WithAttrs([]slog.Attr{slog.String("component", component)})
	}
	return &multiHandler{handlers: []slog.Handler{console, h}}
}

// With returns a Logger whose console lines are prefixed with [component].
// The file and notify callback are shared with the parent.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		Logger:   slog.New(l.handler(component)),
		cfg:      l.cfg,
		file:     l.file,
		notifyFn: l.notifyFn,
	}
}

// Event logs a message at INFO level and dispatches a notification if configured.
// If the event has a mapped emoji, it is prepended to the log message.
func (l *Logger) Event(ctx context.Context, event model.Event, msg string, args ...any) {
	if emoji, ok := eventEmoji[event]; ok {
		msg = emoji + " " + msg
	}
	l.Logger.Info(msg, append(args, "event", string(event))...)

	if fn, ok := l.notifyFn.Load().(NotifyFunc); ok && fn != nil {
		fn(ctx, formatNotification(msg, args), event)
	}
}

// SetNotifyFunc sets the notification callback function. Thread-safe.
func (l *Logger) SetNotifyFunc(fn NotifyFunc) {
	l.notifyFn.Store(fn)
}

// formatNotification renders key/value pairs as "msg (k: v, k: v)".
func formatNotification(msg string, args []any) string {
	if len(args) < 2 {
		return msg
	}
	parts := make([]string, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		parts = append(parts, fmt.Sprintf("%v: %v", args[i], args[i+1]))
	}
	return msg + " (" + strings.Join(parts, ", ") + ")"
}

// ParseLevel converts a string log level to slog.Level.
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
