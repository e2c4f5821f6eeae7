package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
	output     io.Writer = os.Stdout
	useJSON    bool
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if useJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput replaces the writer behind the package logger.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	output = w
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

// SetFormat switches between "text" (default) and "json" records.
func SetFormat(format string) {
	loggerMu.Lock()
	useJSON = strings.EqualFold(strings.TrimSpace(format), "json")
	baseLogger = newLogger(output)
	loggerMu.Unlock()
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

func Enabled(level slog.Level) bool {
	return level >= levelVar.Level()
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}

// Named returns a logger that tags every record with component=name.
func Named(name string) *Component {
	return &Component{name: strings.TrimSpace(name)}
}

// Component is a thin per-subsystem wrapper; it resolves the active logger on
// every call so SetOutput/SetLevel keep working after construction.
type Component struct {
	name string
}

func (c *Component) log(level slog.Level, format string, v ...any) {
	l := activeLogger()
	if c != nil && c.name != "" {
		l = l.With(slog.String("component", c.name))
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func (c *Component) Debugf(format string, v ...any) { c.log(slog.LevelDebug, format, v...) }
func (c *Component) Infof(format string, v ...any)  { c.log(slog.LevelInfo, format, v...) }
func (c *Component) Warnf(format string, v ...any)  { c.log(slog.LevelWarn, format, v...) }
func (c *Component) Errorf(format string, v ...any) { c.log(slog.LevelError, format, v...) }
